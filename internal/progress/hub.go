package progress

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Config controls buffering and batching for the Hub.
//   - BufferSize: capacity of the event channel (default 1024).
//   - MaxBatchEvents: flush once this many events are pending (default 256).
//   - MaxBatchWait: flush a partial batch after this long (default 250ms).
//   - SinkTimeout: deadline for each sink call (default 5s).
//   - BaseContext: parent of every sink context (default context.Background()).
//   - Logger: receives drop and sink failure warnings.
type Config struct {
	BufferSize     int
	MaxBatchEvents int
	MaxBatchWait   time.Duration
	SinkTimeout    time.Duration
	BaseContext    context.Context
	Logger         *zap.Logger
}

const (
	defaultBufferSize     = 1024
	defaultMaxBatchEvents = 256
	defaultMaxBatchWait   = 250 * time.Millisecond
	defaultSinkTimeout    = 5 * time.Second
	dropLogInterval       = 5 * time.Second
)

func (c Config) withDefaults() Config {
	if c.BufferSize <= 0 {
		c.BufferSize = defaultBufferSize
	}
	if c.MaxBatchEvents <= 0 {
		c.MaxBatchEvents = defaultMaxBatchEvents
	}
	if c.MaxBatchWait <= 0 {
		c.MaxBatchWait = defaultMaxBatchWait
	}
	if c.SinkTimeout <= 0 {
		c.SinkTimeout = defaultSinkTimeout
	}
	if c.BaseContext == nil {
		c.BaseContext = context.Background()
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

// Hub fans tracker events out to sinks. Emit never blocks, so trackers that
// call it while holding their own lock are never slowed down by a sink.
type Hub struct {
	cfg    Config
	sinks  []Sink
	events chan Event
	stopCh chan struct{}
	doneCh chan struct{}
	logger *zap.Logger

	dropped     atomic.Int64
	lastDropLog atomic.Int64
	closed      atomic.Bool

	closeOnce sync.Once
	closeCtx  context.Context
}

// NewHub starts the background batching goroutine for the given sinks.
func NewHub(cfg Config, sinks ...Sink) *Hub {
	cfg = cfg.withDefaults()
	h := &Hub{
		cfg:    cfg,
		sinks:  append([]Sink(nil), sinks...),
		events: make(chan Event, cfg.BufferSize),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
		logger: cfg.Logger,
	}
	go h.run()
	return h
}

// Emit queues evt. Invalid events are discarded; when the buffer is full the
// event is dropped and counted.
func (h *Hub) Emit(evt Event) {
	if h == nil || h.closed.Load() {
		return
	}
	if err := evt.Validate(); err != nil {
		h.logger.Debug("discarding invalid tracker event", zap.Error(err))
		return
	}
	select {
	case h.events <- evt:
	default:
		h.dropped.Add(1)
		h.maybeLogDrops(time.Now())
	}
}

// Dropped returns the number of events dropped since the last drop warning.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

func (h *Hub) maybeLogDrops(now time.Time) {
	last := h.lastDropLog.Load()
	if now.UnixNano()-last < dropLogInterval.Nanoseconds() {
		return
	}
	if !h.lastDropLog.CompareAndSwap(last, now.UnixNano()) {
		return
	}
	h.logger.Warn("tracker events dropped due to backpressure", zap.Int64("dropped", h.dropped.Swap(0)))
}

// Close stops accepting events, flushes what is queued, closes every sink and
// waits for the background goroutine. Later calls only wait.
func (h *Hub) Close(ctx context.Context) error {
	if h == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	h.closeOnce.Do(func() {
		h.closed.Store(true)
		h.closeCtx = ctx
		close(h.stopCh)
	})
	select {
	case <-h.doneCh:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("progress hub close wait: %w", ctx.Err())
	}
}

func (h *Hub) run() {
	defer close(h.doneCh)
	pending := make([]Event, 0, h.cfg.MaxBatchEvents)
	timer := time.NewTimer(h.cfg.MaxBatchWait)
	stopTimer(timer)
	armed := false

	for {
		select {
		case evt := <-h.events:
			pending = append(pending, evt)
			if len(pending) >= h.cfg.MaxBatchEvents {
				pending = h.flush(pending)
				if armed {
					stopTimer(timer)
					armed = false
				}
			} else if !armed {
				timer.Reset(h.cfg.MaxBatchWait)
				armed = true
			}
		case <-timer.C:
			armed = false
			pending = h.flush(pending)
		case <-h.stopCh:
			if armed {
				stopTimer(timer)
			}
			h.drain(pending)
			return
		}
	}
}

func (h *Hub) drain(pending []Event) {
	for {
		select {
		case evt := <-h.events:
			pending = append(pending, evt)
			if len(pending) >= h.cfg.MaxBatchEvents {
				pending = h.flush(pending)
			}
		default:
			h.flush(pending)
			h.closeSinks()
			return
		}
	}
}

func stopTimer(timer *time.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
}

// flush hands a copy of pending to every sink and returns pending truncated
// for reuse.
func (h *Hub) flush(pending []Event) []Event {
	if len(pending) == 0 {
		return pending
	}
	batch := append([]Event(nil), pending...)
	for _, sink := range h.sinks {
		if sink == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(h.cfg.BaseContext, h.cfg.SinkTimeout)
		if err := sink.Consume(ctx, batch); err != nil {
			h.logger.Warn("progress sink consume failed", zap.Error(err), zap.Int("batch", len(batch)))
		}
		cancel()
	}
	return pending[:0]
}

func (h *Hub) closeSinks() {
	ctx := h.closeCtx
	if ctx == nil {
		ctx = context.Background()
	}
	for _, sink := range h.sinks {
		if sink == nil {
			continue
		}
		if err := sink.Close(ctx); err != nil {
			h.logger.Warn("progress sink close failed", zap.Error(err))
		}
	}
}
