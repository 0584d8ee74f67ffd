package simulate

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Launcher runs simulations in the background under a shared context so that
// Close can cancel and await all of them.
type Launcher struct {
	runner *Runner
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	results map[uuid.UUID]chan Result
}

// NewLauncher wraps runner.
func NewLauncher(runner *Runner, logger *zap.Logger) *Launcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Launcher{
		runner:  runner,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		results: make(map[uuid.UUID]chan Result),
	}
}

// Launch starts a simulation and returns its tracker ID without waiting.
func (l *Launcher) Launch(_ context.Context, opts Options) (uuid.UUID, error) {
	if err := l.ctx.Err(); err != nil {
		return uuid.Nil, fmt.Errorf("launcher closed: %w", err)
	}
	id, err := l.runner.NewTrackerID()
	if err != nil {
		return uuid.Nil, err
	}
	done := make(chan Result, 1)
	l.mu.Lock()
	l.results[id] = done
	l.mu.Unlock()

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		result, err := l.runner.Run(l.ctx, id, opts)
		if err != nil {
			l.logger.Debug("background simulation ended early", zap.Stringer("tracker_id", id), zap.Error(err))
		}
		done <- result
		close(done)
		l.mu.Lock()
		delete(l.results, id)
		l.mu.Unlock()
	}()
	return id, nil
}

// Wait blocks until the simulation with id ends or ctx is done. Unknown or
// already collected IDs return false.
func (l *Launcher) Wait(ctx context.Context, id uuid.UUID) (Result, bool) {
	l.mu.Lock()
	done, ok := l.results[id]
	l.mu.Unlock()
	if !ok {
		return Result{}, false
	}
	select {
	case result, ok := <-done:
		return result, ok
	case <-ctx.Done():
		return Result{}, false
	}
}

// Close cancels running simulations and waits for them to stop.
func (l *Launcher) Close(ctx context.Context) error {
	l.cancel()
	waited := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(waited)
	}()
	select {
	case <-waited:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("simulation launcher close wait: %w", ctx.Err())
	}
}
