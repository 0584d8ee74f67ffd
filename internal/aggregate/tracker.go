package aggregate

import (
	"math/big"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultTotalQuota is the number of work units a Tracker distributes when no
// WithTotalQuota option is given.
const DefaultTotalQuota = 10000

// UnknownEstimate is forwarded to Display.Start when Start is called without
// an estimate.
const UnknownEstimate = time.Duration(-1)

// Option configures a Tracker.
type Option func(*Tracker)

// WithTotalQuota overrides the fixed number of work units. Values <= 0 are
// ignored.
func WithTotalQuota(total int) Option {
	return func(t *Tracker) {
		if total > 0 {
			t.total = total
		}
	}
}

// WithDisplay sets the display the tracker forwards to.
func WithDisplay(d Display) Option {
	return func(t *Tracker) {
		if d != nil {
			t.display = d
		}
	}
}

// WithObserver sets the initial observer.
func WithObserver(o Observer) Option {
	return func(t *Tracker) {
		t.observer = o
	}
}

// WithLogger sets the logger used for rejected calls.
func WithLogger(logger *zap.Logger) Option {
	return func(t *Tracker) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithDisplayName sets the initial display name without notifying the display.
func WithDisplayName(name string) Option {
	return func(t *Tracker) {
		t.name = name
	}
}

// WithContributors registers contributors right after construction, in order.
func WithContributors(cs ...*Contributor) Option {
	return func(t *Tracker) {
		t.initial = append(t.initial, cs...)
	}
}

// Tracker owns the aggregate quota and the set of active contributors. It is
// safe for concurrent use.
type Tracker struct {
	total   int
	display Display
	logger  *zap.Logger
	initial []*Contributor

	mu           sync.Mutex
	position     int
	contributors map[*Contributor]struct{}
	finished     bool
	observer     Observer
	name         string
}

// NewTracker builds a Tracker with zero active contributors, then registers any
// contributors passed through WithContributors.
func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		total:        DefaultTotalQuota,
		display:      NopDisplay{},
		logger:       zap.NewNop(),
		contributors: make(map[*Contributor]struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	initial := t.initial
	t.initial = nil
	for _, c := range initial {
		t.AddContributor(c)
	}
	return t
}

// Start resets the position and activates the display with an unknown
// estimate.
func (t *Tracker) Start() {
	t.StartWithEstimate(UnknownEstimate)
}

// StartWithEstimate resets the position to zero and activates the display
// with the given duration estimate.
func (t *Tracker) StartWithEstimate(estimate time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finished {
		return
	}
	t.position = 0
	t.display.Start(t.total, estimate)
}

// Finish marks the tracker finished and dismisses the display. Only the first
// call has any effect.
func (t *Tracker) Finish() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.finishLocked()
}

func (t *Tracker) finishLocked() {
	if t.finished {
		return
	}
	t.finished = true
	t.display.Finish()
}

// Suspend forwards a suspend message to the display.
func (t *Tracker) Suspend(message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.display.Suspend(message)
}

// SetInitialDelay forwards the delay before the display becomes visible.
func (t *Tracker) SetInitialDelay(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.display.SetInitialDelay(d)
}

// SetDisplayName renames the tracker.
func (t *Tracker) SetDisplayName(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.name = name
	t.display.SetDisplayName(name)
}

// DisplayName returns the current display name.
func (t *Tracker) DisplayName() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.name
}

// SetObserver replaces the observer. A nil observer disables notifications.
func (t *Tracker) SetObserver(o Observer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.observer = o
}

// Total returns the fixed quota.
func (t *Tracker) Total() int {
	return t.total
}

// Finished reports whether the tracker has finished.
func (t *Tracker) Finished() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.finished
}

// Position returns the aggregate progress so far.
func (t *Tracker) Position() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.position
}

// PercentComplete returns position/total in the range [0, 1].
func (t *Tracker) PercentComplete() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return float64(t.position) / float64(t.total)
}

// AddContributor registers c and re-partitions the unconsumed quota between
// the active contributors and c. It is a no-op once the tracker has finished.
func (t *Tracker) AddContributor(c *Contributor) {
	if c == nil {
		t.logger.Warn("ignoring nil contributor")
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finished {
		return
	}
	if !c.parent.CompareAndSwap(nil, t) {
		t.logger.Warn("contributor already registered", zap.String("contributor_id", c.id))
		return
	}

	var remaining int
	if len(t.contributors) == 0 {
		remaining = t.total - t.position
	} else {
		for other := range t.contributors {
			remaining += other.quota
		}
	}

	// share = floor(remaining / (1 + sum of remaining-work weights)), computed
	// exactly so that equal inputs always partition identically.
	denom := big.NewRat(1, 1)
	for other := range t.contributors {
		num, den := other.remainingWeight()
		denom.Add(denom, big.NewRat(num, den))
	}
	quotient := new(big.Rat).Quo(big.NewRat(int64(remaining), 1), denom)
	share := new(big.Int).Quo(quotient.Num(), quotient.Denom()).Int64()

	for other := range t.contributors {
		// Existing contributors may only shrink; the visible total never
		// jumps backward.
		num, den := other.remainingWeight()
		next := int(mulDiv(num, share, den))
		if next > other.quota {
			next = other.quota
		}
		remaining -= next
		other.quota = next
	}

	c.quota = remaining
	t.contributors[c] = struct{}{}
}

// processStep applies a progress report from c. When advance is false the
// report carries only a message and unit is ignored. The conversion from
// local to parent units happens inside the critical section so a concurrent
// AddContributor never observes a half-applied step.
func (t *Tracker) processStep(c *Contributor, message string, unit int, advance bool) {
	t.mu.Lock()
	if t.finished || c.done {
		t.mu.Unlock()
		return
	}
	if !advance {
		unit = c.localPosition
	}
	if unit < c.localPosition || unit > c.localTotal {
		localPosition, localTotal := c.localPosition, c.localTotal
		t.mu.Unlock()
		t.logger.Warn("rejecting out of range progress",
			zap.String("contributor_id", c.id),
			zap.Int("unit", unit),
			zap.Int("local_position", localPosition),
			zap.Int("local_total", localTotal),
		)
		return
	}
	if unit == c.localPosition && message == "" {
		t.mu.Unlock()
		return
	}
	count := 0
	if unit != c.localPosition {
		c.localPosition = unit
		count = c.emit()
	}
	if count == 0 && message == "" {
		t.mu.Unlock()
		return
	}
	t.position += count
	t.display.Progress(message, t.position)
	observer := t.observer
	t.mu.Unlock()

	if observer != nil {
		observer.ContributorProgressed(c.id)
	}
}

func (t *Tracker) processStart(c *Contributor, localTotal int) {
	if localTotal < 0 {
		t.logger.Warn("rejecting negative local total",
			zap.String("contributor_id", c.id),
			zap.Int("local_total", localTotal),
		)
		return
	}
	t.mu.Lock()
	if t.finished || c.done {
		t.mu.Unlock()
		return
	}
	if c.localPosition > localTotal {
		localPosition := c.localPosition
		t.mu.Unlock()
		t.logger.Warn("rejecting local total below reported progress",
			zap.String("contributor_id", c.id),
			zap.Int("local_total", localTotal),
			zap.Int("local_position", localPosition),
		)
		return
	}
	c.localTotal = localTotal
	observer := t.observer
	t.mu.Unlock()

	if observer != nil {
		observer.ContributorStarted(c.id)
	}
}

// processFinish completes c's local span, removes it from the active set and
// finishes the tracker when c was the last active contributor.
func (t *Tracker) processFinish(c *Contributor) {
	t.mu.Lock()
	if t.finished {
		t.mu.Unlock()
		return
	}
	if _, ok := t.contributors[c]; !ok {
		t.mu.Unlock()
		return
	}
	flushed := false
	if c.localPosition < c.localTotal {
		c.localPosition = c.localTotal
		if count := c.emit(); count > 0 {
			t.position += count
			flushed = true
		}
	}
	if c.quota > 0 {
		// Nothing left on the local scale maps onto the leftover quota, e.g.
		// a contributor that never declared a local total.
		t.position += c.quota
		c.quota = 0
		flushed = true
	}
	if flushed {
		t.display.Progress("", t.position)
	}
	c.done = true
	delete(t.contributors, c)
	if len(t.contributors) == 0 {
		t.finishLocked()
	}
	observer := t.observer
	t.mu.Unlock()

	if observer != nil {
		if flushed {
			observer.ContributorProgressed(c.id)
		}
		observer.ContributorFinished(c.id)
	}
}

// Snapshot is a point-in-time copy of a tracker's accounting state.
type Snapshot struct {
	Name         string
	Total        int
	Position     int
	Finished     bool
	Contributors []ContributorSnapshot
}

// ContributorSnapshot is the accounting state of one active contributor.
type ContributorSnapshot struct {
	ID            string
	LocalTotal    int
	LocalPosition int
	Quota         int
}

// Snapshot captures the current state. Contributors are listed in no
// particular order.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := Snapshot{
		Name:         t.name,
		Total:        t.total,
		Position:     t.position,
		Finished:     t.finished,
		Contributors: make([]ContributorSnapshot, 0, len(t.contributors)),
	}
	for c := range t.contributors {
		s.Contributors = append(s.Contributors, ContributorSnapshot{
			ID:            c.id,
			LocalTotal:    c.localTotal,
			LocalPosition: c.localPosition,
			Quota:         c.quota,
		})
	}
	return s
}
