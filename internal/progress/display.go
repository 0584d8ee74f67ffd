package progress

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/progress-aggregator/internal/aggregate"
)

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now().UTC() }

var (
	_ aggregate.Display  = (*Display)(nil)
	_ aggregate.Observer = (*Display)(nil)
)

// Display connects one aggregate.Tracker to an Emitter. It serves as both the
// tracker's display and its observer, turning every call into an Event tagged
// with the tracker's ID.
type Display struct {
	id      [16]byte
	emitter Emitter
	clock   Clock

	mu       sync.Mutex
	name     string
	total    int
	position int
}

// NewDisplay builds a Display for the tracker identified by id. A nil clock
// uses the wall clock.
func NewDisplay(id uuid.UUID, emitter Emitter, clock Clock) *Display {
	if clock == nil {
		clock = wallClock{}
	}
	return &Display{id: UUIDToBytes(id), emitter: emitter, clock: clock}
}

// TrackerID returns the ID stamped on every event.
func (d *Display) TrackerID() uuid.UUID {
	return uuid.UUID(d.id)
}

// Start implements aggregate.Display.
func (d *Display) Start(total int, estimate time.Duration) {
	d.mu.Lock()
	d.total = total
	d.position = 0
	evt := d.eventLocked(StageTrackerStart)
	d.mu.Unlock()
	evt.Estimate = estimate
	d.emit(evt)
}

// Progress implements aggregate.Display.
func (d *Display) Progress(message string, position int) {
	d.mu.Lock()
	d.position = position
	evt := d.eventLocked(StageTrackerProgress)
	d.mu.Unlock()
	evt.Message = message
	d.emit(evt)
}

// Finish implements aggregate.Display.
func (d *Display) Finish() {
	d.mu.Lock()
	evt := d.eventLocked(StageTrackerFinish)
	d.mu.Unlock()
	d.emit(evt)
}

// Suspend implements aggregate.Display.
func (d *Display) Suspend(message string) {
	d.mu.Lock()
	evt := d.eventLocked(StageTrackerSuspend)
	d.mu.Unlock()
	evt.Message = message
	d.emit(evt)
}

// SetInitialDelay implements aggregate.Display.
func (d *Display) SetInitialDelay(delay time.Duration) {
	d.mu.Lock()
	evt := d.eventLocked(StageTrackerDelay)
	d.mu.Unlock()
	evt.Estimate = delay
	d.emit(evt)
}

// SetDisplayName implements aggregate.Display.
func (d *Display) SetDisplayName(name string) {
	d.mu.Lock()
	d.name = name
	evt := d.eventLocked(StageTrackerRename)
	d.mu.Unlock()
	d.emit(evt)
}

// ContributorStarted implements aggregate.Observer.
func (d *Display) ContributorStarted(id string) {
	d.contributorEvent(StageContributorStart, id)
}

// ContributorProgressed implements aggregate.Observer.
func (d *Display) ContributorProgressed(id string) {
	d.contributorEvent(StageContributorProgress, id)
}

// ContributorFinished implements aggregate.Observer.
func (d *Display) ContributorFinished(id string) {
	d.contributorEvent(StageContributorFinish, id)
}

func (d *Display) contributorEvent(stage Stage, id string) {
	d.mu.Lock()
	evt := d.eventLocked(stage)
	d.mu.Unlock()
	evt.ContributorID = id
	d.emit(evt)
}

func (d *Display) eventLocked(stage Stage) Event {
	return Event{
		TrackerID: d.id,
		TS:        d.clock.Now(),
		Stage:     stage,
		Name:      d.name,
		Position:  d.position,
		Total:     d.total,
	}
}

func (d *Display) emit(evt Event) {
	if d.emitter == nil {
		return
	}
	d.emitter.Emit(evt)
}
