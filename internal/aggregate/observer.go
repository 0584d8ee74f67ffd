package aggregate

import "time"

// Observer receives per-contributor lifecycle notifications. Callbacks are
// invoked after the tracker releases its lock, so they may be delivered out of
// order relative to the state changes that produced them.
type Observer interface {
	ContributorStarted(id string)
	ContributorProgressed(id string)
	ContributorFinished(id string)
}

// ObserverFuncs adapts optional functions to the Observer interface. Nil
// fields are skipped.
type ObserverFuncs struct {
	Started    func(id string)
	Progressed func(id string)
	Finished   func(id string)
}

// ContributorStarted implements Observer.
func (o ObserverFuncs) ContributorStarted(id string) {
	if o.Started != nil {
		o.Started(id)
	}
}

// ContributorProgressed implements Observer.
func (o ObserverFuncs) ContributorProgressed(id string) {
	if o.Progressed != nil {
		o.Progressed(id)
	}
}

// ContributorFinished implements Observer.
func (o ObserverFuncs) ContributorFinished(id string) {
	if o.Finished != nil {
		o.Finished(id)
	}
}

// Display renders the aggregate. The tracker serializes every call under its
// lock, so implementations do not need their own synchronization but must not
// call back into the tracker.
type Display interface {
	// Start activates the display. A negative estimate means unknown.
	Start(total int, estimate time.Duration)
	Progress(message string, position int)
	Finish()
	Suspend(message string)
	SetInitialDelay(d time.Duration)
	SetDisplayName(name string)
}

// NopDisplay discards every call.
type NopDisplay struct{}

// Start implements Display.
func (NopDisplay) Start(int, time.Duration) {}

// Progress implements Display.
func (NopDisplay) Progress(string, int) {}

// Finish implements Display.
func (NopDisplay) Finish() {}

// Suspend implements Display.
func (NopDisplay) Suspend(string) {}

// SetInitialDelay implements Display.
func (NopDisplay) SetInitialDelay(time.Duration) {}

// SetDisplayName implements Display.
func (NopDisplay) SetDisplayName(string) {}
