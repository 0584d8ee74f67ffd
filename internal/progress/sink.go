package progress

import "context"

// Sink consumes batches of tracker events. Implementations must honor ctx
// deadlines and tolerate repeated Consume calls.
type Sink interface {
	Consume(ctx context.Context, batch []Event) error
	Close(ctx context.Context) error
}

// Emitter publishes individual events. Hub satisfies it so a Display never
// learns how events are buffered or persisted.
type Emitter interface {
	Emit(evt Event)
}
