package progress

import "context"

// Sink consumes the newest accepted report. The Hub calls Consume from a
// single goroutine; a report may stand in for several superseded ones.
type Sink interface {
	Consume(ctx context.Context, r Report) error
	Close(ctx context.Context) error
}

// Emitter publishes individual reports; Hub satisfies this interface so the
// Tracker can remain agnostic about how reports are delivered or persisted.
type Emitter interface {
	Emit(r Report)
}
