package monitor

import (
	"context"

	"github.com/JakeFAU/realtime-progress/internal/progress"
)

// EventKind names a push-channel event.
type EventKind string

// Push-channel events consumed by the Monitor.
const (
	EventConnect        EventKind = "connect"
	EventConnectError   EventKind = "connect_error"
	EventProgressUpdate EventKind = "progress_update"
)

// PushEvent is delivered by a PushChannel. Report is set for
// EventProgressUpdate; Err carries the failure for EventConnectError and for
// progress updates whose payload could not be parsed.
type PushEvent struct {
	Kind   EventKind
	Report progress.Report
	Err    error
}

// PushChannel is a persistent event connection to the progress server.
type PushChannel interface {
	// Connect establishes the connection and keeps delivering events until
	// ctx is done. A non-nil return before ctx is done means the channel
	// gave up for good.
	Connect(ctx context.Context) error
	// Events returns the stream of lifecycle and data events.
	Events() <-chan PushEvent
	// Emit sends a zero-argument request named event to the server.
	Emit(ctx context.Context, event string) error
}

// Puller fetches the current report on demand.
type Puller interface {
	Pull(ctx context.Context) (progress.Report, error)
}

// Observer receives monitor activity for metrics.
type Observer interface {
	PushEvent(kind EventKind)
	PullResult(err error)
	PollingActive(active bool)
}

type nopObserver struct{}

func (nopObserver) PushEvent(EventKind) {}
func (nopObserver) PullResult(error)    {}
func (nopObserver) PollingActive(bool)  {}
