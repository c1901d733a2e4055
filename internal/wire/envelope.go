// Package wire defines the JSON frames exchanged over the push channel.
//
// Every frame is an Envelope: {"event": "<name>", "data": <payload>}. The
// client sends a data-less get_progress request; the server answers and
// pushes progress_update frames whose data is a progress.Report.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/JakeFAU/realtime-progress/internal/progress"
)

// Event names carried in Envelope.Event.
const (
	EventGetProgress    = "get_progress"
	EventProgressUpdate = "progress_update"
)

// ErrUnknownEvent is returned when decoding a frame with an unexpected name.
var ErrUnknownEvent = errors.New("unknown push event")

// Envelope is one push-channel frame.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Request builds a zero-argument request frame.
func Request(event string) Envelope {
	return Envelope{Event: event}
}

// Update builds a progress_update frame for r.
func Update(r progress.Report) (Envelope, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal report: %w", err)
	}
	return Envelope{Event: EventProgressUpdate, Data: data}, nil
}

// Report decodes the payload of a progress_update frame.
func (e Envelope) Report() (progress.Report, error) {
	if e.Event != EventProgressUpdate {
		return progress.Report{}, fmt.Errorf("%w: %q", ErrUnknownEvent, e.Event)
	}
	return progress.ParseReport(e.Data)
}
