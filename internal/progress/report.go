package progress

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
)

// Bounds of the completion scale carried by Report.Progress.
const (
	MinProgress = 0.0
	MaxProgress = 100.0
)

// ErrMalformedReport signals a payload that cannot be turned into a Report.
var ErrMalformedReport = errors.New("malformed progress report")

// StatusClass is a coarse grouping of a report used for metrics labels.
type StatusClass string

// Supported status classes.
const (
	ClassIdle     StatusClass = "idle"
	ClassRunning  StatusClass = "running"
	ClassComplete StatusClass = "complete"
)

// Report captures the state of the background task at one point in time.
type Report struct {
	// Progress is the completion value within [MinProgress, MaxProgress].
	Progress float64 `json:"progress"`
	// Status is short human-readable text describing the task state.
	Status string `json:"status"`
	// Seq increases by one for every update accepted by a Tracker. Zero
	// means the producer did not assign one.
	Seq uint64 `json:"seq,omitempty"`
	// Epoch identifies the Tracker instance that numbered the report. Seq
	// values are only comparable within one epoch.
	Epoch string `json:"epoch,omitempty"`
	// UpdatedAt is the UTC time the report was accepted.
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// Validate checks the range of the progress value.
func (r Report) Validate() error {
	if math.IsNaN(r.Progress) || math.IsInf(r.Progress, 0) {
		return fmt.Errorf("%w: progress must be a finite number", ErrMalformedReport)
	}
	if r.Progress < MinProgress || r.Progress > MaxProgress {
		return fmt.Errorf("%w: progress %.2f outside [%.0f, %.0f]", ErrMalformedReport, r.Progress, MinProgress, MaxProgress)
	}
	return nil
}

// Class groups the report for metrics.
func (r Report) Class() StatusClass {
	switch {
	case r.Progress >= MaxProgress:
		return ClassComplete
	case r.Progress <= MinProgress && r.Status == "":
		return ClassIdle
	default:
		return ClassRunning
	}
}

// NewerThan reports whether r should replace prev under sequence ordering.
// Reports without a sequence number, or numbered by a different epoch, never
// count as stale.
func (r Report) NewerThan(prev Report) bool {
	if r.Seq == 0 || prev.Seq == 0 || r.Epoch != prev.Epoch {
		return true
	}
	return r.Seq >= prev.Seq
}

type wireReport struct {
	Progress  *float64   `json:"progress"`
	Status    *string    `json:"status"`
	Seq       uint64     `json:"seq"`
	Epoch     string     `json:"epoch"`
	UpdatedAt *time.Time `json:"updated_at"`
}

// ParseReport decodes a JSON object into a Report. Missing or mistyped
// progress/status fields and out-of-range values yield ErrMalformedReport.
func ParseReport(data []byte) (Report, error) {
	var w wireReport
	if err := json.Unmarshal(data, &w); err != nil {
		return Report{}, fmt.Errorf("%w: %v", ErrMalformedReport, err)
	}
	if w.Progress == nil {
		return Report{}, fmt.Errorf("%w: missing progress", ErrMalformedReport)
	}
	if w.Status == nil {
		return Report{}, fmt.Errorf("%w: missing status", ErrMalformedReport)
	}
	r := Report{
		Progress: *w.Progress,
		Status:   *w.Status,
		Seq:      w.Seq,
		Epoch:    w.Epoch,
	}
	if w.UpdatedAt != nil {
		r.UpdatedAt = w.UpdatedAt.UTC()
	}
	if err := r.Validate(); err != nil {
		return Report{}, err
	}
	return r, nil
}
