// Package system provides the wall clock used to timestamp reports.
package system

import (
	"time"

	"github.com/JakeFAU/realtime-progress/internal/progress"
)

// Clock implements progress.Clock using UTC wall time truncated to
// microseconds, the resolution Postgres timestamptz keeps.
type Clock struct{}

var _ progress.Clock = (*Clock)(nil)

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time.
func (Clock) Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
