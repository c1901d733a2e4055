// Package terminal renders a progress display on a terminal using a
// progress bar whose description carries the status text.
package terminal

import (
	"fmt"
	"io"
	"math"
	"os"
	"sync"

	"github.com/schollz/progressbar/v3"

	"github.com/JakeFAU/realtime-progress/internal/display"
	"github.com/JakeFAU/realtime-progress/internal/progress"
)

// Config controls the terminal surface.
type Config struct {
	// Writer receives the rendered bar; defaults to os.Stderr.
	Writer io.Writer
	// Width is the bar width in cells; defaults to 40.
	Width int
}

// Surface is a display.Surface backed by a terminal progress bar.
type Surface struct {
	mu      sync.Mutex
	bar     *progressbar.ProgressBar
	out     io.Writer
	value   *barElement
	status  *statusElement
	current int
}

// New creates a terminal surface exposing the progress and status elements.
func New(cfg Config) *Surface {
	out := cfg.Writer
	if out == nil {
		out = os.Stderr
	}
	width := cfg.Width
	if width <= 0 {
		width = 40
	}
	s := &Surface{out: out}
	s.bar = progressbar.NewOptions(
		int(progress.MaxProgress),
		progressbar.OptionSetWriter(out),
		progressbar.OptionSetWidth(width),
		progressbar.OptionShowDescriptionAtLineEnd(),
		progressbar.OptionSetRenderBlankState(true),
	)
	s.value = &barElement{s: s}
	s.status = &statusElement{s: s}
	return s
}

// Element implements display.Surface.
func (s *Surface) Element(id string) (any, bool) {
	switch id {
	case display.ProgressElementID:
		return s.value, true
	case display.StatusElementID:
		return s.status, true
	default:
		return nil, false
	}
}

// Close leaves the bar in its last state and moves the cursor to a fresh line.
func (s *Surface) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := fmt.Fprintln(s.out); err != nil {
		return fmt.Errorf("write newline: %w", err)
	}
	return nil
}

// draw brings the bar in line with the pending value and status. A finished
// bar only clears its line on render, and the bar cannot move backwards, so
// either case starts it over. The description goes first so that the frame
// drawn when the value reaches the maximum carries the current status.
// Callers hold s.mu.
func (s *Surface) draw() {
	if s.bar.IsFinished() || s.current > s.value.last {
		s.bar.Reset()
		s.current = 0
	}
	s.bar.Describe(s.status.text)
	// Set only fails past the maximum, which clamping rules out.
	_ = s.bar.Set(s.value.last)
	s.current = s.value.last
}

type barElement struct {
	s    *Surface
	last int
}

func (e *barElement) SetValue(v float64) {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	v = math.Max(progress.MinProgress, math.Min(progress.MaxProgress, v))
	e.last = int(math.Round(v))
	e.s.draw()
}

type statusElement struct {
	s    *Surface
	text string
}

func (e *statusElement) SetText(text string) {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	e.text = text
	e.s.draw()
}
