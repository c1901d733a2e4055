// Package display defines the two-field surface a monitor renders into and an
// in-memory implementation of it.
package display

import (
	"sync"

	"github.com/JakeFAU/realtime-progress/internal/progress"
)

// Fixed identifiers of the elements a monitor renders into.
const (
	ProgressElementID = "progress"
	StatusElementID   = "status"
)

// Surface resolves elements by identifier. Absent elements report false.
type Surface interface {
	Element(id string) (any, bool)
}

// ValueSetter is an element exposing a settable numeric value.
type ValueSetter interface {
	SetValue(v float64)
}

// TextSetter is an element exposing settable text.
type TextSetter interface {
	SetText(s string)
}

// Render writes r into the progress and status elements of s. When either
// element is absent, or does not expose the expected setter, nothing is
// written and Render returns false.
func Render(s Surface, r progress.Report) bool {
	if s == nil {
		return false
	}
	rawBar, ok := s.Element(ProgressElementID)
	if !ok {
		return false
	}
	rawText, ok := s.Element(StatusElementID)
	if !ok {
		return false
	}
	bar, ok := rawBar.(ValueSetter)
	if !ok {
		return false
	}
	text, ok := rawText.(TextSetter)
	if !ok {
		return false
	}
	bar.SetValue(r.Progress)
	text.SetText(r.Status)
	return true
}

// Page is an in-memory Surface. It is safe for concurrent use.
type Page struct {
	mu       sync.RWMutex
	elements map[string]any
}

// NewPage returns an empty page.
func NewPage() *Page {
	return &Page{elements: make(map[string]any)}
}

// NewProgressPage returns a page holding the standard progress and status
// elements.
func NewProgressPage() (*Page, *ValueElement, *TextElement) {
	p := NewPage()
	bar := &ValueElement{}
	text := &TextElement{}
	p.Add(ProgressElementID, bar)
	p.Add(StatusElementID, text)
	return p, bar, text
}

// Add registers el under id, replacing any previous element.
func (p *Page) Add(id string, el any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.elements[id] = el
}

// Remove drops the element registered under id.
func (p *Page) Remove(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.elements, id)
}

// Element implements Surface.
func (p *Page) Element(id string) (any, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	el, ok := p.elements[id]
	return el, ok
}

// ValueElement holds a numeric value.
type ValueElement struct {
	mu     sync.RWMutex
	value  float64
	writes int
}

// SetValue implements ValueSetter.
func (e *ValueElement) SetValue(v float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.value = v
	e.writes++
}

// Value returns the current value.
func (e *ValueElement) Value() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.value
}

// Writes returns how many times SetValue was called.
func (e *ValueElement) Writes() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.writes
}

// TextElement holds a text value.
type TextElement struct {
	mu   sync.RWMutex
	text string
}

// SetText implements TextSetter.
func (e *TextElement) SetText(s string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.text = s
}

// Text returns the current text.
func (e *TextElement) Text() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.text
}
