package monitor

import "time"

// Ticker delivers ticks until stopped.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFactory starts a Ticker firing every d.
type TickerFactory func(d time.Duration) Ticker

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// NewRealTicker is the default TickerFactory backed by time.Ticker.
func NewRealTicker(d time.Duration) Ticker {
	return realTicker{t: time.NewTicker(d)}
}

// pollTimer is the single cancellable recurring pull task. At most one
// ticker is active at any time. It is owned by the event loop goroutine.
type pollTimer struct {
	interval  time.Duration
	newTicker TickerFactory
	ticker    Ticker
}

func newPollTimer(interval time.Duration, factory TickerFactory) *pollTimer {
	if factory == nil {
		factory = NewRealTicker
	}
	return &pollTimer{interval: interval, newTicker: factory}
}

// Start begins ticking unless already active. It reports whether a new
// ticker was started.
func (p *pollTimer) Start() bool {
	if p.ticker != nil {
		return false
	}
	p.ticker = p.newTicker(p.interval)
	return true
}

// Stop cancels the active ticker. It reports whether one was running.
func (p *pollTimer) Stop() bool {
	if p.ticker == nil {
		return false
	}
	p.ticker.Stop()
	p.ticker = nil
	return true
}

// Active reports whether a ticker is running.
func (p *pollTimer) Active() bool {
	return p.ticker != nil
}

// C returns the tick channel, or nil when inactive so a select on it blocks.
func (p *pollTimer) C() <-chan time.Time {
	if p.ticker == nil {
		return nil
	}
	return p.ticker.C()
}
