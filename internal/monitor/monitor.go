package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-progress/internal/display"
	"github.com/JakeFAU/realtime-progress/internal/progress"
	"github.com/JakeFAU/realtime-progress/internal/wire"
)

// State is the transport the monitor currently relies on.
type State int32

// Monitor states.
const (
	// StatePushActive listens on the push channel with no poll timer.
	StatePushActive State = iota
	// StatePullActive has the poll timer running.
	StatePullActive
)

func (s State) String() string {
	switch s {
	case StatePushActive:
		return "push"
	case StatePullActive:
		return "pull"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Source identifies where a rendered report came from.
type Source string

// Report sources.
const (
	SourcePush Source = "push"
	SourcePull Source = "pull"
)

const (
	// DefaultPollInterval is the fixed period between pulls.
	DefaultPollInterval = 5 * time.Second
	defaultPullTimeout  = 10 * time.Second
)

// Config tunes a Monitor.
//   - PollInterval: fixed pull period while the push channel is down (default 5s).
//   - PullTimeout: deadline of a single pull request (default 10s).
//   - ApplyLatePulls: render pull responses that complete after the push
//     channel has recovered.
//   - DiscardStale: drop reports whose sequence number is lower than the one
//     currently displayed.
type Config struct {
	PollInterval   time.Duration
	PullTimeout    time.Duration
	ApplyLatePulls bool
	DiscardStale   bool
}

// DefaultConfig matches the classic behavior: 5s polling, late pull responses
// applied, no sequence ordering.
func DefaultConfig() Config {
	return Config{
		PollInterval:   DefaultPollInterval,
		PullTimeout:    defaultPullTimeout,
		ApplyLatePulls: true,
	}
}

// Option customizes a Monitor.
type Option func(*Monitor)

// WithTickerFactory replaces the poll ticker implementation.
func WithTickerFactory(f TickerFactory) Option {
	return func(m *Monitor) {
		if f != nil {
			m.newTicker = f
		}
	}
}

// WithObserver attaches an Observer for metrics.
func WithObserver(o Observer) Option {
	return func(m *Monitor) {
		if o != nil {
			m.observer = o
		}
	}
}

// WithRenderHook registers a callback invoked after every render attempt.
func WithRenderHook(fn func(r progress.Report, src Source, rendered bool)) Option {
	return func(m *Monitor) {
		m.onRender = fn
	}
}

// Monitor keeps a display.Surface in sync with the remote task.
type Monitor struct {
	cfg       Config
	push      PushChannel
	puller    Puller
	surface   display.Surface
	logger    *zap.Logger
	observer  Observer
	newTicker TickerFactory
	onRender  func(progress.Report, Source, bool)

	state atomic.Int32

	// Owned by the event loop.
	timer    *pollTimer
	shown    progress.Report
	hasShown bool
	running  atomic.Bool
}

type pullResult struct {
	report progress.Report
	err    error
}

// New wires a Monitor. Zero Config fields take their defaults.
func New(push PushChannel, puller Puller, surface display.Surface, cfg Config, logger *zap.Logger, opts ...Option) *Monitor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.PullTimeout <= 0 {
		cfg.PullTimeout = defaultPullTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Monitor{
		cfg:       cfg,
		push:      push,
		puller:    puller,
		surface:   surface,
		logger:    logger,
		observer:  nopObserver{},
		newTicker: NewRealTicker,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.timer = newPollTimer(cfg.PollInterval, m.newTicker)
	return m
}

// State reports the current transport state. Safe for concurrent use.
func (m *Monitor) State() State {
	return State(m.state.Load())
}

// Run connects the push channel and processes events until ctx is done. It
// returns ctx.Err() on cancellation. Run may only be called once.
func (m *Monitor) Run(ctx context.Context) error {
	if m.push == nil || m.puller == nil {
		return errors.New("monitor requires a push channel and a puller")
	}
	if !m.running.CompareAndSwap(false, true) {
		return errors.New("monitor already running")
	}

	var wg sync.WaitGroup
	defer wg.Wait()

	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	connDone := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		connDone <- m.push.Connect(loopCtx)
	}()

	results := make(chan pullResult)
	events := m.push.Events()
	m.setState(StatePushActive)

	for {
		select {
		case <-loopCtx.Done():
			m.stopPolling("monitor stopped")
			return ctx.Err()

		case ev, ok := <-events:
			if !ok {
				events = nil
				m.logger.Warn("push channel event stream closed")
				m.startPolling("push channel closed")
				continue
			}
			m.handlePush(loopCtx, ev)

		case err := <-connDone:
			connDone = nil
			if loopCtx.Err() != nil {
				continue
			}
			m.logger.Warn("push channel terminated", zap.Error(err))
			m.startPolling("push channel terminated")

		case <-m.timer.C():
			wg.Add(1)
			go func() {
				defer wg.Done()
				m.pull(loopCtx, results)
			}()

		case res := <-results:
			m.handlePull(res)
		}
	}
}

func (m *Monitor) handlePush(ctx context.Context, ev PushEvent) {
	m.observer.PushEvent(ev.Kind)
	switch ev.Kind {
	case EventConnect:
		// The snapshot requested below is authoritative for a new session,
		// whatever its sequence number.
		m.hasShown = false
		if err := m.push.Emit(ctx, wire.EventGetProgress); err != nil {
			m.logger.Warn("request progress snapshot failed", zap.Error(err))
		}
		if m.stopPolling("push channel connected") {
			m.logger.Info("push channel recovered; polling stopped")
		}
		m.setState(StatePushActive)

	case EventConnectError:
		m.logger.Warn("push channel connection failed", zap.Error(ev.Err))
		m.startPolling("push channel connection failed")

	case EventProgressUpdate:
		if ev.Err != nil {
			m.logger.Warn("discarding malformed progress update", zap.Error(ev.Err))
			return
		}
		m.render(ev.Report, SourcePush)

	default:
		m.logger.Debug("ignoring unknown push event", zap.String("kind", string(ev.Kind)))
	}
}

func (m *Monitor) pull(ctx context.Context, results chan<- pullResult) {
	pullCtx, cancel := context.WithTimeout(ctx, m.cfg.PullTimeout)
	defer cancel()
	r, err := m.puller.Pull(pullCtx)
	select {
	case results <- pullResult{report: r, err: err}:
	case <-ctx.Done():
	}
}

func (m *Monitor) handlePull(res pullResult) {
	m.observer.PullResult(res.err)
	if res.err != nil {
		m.logger.Error("progress pull failed", zap.Error(res.err))
		return
	}
	if !m.timer.Active() && !m.cfg.ApplyLatePulls {
		m.logger.Debug("discarding pull response received after push recovery",
			zap.Uint64("seq", res.report.Seq))
		return
	}
	m.render(res.report, SourcePull)
}

func (m *Monitor) render(r progress.Report, src Source) {
	if m.cfg.DiscardStale && m.hasShown && !r.NewerThan(m.shown) {
		m.logger.Debug("discarding stale report",
			zap.String("source", string(src)),
			zap.Uint64("seq", r.Seq),
			zap.Uint64("shown_seq", m.shown.Seq))
		return
	}
	rendered := display.Render(m.surface, r)
	if rendered {
		m.shown = r
		m.hasShown = true
	}
	if m.onRender != nil {
		m.onRender(r, src, rendered)
	}
}

func (m *Monitor) startPolling(reason string) bool {
	m.setState(StatePullActive)
	if !m.timer.Start() {
		return false
	}
	m.observer.PollingActive(true)
	m.logger.Info("falling back to polling",
		zap.String("reason", reason),
		zap.Duration("interval", m.cfg.PollInterval))
	return true
}

func (m *Monitor) stopPolling(reason string) bool {
	if !m.timer.Stop() {
		return false
	}
	m.observer.PollingActive(false)
	m.logger.Debug("polling stopped", zap.String("reason", reason))
	return true
}

func (m *Monitor) setState(s State) {
	m.state.Store(int32(s))
}
