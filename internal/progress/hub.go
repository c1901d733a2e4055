package progress

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// HubConfig controls how the Hub paces sink deliveries.
//   - FlushInterval: minimum spacing between two deliveries (default 250ms).
//     Reports emitted in between collapse to the newest one.
//   - SinkTimeout: per-sink timeout for one delivery (default 5s).
//   - BaseContext: parent context passed to sink calls (defaults to context.Background()).
//   - Logger: optional structured logger used for warnings.
type HubConfig struct {
	FlushInterval time.Duration
	SinkTimeout   time.Duration
	BaseContext   context.Context
	Logger        *zap.Logger
}

const (
	defaultFlushInterval = 250 * time.Millisecond
	defaultSinkTimeout   = 5 * time.Second
)

// HubStats counts what happened to emitted reports.
type HubStats struct {
	// Delivered reports reached the sinks.
	Delivered uint64
	// Superseded reports were replaced by a newer one before delivery.
	Superseded uint64
	// Stale reports arrived after a newer one and were ignored.
	Stale uint64
}

// Hub hands the newest report to every sink. Reports supersede each other, so
// the Hub keeps a single pending slot instead of a queue: Emit overwrites it
// and the delivery goroutine drains it at most once per FlushInterval. Emit
// never blocks.
type Hub struct {
	cfg    HubConfig
	sinks  []Sink
	logger *zap.Logger

	mu         sync.Mutex
	pending    Report
	hasPending bool
	latest     Report
	hasLatest  bool
	stats      HubStats

	wake      chan struct{}
	stopCh    chan struct{}
	doneCh    chan struct{}
	closed    atomic.Bool
	closeOnce sync.Once
	closeCtx  context.Context
}

// NewHub starts the delivery goroutine for the supplied sinks.
func NewHub(cfg HubConfig, sinks ...Sink) *Hub {
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaultFlushInterval
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = defaultSinkTimeout
	}
	if cfg.BaseContext == nil {
		cfg.BaseContext = context.Background()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		cfg:    cfg,
		sinks:  append([]Sink(nil), sinks...),
		logger: logger,
		wake:   make(chan struct{}, 1),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	go h.run()
	return h
}

// Emit records r as the report to deliver next. The Tracker emits outside its
// lock, so concurrent updates can arrive out of order; a report older than
// the newest one seen is ignored.
func (h *Hub) Emit(r Report) {
	if h == nil || h.closed.Load() {
		return
	}
	h.mu.Lock()
	if h.hasLatest && !r.NewerThan(h.latest) {
		h.stats.Stale++
		h.mu.Unlock()
		h.logger.Debug("ignoring out-of-order progress report",
			zap.Uint64("seq", r.Seq), zap.Uint64("latest_seq", h.latest.Seq))
		return
	}
	if h.hasPending {
		h.stats.Superseded++
	}
	h.pending, h.hasPending = r, true
	h.latest, h.hasLatest = r, true
	h.mu.Unlock()

	select {
	case h.wake <- struct{}{}:
	default:
	}
}

// Stats returns a snapshot of the delivery counters.
func (h *Hub) Stats() HubStats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stats
}

// Close delivers the pending report, closes the sinks and waits for the
// delivery goroutine. Only the first call starts shutdown.
func (h *Hub) Close(ctx context.Context) error {
	if h == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	h.closeOnce.Do(func() {
		h.closed.Store(true)
		h.closeCtx = ctx
		close(h.stopCh)
	})
	select {
	case <-h.doneCh:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("progress hub close wait: %w", ctx.Err())
	}
}

func (h *Hub) run() {
	defer close(h.doneCh)
	var lastFlush time.Time
	for {
		select {
		case <-h.wake:
			if wait := h.cfg.FlushInterval - time.Since(lastFlush); !lastFlush.IsZero() && wait > 0 {
				timer := time.NewTimer(wait)
				select {
				case <-timer.C:
				case <-h.stopCh:
					timer.Stop()
					h.shutdown()
					return
				}
			}
			h.flush()
			lastFlush = time.Now()
		case <-h.stopCh:
			h.shutdown()
			return
		}
	}
}

func (h *Hub) take() (Report, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.hasPending {
		return Report{}, false
	}
	r := h.pending
	h.pending, h.hasPending = Report{}, false
	h.stats.Delivered++
	return r, true
}

func (h *Hub) flush() {
	r, ok := h.take()
	if !ok {
		return
	}
	for _, sink := range h.sinks {
		if sink == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(h.cfg.BaseContext, h.cfg.SinkTimeout)
		if err := sink.Consume(ctx, r); err != nil {
			h.logger.Warn("progress sink consume failed", zap.Uint64("seq", r.Seq), zap.Error(err))
		}
		cancel()
	}
}

func (h *Hub) shutdown() {
	h.flush()
	ctx := h.closeCtx
	if ctx == nil {
		ctx = context.Background()
	}
	for _, sink := range h.sinks {
		if sink == nil {
			continue
		}
		if err := sink.Close(ctx); err != nil {
			h.logger.Warn("progress sink close failed", zap.Error(err))
		}
	}
}
