package progress

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Clock supplies timestamps for accepted reports.
type Clock interface {
	Now() time.Time
}

type utcClock struct{}

func (utcClock) Now() time.Time { return time.Now().UTC() }

// DownloadHook is the per-chunk callback payload produced by downloaders.
type DownloadHook struct {
	// State is "downloading" or "finished"; anything else is ignored.
	State string
	// Percent is the downloader's textual percentage, e.g. " 42.5%".
	Percent string
	// Speed is the downloader's textual speed, e.g. "1.2MiB/s".
	Speed string
}

// Download hook states understood by ApplyDownloadHook.
const (
	HookDownloading = "downloading"
	HookFinished    = "finished"
)

// Tracker owns the single current report of the background task. Updates are
// numbered, timestamped, forwarded to the Emitter and pushed to subscribers.
type Tracker struct {
	mu      sync.Mutex
	current Report
	seq     uint64
	epoch   string
	subs    map[uint64]chan Report
	nextSub uint64

	clock   Clock
	emitter Emitter
	logger  *zap.Logger
}

// NewTracker creates a Tracker. A nil clock uses UTC wall time; a nil emitter
// disables sink forwarding.
func NewTracker(clock Clock, emitter Emitter, logger *zap.Logger) *Tracker {
	if clock == nil {
		clock = utcClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		epoch:   strconv.FormatInt(clock.Now().UnixNano(), 36),
		subs:    make(map[uint64]chan Report),
		clock:   clock,
		emitter: emitter,
		logger:  logger,
	}
}

// Seed installs a previously persisted report without notifying sinks or
// subscribers. Later updates continue numbering after its Seq, inside its
// epoch when it carries one.
func (t *Tracker) Seed(r Report) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.current = r
	if r.Seq > t.seq {
		t.seq = r.Seq
	}
	if r.Epoch != "" {
		t.epoch = r.Epoch
	}
}

// Epoch returns the identifier stamped on every report this Tracker numbers.
func (t *Tracker) Epoch() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.epoch
}

// Update accepts a new progress value and status text.
func (t *Tracker) Update(progress float64, status string) (Report, error) {
	r := Report{Progress: progress, Status: status}
	if err := r.Validate(); err != nil {
		return Report{}, err
	}

	t.mu.Lock()
	t.seq++
	r.Seq = t.seq
	r.Epoch = t.epoch
	r.UpdatedAt = t.clock.Now()
	t.current = r
	for _, ch := range t.subs {
		offer(ch, r)
	}
	t.mu.Unlock()

	if t.emitter != nil {
		t.emitter.Emit(r)
	}
	t.logger.Debug("progress updated",
		zap.Float64("progress", r.Progress),
		zap.String("status", r.Status),
		zap.Uint64("seq", r.Seq),
	)
	return r, nil
}

// Snapshot returns the current report.
func (t *Tracker) Snapshot() Report {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// Subscribe registers a receiver of every subsequent update. The channel holds
// at most one pending report; a slow reader only ever sees the newest one.
// The returned func unsubscribes and closes the channel.
func (t *Tracker) Subscribe() (<-chan Report, func()) {
	ch := make(chan Report, 1)
	t.mu.Lock()
	id := t.nextSub
	t.nextSub++
	t.subs[id] = ch
	t.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.subs, id)
			t.mu.Unlock()
			close(ch)
		})
	}
}

// ApplyDownloadHook translates a downloader callback into an update. Unknown
// states are ignored and return the current snapshot.
func (t *Tracker) ApplyDownloadHook(h DownloadHook) (Report, error) {
	switch h.State {
	case HookDownloading:
		pct, err := parsePercent(h.Percent)
		if err != nil {
			return Report{}, err
		}
		status := fmt.Sprintf("Downloading: %s at %s", strings.TrimSpace(h.Percent), strings.TrimSpace(h.Speed))
		return t.Update(pct, status)
	case HookFinished:
		return t.Update(MaxProgress, "Download completed")
	default:
		return t.Snapshot(), nil
	}
}

func parsePercent(raw string) (float64, error) {
	trimmed := strings.TrimSuffix(strings.TrimSpace(raw), "%")
	v, err := strconv.ParseFloat(strings.TrimSpace(trimmed), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: percent %q", ErrMalformedReport, raw)
	}
	return v, nil
}

func offer(ch chan Report, r Report) {
	select {
	case ch <- r:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- r:
	default:
	}
}
