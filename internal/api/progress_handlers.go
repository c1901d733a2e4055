package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-progress/internal/progress"
)

const maxReportBytes = 1 << 16

// ProgressHandler serves the pull endpoint and accepts reports from the
// producer.
type ProgressHandler struct {
	tracker *progress.Tracker
	logger  *zap.Logger
}

// NewProgressHandler wires the tracker and logger.
func NewProgressHandler(tracker *progress.Tracker, logger *zap.Logger) *ProgressHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProgressHandler{tracker: tracker, logger: logger}
}

// Get handles GET /progress. It returns the current report as
// {"progress": .., "status": .., "seq": .., "updated_at": ..}, or 503 when
// no tracker is wired.
func (h *ProgressHandler) Get(w http.ResponseWriter, _ *http.Request) {
	if h.tracker == nil {
		writeError(h.logger, w, http.StatusServiceUnavailable, "progress tracker unavailable")
		return
	}
	writeJSON(h.logger, w, http.StatusOK, h.tracker.Snapshot())
}

// Put handles PUT /progress. The body must contain numeric "progress" in
// [0, 100] and string "status"; any seq or updated_at is replaced by the
// tracker. It returns the accepted report, 400 for malformed bodies, or 503
// when no tracker is wired.
func (h *ProgressHandler) Put(w http.ResponseWriter, r *http.Request) {
	if h.tracker == nil {
		writeError(h.logger, w, http.StatusServiceUnavailable, "progress tracker unavailable")
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxReportBytes))
	if err != nil {
		writeError(h.logger, w, http.StatusBadRequest, "failed to read body")
		return
	}
	in, err := progress.ParseReport(body)
	if err != nil {
		writeError(h.logger, w, http.StatusBadRequest, err.Error())
		return
	}
	accepted, err := h.tracker.Update(in.Progress, in.Status)
	if err != nil {
		writeError(h.logger, w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(h.logger, w, http.StatusOK, accepted)
}

type hookRequest struct {
	Status  string `json:"status"`
	Percent string `json:"_percent_str"`
	Speed   string `json:"_speed_str"`
}

// Hook handles POST /progress/hook, accepting a downloader progress callback
// payload such as {"status": "downloading", "_percent_str": " 42.5%",
// "_speed_str": "1.2MiB/s"}. Unknown states leave the report untouched.
func (h *ProgressHandler) Hook(w http.ResponseWriter, r *http.Request) {
	if h.tracker == nil {
		writeError(h.logger, w, http.StatusServiceUnavailable, "progress tracker unavailable")
		return
	}
	var req hookRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxReportBytes)).Decode(&req); err != nil {
		writeError(h.logger, w, http.StatusBadRequest, "invalid JSON")
		return
	}
	accepted, err := h.tracker.ApplyDownloadHook(progress.DownloadHook{
		State:   req.Status,
		Percent: req.Percent,
		Speed:   req.Speed,
	})
	if err != nil {
		if errors.Is(err, progress.ErrMalformedReport) {
			writeError(h.logger, w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("apply download hook failed", zap.Error(err))
		writeError(h.logger, w, http.StatusInternalServerError, "failed to apply hook")
		return
	}
	writeJSON(h.logger, w, http.StatusOK, accepted)
}
