package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-progress/internal/id/uuid"
	"github.com/JakeFAU/realtime-progress/internal/metrics"
	"github.com/JakeFAU/realtime-progress/internal/progress"
)

const defaultRequestTimeout = 30 * time.Second

// ReadyFunc reports whether downstream dependencies can serve traffic.
type ReadyFunc func(ctx context.Context) error

// Options configures a Server.
type Options struct {
	// RequestTimeout bounds plain HTTP handlers. The push channel is exempt.
	RequestTimeout time.Duration
	// AllowedOrigins lists origins accepted on push-channel upgrades. Empty
	// enforces same-origin.
	AllowedOrigins []string
	// Ready backs /readyz. Nil always reports ready.
	Ready  ReadyFunc
	Logger *zap.Logger
}

// Server wires HTTP handlers to the progress tracker.
type Server struct {
	router   chi.Router
	tracker  *progress.Tracker
	progress *ProgressHandler
	push     *PushHandler
	ready    ReadyFunc
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(tracker *progress.Tracker, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	metrics.Init()

	ids := uuid.New()
	s := &Server{
		tracker:  tracker,
		progress: NewProgressHandler(tracker, logger),
		push:     NewPushHandler(tracker, ids, opts.AllowedOrigins, logger),
		ready:    opts.Ready,
		logger:   logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware(ids))
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)

	r.Handle("/metrics", metrics.Handler())
	r.Get("/socket", s.push.ServeHTTP)

	r.Group(func(r chi.Router) {
		r.Use(timeoutMiddleware(timeout))
		r.Get("/healthz", s.healthz)
		r.Get("/readyz", s.readyz)
		r.Get("/progress", s.progress.Get)
		r.Put("/progress", s.progress.Put)
		r.Post("/progress/hook", s.progress.Hook)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close disconnects every push session.
func (s *Server) Close() {
	s.push.Close()
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(s.logger, w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			writeError(s.logger, w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(logger *zap.Logger, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("write JSON failed", zap.Error(err))
	}
}

func writeError(logger *zap.Logger, w http.ResponseWriter, status int, msg string) {
	writeJSON(logger, w, status, map[string]string{"error": msg})
}
