// Package server runs the progress HTTP service: it builds the application
// services, serves the API and shuts everything down on signal.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-progress/internal/api"
	"github.com/JakeFAU/realtime-progress/internal/app"
	"github.com/JakeFAU/realtime-progress/internal/config"
)

const readHeaderTimeout = 5 * time.Second

// Server owns the application services and the HTTP API on top of them.
type Server struct {
	cfg    config.Config
	logger *zap.Logger
	app    *app.App
	api    *api.Server
}

// Build creates the server's dependencies.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...app.Option) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	type sanitizedConfig struct {
		Port     int    `json:"port"`
		Storage  string `json:"storage"`
		Snapshot string `json:"snapshot"`
		PubSub   string `json:"pubsub"`
	}
	logger.Info("creating progress server", zap.Any("config", sanitizedConfig{
		Port:     cfg.Server.Port,
		Storage:  cfg.Storage.Backend,
		Snapshot: cfg.Snapshot.Backend,
		PubSub:   cfg.PubSub.Backend,
	}))

	services, err := app.New(ctx, cfg, logger, opts...)
	if err != nil {
		return nil, fmt.Errorf("app init failed: %w", err)
	}
	apiServer := api.NewServer(services.Tracker, api.Options{
		RequestTimeout: cfg.Server.RequestTimeout,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Ready:          services.Ready,
		Logger:         logger.Named("api"),
	})
	return &Server{cfg: cfg, logger: logger, app: services, api: apiServer}, nil
}

// App exposes the underlying application services.
func (s *Server) App() *app.App { return s.app }

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.api.Handler() }

// Run listens on the configured port and blocks until the context is
// canceled or SIGINT/SIGTERM arrives.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		_ = s.Close(ctx)
		return fmt.Errorf("listen on %s: %w", s.cfg.Addr(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until shutdown, then closes the server.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Handler:           s.api.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		s.logger.Info("http server started", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", zap.Error(err))
			serveErr <- err
			stop()
		}
	}()

	<-ctx.Done()
	s.logger.Info("shutdown initiated")

	shutdownTimeout := s.cfg.Server.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Push sessions are hijacked connections that Shutdown does not track.
	s.api.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("server shutdown error", zap.Error(err))
	}

	closeErr := s.Close(shutdownCtx)
	select {
	case err := <-serveErr:
		return errors.Join(fmt.Errorf("serve http: %w", err), closeErr)
	default:
		return closeErr
	}
}

// Close flushes the sinks and releases backend clients.
func (s *Server) Close(ctx context.Context) error {
	s.api.Close()
	err := s.app.Close(ctx)
	if syncErr := s.logger.Sync(); syncErr != nil {
		s.logger.Debug("logger sync failed", zap.Error(syncErr))
	}
	s.logger.Info("shutdown complete")
	return err
}
