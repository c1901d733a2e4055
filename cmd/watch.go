package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-progress/internal/config"
	"github.com/JakeFAU/realtime-progress/internal/display/terminal"
	"github.com/JakeFAU/realtime-progress/internal/metrics"
	"github.com/JakeFAU/realtime-progress/internal/monitor"
	"github.com/JakeFAU/realtime-progress/internal/transport/httppull"
	"github.com/JakeFAU/realtime-progress/internal/transport/ws"
)

// newWatchCmd creates the 'watch' subcommand, which renders the task's
// progress in the terminal until interrupted.
func newWatchCmd() *cobra.Command {
	var (
		serverURL string
		interval  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Render task progress in the terminal",
		Long: `Connects to the server's push channel and renders every progress update.
While the channel is down the current state is pulled from GET /progress
at a fixed interval.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			cfg := e.cfg.Monitor
			if serverURL != "" {
				cfg.ServerURL = serverURL
			}
			if interval > 0 {
				cfg.PollInterval = interval
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			surface := terminal.New(terminal.Config{Writer: cmd.OutOrStdout(), Width: cfg.BarWidth})
			defer func() {
				if cerr := surface.Close(); cerr != nil {
					e.logger.Warn("failed to close terminal", zap.Error(cerr))
				}
			}()
			return runWatch(ctx, cfg, surface, e.logger)
		},
	}
	cmd.Flags().StringVar(&serverURL, "server", "", "server origin (overrides monitor.server_url)")
	cmd.Flags().DurationVar(&interval, "interval", 0, "poll interval (overrides monitor.poll_interval)")
	return cmd
}

func runWatch(ctx context.Context, cfg config.MonitorConfig, surface *terminal.Surface, logger *zap.Logger) error {
	push, err := ws.New(ws.Config{
		BaseURL:        cfg.ServerURL,
		ReconnectDelay: cfg.ReconnectDelay,
	}, logger.Named("ws"))
	if err != nil {
		return fmt.Errorf("init push channel: %w", err)
	}
	puller, err := httppull.New(cfg.ServerURL, nil, logger.Named("pull"))
	if err != nil {
		return fmt.Errorf("init pull client: %w", err)
	}

	m := monitor.New(push, puller, surface, monitor.Config{
		PollInterval:   cfg.PollInterval,
		PullTimeout:    cfg.PullTimeout,
		ApplyLatePulls: cfg.ApplyLatePulls,
		DiscardStale:   cfg.DiscardStale,
	}, logger.Named("monitor"), monitor.WithObserver(metrics.NewMonitorObserver()))

	logger.Info("watching progress", zap.String("server", cfg.ServerURL), zap.Duration("poll_interval", cfg.PollInterval))
	if err := m.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run monitor: %w", err)
	}
	return nil
}
