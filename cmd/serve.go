package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-progress/internal/server"
)

// newServeCmd creates the 'serve' subcommand, which hosts the progress API
// and the push channel until interrupted.
func newServeCmd() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the progress API and push channel",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			cfg := e.cfg
			if port > 0 {
				cfg.Server.Port = port
			}

			srv, err := server.Build(cmd.Context(), cfg, e.logger)
			if err != nil {
				return err
			}
			if err := srv.Run(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("run server: %w", err)
			}
			e.logger.Info("serve command finished", zap.Int("port", cfg.Server.Port))
			return nil
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides server.port)")
	return cmd
}
