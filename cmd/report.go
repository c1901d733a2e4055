package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-progress/internal/progress"
	"github.com/JakeFAU/realtime-progress/internal/transport/httppull"
)

type reportOptions struct {
	serverURL string
	progress  float64
	status    string
	hook      string
	percent   string
	speed     string
	timeout   time.Duration
}

// newReportCmd creates the 'report' subcommand used by producers to push a
// progress value (or a downloader hook callback) to the server.
func newReportCmd() *cobra.Command {
	opts := reportOptions{}
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Send a progress update to the server",
		Example: `  progressmon report --progress 42 --status "Downloading: 42%"
  progressmon report --hook downloading --percent " 42.5%" --speed 1.2MiB/s`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			if opts.serverURL == "" {
				opts.serverURL = e.cfg.Monitor.ServerURL
			}
			r, err := sendReport(cmd.Context(), http.DefaultClient, opts)
			if err != nil {
				return err
			}
			e.logger.Debug("report accepted", zap.Uint64("seq", r.Seq))
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%.1f%% %s (seq %d)\n", r.Progress, r.Status, r.Seq)
			return err
		},
	}
	cmd.Flags().StringVar(&opts.serverURL, "server", "", "server origin (overrides monitor.server_url)")
	cmd.Flags().Float64Var(&opts.progress, "progress", 0, "completion, 0-100")
	cmd.Flags().StringVar(&opts.status, "status", "", "status text")
	cmd.Flags().StringVar(&opts.hook, "hook", "", "downloader hook state (downloading, finished, error)")
	cmd.Flags().StringVar(&opts.percent, "percent", "", "downloader percent string, used with --hook")
	cmd.Flags().StringVar(&opts.speed, "speed", "", "downloader speed string, used with --hook")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "request timeout")
	return cmd
}

func sendReport(ctx context.Context, client *http.Client, opts reportOptions) (progress.Report, error) {
	endpoint, err := httppull.Endpoint(opts.serverURL)
	if err != nil {
		return progress.Report{}, err
	}

	method := http.MethodPut
	var payload any = map[string]any{"progress": opts.progress, "status": opts.status}
	if opts.hook != "" {
		method = http.MethodPost
		endpoint = strings.TrimSuffix(endpoint, "/") + "/hook"
		payload = map[string]string{"status": opts.hook, "_percent_str": opts.percent, "_speed_str": opts.speed}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return progress.Report{}, fmt.Errorf("marshal report: %w", err)
	}

	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(body))
	if err != nil {
		return progress.Report{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return progress.Report{}, fmt.Errorf("send report: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return progress.Report{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return progress.Report{}, fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return progress.ParseReport(data)
}
