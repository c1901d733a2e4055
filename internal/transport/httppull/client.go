// Package httppull implements the monitor pull endpoint client.
package httppull

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-progress/internal/monitor"
	"github.com/JakeFAU/realtime-progress/internal/progress"
)

// ProgressPath is the server path of the pull endpoint.
const ProgressPath = "/progress"

const maxBodyBytes = 1 << 16

// StatusError reports a non-2xx pull response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("pull endpoint returned %d", e.Code)
	}
	return fmt.Sprintf("pull endpoint returned %d: %s", e.Code, e.Body)
}

// Client fetches the current report with GET <base>/progress.
type Client struct {
	endpoint string
	http     *http.Client
	logger   *zap.Logger
}

var _ monitor.Puller = (*Client)(nil)

// New builds a Client for the server at baseURL. A nil httpClient uses one
// with a 10s timeout.
func New(baseURL string, httpClient *http.Client, logger *zap.Logger) (*Client, error) {
	endpoint, err := Endpoint(baseURL)
	if err != nil {
		return nil, err
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{endpoint: endpoint, http: httpClient, logger: logger}, nil
}

// Endpoint joins baseURL with ProgressPath.
func Endpoint(baseURL string) (string, error) {
	if strings.TrimSpace(baseURL) == "" {
		return "", errors.New("base url is required")
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = ProgressPath
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}

// Pull implements monitor.Puller.
func (c *Client) Pull(ctx context.Context) (progress.Report, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return progress.Report{}, fmt.Errorf("build pull request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return progress.Report{}, fmt.Errorf("pull %s: %w", c.endpoint, err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Debug("close pull response body", zap.Error(cerr))
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return progress.Report{}, fmt.Errorf("read pull response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return progress.Report{}, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return progress.ParseReport(body)
}
