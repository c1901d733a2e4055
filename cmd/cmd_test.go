package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-progress/internal/config"
)

func TestSendReport_Put(t *testing.T) {
	t.Parallel()

	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/progress" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"progress": 42, "status": "Running", "seq": 3}`))
	}))
	defer srv.Close()

	r, err := sendReport(context.Background(), srv.Client(), reportOptions{
		serverURL: srv.URL,
		progress:  42,
		status:    "Running",
		timeout:   time.Second,
	})
	require.NoError(t, err)
	require.Equal(t, uint64(3), r.Seq)
	require.InDelta(t, 42.0, got["progress"], 0.0001)
	require.Equal(t, "Running", got["status"])
}

func TestSendReport_Hook(t *testing.T) {
	t.Parallel()

	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/progress/hook" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"progress": 42.5, "status": "Downloading: 42.5% at 1.2MiB/s", "seq": 1}`))
	}))
	defer srv.Close()

	r, err := sendReport(context.Background(), srv.Client(), reportOptions{
		serverURL: srv.URL,
		hook:      "downloading",
		percent:   " 42.5%",
		speed:     "1.2MiB/s",
	})
	require.NoError(t, err)
	require.InDelta(t, 42.5, r.Progress, 0.0001)
	require.Equal(t, "downloading", got["status"])
	require.Equal(t, " 42.5%", got["_percent_str"])
}

func TestSendReport_ServerRejects(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"progress out of range"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := sendReport(context.Background(), srv.Client(), reportOptions{serverURL: srv.URL, progress: 120})
	require.ErrorContains(t, err, "server returned 400")
}

func TestSendReport_InvalidServer(t *testing.T) {
	t.Parallel()

	_, err := sendReport(context.Background(), http.DefaultClient, reportOptions{serverURL: "ftp://example.com"})
	require.Error(t, err)
}

//nolint:paralleltest // replaces the package-level environment factory
func TestReportCommand_UsesConfiguredServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"progress": 10, "status": "Starting", "seq": 1}`))
	}))
	defer srv.Close()

	orig := newEnv
	newEnv = func(string) (*env, error) {
		return &env{cfg: config.Config{Monitor: config.MonitorConfig{ServerURL: srv.URL}}, logger: zap.NewNop()}, nil
	}
	defer func() { newEnv = orig }()

	root := newRootCmd()
	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetArgs([]string{"report", "--progress", "10", "--status", "Starting"})
	require.NoError(t, root.ExecuteContext(context.Background()))
	require.Equal(t, "10.0% Starting (seq 1)\n", out.String())
}

func TestResolveEnv_Missing(t *testing.T) {
	t.Parallel()

	_, err := resolveEnv(context.Background())
	require.Error(t, err)
}
