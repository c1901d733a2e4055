package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/realtime-progress/internal/progress"
	"github.com/JakeFAU/realtime-progress/internal/wire"
)

func dialSocket(t *testing.T, srv *httptest.Server, header http.Header) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/socket"
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readReport(t *testing.T, conn *websocket.Conn) progress.Report {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env wire.Envelope
	require.NoError(t, conn.ReadJSON(&env))
	r, err := env.Report()
	require.NoError(t, err)
	return r
}

func TestPush_GetProgressReturnsSnapshot(t *testing.T) {
	t.Parallel()

	server, tracker := newTestServer(t, Options{})
	_, err := tracker.Update(42, "Running")
	require.NoError(t, err)

	srv := httptest.NewServer(server.Handler())
	defer srv.Close()

	conn := dialSocket(t, srv, nil)
	require.NoError(t, conn.WriteJSON(wire.Request(wire.EventGetProgress)))

	r := readReport(t, conn)
	require.InDelta(t, 42.0, r.Progress, 0.0001)
	require.Equal(t, "Running", r.Status)
}

func TestPush_StreamsTrackerUpdates(t *testing.T) {
	t.Parallel()

	server, tracker := newTestServer(t, Options{})
	srv := httptest.NewServer(server.Handler())
	defer srv.Close()

	conn := dialSocket(t, srv, nil)
	require.Eventually(t, func() bool { return server.push.Sessions() == 1 }, time.Second, 5*time.Millisecond)

	_, err := tracker.Update(10, "Downloading: 10%")
	require.NoError(t, err)
	r := readReport(t, conn)
	require.Equal(t, "Downloading: 10%", r.Status)
	require.Equal(t, uint64(1), r.Seq)

	_, err = tracker.ApplyDownloadHook(progress.DownloadHook{State: progress.HookFinished})
	require.NoError(t, err)
	r = readReport(t, conn)
	require.Equal(t, "Download completed", r.Status)
}

func TestPush_IgnoresUnknownFrames(t *testing.T) {
	t.Parallel()

	server, tracker := newTestServer(t, Options{})
	_, err := tracker.Update(5, "ok")
	require.NoError(t, err)
	srv := httptest.NewServer(server.Handler())
	defer srv.Close()

	conn := dialSocket(t, srv, nil)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("garbage")))
	require.NoError(t, conn.WriteJSON(wire.Request("subscribe_everything")))
	require.NoError(t, conn.WriteJSON(wire.Request(wire.EventGetProgress)))

	r := readReport(t, conn)
	require.Equal(t, "ok", r.Status)
}

func TestPush_CloseDisconnectsSessions(t *testing.T) {
	t.Parallel()

	server, _ := newTestServer(t, Options{})
	srv := httptest.NewServer(server.Handler())
	defer srv.Close()

	conn := dialSocket(t, srv, nil)
	require.Eventually(t, func() bool { return server.push.Sessions() == 1 }, time.Second, 5*time.Millisecond)

	server.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	require.Eventually(t, func() bool { return server.push.Sessions() == 0 }, time.Second, 5*time.Millisecond)
}

func TestPush_OriginPolicy(t *testing.T) {
	t.Parallel()

	server, _ := newTestServer(t, Options{AllowedOrigins: []string{"https://app.example.com/"}})
	srv := httptest.NewServer(server.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/socket"

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://evil.example.com"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	_ = resp.Body.Close()

	conn := dialSocket(t, srv, http.Header{"Origin": {"https://app.example.com"}})
	require.NotNil(t, conn)
}
