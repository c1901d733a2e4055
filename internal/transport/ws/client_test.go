package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/realtime-progress/internal/monitor"
	"github.com/JakeFAU/realtime-progress/internal/progress"
	"github.com/JakeFAU/realtime-progress/internal/wire"
)

func TestSocketURL(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		base    string
		want    string
		wantErr bool
	}{
		{name: "http", base: "http://localhost:8080", want: "ws://localhost:8080/socket"},
		{name: "https with path", base: "https://example.com/app/?x=1", want: "wss://example.com/socket"},
		{name: "already ws", base: "ws://10.0.0.1:9000", want: "ws://10.0.0.1:9000/socket"},
		{name: "empty", base: " ", wantErr: true},
		{name: "bad scheme", base: "ftp://host", wantErr: true},
		{name: "no host", base: "http://", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := SocketURL(tc.base)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func nextEvent(t *testing.T, c *Client) monitor.PushEvent {
	t.Helper()
	select {
	case ev := <-c.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for push event")
		return monitor.PushEvent{}
	}
}

func TestClientReceivesUpdates(t *testing.T) {
	t.Parallel()

	upgrader := websocket.Upgrader{}
	requests := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != SocketPath {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var req wire.Envelope
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		requests <- req.Event

		env, err := wire.Update(progress.Report{Progress: 42, Status: "Running", Seq: 3})
		if err != nil {
			return
		}
		_ = conn.WriteJSON(env)
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"progress_update","data":{"status":"no progress"}}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`not json`))
		_ = conn.WriteJSON(wire.Envelope{Event: "something_else"})
		_ = conn.WriteJSON(env)

		// Hold the connection until the client goes away.
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	client, err := New(Config{BaseURL: srv.URL}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- client.Connect(ctx) }()

	require.Equal(t, monitor.EventConnect, nextEvent(t, client).Kind)
	require.NoError(t, client.Emit(ctx, wire.EventGetProgress))
	require.Equal(t, wire.EventGetProgress, <-requests)

	ev := nextEvent(t, client)
	require.Equal(t, monitor.EventProgressUpdate, ev.Kind)
	require.NoError(t, ev.Err)
	require.Equal(t, "Running", ev.Report.Status)
	require.Equal(t, uint64(3), ev.Report.Seq)

	ev = nextEvent(t, client)
	require.ErrorIs(t, ev.Err, progress.ErrMalformedReport)
	ev = nextEvent(t, client)
	require.ErrorIs(t, ev.Err, progress.ErrMalformedReport)

	ev = nextEvent(t, client)
	require.NoError(t, ev.Err)
	require.InDelta(t, 42.0, ev.Report.Progress, 0.0001)

	cancel()
	require.NoError(t, <-done)
}

func TestClientReportsDialFailuresAndRetries(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	client, err := New(Config{BaseURL: base, ReconnectDelay: 10 * time.Millisecond}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- client.Connect(ctx) }()

	for range 2 {
		ev := nextEvent(t, client)
		require.Equal(t, monitor.EventConnectError, ev.Kind)
		require.Error(t, ev.Err)
	}
	require.ErrorIs(t, client.Emit(ctx, wire.EventGetProgress), ErrNotConnected)

	cancel()
	require.NoError(t, <-done)
}

func TestClientSignalsDisconnect(t *testing.T) {
	t.Parallel()

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_ = conn.Close()
	}))
	defer srv.Close()

	client, err := New(Config{BaseURL: srv.URL, ReconnectDelay: time.Hour}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = client.Connect(ctx) }()

	require.Equal(t, monitor.EventConnect, nextEvent(t, client).Kind)
	ev := nextEvent(t, client)
	require.Equal(t, monitor.EventConnectError, ev.Kind)
	require.Error(t, ev.Err)
}
