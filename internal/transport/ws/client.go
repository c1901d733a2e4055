// Package ws implements the monitor push channel over a WebSocket.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-progress/internal/monitor"
	"github.com/JakeFAU/realtime-progress/internal/progress"
	"github.com/JakeFAU/realtime-progress/internal/wire"
)

// SocketPath is the server path of the push channel.
const SocketPath = "/socket"

const (
	defaultReconnectDelay   = time.Second
	defaultHandshakeTimeout = 10 * time.Second
	defaultWriteTimeout     = 5 * time.Second
	defaultEventBuffer      = 16
	maxFrameBytes           = 1 << 16
)

// ErrNotConnected is returned by Emit while no connection is established.
var ErrNotConnected = errors.New("push channel not connected")

// Config tunes the WebSocket client.
type Config struct {
	// BaseURL is the server origin, e.g. "http://localhost:8080". The socket
	// endpoint is derived from its host and port.
	BaseURL          string
	ReconnectDelay   time.Duration
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	Header           http.Header
}

// Client is a reconnecting WebSocket push channel.
type Client struct {
	cfg    Config
	url    string
	dialer websocket.Dialer
	logger *zap.Logger
	events chan monitor.PushEvent

	mu   sync.Mutex
	conn *websocket.Conn
}

var _ monitor.PushChannel = (*Client)(nil)

// New validates cfg and returns a Client. Connect must be called to dial.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	socketURL, err := SocketURL(cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaultReconnectDelay
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg: cfg,
		url: socketURL,
		dialer: websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		logger: logger.With(zap.String("url", socketURL)),
		events: make(chan monitor.PushEvent, defaultEventBuffer),
	}, nil
}

// SocketURL derives the push endpoint from a server origin. http and https
// map to ws and wss; any path on base is replaced by SocketPath.
func SocketURL(base string) (string, error) {
	if strings.TrimSpace(base) == "" {
		return "", errors.New("base url is required")
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("base url %q has no host", base)
	}
	u.Path = SocketPath
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}

// URL returns the derived socket endpoint.
func (c *Client) URL() string { return c.url }

// Events implements monitor.PushChannel.
func (c *Client) Events() <-chan monitor.PushEvent { return c.events }

// Connect dials the server and reads frames until ctx is done. Every failed
// dial produces a connect_error event followed by a retry after
// ReconnectDelay; a dropped connection is redialed the same way.
func (c *Client) Connect(ctx context.Context) error {
	for {
		conn, resp, err := c.dialer.DialContext(ctx, c.url, c.cfg.Header)
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Debug("push channel dial failed", zap.Error(err))
			c.deliver(ctx, monitor.PushEvent{Kind: monitor.EventConnectError, Err: fmt.Errorf("dial %s: %w", c.url, err)})
		} else {
			c.setConn(conn)
			c.logger.Debug("push channel connected")
			c.deliver(ctx, monitor.PushEvent{Kind: monitor.EventConnect})
			err = c.readLoop(ctx, conn)
			c.setConn(nil)
			_ = conn.Close()
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Warn("push channel disconnected", zap.Error(err))
			c.deliver(ctx, monitor.PushEvent{Kind: monitor.EventConnectError, Err: err})
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.cfg.ReconnectDelay):
		}
	}
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) error {
	conn.SetReadLimit(maxFrameBytes)
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read frame: %w", err)
		}
		var env wire.Envelope
		if err := json.Unmarshal(frame, &env); err != nil {
			c.deliver(ctx, monitor.PushEvent{
				Kind: monitor.EventProgressUpdate,
				Err:  fmt.Errorf("%w: decode frame: %v", progress.ErrMalformedReport, err),
			})
			continue
		}
		if env.Event != wire.EventProgressUpdate {
			c.logger.Debug("ignoring push frame", zap.String("event", env.Event))
			continue
		}
		r, err := env.Report()
		c.deliver(ctx, monitor.PushEvent{Kind: monitor.EventProgressUpdate, Report: r, Err: err})
	}
}

// Emit implements monitor.PushChannel.
func (c *Client) Emit(_ context.Context, event string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := c.conn.WriteJSON(wire.Request(event)); err != nil {
		return fmt.Errorf("emit %s: %w", event, err)
	}
	return nil
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn = conn
}

func (c *Client) deliver(ctx context.Context, ev monitor.PushEvent) {
	select {
	case c.events <- ev:
	case <-ctx.Done():
	}
}
