package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-progress/internal/id/uuid"
	"github.com/JakeFAU/realtime-progress/internal/metrics"
	"github.com/JakeFAU/realtime-progress/internal/progress"
	"github.com/JakeFAU/realtime-progress/internal/wire"
)

const (
	pushWriteWait  = 5 * time.Second
	pushPongWait   = 60 * time.Second
	pushPingPeriod = (pushPongWait * 9) / 10
	pushMaxFrame   = 4096
)

// PushHandler serves the push channel on GET /socket. Each session receives
// a progress_update frame for every tracker change and answers get_progress
// requests with the current snapshot.
type PushHandler struct {
	tracker  *progress.Tracker
	ids      *uuid.Generator
	upgrader websocket.Upgrader
	logger   *zap.Logger

	mu       sync.Mutex
	sessions map[string]*pushSession
	closed   bool
}

// NewPushHandler builds a PushHandler. An empty allowedOrigins enforces
// same-origin upgrades; "*" accepts any origin.
func NewPushHandler(tracker *progress.Tracker, ids *uuid.Generator, allowedOrigins []string, logger *zap.Logger) *PushHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ids == nil {
		ids = uuid.New()
	}
	h := &PushHandler{
		tracker:  tracker,
		ids:      ids,
		logger:   logger,
		sessions: make(map[string]*pushSession),
	}
	h.upgrader = websocket.Upgrader{
		HandshakeTimeout: 10 * time.Second,
		CheckOrigin:      originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[strings.ToLower(strings.TrimRight(o, "/"))] = struct{}{}
	}
	return func(r *http.Request) bool {
		if _, ok := set["*"]; ok {
			return true
		}
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[strings.ToLower(origin)]
		return ok
	}
}

// ServeHTTP upgrades the request and runs the session until either side
// closes.
func (h *PushHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.tracker == nil {
		writeError(h.logger, w, http.StatusServiceUnavailable, "progress tracker unavailable")
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		h.logger.Debug("push upgrade failed", zap.Error(err))
		return
	}

	sess := &pushSession{
		id:     h.ids.MustID(),
		conn:   conn,
		logger: h.logger,
		done:   make(chan struct{}),
	}
	sess.logger = h.logger.With(
		zap.String("session_id", sess.id),
		zap.String("request_id", RequestID(r.Context())),
		zap.String("remote", r.RemoteAddr),
	)
	updates, unsubscribe := h.tracker.Subscribe()
	defer unsubscribe()

	if !h.register(sess) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(pushWriteWait))
		_ = conn.Close()
		return
	}
	defer h.unregister(sess)

	metrics.IncPushSessions()
	defer metrics.DecPushSessions()
	sess.logger.Info("push session opened")

	go sess.writeLoop(updates)
	sess.readLoop(h.tracker)
	sess.close()
	sess.logger.Info("push session closed")
}

// Close disconnects every active session and rejects new ones.
func (h *PushHandler) Close() {
	h.mu.Lock()
	h.closed = true
	sessions := make([]*pushSession, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.Unlock()

	for _, s := range sessions {
		s.close()
	}
}

// Sessions returns the number of open sessions.
func (h *PushHandler) Sessions() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

func (h *PushHandler) register(s *pushSession) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.sessions[s.id] = s
	return true
}

func (h *PushHandler) unregister(s *pushSession) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sessions, s.id)
}

type pushSession struct {
	id     string
	conn   *websocket.Conn
	logger *zap.Logger

	writeMu   sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
}

func (s *pushSession) readLoop(tracker *progress.Tracker) {
	s.conn.SetReadLimit(pushMaxFrame)
	_ = s.conn.SetReadDeadline(time.Now().Add(pushPongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pushPongWait))
	})

	for {
		_, frame, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("push session read failed", zap.Error(err))
			}
			return
		}
		var env wire.Envelope
		if err := json.Unmarshal(frame, &env); err != nil {
			s.logger.Debug("ignoring undecodable push frame", zap.Error(err))
			continue
		}
		metrics.ObservePushFrame("in", env.Event)
		switch env.Event {
		case wire.EventGetProgress:
			if err := s.send(tracker.Snapshot()); err != nil {
				s.logger.Warn("push snapshot failed", zap.Error(err))
				return
			}
		default:
			s.logger.Debug("ignoring push request", zap.String("event", env.Event))
		}
	}
}

func (s *pushSession) writeLoop(updates <-chan progress.Report) {
	ticker := time.NewTicker(pushPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case r, ok := <-updates:
			if !ok {
				return
			}
			if err := s.send(r); err != nil {
				s.logger.Warn("push update failed", zap.Error(err))
				s.close()
				return
			}
		case <-ticker.C:
			s.writeMu.Lock()
			err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(pushWriteWait))
			s.writeMu.Unlock()
			if err != nil {
				s.close()
				return
			}
		}
	}
}

func (s *pushSession) send(r progress.Report) error {
	env, err := wire.Update(r)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.SetWriteDeadline(time.Now().Add(pushWriteWait)); err != nil {
		return err
	}
	if err := s.conn.WriteJSON(env); err != nil {
		return err
	}
	metrics.ObservePushFrame("out", env.Event)
	return nil
}

func (s *pushSession) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}
