package app

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/nileshdk/bolikhata/internal/config"
	"github.com/nileshdk/bolikhata/internal/engine"
	"github.com/nileshdk/bolikhata/internal/intent"
	"github.com/nileshdk/bolikhata/internal/observe"
	"github.com/nileshdk/bolikhata/internal/respond"
	"github.com/nileshdk/bolikhata/internal/session"
	"github.com/nileshdk/bolikhata/pkg/provider/stt"
	"github.com/nileshdk/bolikhata/pkg/provider/tts"
)

// operators tracks which phone number is speaking on each live session. The
// engine's admin policy consults it for owner-only commands.
type operators struct {
	mu     sync.Mutex
	phones map[string]string
}

func newOperators() *operators {
	return &operators{phones: make(map[string]string)}
}

func (o *operators) set(sessionID, phone string) {
	o.mu.Lock()
	o.phones[sessionID] = phone
	o.mu.Unlock()
}

func (o *operators) drop(sessionID string) {
	o.mu.Lock()
	delete(o.phones, sessionID)
	o.mu.Unlock()
}

func (o *operators) phone(sessionID string) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.phones[sessionID]
}

// liveSession pairs a running session with its websocket connection so
// CloseAll can hang up stragglers.
type liveSession struct {
	sess *session.Session
	conn *websocket.Conn
}

// SessionManagerConfig holds all dependencies for a [SessionManager].
type SessionManagerConfig struct {
	STT       stt.Provider
	TTS       tts.Provider
	Extractor *intent.Extractor
	Engine    *engine.Engine
	Responder *respond.Generator
	Business  config.BusinessConfig
	Operators *operators
	Metrics   *observe.Metrics
	Log       *slog.Logger
}

// SessionManager owns all live voice sessions. It upgrades incoming
// websocket connections, runs each connection's read loop, and tears
// sessions down on disconnect or shutdown. All exported methods are safe
// for concurrent use.
type SessionManager struct {
	cfg SessionManagerConfig
	log *slog.Logger

	mu       sync.Mutex
	live     map[string]*liveSession
	draining bool
}

// NewSessionManager creates a SessionManager with the given dependencies.
func NewSessionManager(cfg SessionManagerConfig) *SessionManager {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	if cfg.Operators == nil {
		cfg.Operators = newOperators()
	}
	return &SessionManager{
		cfg:  cfg,
		log:  log,
		live: make(map[string]*liveSession),
	}
}

// Count returns the number of live sessions.
func (sm *SessionManager) Count() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return len(sm.live)
}

// ServeHTTP upgrades the request to a websocket and runs the session until
// the client disconnects. The optional "phone" query parameter identifies the
// operator for admin-only commands; "lang" picks the starting reply language.
func (sm *SessionManager) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sm.mu.Lock()
	if sm.draining {
		sm.mu.Unlock()
		http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
		return
	}
	sm.mu.Unlock()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		sm.log.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()
	id := uuid.NewString()
	sm.cfg.Operators.set(id, r.URL.Query().Get("phone"))
	defer sm.cfg.Operators.drop(id)

	sess := session.NewSession(session.Config{
		ID:               id,
		Transport:        &wsTransport{conn: conn},
		STT:              sm.cfg.STT,
		TTS:              sm.cfg.TTS,
		Extractor:        sm.cfg.Extractor,
		Engine:           sm.cfg.Engine,
		Responder:        sm.cfg.Responder,
		RejectThreshold:  sm.cfg.Business.RejectThreshold,
		ConfirmThreshold: sm.cfg.Business.ConfirmThreshold,
		LargeAmount:      sm.cfg.Business.LargeAmount,
		MatchThreshold:   sm.cfg.Business.NameMatchThreshold,
		Language:         respond.NormalizeLanguage(r.URL.Query().Get("lang")),
		Log:              sm.log,
	})

	sm.register(id, &liveSession{sess: sess, conn: conn})
	if sm.cfg.Metrics != nil {
		sm.cfg.Metrics.ActiveSessions.Add(ctx, 1)
	}
	sm.log.Info("session connected", "session", id, "remote", r.RemoteAddr)

	sess.Announce(ctx)
	sm.readLoop(ctx, conn, sess)

	sess.Close()
	sm.unregister(id)
	if sm.cfg.Metrics != nil {
		sm.cfg.Metrics.ActiveSessions.Add(context.WithoutCancel(ctx), -1)
	}
	sm.log.Info("session disconnected", "session", id)

	conn.Close(websocket.StatusNormalClosure, "bye")
}

// readLoop pumps frames from the connection into the session until the
// client goes away. Binary frames carry audio; text frames carry JSON
// control messages.
func (sm *SessionManager) readLoop(ctx context.Context, conn *websocket.Conn, sess *session.Session) {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && ctx.Err() == nil {
				sm.log.Debug("websocket read ended", "session", sess.ID(), "error", err)
			}
			return
		}
		switch typ {
		case websocket.MessageBinary:
			sess.HandleAudio(ctx, data)
		case websocket.MessageText:
			m, err := session.Decode(data)
			if err != nil {
				sm.log.Warn("bad control frame", "session", sess.ID(), "error", err)
				continue
			}
			sess.HandleControl(ctx, m)
		}
	}
}

func (sm *SessionManager) register(id string, ls *liveSession) {
	sm.mu.Lock()
	sm.live[id] = ls
	sm.mu.Unlock()
}

func (sm *SessionManager) unregister(id string) {
	sm.mu.Lock()
	delete(sm.live, id)
	sm.mu.Unlock()
}

// CloseAll stops accepting new sessions and waits for live ones to drain.
// Sessions still connected when ctx expires are hung up with a going-away
// close so clients know to reconnect elsewhere.
func (sm *SessionManager) CloseAll(ctx context.Context) {
	sm.mu.Lock()
	sm.draining = true
	sm.mu.Unlock()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		if sm.Count() == 0 {
			return
		}
		select {
		case <-ctx.Done():
			sm.mu.Lock()
			remaining := make([]*liveSession, 0, len(sm.live))
			for _, ls := range sm.live {
				remaining = append(remaining, ls)
			}
			sm.mu.Unlock()
			for _, ls := range remaining {
				ls.conn.Close(websocket.StatusGoingAway, "server shutting down")
			}
			return
		case <-ticker.C:
		}
	}
}

// wsTransport adapts a websocket connection to the session transport. A
// mutex serializes writes because the pipeline and the transcript consumer
// both send frames.
type wsTransport struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (t *wsTransport) Send(ctx context.Context, m session.Message) error {
	raw, err := m.Encode()
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn.Write(ctx, websocket.MessageText, raw)
}
