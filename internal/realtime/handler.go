// ABOUTME: HTTP handlers upgrading /ws/client and /ws/admin to WebSocket sessions
// ABOUTME: Binds each socket to its conversation or admin session and feeds frames to the engine

package realtime

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/2389/support-gateway/internal/auth"
	"github.com/2389/support-gateway/internal/hub"
	"github.com/2389/support-gateway/internal/presence"
	"github.com/2389/support-gateway/internal/store"
)

// CookieName carries the visitor's conversation id.
const CookieName = "user_id"

// maxConversationIDLength bounds ids taken from cookies or query strings.
const maxConversationIDLength = 128

// Engine is the support core as seen by the transport.
type Engine interface {
	ClientConnected(ctx context.Context, conversationID string, sink hub.Sink) presence.ConnectResult
	ClientDisconnected(ctx context.Context, conversationID string, sink hub.Sink) bool
	AdminConnected(ctx context.Context, adminID string, sink hub.Sink)
	AdminDisconnected(ctx context.Context, adminID string)
	HandleClientFrame(ctx context.Context, conversationID string, f *hub.Frame) error
	HandleAdminFrame(ctx context.Context, adminID string, f *hub.Frame) error
}

// Config holds handler dependencies.
type Config struct {
	Engine Engine
	// Accounts and Verifier authenticate admin sockets. A nil Verifier
	// accepts every admin socket.
	Accounts       store.AccountStore
	Verifier       auth.TokenVerifier
	AllowedOrigins []string
	ReadTimeout    time.Duration
	MaxMessageSize int64
	Connection     Options
	Logger         *slog.Logger
}

// Handler serves both socket roles and tracks open connections so they
// can be closed on shutdown.
type Handler struct {
	cfg      Config
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu    sync.Mutex
	conns map[*Connection]struct{}
}

// NewHandler creates a socket handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 60 * time.Second
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = 64 * 1024
	}
	h := &Handler{
		cfg:    cfg,
		logger: logger.With("component", "realtime"),
		conns:  make(map[*Connection]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(cfg.AllowedOrigins),
	}
	return h
}

// originChecker allows same-origin requests, requests without an Origin
// header, and any origin listed. "*" allows everything.
func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[strings.TrimRight(strings.ToLower(o), "/")] = struct{}{}
	}
	_, allowAll := set["*"]

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || allowAll {
			return true
		}
		if _, ok := set[strings.ToLower(origin)]; ok {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return strings.EqualFold(u.Host, r.Host)
	}
}

// ConversationIDFromRequest reads the visitor id from the user_id cookie,
// falling back to the user_id query parameter.
func ConversationIDFromRequest(r *http.Request) (string, bool) {
	id := ""
	if c, err := r.Cookie(CookieName); err == nil {
		id = c.Value
	}
	if id == "" {
		id = r.URL.Query().Get(CookieName)
	}
	id = strings.TrimSpace(id)
	if id == "" || len(id) > maxConversationIDLength {
		return "", false
	}
	return id, true
}

// ServeClient handles GET /ws/client.
func (h *Handler) ServeClient(w http.ResponseWriter, r *http.Request) {
	conversationID, ok := ConversationIDFromRequest(r)
	if !ok {
		http.Error(w, `{"error":"user_id is required"}`, http.StatusBadRequest)
		return
	}

	conn, ws, ok := h.upgrade(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	logger := h.logger.With("role", "client", "conversation_id", conversationID, "conn_id", conn.ID())

	h.cfg.Engine.ClientConnected(ctx, conversationID, conn)
	defer func() {
		h.cfg.Engine.ClientDisconnected(context.WithoutCancel(ctx), conversationID, conn)
		h.release(conn)
	}()

	h.readLoop(ws, conn, logger, func(f *hub.Frame) {
		_ = h.cfg.Engine.HandleClientFrame(ctx, conversationID, f)
	})
}

// ServeAdmin handles GET /ws/admin. When a verifier is configured the
// admin token comes from ?token= or an Authorization bearer header.
func (h *Handler) ServeAdmin(w http.ResponseWriter, r *http.Request) {
	var account *store.Account
	if h.cfg.Verifier != nil {
		token := r.URL.Query().Get("token")
		if token == "" {
			token, _ = auth.ExtractBearerToken(r.Header.Get("Authorization"))
		}
		if token == "" {
			http.Error(w, `{"error":"missing token"}`, http.StatusUnauthorized)
			return
		}
		var err error
		account, err = auth.Authenticate(r, h.cfg.Accounts, h.cfg.Verifier, token)
		if err != nil {
			h.logger.Debug("admin socket rejected", "error", err)
			http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
			return
		}
	}

	conn, ws, ok := h.upgrade(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	adminID := uuid.NewString()
	logger := h.logger.With("role", "admin", "admin_id", adminID, "conn_id", conn.ID())
	if account != nil {
		logger = logger.With("username", account.Username)
	}
	logger.Info("admin session opened")

	h.cfg.Engine.AdminConnected(ctx, adminID, conn)
	defer func() {
		h.cfg.Engine.AdminDisconnected(context.WithoutCancel(ctx), adminID)
		h.release(conn)
		logger.Info("admin session closed")
	}()

	h.readLoop(ws, conn, logger, func(f *hub.Frame) {
		_ = h.cfg.Engine.HandleAdminFrame(ctx, adminID, f)
	})
}

func (h *Handler) upgrade(w http.ResponseWriter, r *http.Request) (*Connection, *websocket.Conn, bool) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the response
		h.logger.Debug("upgrade failed", "error", err, "remote", r.RemoteAddr)
		return nil, nil, false
	}

	conn := NewConnection(ws, h.cfg.Connection, h.logger)
	h.mu.Lock()
	h.conns[conn] = struct{}{}
	h.mu.Unlock()

	conn.Start()
	return conn, ws, true
}

func (h *Handler) release(conn *Connection) {
	h.mu.Lock()
	delete(h.conns, conn)
	h.mu.Unlock()
	conn.Close(websocket.CloseNormalClosure, "session closed")
}

// readLoop processes frames in arrival order until the socket fails. One
// goroutine per socket keeps each sender's messages in send order.
func (h *Handler) readLoop(ws *websocket.Conn, conn *Connection, logger *slog.Logger, dispatch func(*hub.Frame)) {
	ws.SetReadLimit(h.cfg.MaxMessageSize)
	extend := func() error {
		return ws.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))
	}
	_ = extend()
	ws.SetPongHandler(func(string) error { return extend() })

	for {
		messageType, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("socket read ended", "error", err)
			}
			return
		}
		_ = extend()

		if messageType != websocket.TextMessage {
			continue
		}
		f, err := hub.Decode(data)
		if err != nil {
			logger.Debug("skipping undecodable frame", "error", err)
			continue
		}
		dispatch(f)

		select {
		case <-conn.Done():
			return
		default:
		}
	}
}

// Active returns the number of open sockets.
func (h *Handler) Active() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// CloseAll closes every open socket with a going-away status. Hijacked
// connections are not closed by http.Server.Shutdown.
func (h *Handler) CloseAll() {
	h.mu.Lock()
	conns := make([]*Connection, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		c.Close(websocket.CloseGoingAway, "server shutting down")
	}
	if len(conns) > 0 {
		h.logger.Info("closed open sockets", "count", len(conns))
	}
}
