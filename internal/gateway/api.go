// ABOUTME: HTTP API handlers for visitor identity, staff login and transcript export
// ABOUTME: Registers REST routes and the two WebSocket endpoints on the gateway mux

package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/2389/support-gateway/internal/auth"
	"github.com/2389/support-gateway/internal/realtime"
	"github.com/2389/support-gateway/internal/store"
)

// maxProfileFieldLength bounds name and phone number values.
const maxProfileFieldLength = 200

// maxRequestBody bounds JSON request bodies.
const maxRequestBody = 16 * 1024

// SessionResponse is the JSON response for GET /.
type SessionResponse struct {
	UserID string `json:"user_id"`
}

// ProfileRequest is the JSON request body for POST /api/profile.
// Omitted fields are left unchanged.
type ProfileRequest struct {
	Name        *string `json:"name"`
	PhoneNumber *string `json:"phone_number"`
}

// LoginRequest is the JSON request body for POST /api/admin/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AdminResponse describes a staff account without its credentials.
type AdminResponse struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Number      int64  `json:"number"`
}

// LoginResponse is the JSON response for POST /api/admin/login.
type LoginResponse struct {
	Token     string        `json:"token"`
	ExpiresAt time.Time     `json:"expires_at"`
	Admin     AdminResponse `json:"admin"`
}

// TranscriptResponse is the JSON response for GET /api/conversations/{id}/transcript.
type TranscriptResponse struct {
	ConversationID string           `json:"conversation_id"`
	Profile        *store.Profile   `json:"profile,omitempty"`
	Messages       []*store.Message `json:"messages"`
}

func (g *Gateway) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", g.handleSession)
	mux.HandleFunc("GET /api/profile", g.handleGetProfile)
	mux.HandleFunc("POST /api/profile", g.handleUpdateProfile)
	mux.HandleFunc("POST /api/admin/login", g.handleLogin)

	var transcript http.Handler = http.HandlerFunc(g.handleTranscript)
	if g.verifier != nil {
		transcript = auth.HTTPAuthMiddleware(g.store, g.verifier)(transcript)
	}
	mux.Handle("GET /api/conversations/{id}/transcript", transcript)

	mux.HandleFunc("GET /health", g.handleHealth)
	mux.HandleFunc("GET /ready", g.handleReady)

	mux.HandleFunc("GET /ws/client", g.sockets.ServeClient)
	mux.HandleFunc("GET /ws/admin", g.sockets.ServeAdmin)
}

// handleSession issues the visitor cookie when absent. The id doubles as the
// conversation id, so an existing cookie is echoed back unchanged.
func (g *Gateway) handleSession(w http.ResponseWriter, r *http.Request) {
	id, ok := realtime.ConversationIDFromRequest(r)
	if !ok {
		id = uuid.New().String()
		http.SetCookie(w, &http.Cookie{
			Name:     realtime.CookieName,
			Value:    id,
			Path:     "/",
			MaxAge:   int((365 * 24 * time.Hour).Seconds()),
			HttpOnly: true,
			Secure:   g.config.Server.CookieSecure,
			SameSite: http.SameSiteLaxMode,
		})
		g.logger.Debug("issued visitor id", "conversation_id", id)
	}
	g.sendJSON(w, http.StatusOK, SessionResponse{UserID: id})
}

func (g *Gateway) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := realtime.ConversationIDFromRequest(r)
	if !ok {
		g.sendJSONError(w, http.StatusBadRequest, "missing user_id")
		return
	}

	profile, err := g.store.GetProfile(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		g.sendJSONError(w, http.StatusNotFound, "profile not found")
		return
	}
	if err != nil {
		g.logger.Error("failed to load profile", "conversation_id", id, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "failed to load profile")
		return
	}
	g.sendJSON(w, http.StatusOK, profile)
}

func (g *Gateway) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := realtime.ConversationIDFromRequest(r)
	if !ok {
		g.sendJSONError(w, http.StatusBadRequest, "missing user_id")
		return
	}

	var req ProfileRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	fields, errMsg := req.fields()
	if errMsg != "" {
		g.sendJSONError(w, http.StatusBadRequest, errMsg)
		return
	}

	profile, err := g.engine.UpdateProfile(r.Context(), id, fields)
	if err != nil {
		g.logger.Error("failed to update profile", "conversation_id", id, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "failed to update profile")
		return
	}
	g.sendJSON(w, http.StatusOK, profile)
}

// fields trims and bounds the request values. The second return value is an
// error message, empty on success.
func (p ProfileRequest) fields() (store.ProfileFields, string) {
	var f store.ProfileFields
	if p.Name != nil {
		v := strings.TrimSpace(*p.Name)
		if len(v) > maxProfileFieldLength {
			return f, "name too long"
		}
		f.Name = &v
	}
	if p.PhoneNumber != nil {
		v := strings.TrimSpace(*p.PhoneNumber)
		if len(v) > maxProfileFieldLength {
			return f, "phone_number too long"
		}
		f.PhoneNumber = &v
	}
	return f, ""
}

func (g *Gateway) handleLogin(w http.ResponseWriter, r *http.Request) {
	if g.verifier == nil {
		g.sendJSONError(w, http.StatusServiceUnavailable, "admin login disabled: auth.jwt_secret not set")
		return
	}

	var req LoginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Username == "" || req.Password == "" {
		g.sendJSONError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	account, err := g.accounts.FindByCredentials(r.Context(), req.Username, req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		g.sendJSONError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err != nil {
		g.logger.Error("login lookup failed", "username", req.Username, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "login failed")
		return
	}

	token, expiresAt, err := g.verifier.Generate(account.ID, g.config.Auth.TokenTTL)
	if err != nil {
		g.logger.Error("failed to issue token", "account_id", account.ID, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "login failed")
		return
	}

	g.logger.Info("admin logged in", "account_id", account.ID, "username", account.Username)
	g.sendJSON(w, http.StatusOK, LoginResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		Admin:     adminResponse(account),
	})
}

func adminResponse(a *store.Account) AdminResponse {
	return AdminResponse{
		ID:          a.ID,
		Username:    a.Username,
		DisplayName: a.DisplayName,
		Number:      a.Number,
	}
}

// handleTranscript exports a conversation. Unknown conversations export an
// empty transcript, matching what an admin sees on join.
func (g *Gateway) handleTranscript(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		g.sendJSONError(w, http.StatusBadRequest, "missing conversation id")
		return
	}

	messages, err := g.store.ListMessages(r.Context(), id)
	if err != nil {
		g.logger.Error("failed to load transcript", "conversation_id", id, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "failed to load transcript")
		return
	}

	profile, err := g.store.GetProfile(r.Context(), id)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		g.logger.Error("failed to load profile", "conversation_id", id, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "failed to load transcript")
		return
	}

	if r.URL.Query().Get("format") == "html" {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := g.renderer.Render(w, id, profile, messages); err != nil {
			g.logger.Error("failed to render transcript", "conversation_id", id, "error", err)
		}
		return
	}

	if messages == nil {
		messages = []*store.Message{}
	}
	g.sendJSON(w, http.StatusOK, TranscriptResponse{
		ConversationID: id,
		Profile:        profile,
		Messages:       messages,
	})
}

// handleHealth is the liveness check.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady checks that the store answers.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := g.store.Ping(r.Context()); err != nil {
		g.logger.Warn("readiness check failed", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("store unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("READY"))
}

func (g *Gateway) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Debug("failed to write response", "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	g.sendJSON(w, status, map[string]string{"error": message})
}
