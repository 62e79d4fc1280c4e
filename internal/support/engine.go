// ABOUTME: Engine mapping socket lifecycle and inbound frames onto presence, routing and relays
// ABOUTME: Serializes presence transitions per conversation across multiple browser tabs

package support

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/2389/support-gateway/internal/dedupe"
	"github.com/2389/support-gateway/internal/events"
	"github.com/2389/support-gateway/internal/hub"
	"github.com/2389/support-gateway/internal/keylock"
	"github.com/2389/support-gateway/internal/presence"
	"github.com/2389/support-gateway/internal/relay"
	"github.com/2389/support-gateway/internal/routing"
	"github.com/2389/support-gateway/internal/store"
)

// ErrUnknownEvent is returned for a frame whose event the role can't send.
var ErrUnknownEvent = errors.New("unknown event")

// LastChat is the transcript sent to an admin after joining.
type LastChat struct {
	ConversationID string           `json:"conversation_id"`
	Messages       []*store.Message `json:"messages"`
}

type joinRequest struct {
	UserID string `json:"user_id"`
}

type typingRequest struct {
	Typing bool `json:"typing"`
}

// Store is what the engine needs from persistence.
type Store interface {
	store.HistoryStore
	store.IdentityStore
}

// Config holds engine dependencies.
type Config struct {
	Store     Store
	Policy    routing.Policy
	Dedupe    *dedupe.Cache    // optional
	Publisher events.Publisher // optional
	Logger    *slog.Logger     // optional
}

// Engine is the live support core.
type Engine struct {
	hub         *hub.Hub
	registry    *presence.Registry
	broadcaster *presence.Broadcaster
	router      *routing.Router
	messages    *relay.MessageRelay
	typing      *relay.TypingRelay
	profiles    store.IdentityStore
	presence    *keylock.Locks
	logger      *slog.Logger
}

// New builds an engine and its components.
func New(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	h := hub.New(logger)
	registry := presence.NewRegistry(logger)
	router := routing.New(routing.Config{
		Policy:    cfg.Policy,
		History:   cfg.Store,
		Emitter:   h,
		Publisher: cfg.Publisher,
		Logger:    logger,
	})

	return &Engine{
		hub:         h,
		registry:    registry,
		broadcaster: presence.NewBroadcaster(registry, cfg.Store, h, logger),
		router:      router,
		messages: relay.NewMessageRelay(relay.Config{
			History:   cfg.Store,
			Routes:    router,
			Emitter:   h,
			Dedupe:    cfg.Dedupe,
			Publisher: cfg.Publisher,
			Logger:    logger,
		}),
		typing:   relay.NewTypingRelay(router, h, logger),
		profiles: cfg.Store,
		presence: keylock.New(),
		logger:   logger.With("component", "engine"),
	}
}

// Hub exposes the live channel registry.
func (e *Engine) Hub() *hub.Hub { return e.hub }

// Registry exposes the presence set.
func (e *Engine) Registry() *presence.Registry { return e.registry }

// Router exposes admin routing.
func (e *Engine) Router() *routing.Router { return e.router }

// Relay exposes the message relay.
func (e *Engine) Relay() *relay.MessageRelay { return e.messages }

// ClientConnected attaches a visitor socket to its conversation room and
// marks the conversation present. Only the first socket of a conversation
// triggers a roster broadcast.
func (e *Engine) ClientConnected(ctx context.Context, conversationID string, sink hub.Sink) presence.ConnectResult {
	// Visitors who never filled the form still need a row to appear in the roster
	if err := e.profiles.EnsureProfile(ctx, conversationID); err != nil {
		e.logger.Warn("failed to ensure profile", "conversation_id", conversationID, "error", err)
	}

	unlock := e.presence.Lock(conversationID)
	e.hub.JoinRoom(conversationID, sink)
	result := e.registry.Connect(conversationID)
	unlock()

	if result == presence.Connected {
		e.broadcaster.Notify(ctx)
	}
	return result
}

// ClientDisconnected detaches a visitor socket. The conversation leaves the
// presence set only when its last socket is gone.
func (e *Engine) ClientDisconnected(ctx context.Context, conversationID string, sink hub.Sink) bool {
	unlock := e.presence.Lock(conversationID)
	removed := false
	if e.hub.LeaveRoom(conversationID, sink) == 0 {
		removed = e.registry.Disconnect(conversationID)
	}
	unlock()

	if removed {
		e.broadcaster.Notify(ctx)
	}
	return removed
}

// AdminConnected registers an admin session and pushes the roster so the
// new admin sees who is online immediately.
func (e *Engine) AdminConnected(ctx context.Context, adminID string, sink hub.Sink) {
	e.hub.AddAdmin(adminID, sink)
	e.broadcaster.Notify(ctx)
}

// AdminDisconnected releases the admin's routing and forgets the session.
func (e *Engine) AdminDisconnected(ctx context.Context, adminID string) {
	e.router.Release(adminID)
	e.hub.RemoveAdmin(adminID)
}

// UpdateProfile stores visitor-supplied identity fields and refreshes the
// roster when the visitor is online.
func (e *Engine) UpdateProfile(ctx context.Context, conversationID string, fields store.ProfileFields) (*store.Profile, error) {
	p, err := e.profiles.UpsertProfile(ctx, conversationID, fields)
	if err != nil {
		return nil, fmt.Errorf("updating profile: %w", err)
	}
	if e.registry.Contains(conversationID) {
		e.broadcaster.Notify(ctx)
	}
	return p, nil
}

// JoinConversation routes an admin to a conversation and sends the
// transcript back to that admin as last_chat.
func (e *Engine) JoinConversation(ctx context.Context, adminID, conversationID string) (*routing.Result, error) {
	res, err := e.router.Assign(ctx, adminID, conversationID)
	if res != nil {
		e.hub.EmitToAdmin(adminID, hub.EventLastChat, LastChat{
			ConversationID: conversationID,
			Messages:       res.Transcript,
		})
	}
	return res, err
}

// HandleClientFrame dispatches one frame from a visitor socket. Dropped
// frames are logged; the returned error is informational.
func (e *Engine) HandleClientFrame(ctx context.Context, conversationID string, f *hub.Frame) error {
	var err error
	switch f.Event {
	case hub.EventMessage:
		var p relay.Payload
		if err = decode(f, &p); err == nil {
			_, err = e.messages.HandleClientMessage(ctx, conversationID, p)
		}
	case hub.EventTyping:
		var req typingRequest
		if err = decode(f, &req); err == nil {
			e.typing.SetTyping(conversationID, store.SenderClient, req.Typing)
		}
	default:
		err = fmt.Errorf("%w %q from client", ErrUnknownEvent, f.Event)
	}

	e.logDropped(err, "conversation_id", conversationID, "event", f.Event)
	return err
}

// HandleAdminFrame dispatches one frame from an admin socket.
func (e *Engine) HandleAdminFrame(ctx context.Context, adminID string, f *hub.Frame) error {
	var err error
	switch f.Event {
	case hub.EventJoinConversation:
		var req joinRequest
		if err = decode(f, &req); err == nil {
			if req.UserID == "" {
				err = fmt.Errorf("%w: join_conversation without user_id", relay.ErrValidation)
			} else {
				_, err = e.JoinConversation(ctx, adminID, req.UserID)
			}
		}
	case hub.EventAdminMessage:
		var p relay.Payload
		if err = decode(f, &p); err == nil {
			_, err = e.messages.HandleAdminMessage(ctx, adminID, p)
		}
	case hub.EventTyping:
		var req typingRequest
		if err = decode(f, &req); err == nil {
			e.typing.SetAdminTyping(adminID, req.Typing)
		}
	default:
		err = fmt.Errorf("%w %q from admin", ErrUnknownEvent, f.Event)
	}

	e.logDropped(err, "admin_id", adminID, "event", f.Event)
	return err
}

func decode(f *hub.Frame, v any) error {
	if len(f.Data) == 0 {
		return fmt.Errorf("%w: %s without data", relay.ErrValidation, f.Event)
	}
	if err := json.Unmarshal(f.Data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", relay.ErrValidation, f.Event, err)
	}
	return nil
}

func (e *Engine) logDropped(err error, attrs ...any) {
	if err == nil {
		return
	}
	attrs = append(attrs, "error", err)
	switch {
	case errors.Is(err, relay.ErrValidation),
		errors.Is(err, relay.ErrDuplicateSend),
		errors.Is(err, relay.ErrNotRouted),
		errors.Is(err, ErrUnknownEvent):
		e.logger.Debug("frame dropped", attrs...)
	default:
		e.logger.Error("frame failed", attrs...)
	}
}
