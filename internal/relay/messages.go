// ABOUTME: Validates, stamps, persists and fans out chat messages in both directions
// ABOUTME: Per-conversation lock keeps live delivery order equal to transcript order

package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/support-gateway/internal/dedupe"
	"github.com/2389/support-gateway/internal/events"
	"github.com/2389/support-gateway/internal/hub"
	"github.com/2389/support-gateway/internal/keylock"
	"github.com/2389/support-gateway/internal/store"
)

// ErrValidation marks a message that was dropped for an unsupported type or
// empty body. Nothing was stored or emitted.
var ErrValidation = errors.New("invalid message")

// ErrDuplicateSend marks a retransmit of a client_msg_id already handled.
var ErrDuplicateSend = errors.New("duplicate send")

// ErrNotRouted is returned for an admin message while the admin is not
// routed to any conversation, or names a room other than its routed one.
var ErrNotRouted = errors.New("admin is not routed to a conversation")

// Payload is the body of an inbound message or admin_message event.
type Payload struct {
	Type        string `json:"type"`
	Message     string `json:"message"`
	Room        string `json:"room,omitempty"`
	ClientMsgID string `json:"client_msg_id,omitempty"`
}

// Outbound is the live frame body for a delivered message.
type Outbound struct {
	ID             string       `json:"id"`
	ConversationID string       `json:"conversation_id"`
	Sender         store.Sender `json:"sender"`
	AdminID        string       `json:"admin_id,omitempty"`
	Type           string       `json:"type"`
	Message        string       `json:"message"`
	CreatedAt      time.Time    `json:"created_at"`
	ClientMsgID    string       `json:"client_msg_id,omitempty"`
}

// Routes answers which admins follow a conversation.
type Routes interface {
	AdminsFor(conversationID string) []string
	ConversationOf(adminID string) (string, bool)
}

// Emitter delivers live events.
type Emitter interface {
	EmitToRoom(room, event string, data any) int
	EmitToAdmin(adminID, event string, data any) bool
}

// Config holds MessageRelay dependencies.
type Config struct {
	History   store.HistoryStore
	Routes    Routes
	Emitter   Emitter
	Dedupe    *dedupe.Cache    // optional; nil disables client_msg_id checks
	Publisher events.Publisher // optional
	Logger    *slog.Logger     // optional
	Now       func() time.Time // optional, for tests
}

// MessageRelay handles inbound chat messages.
type MessageRelay struct {
	locks     *keylock.Locks
	history   store.HistoryStore
	routes    Routes
	emitter   Emitter
	dedupe    *dedupe.Cache
	publisher events.Publisher
	logger    *slog.Logger

	clockMu sync.Mutex
	now     func() time.Time
	last    time.Time
}

// NewMessageRelay creates a relay.
func NewMessageRelay(cfg Config) *MessageRelay {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	publisher := cfg.Publisher
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &MessageRelay{
		locks:     keylock.New(),
		history:   cfg.History,
		routes:    cfg.Routes,
		emitter:   cfg.Emitter,
		dedupe:    cfg.Dedupe,
		publisher: publisher,
		logger:    logger.With("component", "message_relay"),
		now:       now,
	}
}

// HandleClientMessage stores and relays a visitor's message.
func (r *MessageRelay) HandleClientMessage(ctx context.Context, conversationID string, p Payload) (*store.Message, error) {
	return r.relay(ctx, conversationID, store.SenderClient, "", p)
}

// HandleAdminMessage stores and relays an admin's reply to the admin's
// routed conversation. A room naming any other conversation is rejected.
func (r *MessageRelay) HandleAdminMessage(ctx context.Context, adminID string, p Payload) (*store.Message, error) {
	routed, ok := r.routes.ConversationOf(adminID)
	if !ok {
		return nil, ErrNotRouted
	}
	if p.Room != "" && p.Room != routed {
		return nil, fmt.Errorf("%w: room %s, routed to %s", ErrNotRouted, p.Room, routed)
	}
	return r.relay(ctx, routed, store.SenderAdmin, adminID, p)
}

func validate(p Payload) error {
	if p.Type != store.MessageTypeText {
		return fmt.Errorf("%w: unsupported type %q", ErrValidation, p.Type)
	}
	if strings.TrimSpace(p.Message) == "" {
		return fmt.Errorf("%w: empty message", ErrValidation)
	}
	return nil
}

func (r *MessageRelay) relay(ctx context.Context, conversationID string, sender store.Sender, adminID string, p Payload) (*store.Message, error) {
	if err := validate(p); err != nil {
		return nil, err
	}

	var sendKey string
	if r.dedupe != nil && p.ClientMsgID != "" {
		sendKey = dedupe.Key(conversationID, p.ClientMsgID)
		if !r.dedupe.Claim(sendKey) {
			return nil, ErrDuplicateSend
		}
	}

	unlock := r.locks.Lock(conversationID)

	// The admin may have been reassigned while waiting for the lock
	if sender == store.SenderAdmin {
		if routed, ok := r.routes.ConversationOf(adminID); !ok || routed != conversationID {
			unlock()
			if sendKey != "" {
				r.dedupe.Forget(sendKey)
			}
			return nil, fmt.Errorf("%w: reassigned from %s", ErrNotRouted, conversationID)
		}
	}

	msg := &store.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Sender:         sender,
		Type:           p.Type,
		Body:           p.Message,
		CreatedAt:      r.stamp(),
	}
	if err := r.history.AppendMessage(ctx, msg); err != nil {
		unlock()
		if sendKey != "" {
			r.dedupe.Forget(sendKey)
		}
		return nil, fmt.Errorf("appending message to %s: %w", conversationID, err)
	}

	out := Outbound{
		ID:             msg.ID,
		ConversationID: conversationID,
		Sender:         sender,
		AdminID:        adminID,
		Type:           msg.Type,
		Message:        msg.Body,
		CreatedAt:      msg.CreatedAt,
		ClientMsgID:    p.ClientMsgID,
	}
	toRoom := r.emitter.EmitToRoom(conversationID, hub.EventMessage, out)
	admins := r.routes.AdminsFor(conversationID)
	for _, id := range admins {
		r.emitter.EmitToAdmin(id, hub.EventAdminMessage, out)
	}
	unlock()

	r.logger.Debug("message relayed",
		"message_id", msg.ID,
		"conversation_id", conversationID,
		"sender", sender,
		"client_sockets", toRoom,
		"admins", len(admins))

	events.PublishBestEffort(ctx, r.publisher, r.logger, events.TypeMessageCreated, events.MessageCreatedV1{
		MessageID:      msg.ID,
		ConversationID: conversationID,
		Sender:         string(sender),
		AdminID:        adminID,
		Type:           msg.Type,
		CreatedAt:      msg.CreatedAt,
	})
	return msg, nil
}

// stamp returns a UTC time strictly after every earlier stamp, so two
// messages never share a created_at even when the wall clock stalls or
// steps back.
func (r *MessageRelay) stamp() time.Time {
	r.clockMu.Lock()
	defer r.clockMu.Unlock()

	t := r.now().UTC()
	if !t.After(r.last) {
		t = r.last.Add(time.Nanosecond)
	}
	r.last = t
	return t
}
