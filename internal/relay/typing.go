// ABOUTME: Forwards typing state between a visitor and the admins routed to them
// ABOUTME: Nothing is persisted and there is no automatic stop on disconnect

package relay

import (
	"log/slog"

	"github.com/2389/support-gateway/internal/hub"
	"github.com/2389/support-gateway/internal/store"
)

// TypingStatus is the typing_status frame body. ID is the conversation.
type TypingStatus struct {
	ID      string `json:"id"`
	Typing  bool   `json:"typing"`
	AdminID string `json:"admin_id,omitempty"`
}

// TypingRelay forwards typing indicators.
type TypingRelay struct {
	routes  Routes
	emitter Emitter
	logger  *slog.Logger
}

// NewTypingRelay creates a typing relay. Pass nil logger for default.
func NewTypingRelay(routes Routes, emitter Emitter, logger *slog.Logger) *TypingRelay {
	if logger == nil {
		logger = slog.Default()
	}
	return &TypingRelay{
		routes:  routes,
		emitter: emitter,
		logger:  logger.With("component", "typing_relay"),
	}
}

// SetTyping forwards a visitor's typing state to the admins routed to the
// conversation, and returns how many received it.
func (t *TypingRelay) SetTyping(conversationID string, role store.Sender, isTyping bool) int {
	return t.forward(conversationID, role, "", isTyping)
}

// SetAdminTyping forwards an admin's typing state to the client room of the
// conversation the admin is routed to. An unrouted admin's typing goes
// nowhere.
func (t *TypingRelay) SetAdminTyping(adminID string, isTyping bool) int {
	conversationID, ok := t.routes.ConversationOf(adminID)
	if !ok {
		return 0
	}
	return t.forward(conversationID, store.SenderAdmin, adminID, isTyping)
}

func (t *TypingRelay) forward(conversationID string, role store.Sender, adminID string, isTyping bool) int {
	status := TypingStatus{ID: conversationID, Typing: isTyping, AdminID: adminID}

	var delivered int
	switch role {
	case store.SenderClient:
		for _, id := range t.routes.AdminsFor(conversationID) {
			if t.emitter.EmitToAdmin(id, hub.EventTypingStatus, status) {
				delivered++
			}
		}
	case store.SenderAdmin:
		delivered = t.emitter.EmitToRoom(conversationID, hub.EventTypingStatus, status)
	default:
		t.logger.Warn("typing from unknown role", "role", role, "conversation_id", conversationID)
		return 0
	}

	t.logger.Debug("typing forwarded",
		"conversation_id", conversationID,
		"role", role,
		"typing", isTyping,
		"delivered", delivered)
	return delivered
}
