// ABOUTME: Event envelope and payload schemas published to the event bus
// ABOUTME: Every event is {meta: {id, type, time, producer}, data}

package events

import (
	"time"

	"github.com/google/uuid"
)

// Routing keys, which double as the event type name.
const (
	TypeMessageCreated       = "support.message.created.v1"
	TypeConversationAssigned = "support.conversation.assigned.v1"
)

// Producer names this service in event metadata.
const Producer = "support-gateway"

// Meta describes one published event.
type Meta struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	Time          time.Time `json:"time"`
	Producer      string    `json:"producer"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// Envelope wraps every event body.
type Envelope struct {
	Meta Meta `json:"meta"`
	Data any  `json:"data"`
}

// NewEnvelope stamps a fresh id and time on data.
func NewEnvelope(eventType string, data any) Envelope {
	return Envelope{
		Meta: Meta{
			ID:       uuid.NewString(),
			Type:     eventType,
			Time:     time.Now().UTC(),
			Producer: Producer,
		},
		Data: data,
	}
}

// MessageCreatedV1 is published after a message is persisted.
type MessageCreatedV1 struct {
	MessageID      string    `json:"message_id"`
	ConversationID string    `json:"conversation_id"`
	Sender         string    `json:"sender"`
	AdminID        string    `json:"admin_id,omitempty"`
	Type           string    `json:"type"`
	CreatedAt      time.Time `json:"created_at"`
}

// ConversationAssignedV1 is published after an admin joins a conversation.
type ConversationAssignedV1 struct {
	AdminID                string   `json:"admin_id"`
	ConversationID         string   `json:"conversation_id"`
	PreviousConversationID string   `json:"previous_conversation_id,omitempty"`
	EvictedAdminIDs        []string `json:"evicted_admin_ids,omitempty"`
}
