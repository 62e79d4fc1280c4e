// ABOUTME: Wire frame format and event names shared by both channel roles
// ABOUTME: Every frame is {"event": name, "data": payload} as a JSON text message

package hub

import (
	"encoding/json"
	"fmt"
)

// Inbound events (transport -> core)
const (
	EventMessage          = "message"           // client-role
	EventAdminMessage     = "admin_message"     // admin-role
	EventTyping           = "typing"            // both roles
	EventJoinConversation = "join_conversation" // admin-role
)

// Outbound events (core -> transport)
const (
	EventTypingStatus         = "typing_status"
	EventConnectedClients     = "connected_clients"
	EventLastChat             = "last_chat"
	EventConversationReleased = "conversation_released"
)

// Frame is the envelope for every message on a socket.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Encode marshals an outbound frame.
func Encode(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encoding %s payload: %w", event, err)
	}
	return json.Marshal(Frame{Event: event, Data: raw})
}

// Decode parses an inbound frame. The payload is left raw for the handler
// of the named event to interpret.
func Decode(b []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("decoding frame: %w", err)
	}
	if f.Event == "" {
		return nil, fmt.Errorf("decoding frame: missing event name")
	}
	return &f, nil
}
