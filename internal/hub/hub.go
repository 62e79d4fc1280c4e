// ABOUTME: Live channel registry: client sockets grouped by room, admin sockets by session
// ABOUTME: Encodes each outbound frame once and fans out without blocking on slow sockets

package hub

import (
	"log/slog"
	"sort"
	"sync"
)

// Sink is one live socket. Send must not block; implementations buffer and
// drop or disconnect when the peer falls behind.
type Sink interface {
	ID() string
	Send(payload []byte) error
}

// Hub tracks which sockets belong to which client room and which socket
// belongs to each admin session. Delivery is best effort: a failed Send is
// logged and counted as undelivered, never retried.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]map[string]Sink // conversationID -> sinkID -> sink
	admins map[string]Sink            // adminID -> sink
	logger *slog.Logger
}

// New creates a hub. Pass nil logger for default.
func New(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		rooms:  make(map[string]map[string]Sink),
		admins: make(map[string]Sink),
		logger: logger.With("component", "hub"),
	}
}

// JoinRoom adds a client socket to its conversation room and returns the
// number of sockets now in the room.
func (h *Hub) JoinRoom(room string, s Sink) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.rooms[room]
	if !ok {
		members = make(map[string]Sink)
		h.rooms[room] = members
	}
	members[s.ID()] = s
	return len(members)
}

// LeaveRoom removes a client socket and returns how many remain. Leaving a
// room the socket is not in is a no-op.
func (h *Hub) LeaveRoom(room string, s Sink) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.rooms[room]
	if !ok {
		return 0
	}
	delete(members, s.ID())
	if len(members) == 0 {
		delete(h.rooms, room)
		return 0
	}
	return len(members)
}

// AddAdmin registers the socket of an admin session.
func (h *Hub) AddAdmin(adminID string, s Sink) {
	h.mu.Lock()
	h.admins[adminID] = s
	total := len(h.admins)
	h.mu.Unlock()

	h.logger.Debug("admin attached", "admin_id", adminID, "total_admins", total)
}

// RemoveAdmin forgets an admin session.
func (h *Hub) RemoveAdmin(adminID string) {
	h.mu.Lock()
	delete(h.admins, adminID)
	total := len(h.admins)
	h.mu.Unlock()

	h.logger.Debug("admin detached", "admin_id", adminID, "total_admins", total)
}

// AdminIDs lists connected admin sessions in a stable order.
func (h *Hub) AdminIDs() []string {
	h.mu.RLock()
	ids := make([]string, 0, len(h.admins))
	for id := range h.admins {
		ids = append(ids, id)
	}
	h.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// EmitToRoom sends an event to every socket in a client room and returns
// how many accepted it.
func (h *Hub) EmitToRoom(room, event string, data any) int {
	payload, ok := h.encode(event, data)
	if !ok {
		return 0
	}

	h.mu.RLock()
	targets := make([]Sink, 0, len(h.rooms[room]))
	for _, s := range h.rooms[room] {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	return h.deliver(targets, event, payload)
}

// EmitToAdmin sends an event to one admin session.
func (h *Hub) EmitToAdmin(adminID, event string, data any) bool {
	h.mu.RLock()
	s, ok := h.admins[adminID]
	h.mu.RUnlock()
	if !ok {
		return false
	}

	payload, ok := h.encode(event, data)
	if !ok {
		return false
	}
	return h.deliver([]Sink{s}, event, payload) == 1
}

// EmitToAdmins sends an event to every connected admin session.
func (h *Hub) EmitToAdmins(event string, data any) int {
	payload, ok := h.encode(event, data)
	if !ok {
		return 0
	}

	h.mu.RLock()
	targets := make([]Sink, 0, len(h.admins))
	for _, s := range h.admins {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	return h.deliver(targets, event, payload)
}

func (h *Hub) encode(event string, data any) ([]byte, bool) {
	payload, err := Encode(event, data)
	if err != nil {
		h.logger.Error("failed to encode frame", "event", event, "error", err)
		return nil, false
	}
	return payload, true
}

// deliver sends outside the lock so a misbehaving sink can't stall joins.
func (h *Hub) deliver(targets []Sink, event string, payload []byte) int {
	delivered := 0
	for _, s := range targets {
		if err := s.Send(payload); err != nil {
			h.logger.Debug("dropped frame for socket",
				"sink_id", s.ID(),
				"event", event,
				"error", err)
			continue
		}
		delivered++
	}
	return delivered
}
