// ABOUTME: Routes each admin session to at most one conversation at a time
// ABOUTME: Reverse index admin->conversation with atomic leave-old/join-new under a per-admin lock

package routing

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/2389/support-gateway/internal/events"
	"github.com/2389/support-gateway/internal/hub"
	"github.com/2389/support-gateway/internal/keylock"
	"github.com/2389/support-gateway/internal/store"
)

// Policy decides what happens when a second admin joins a conversation that
// already has one.
type Policy string

const (
	// PolicyShared lets several admins follow the same conversation.
	PolicyShared Policy = "shared"
	// PolicyExclusive hands the conversation to the newest admin and releases
	// everyone else routed to it.
	PolicyExclusive Policy = "exclusive"
)

// ParsePolicy validates a configured policy name. Empty means shared.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyShared:
		return PolicyShared, nil
	case PolicyExclusive:
		return PolicyExclusive, nil
	default:
		return "", fmt.Errorf("unknown routing policy %q", s)
	}
}

// Emitter delivers live events to client rooms and admin sessions.
type Emitter interface {
	EmitToRoom(room, event string, data any) int
	EmitToAdmin(adminID, event string, data any) bool
}

// JoinNotice tells a visitor that an admin has joined.
type JoinNotice struct {
	AdminID        string `json:"admin_id"`
	ConversationID string `json:"conversation_id"`
}

// ReleaseNotice tells an admin it is no longer routed to a conversation.
type ReleaseNotice struct {
	ConversationID string `json:"conversation_id"`
}

// Result describes a completed assignment.
type Result struct {
	AdminID        string
	ConversationID string
	// Previous is the conversation the admin left, empty if none.
	Previous string
	// Evicted lists admins released from ConversationID under PolicyExclusive.
	Evicted []string
	// Transcript is the persisted history of ConversationID, oldest first.
	Transcript []*store.Message
}

// Router owns the admin->conversation assignments. Mutations for one admin
// are serialized by that admin's lock; the two index maps are only touched
// under mu so they never disagree.
type Router struct {
	locks *keylock.Locks

	mu             sync.RWMutex
	byAdmin        map[string]string              // adminID -> conversationID
	byConversation map[string]map[string]struct{} // conversationID -> adminIDs

	policy    Policy
	history   store.HistoryStore
	emitter   Emitter
	publisher events.Publisher
	logger    *slog.Logger
}

// Config holds router dependencies.
type Config struct {
	Policy    Policy
	History   store.HistoryStore
	Emitter   Emitter
	Publisher events.Publisher // optional
	Logger    *slog.Logger     // optional
}

// New creates a router.
func New(cfg Config) *Router {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	policy := cfg.Policy
	if policy == "" {
		policy = PolicyShared
	}
	publisher := cfg.Publisher
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &Router{
		locks:          keylock.New(),
		byAdmin:        make(map[string]string),
		byConversation: make(map[string]map[string]struct{}),
		policy:         policy,
		history:        cfg.History,
		emitter:        cfg.Emitter,
		publisher:      publisher,
		logger:         logger.With("component", "router"),
	}
}

// Assign routes adminID to conversationID, releasing any previous routing
// of that admin in the same step. The visitor side is told an admin joined
// and the conversation's transcript is returned. Unknown conversations are
// not an error; they simply have an empty transcript.
//
// If loading the transcript fails the new routing stays in place and the
// error is returned alongside the partial result.
func (r *Router) Assign(ctx context.Context, adminID, conversationID string) (*Result, error) {
	unlock := r.locks.Lock(adminID)
	defer unlock()

	r.mu.Lock()
	previous := r.byAdmin[adminID]
	if previous != "" {
		r.unlinkLocked(adminID, previous)
	}
	var evicted []string
	if r.policy == PolicyExclusive {
		for other := range r.byConversation[conversationID] {
			if other == adminID {
				continue
			}
			r.unlinkLocked(other, conversationID)
			evicted = append(evicted, other)
		}
		sort.Strings(evicted)
	}
	r.linkLocked(adminID, conversationID)
	r.mu.Unlock()

	for _, other := range evicted {
		r.emitter.EmitToAdmin(other, hub.EventConversationReleased, ReleaseNotice{ConversationID: conversationID})
	}
	r.emitter.EmitToRoom(conversationID, hub.EventJoinConversation, JoinNotice{
		AdminID:        adminID,
		ConversationID: conversationID,
	})

	r.logger.Info("admin assigned",
		"admin_id", adminID,
		"conversation_id", conversationID,
		"previous", previous,
		"evicted", len(evicted))

	res := &Result{
		AdminID:        adminID,
		ConversationID: conversationID,
		Previous:       previous,
		Evicted:        evicted,
	}

	events.PublishBestEffort(ctx, r.publisher, r.logger, events.TypeConversationAssigned, events.ConversationAssignedV1{
		AdminID:                adminID,
		ConversationID:         conversationID,
		PreviousConversationID: previous,
		EvictedAdminIDs:        evicted,
	})

	transcript, err := r.history.ListMessages(ctx, conversationID)
	if err != nil {
		res.Transcript = []*store.Message{}
		return res, fmt.Errorf("loading transcript for %s: %w", conversationID, err)
	}
	res.Transcript = transcript
	return res, nil
}

// Release drops adminID's routing, if any, and returns the conversation it
// was routed to.
func (r *Router) Release(adminID string) (string, bool) {
	unlock := r.locks.Lock(adminID)
	defer unlock()

	r.mu.Lock()
	conversationID, ok := r.byAdmin[adminID]
	if ok {
		r.unlinkLocked(adminID, conversationID)
	}
	r.mu.Unlock()

	if ok {
		r.logger.Info("admin released", "admin_id", adminID, "conversation_id", conversationID)
	}
	return conversationID, ok
}

// ConversationOf returns the conversation adminID is routed to.
func (r *Router) ConversationOf(adminID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byAdmin[adminID]
	return id, ok
}

// AdminsFor lists the admins routed to conversationID, sorted.
func (r *Router) AdminsFor(conversationID string) []string {
	r.mu.RLock()
	admins := make([]string, 0, len(r.byConversation[conversationID]))
	for id := range r.byConversation[conversationID] {
		admins = append(admins, id)
	}
	r.mu.RUnlock()

	sort.Strings(admins)
	return admins
}

// Policy reports the configured policy.
func (r *Router) Policy() Policy {
	return r.policy
}

func (r *Router) linkLocked(adminID, conversationID string) {
	r.byAdmin[adminID] = conversationID
	admins, ok := r.byConversation[conversationID]
	if !ok {
		admins = make(map[string]struct{})
		r.byConversation[conversationID] = admins
	}
	admins[adminID] = struct{}{}
}

func (r *Router) unlinkLocked(adminID, conversationID string) {
	delete(r.byAdmin, adminID)
	admins := r.byConversation[conversationID]
	delete(admins, adminID)
	if len(admins) == 0 {
		delete(r.byConversation, conversationID)
	}
}
