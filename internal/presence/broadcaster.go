// ABOUTME: Resolves the presence set into visitor profiles and pushes it to admins
// ABOUTME: Each Notify emits the full roster as a connected_clients event

package presence

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"

	"github.com/2389/support-gateway/internal/hub"
	"github.com/2389/support-gateway/internal/store"
)

// Snapshotter is the read side of a Registry.
type Snapshotter interface {
	Snapshot() []string
}

// AdminEmitter delivers an event to every connected admin.
type AdminEmitter interface {
	EmitToAdmins(event string, data any) int
}

// Broadcaster pushes roster snapshots. Notify calls are serialized and the
// snapshot is taken while serialized, so the last roster emitted always
// reflects presence at or after the last transition that triggered it.
type Broadcaster struct {
	mu       sync.Mutex
	registry Snapshotter
	profiles store.IdentityStore
	emitter  AdminEmitter
	logger   *slog.Logger
}

// NewBroadcaster creates a broadcaster. Pass nil logger for default.
func NewBroadcaster(registry Snapshotter, profiles store.IdentityStore, emitter AdminEmitter, logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		registry: registry,
		profiles: profiles,
		emitter:  emitter,
		logger:   logger.With("component", "presence_broadcaster"),
	}
}

// Notify emits the current roster to every admin and returns it.
// Ids without a stored profile are omitted. A lookup failure for one id
// drops that id from this roster rather than suppressing the broadcast.
func (b *Broadcaster) Notify(ctx context.Context) []*store.Profile {
	b.mu.Lock()
	defer b.mu.Unlock()

	roster := b.resolve(ctx, b.registry.Snapshot())
	delivered := b.emitter.EmitToAdmins(hub.EventConnectedClients, roster)

	b.logger.Debug("roster broadcast",
		"clients", len(roster),
		"admins", delivered)
	return roster
}

func (b *Broadcaster) resolve(ctx context.Context, ids []string) []*store.Profile {
	roster := make([]*store.Profile, 0, len(ids))
	for _, id := range ids {
		p, err := b.profiles.GetProfile(ctx, id)
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				b.logger.Warn("failed to load profile for roster",
					"conversation_id", id,
					"error", err)
			}
			continue
		}
		roster = append(roster, p)
	}

	sort.SliceStable(roster, func(i, j int) bool {
		if !roster[i].CreatedAt.Equal(roster[j].CreatedAt) {
			return roster[i].CreatedAt.Before(roster[j].CreatedAt)
		}
		return roster[i].ID < roster[j].ID
	})
	return roster
}
