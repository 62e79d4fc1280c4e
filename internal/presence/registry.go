// ABOUTME: Volatile set of conversation ids with a connected visitor
// ABOUTME: Connect/Disconnect are idempotent and report whether state changed

package presence

import (
	"log/slog"
	"sort"
	"sync"
)

// ConnectResult says whether Connect changed the registry.
type ConnectResult int

const (
	Connected ConnectResult = iota
	AlreadyConnected
)

func (r ConnectResult) String() string {
	switch r {
	case Connected:
		return "connected"
	case AlreadyConnected:
		return "already_connected"
	default:
		return "unknown"
	}
}

// Registry is the process-wide presence set. It is empty on start and is
// never persisted.
type Registry struct {
	mu     sync.Mutex
	ids    map[string]struct{}
	logger *slog.Logger
}

// NewRegistry creates an empty registry. Pass nil logger for default.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		ids:    make(map[string]struct{}),
		logger: logger.With("component", "presence"),
	}
}

// Connect adds id. If it is already present nothing changes and
// AlreadyConnected is returned.
func (r *Registry) Connect(id string) ConnectResult {
	r.mu.Lock()
	_, present := r.ids[id]
	if !present {
		r.ids[id] = struct{}{}
	}
	size := len(r.ids)
	r.mu.Unlock()

	if present {
		r.logger.Debug("client already present", "conversation_id", id)
		return AlreadyConnected
	}
	r.logger.Info("client connected", "conversation_id", id, "present", size)
	return Connected
}

// Disconnect removes id and reports whether it was present.
func (r *Registry) Disconnect(id string) bool {
	r.mu.Lock()
	_, present := r.ids[id]
	delete(r.ids, id)
	size := len(r.ids)
	r.mu.Unlock()

	if !present {
		r.logger.Debug("disconnect for absent client ignored", "conversation_id", id)
		return false
	}
	r.logger.Info("client disconnected", "conversation_id", id, "present", size)
	return true
}

// Contains reports whether id is currently present.
func (r *Registry) Contains(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.ids[id]
	return ok
}

// Snapshot returns the present ids, sorted.
func (r *Registry) Snapshot() []string {
	r.mu.Lock()
	out := make([]string, 0, len(r.ids))
	for id := range r.ids {
		out = append(out, id)
	}
	r.mu.Unlock()

	sort.Strings(out)
	return out
}
