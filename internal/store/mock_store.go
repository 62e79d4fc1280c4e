// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu         sync.RWMutex
	messages   map[string][]*Message // keyed by conversation ID, insertion order
	messageIDs map[string]struct{}
	profiles   map[string]*Profile
	accounts   map[string]*Account // keyed by account ID
	usernames  map[string]string   // username -> account ID
	sequences  map[string]int64

	// AppendErr, when set, is returned by AppendMessage without storing anything.
	AppendErr error
}

var _ Store = (*MockStore)(nil)

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		messages:   make(map[string][]*Message),
		messageIDs: make(map[string]struct{}),
		profiles:   make(map[string]*Profile),
		accounts:   make(map[string]*Account),
		usernames:  make(map[string]string),
		sequences:  make(map[string]int64),
	}
}

// AppendMessage stores a copy of msg.
func (m *MockStore) AppendMessage(ctx context.Context, msg *Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.AppendErr != nil {
		return m.AppendErr
	}
	if _, exists := m.messageIDs[msg.ID]; exists {
		return ErrDuplicateMessage
	}

	c := *msg
	m.messageIDs[c.ID] = struct{}{}
	m.messages[c.ConversationID] = append(m.messages[c.ConversationID], &c)
	return nil
}

// ListMessages returns copies of a conversation's messages, oldest first.
func (m *MockStore) ListMessages(ctx context.Context, conversationID string) ([]*Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stored := m.messages[conversationID]
	result := make([]*Message, 0, len(stored))
	for _, msg := range stored {
		c := *msg
		result = append(result, &c)
	}

	// Stable keeps insertion order for equal timestamps, like the seq column does
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// GetProfile returns a copy of the stored profile.
func (m *MockStore) GetProfile(ctx context.Context, id string) (*Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.profiles[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *p
	return &c, nil
}

// EnsureProfile creates an empty profile if absent.
func (m *MockStore) EnsureProfile(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.profiles[id]; !ok {
		now := time.Now().UTC()
		m.profiles[id] = &Profile{ID: id, CreatedAt: now, UpdatedAt: now}
	}
	return nil
}

// UpsertProfile creates or updates a profile.
func (m *MockStore) UpsertProfile(ctx context.Context, id string, fields ProfileFields) (*Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	p, ok := m.profiles[id]
	if !ok {
		p = &Profile{ID: id, CreatedAt: now}
		m.profiles[id] = p
	}
	if fields.Name != nil {
		name := *fields.Name
		p.Name = &name
	}
	if fields.PhoneNumber != nil {
		phone := *fields.PhoneNumber
		p.PhoneNumber = &phone
	}
	p.UpdatedAt = now

	c := *p
	return &c, nil
}

// CreateAccount stores a new account.
func (m *MockStore) CreateAccount(ctx context.Context, account *Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, taken := m.usernames[account.Username]; taken {
		return ErrUsernameExists
	}
	c := *account
	m.accounts[c.ID] = &c
	m.usernames[c.Username] = c.ID
	return nil
}

// GetAccount retrieves an account by ID.
func (m *MockStore) GetAccount(ctx context.Context, id string) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *a
	return &c, nil
}

// GetAccountByUsername retrieves an account by username.
func (m *MockStore) GetAccountByUsername(ctx context.Context, username string) (*Account, error) {
	m.mu.RLock()
	id, ok := m.usernames[username]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return m.GetAccount(ctx, id)
}

// NextSequenceValue increments the named counter.
func (m *MockStore) NextSequenceValue(ctx context.Context, name string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sequences[name]++
	return m.sequences[name], nil
}

// Ping always succeeds.
func (m *MockStore) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op.
func (m *MockStore) Close() error {
	return nil
}

// errMockClosed is kept for tests that simulate a failing backend.
var errMockClosed = errors.New("mock store closed")

// FailAppends makes subsequent AppendMessage calls fail with a transient error.
func (m *MockStore) FailAppends() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AppendErr = errMockClosed
}
