// ABOUTME: Store interfaces and data types for support-gateway persistence
// ABOUTME: Defines Message, Profile, Account and the History/Identity/Account store contracts

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateMessage is returned when a message with the same ID was already appended
var ErrDuplicateMessage = errors.New("message already exists")

// ErrUsernameExists is returned when creating an account with a taken username
var ErrUsernameExists = errors.New("username already exists")

// Sender identifies which side of a conversation wrote a message.
type Sender string

const (
	SenderClient Sender = "client"
	SenderAdmin  Sender = "admin"
)

// Valid reports whether s is one of the known roles.
func (s Sender) Valid() bool {
	return s == SenderClient || s == SenderAdmin
}

// MessageTypeText is the only message type accepted by the relay today.
const MessageTypeText = "text"

// Message is a single transcript entry. Messages are append-only: once
// stored they are never updated or deleted.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Sender         Sender    `json:"sender"`
	Type           string    `json:"type"`
	Body           string    `json:"message"`
	CreatedAt      time.Time `json:"created_at"`
}

// Profile is the identity a visitor filled in (or didn't) for a conversation.
type Profile struct {
	ID          string    `json:"id"`
	Name        *string   `json:"name,omitempty"`
	PhoneNumber *string   `json:"phone_number,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Complete reports whether the visitor supplied every optional field.
func (p *Profile) Complete() bool {
	return p.Name != nil && *p.Name != "" && p.PhoneNumber != nil && *p.PhoneNumber != ""
}

// ProfileFields carries a partial profile update. Nil fields are left unchanged.
type ProfileFields struct {
	Name        *string
	PhoneNumber *string
}

// Account is a staff login.
type Account struct {
	ID           string
	Username     string
	PasswordHash string // bcrypt
	DisplayName  string
	Number       int64 // allocated from the "admin" sequence
	CreatedAt    time.Time
}

// HistoryStore is the durable transcript log.
type HistoryStore interface {
	// AppendMessage stores msg. Returns ErrDuplicateMessage if msg.ID exists.
	AppendMessage(ctx context.Context, msg *Message) error
	// ListMessages returns every message of a conversation, oldest first.
	ListMessages(ctx context.Context, conversationID string) ([]*Message, error)
}

// IdentityStore holds visitor profiles.
type IdentityStore interface {
	GetProfile(ctx context.Context, id string) (*Profile, error)
	UpsertProfile(ctx context.Context, id string, fields ProfileFields) (*Profile, error)
	// EnsureProfile creates an empty profile when none exists. An existing
	// profile is left untouched, updated_at included.
	EnsureProfile(ctx context.Context, id string) error
}

// AccountStore holds staff accounts and named counters.
type AccountStore interface {
	CreateAccount(ctx context.Context, account *Account) error
	GetAccount(ctx context.Context, id string) (*Account, error)
	GetAccountByUsername(ctx context.Context, username string) (*Account, error)
	NextSequenceValue(ctx context.Context, name string) (int64, error)
}

// Store is everything the gateway persists.
type Store interface {
	HistoryStore
	IdentityStore
	AccountStore

	// Ping checks that the backing database is reachable
	Ping(ctx context.Context) error

	// Close releases any resources held by the store
	Close() error
}
