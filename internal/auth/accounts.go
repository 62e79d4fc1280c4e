// ABOUTME: Staff account registration and credential checks over the AccountStore
// ABOUTME: bcrypt hashes; unknown usernames still pay for one comparison

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/2389/support-gateway/internal/store"
)

// ErrInvalidCredentials covers both unknown usernames and wrong passwords.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrWeakPassword is returned when a password is below the minimum length.
var ErrWeakPassword = errors.New("password too short")

// MinPasswordLength is the shortest password CreateAccount accepts.
const MinPasswordLength = 8

// adminSequence numbers staff accounts in creation order.
const adminSequence = "admin"

// dummyHash is compared against when the username doesn't exist so both
// failure paths take about as long.
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// Accounts registers staff and checks their credentials.
type Accounts struct {
	store  store.AccountStore
	cost   int
	logger *slog.Logger
}

// NewAccounts creates an account service. Pass nil logger for default.
func NewAccounts(s store.AccountStore, logger *slog.Logger) *Accounts {
	if logger == nil {
		logger = slog.Default()
	}
	return &Accounts{
		store:  s,
		cost:   bcrypt.DefaultCost,
		logger: logger.With("component", "accounts"),
	}
}

// CreateAccount hashes password and stores a new account numbered from the
// admin sequence.
func (a *Accounts) CreateAccount(ctx context.Context, username, password, displayName string) (*store.Account, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, errors.New("username is required")
	}
	if len(password) < MinPasswordLength {
		return nil, fmt.Errorf("%w: need at least %d characters", ErrWeakPassword, MinPasswordLength)
	}
	if displayName == "" {
		displayName = username
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), a.cost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	number, err := a.store.NextSequenceValue(ctx, adminSequence)
	if err != nil {
		return nil, fmt.Errorf("allocating account number: %w", err)
	}

	account := &store.Account{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: string(hash),
		DisplayName:  displayName,
		Number:       number,
		CreatedAt:    time.Now().UTC(),
	}
	if err := a.store.CreateAccount(ctx, account); err != nil {
		return nil, fmt.Errorf("creating account: %w", err)
	}

	a.logger.Info("account created", "account_id", account.ID, "username", username, "number", number)
	return account, nil
}

// FindByCredentials returns the account when username and password match.
func (a *Accounts) FindByCredentials(ctx context.Context, username, password string) (*store.Account, error) {
	account, err := a.store.GetAccountByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(password))
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("looking up account: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		a.logger.Debug("password mismatch", "username", account.Username)
		return nil, ErrInvalidCredentials
	}
	return account, nil
}

// Get returns an account by id.
func (a *Accounts) Get(ctx context.Context, id string) (*store.Account, error) {
	return a.store.GetAccount(ctx, id)
}
