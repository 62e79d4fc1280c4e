// ABOUTME: Staff account storage and named sequence counters
// ABOUTME: Password verification lives in the auth package, not here

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// CreateAccount inserts a new staff account.
// Returns ErrUsernameExists if the username is taken.
func (s *SQLiteStore) CreateAccount(ctx context.Context, account *Account) error {
	query := `
		INSERT INTO accounts (id, username, password_hash, display_name, number, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		account.ID,
		account.Username,
		account.PasswordHash,
		account.DisplayName,
		account.Number,
		formatTime(account.CreatedAt),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrUsernameExists
		}
		return fmt.Errorf("inserting account: %w", err)
	}

	s.logger.Debug("created account", "id", account.ID, "username", account.Username)
	return nil
}

// GetAccount retrieves an account by ID.
func (s *SQLiteStore) GetAccount(ctx context.Context, id string) (*Account, error) {
	return s.getAccount(ctx, "id", id)
}

// GetAccountByUsername retrieves an account by username.
func (s *SQLiteStore) GetAccountByUsername(ctx context.Context, username string) (*Account, error) {
	return s.getAccount(ctx, "username", username)
}

func (s *SQLiteStore) getAccount(ctx context.Context, column, value string) (*Account, error) {
	// column is one of two literals above, never caller input
	query := `
		SELECT id, username, password_hash, display_name, number, created_at
		FROM accounts
		WHERE ` + column + ` = ?
	`

	var a Account
	var createdAt string
	err := s.db.QueryRowContext(ctx, query, value).Scan(
		&a.ID, &a.Username, &a.PasswordHash, &a.DisplayName, &a.Number, &createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying account: %w", err)
	}
	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &a, nil
}

// NextSequenceValue atomically increments and returns the named counter.
// The first call for a name returns 1.
func (s *SQLiteStore) NextSequenceValue(ctx context.Context, name string) (int64, error) {
	query := `
		INSERT INTO sequences (name, value) VALUES (?, 1)
		ON CONFLICT (name) DO UPDATE SET value = sequences.value + 1
		RETURNING value
	`

	var value int64
	if err := s.db.QueryRowContext(ctx, query, name).Scan(&value); err != nil {
		return 0, fmt.Errorf("advancing sequence %q: %w", name, err)
	}
	return value, nil
}
