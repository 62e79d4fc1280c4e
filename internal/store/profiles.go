// ABOUTME: Visitor profile storage (the IdentityStore)
// ABOUTME: Profiles are created lazily and updated field by field

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// GetProfile retrieves a visitor profile by conversation ID.
// Returns ErrNotFound if the visitor never saved one.
func (s *SQLiteStore) GetProfile(ctx context.Context, id string) (*Profile, error) {
	query := `
		SELECT id, name, phone_number, created_at, updated_at
		FROM profiles
		WHERE id = ?
	`

	var p Profile
	var name, phone sql.NullString
	var createdAt, updatedAt string

	err := s.db.QueryRowContext(ctx, query, id).Scan(&p.ID, &name, &phone, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying profile: %w", err)
	}

	if name.Valid {
		p.Name = &name.String
	}
	if phone.Valid {
		p.PhoneNumber = &phone.String
	}
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// UpsertProfile creates the profile if needed and applies the non-nil fields.
func (s *SQLiteStore) UpsertProfile(ctx context.Context, id string, fields ProfileFields) (*Profile, error) {
	now := formatTime(time.Now())
	query := `
		INSERT INTO profiles (id, name, phone_number, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name         = COALESCE(excluded.name, profiles.name),
			phone_number = COALESCE(excluded.phone_number, profiles.phone_number),
			updated_at   = excluded.updated_at
	`

	if _, err := s.db.ExecContext(ctx, query, id, fields.Name, fields.PhoneNumber, now, now); err != nil {
		return nil, fmt.Errorf("upserting profile: %w", err)
	}

	s.logger.Debug("upserted profile", "id", id)
	return s.GetProfile(ctx, id)
}

// EnsureProfile inserts an empty profile unless one already exists.
func (s *SQLiteStore) EnsureProfile(ctx context.Context, id string) error {
	now := formatTime(time.Now())
	query := `
		INSERT INTO profiles (id, created_at, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (id) DO NOTHING
	`

	if _, err := s.db.ExecContext(ctx, query, id, now, now); err != nil {
		return fmt.Errorf("ensuring profile: %w", err)
	}
	return nil
}
