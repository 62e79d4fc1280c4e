// ABOUTME: Transcript persistence: append-only message log keyed by conversation
// ABOUTME: Enforces unique message IDs and returns history oldest-first

package store

import (
	"context"
	"fmt"
)

// AppendMessage persists a message. The unique index on message_id turns a
// second insert of the same ID into ErrDuplicateMessage instead of an overwrite.
func (s *SQLiteStore) AppendMessage(ctx context.Context, msg *Message) error {
	query := `
		INSERT INTO messages (message_id, conversation_id, sender, type, body, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		msg.ID,
		msg.ConversationID,
		string(msg.Sender),
		msg.Type,
		msg.Body,
		formatTime(msg.CreatedAt),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateMessage
		}
		return fmt.Errorf("inserting message: %w", err)
	}

	s.logger.Debug("appended message",
		"message_id", msg.ID,
		"conversation_id", msg.ConversationID,
		"sender", msg.Sender,
	)
	return nil
}

// ListMessages returns the full transcript of a conversation ordered by
// created_at, ties broken by insertion order. Unknown conversations yield an
// empty slice.
func (s *SQLiteStore) ListMessages(ctx context.Context, conversationID string) ([]*Message, error) {
	query := `
		SELECT message_id, conversation_id, sender, type, body, created_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at ASC, seq ASC
	`

	rows, err := s.db.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	messages := make([]*Message, 0)
	for rows.Next() {
		var msg Message
		var sender, createdAt string
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &sender, &msg.Type, &msg.Body, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		msg.Sender = Sender(sender)
		if msg.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating messages: %w", err)
	}

	return messages, nil
}
