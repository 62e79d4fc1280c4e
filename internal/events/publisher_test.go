// ABOUTME: Tests for envelopes and the in-memory/no-op publishers
// ABOUTME: The AMQP publisher needs a broker and is exercised in deployment only

package events

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEnvelope(t *testing.T) {
	a := NewEnvelope(TypeMessageCreated, MessageCreatedV1{MessageID: "m1"})
	b := NewEnvelope(TypeMessageCreated, MessageCreatedV1{MessageID: "m2"})

	assert.NotEmpty(t, a.Meta.ID)
	assert.NotEqual(t, a.Meta.ID, b.Meta.ID)
	assert.Equal(t, Producer, a.Meta.Producer)
	assert.False(t, a.Meta.Time.IsZero())

	raw, err := json.Marshal(a)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	meta := decoded["meta"].(map[string]any)
	assert.Equal(t, TypeMessageCreated, meta["type"])
	data := decoded["data"].(map[string]any)
	assert.Equal(t, "m1", data["message_id"])
	assert.NotContains(t, data, "admin_id")
}

func TestMemory_RecordsByType(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.Publish(ctx, TypeMessageCreated, MessageCreatedV1{MessageID: "m1"}))
	require.NoError(t, m.Publish(ctx, TypeConversationAssigned, ConversationAssignedV1{AdminID: "a"}))

	assert.Len(t, m.Published(TypeMessageCreated), 1)
	assert.Len(t, m.Published(TypeConversationAssigned), 1)
	assert.Empty(t, m.Published("other"))
}

func TestPublishBestEffort_SwallowsErrors(t *testing.T) {
	m := NewMemory()
	m.Err = errors.New("broker down")

	assert.NotPanics(t, func() {
		PublishBestEffort(context.Background(), m, slog.Default(), TypeMessageCreated, nil)
		PublishBestEffort(context.Background(), nil, slog.Default(), TypeMessageCreated, nil)
		PublishBestEffort(context.Background(), Noop{}, slog.Default(), TypeMessageCreated, nil)
	})
	assert.Empty(t, m.Published(TypeMessageCreated))
}

func TestPublishBestEffort_IgnoresCallerCancellation(t *testing.T) {
	m := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	PublishBestEffort(ctx, m, slog.Default(), TypeMessageCreated, MessageCreatedV1{MessageID: "m1"})
	assert.Len(t, m.Published(TypeMessageCreated), 1)
}
