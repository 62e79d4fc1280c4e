// ABOUTME: Tests for HTML transcript export
// ABOUTME: Markdown conversion, HTML escaping, profile header and empty transcripts

package transcript

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/support-gateway/internal/store"
)

func TestBody_RendersMarkdown(t *testing.T) {
	r := NewRenderer()

	html, err := r.Body("**order** #123 ~~cancelled~~")
	require.NoError(t, err)
	assert.Contains(t, string(html), "<strong>order</strong>")
	assert.Contains(t, string(html), "<del>cancelled</del>")
}

func TestBody_DropsRawHTML(t *testing.T) {
	r := NewRenderer()

	html, err := r.Body(`<script>alert("x")</script>`)
	require.NoError(t, err)
	assert.NotContains(t, string(html), "<script>")
}

func TestRender_Page(t *testing.T) {
	r := NewRenderer()
	r.now = func() time.Time { return time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC) }

	name := "Ada"
	profile := &store.Profile{ID: "c1", Name: &name}
	messages := []*store.Message{
		{ID: "m1", ConversationID: "c1", Sender: store.SenderClient, Type: "text", Body: "hello", CreatedAt: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)},
		{ID: "m2", ConversationID: "c1", Sender: store.SenderAdmin, Type: "text", Body: "hi *back*", CreatedAt: time.Date(2026, 5, 1, 9, 1, 0, 0, time.UTC)},
	}

	var buf bytes.Buffer
	require.NoError(t, r.Render(&buf, "c1", profile, messages))
	out := buf.String()

	assert.Contains(t, out, "Conversation c1")
	assert.Contains(t, out, "Ada")
	assert.Contains(t, out, "2 messages")
	assert.Contains(t, out, `class="msg client"`)
	assert.Contains(t, out, `class="msg admin"`)
	assert.Contains(t, out, "<em>back</em>")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("hello")), bytes.Index(buf.Bytes(), []byte("back")))
}

func TestRender_EmptyWithoutProfile(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewRenderer().Render(&buf, "c9", nil, nil))
	assert.Contains(t, buf.String(), "No messages yet.")
}
