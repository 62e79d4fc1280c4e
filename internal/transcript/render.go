// ABOUTME: Renders a conversation transcript as a standalone HTML page
// ABOUTME: Message bodies are Markdown converted with goldmark; raw HTML in bodies is escaped

package transcript

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/2389/support-gateway/internal/store"
)

//go:embed templates/transcript.html
var templateFS embed.FS

var page = template.Must(template.New("transcript.html").Funcs(template.FuncMap{
	"deref": func(s *string) string {
		if s == nil {
			return ""
		}
		return *s
	},
}).ParseFS(templateFS, "templates/transcript.html"))

// Renderer converts transcripts to HTML.
type Renderer struct {
	md  goldmark.Markdown
	now func() time.Time
}

// NewRenderer creates a renderer. goldmark's default renderer leaves raw
// HTML out of the output, so visitor-typed markup can't inject script.
func NewRenderer() *Renderer {
	return &Renderer{
		md: goldmark.New(
			goldmark.WithExtensions(extension.Linkify, extension.Strikethrough),
		),
		now: time.Now,
	}
}

type renderedMessage struct {
	Sender    store.Sender
	CreatedAt time.Time
	HTML      template.HTML
}

type pageData struct {
	ConversationID string
	Profile        *store.Profile
	Messages       []renderedMessage
	ExportedAt     time.Time
}

// Body converts one message body to HTML.
func (r *Renderer) Body(markdown string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(markdown), &buf); err != nil {
		return "", fmt.Errorf("converting markdown: %w", err)
	}
	return template.HTML(buf.String()), nil
}

// Render writes the HTML page for a conversation. profile may be nil.
func (r *Renderer) Render(w io.Writer, conversationID string, profile *store.Profile, messages []*store.Message) error {
	data := pageData{
		ConversationID: conversationID,
		Profile:        profile,
		Messages:       make([]renderedMessage, 0, len(messages)),
		ExportedAt:     r.now().UTC(),
	}
	for _, m := range messages {
		body, err := r.Body(m.Body)
		if err != nil {
			return fmt.Errorf("rendering message %s: %w", m.ID, err)
		}
		data.Messages = append(data.Messages, renderedMessage{
			Sender:    m.Sender,
			CreatedAt: m.CreatedAt,
			HTML:      body,
		})
	}

	if err := page.Execute(w, data); err != nil {
		return fmt.Errorf("executing transcript template: %w", err)
	}
	return nil
}
