// Package export writes session records as JSON, YAML, Markdown or HTML.
package export

import (
	"fmt"
	"io"
	"time"

	"github.com/smallnest/crewgraph/store"
	"github.com/smallnest/crewgraph/transcript"
)

// Exporter writes a session record in one format.
type Exporter interface {
	Export(rec *store.SessionRecord, w io.Writer) error
	Extension() string
}

// NewExporter returns the exporter for format.
func NewExporter(format string) (Exporter, error) {
	switch format {
	case "json":
		return &JSONExporter{}, nil
	case "yaml", "yml":
		return &YAMLExporter{}, nil
	case "md", "markdown":
		return &MarkdownExporter{}, nil
	case "html":
		return &HTMLExporter{}, nil
	default:
		return nil, fmt.Errorf("unsupported format: %s (supported: json, yaml, md, html)", format)
	}
}

// session is the exported shape, shared by the JSON and YAML exporters.
type session struct {
	ID           string    `json:"session_id" yaml:"session_id"`
	CreatedAt    time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" yaml:"updated_at"`
	MessageCount int       `json:"message_count" yaml:"message_count"`
	Messages     []message `json:"messages" yaml:"messages"`
}

type message struct {
	ID         string     `json:"id,omitempty" yaml:"id,omitempty"`
	Role       string     `json:"role" yaml:"role"`
	Content    string     `json:"content" yaml:"content"`
	Timestamp  time.Time  `json:"timestamp" yaml:"timestamp"`
	Name       string     `json:"name,omitempty" yaml:"name,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty" yaml:"tool_call_id,omitempty"`
	ToolCalls  []toolCall `json:"tool_calls,omitempty" yaml:"tool_calls,omitempty"`
}

type toolCall struct {
	ID        string `json:"id" yaml:"id"`
	Name      string `json:"name" yaml:"name"`
	Arguments string `json:"arguments" yaml:"arguments"`
}

func toSession(rec *store.SessionRecord) session {
	s := session{
		ID:           rec.ID,
		CreatedAt:    rec.CreatedAt,
		UpdatedAt:    rec.UpdatedAt,
		MessageCount: rec.MessageCount,
		Messages:     make([]message, 0, len(rec.Messages)),
	}
	for _, m := range rec.Messages {
		s.Messages = append(s.Messages, toMessage(m))
	}
	return s
}

func toMessage(m transcript.Message) message {
	out := message{
		ID:         m.ID,
		Role:       string(m.Role),
		Content:    m.Content,
		Timestamp:  m.Timestamp,
		Name:       m.Name,
		ToolCallID: m.ToolCallID,
	}
	for _, c := range m.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, toolCall{ID: c.ID, Name: c.Name, Arguments: c.Arguments})
	}
	return out
}
