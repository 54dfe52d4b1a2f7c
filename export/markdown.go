package export

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/smallnest/crewgraph/store"
	"github.com/smallnest/crewgraph/transcript"
)

// MarkdownExporter writes a readable Markdown transcript.
type MarkdownExporter struct{}

// Export writes rec as Markdown.
func (e *MarkdownExporter) Export(rec *store.SessionRecord, w io.Writer) error {
	_, err := io.WriteString(w, Markdown(rec))
	return err
}

// Extension returns "md".
func (e *MarkdownExporter) Extension() string {
	return "md"
}

// Markdown renders rec as a Markdown document.
func Markdown(rec *store.SessionRecord) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Session %s\n\n", rec.ID)
	fmt.Fprintf(&b, "**Created:** %s  \n", formatTime(rec.CreatedAt))
	fmt.Fprintf(&b, "**Updated:** %s  \n", formatTime(rec.UpdatedAt))
	fmt.Fprintf(&b, "**Messages:** %d\n\n", len(rec.Messages))
	b.WriteString("---\n\n")

	for i, msg := range rec.Messages {
		fmt.Fprintf(&b, "**%s** (%s)\n\n", speaker(msg), formatTime(msg.Timestamp))
		if msg.Content != "" {
			b.WriteString(escapeMarkdown(msg.Content))
			b.WriteString("\n\n")
		}
		for _, call := range msg.ToolCalls {
			fmt.Fprintf(&b, "> calls `%s` with `%s`\n\n", call.Name, call.Arguments)
		}
		if i < len(rec.Messages)-1 {
			b.WriteString("---\n\n")
		}
	}
	return b.String()
}

func speaker(msg transcript.Message) string {
	switch msg.Role {
	case transcript.RoleHuman:
		return "Human"
	case transcript.RoleAI:
		if msg.Name != "" {
			return "AI (" + msg.Name + ")"
		}
		return "AI"
	case transcript.RoleSystem:
		return "System"
	case transcript.RoleTool:
		if msg.Name != "" {
			return "Tool " + msg.Name
		}
		return "Tool"
	}
	return string(msg.Role)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

// escapeMarkdown escapes bold markers outside code blocks so message text
// cannot break the speaker labels.
func escapeMarkdown(text string) string {
	lines := strings.Split(text, "\n")
	inCodeBlock := false
	for i, line := range lines {
		if strings.HasPrefix(line, "```") {
			inCodeBlock = !inCodeBlock
			continue
		}
		if inCodeBlock {
			continue
		}
		line = strings.ReplaceAll(line, "**", "\\*\\*")
		lines[i] = strings.ReplaceAll(line, "__", "\\_\\_")
	}
	return strings.Join(lines, "\n")
}
