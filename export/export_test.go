package export

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/smallnest/crewgraph/store"
	"github.com/smallnest/crewgraph/transcript"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func testRecord() *store.SessionRecord {
	created := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	rec := store.NewRecord("user_123", created)

	call := transcript.AI("")
	call.ToolCalls = []transcript.ToolCall{{ID: "c1", Name: "multiply", Arguments: `{"a":6,"b":7}`}}

	for i, m := range []transcript.Message{
		transcript.Human("what is 6 times 7?"),
		call,
		transcript.ToolResult("c1", "multiply", "42"),
		transcript.AI("It is **42**.\n\n```go\nx := 6 * 7 // **\n```"),
	} {
		rec.Append(m, created.Add(time.Duration(i+1)*time.Second))
	}
	return rec
}

func TestNewExporter(t *testing.T) {
	for format, ext := range map[string]string{
		"json": "json", "yaml": "yaml", "yml": "yaml", "md": "md", "markdown": "md", "html": "html",
	} {
		e, err := NewExporter(format)
		require.NoError(t, err, format)
		assert.Equal(t, ext, e.Extension())
	}

	_, err := NewExporter("pdf")
	assert.ErrorContains(t, err, "unsupported format: pdf")
}

func TestJSONExporter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&JSONExporter{}).Export(testRecord(), &buf))

	var got struct {
		ID           string `json:"session_id"`
		MessageCount int    `json:"message_count"`
		Messages     []struct {
			Role       string `json:"role"`
			Content    string `json:"content"`
			ToolCallID string `json:"tool_call_id"`
			ToolCalls  []struct {
				Name string `json:"name"`
			} `json:"tool_calls"`
		} `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "user_123", got.ID)
	assert.Equal(t, 4, got.MessageCount)
	require.Len(t, got.Messages, 4)
	assert.Equal(t, "human", got.Messages[0].Role)
	assert.Equal(t, "multiply", got.Messages[1].ToolCalls[0].Name)
	assert.Equal(t, "c1", got.Messages[2].ToolCallID)
}

func TestYAMLExporter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&YAMLExporter{}).Export(testRecord(), &buf))

	var got map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "user_123", got["session_id"])
	assert.Equal(t, 4, got["message_count"])
	msgs, ok := got["messages"].([]any)
	require.True(t, ok)
	assert.Len(t, msgs, 4)
	assert.Contains(t, buf.String(), "tool_call_id: c1")
}

func TestMarkdownExporter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&MarkdownExporter{}).Export(testRecord(), &buf))
	out := buf.String()

	assert.True(t, strings.HasPrefix(out, "# Session user_123\n"))
	assert.Contains(t, out, "**Messages:** 4")
	assert.Contains(t, out, "**Human** (2025-03-01T09:00:01Z)")
	assert.Contains(t, out, "> calls `multiply` with `{\"a\":6,\"b\":7}`")
	assert.Contains(t, out, "**Tool multiply**")
	assert.Contains(t, out, `It is \*\*42\*\*.`)
	// code blocks are left alone
	assert.Contains(t, out, "x := 6 * 7 // **")
}

func TestMarkdownExporter_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&MarkdownExporter{}).Export(store.NewRecord("empty", time.Time{}), &buf))
	assert.Contains(t, buf.String(), "**Created:** -")
	assert.Contains(t, buf.String(), "**Messages:** 0")
}

func TestHTMLExporter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&HTMLExporter{}).Export(testRecord(), &buf))
	out := buf.String()

	assert.Contains(t, out, "<title>Session user_123</title>")
	assert.Contains(t, out, "<h1")
	assert.Contains(t, out, "<strong>Human</strong>")
	assert.Contains(t, out, "<code")
}

func TestRenderMarkdown_Sanitizes(t *testing.T) {
	out := RenderMarkdown("# Title\n\n<script>alert(1)</script>\n\n[link](javascript:alert(1)) and [ok](https://example.com)")
	assert.Contains(t, out, "Title</h1>")
	assert.NotContains(t, out, "<script>")
	assert.NotContains(t, out, "javascript:")
	assert.Contains(t, out, `href="https://example.com"`)
}

func TestPage_EscapesTitle(t *testing.T) {
	out := Page("<b>x</b>", "body")
	assert.Contains(t, out, "<title>&lt;b&gt;x&lt;/b&gt;</title>")
}
