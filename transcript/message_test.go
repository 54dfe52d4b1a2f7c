package transcript

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

func TestParseRole(t *testing.T) {
	for in, want := range map[string]Role{
		"human":     RoleHuman,
		"user":      RoleHuman,
		"AI":        RoleAI,
		"assistant": RoleAI,
		"tool":      RoleTool,
		" system ":  RoleSystem,
	} {
		got, err := ParseRole(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := ParseRole("robot")
	assert.Error(t, err)
	assert.False(t, Role("robot").Valid())
	assert.True(t, RoleTool.Valid())
}

func TestTranscriptAppendDoesNotAlias(t *testing.T) {
	base := make(Transcript, 1, 8)
	base[0] = Human("topic X")

	a := base.Append(AI("one"))
	b := base.Append(AI("two"))

	assert.Len(t, base, 1)
	assert.Equal(t, "one", a[1].Content)
	assert.Equal(t, "two", b[1].Content)
}

func TestTranscriptLookups(t *testing.T) {
	var empty Transcript
	_, ok := empty.Last()
	assert.False(t, ok)
	_, ok = empty.First()
	assert.False(t, ok)

	tr := Transcript{Human("q"), AI("research findings: a"), AI("draft"), AI("research findings: b")}
	last, ok := tr.Last()
	require.True(t, ok)
	assert.Equal(t, "research findings: b", last.Content)

	found, ok := tr.FindLast(func(m Message) bool { return m.Content == "draft" })
	require.True(t, ok)
	assert.Equal(t, "draft", found.Content)

	_, ok = tr.FindLast(func(m Message) bool { return m.Role == RoleTool })
	assert.False(t, ok)

	assert.Len(t, tr.Window(2), 2)
	assert.Equal(t, "draft", tr.Window(2)[0].Content)
	assert.Len(t, tr.Window(0), 4)
	assert.Len(t, tr.Window(10), 4)
}

func TestCloneCopiesToolCalls(t *testing.T) {
	m := AI("")
	m.ToolCalls = []ToolCall{{ID: "1", Name: "multiply", Arguments: `{"input":"2,3"}`}}

	tr := Transcript{m}
	cp := tr.Clone()
	cp[0].ToolCalls[0].Name = "changed"

	assert.Equal(t, "multiply", tr[0].ToolCalls[0].Name)
	assert.Nil(t, Transcript(nil).Clone())
}

func TestLangchainConversion(t *testing.T) {
	ai := AI("let me check")
	ai.ToolCalls = []ToolCall{{ID: "call_1", Name: "multiply", Arguments: `{"input":"6,7"}`}}

	tr := Transcript{
		System("be brief"),
		Human("what is 6*7?"),
		ai,
		ToolResult("call_1", "multiply", "42"),
	}

	contents := ToMessageContents(tr)
	require.Len(t, contents, 4)
	assert.Equal(t, llms.ChatMessageTypeSystem, contents[0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, contents[1].Role)
	assert.Equal(t, llms.ChatMessageTypeAI, contents[2].Role)
	require.Len(t, contents[2].Parts, 2)
	call, ok := contents[2].Parts[1].(llms.ToolCall)
	require.True(t, ok)
	assert.Equal(t, "multiply", call.FunctionCall.Name)

	resp, ok := contents[3].Parts[0].(llms.ToolCallResponse)
	require.True(t, ok)
	assert.Equal(t, "call_1", resp.ToolCallID)
	assert.Equal(t, "42", resp.Content)

	back := FromMessageContent(contents[2])
	assert.Equal(t, RoleAI, back.Role)
	assert.Equal(t, "let me check", back.Content)
	assert.Equal(t, ai.ToolCalls, back.ToolCalls)

	tool := FromMessageContent(contents[3])
	assert.Equal(t, RoleTool, tool.Role)
	assert.Equal(t, "call_1", tool.ToolCallID)
	assert.Equal(t, "multiply", tool.Name)
}

func TestFromChoice(t *testing.T) {
	msg := FromChoice(&llms.ContentChoice{
		Content: "",
		ToolCalls: []llms.ToolCall{{
			ID:           "c1",
			FunctionCall: &llms.FunctionCall{Name: "search", Arguments: `{"input":"go"}`},
		}},
	})
	assert.Equal(t, RoleAI, msg.Role)
	assert.True(t, msg.HasToolCalls())
	assert.Equal(t, "search", msg.ToolCalls[0].Name)
	assert.False(t, msg.Timestamp.IsZero())

	plain := FromChoice(&llms.ContentChoice{Content: "hello"})
	assert.False(t, plain.HasToolCalls())
	assert.Equal(t, "hello", plain.Content)
}
