package transcript

import (
	"fmt"
	"strings"
	"time"
)

// Role tags the author of a message.
type Role string

const (
	RoleHuman  Role = "human"
	RoleAI     Role = "ai"
	RoleTool   Role = "tool"
	RoleSystem Role = "system"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleHuman, RoleAI, RoleTool, RoleSystem:
		return true
	}
	return false
}

// ParseRole parses a role name. "user" and "assistant" are accepted as
// aliases for human and ai.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "human", "user":
		return RoleHuman, nil
	case "ai", "assistant":
		return RoleAI, nil
	case "tool":
		return RoleTool, nil
	case "system":
		return RoleSystem, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// ToolCall is a tool invocation requested by a model.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Message is one utterance in a transcript.
type Message struct {
	ID        string    `json:"id,omitempty"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`

	// ToolCalls is set on AI messages that request tool execution.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	// ToolCallID is set on tool result messages.
	ToolCallID string `json:"tool_call_id,omitempty"`
	// Name is the tool on tool results, or the stage that produced an AI
	// message.
	Name string `json:"name,omitempty"`
}

// NewMessage builds a message stamped with the current time.
func NewMessage(role Role, content string) Message {
	return Message{Role: role, Content: content, Timestamp: time.Now().UTC()}
}

// Human returns a human message.
func Human(content string) Message { return NewMessage(RoleHuman, content) }

// AI returns an AI message.
func AI(content string) Message { return NewMessage(RoleAI, content) }

// System returns a system message.
func System(content string) Message { return NewMessage(RoleSystem, content) }

// ToolResult returns a tool message answering the call with the given id.
func ToolResult(callID, name, content string) Message {
	m := NewMessage(RoleTool, content)
	m.ToolCallID = callID
	m.Name = name
	return m
}

// HasToolCalls reports whether the message requests any tool execution.
func (m Message) HasToolCalls() bool {
	return len(m.ToolCalls) > 0
}

// Clone returns a copy that shares no slices with m.
func (m Message) Clone() Message {
	if m.ToolCalls != nil {
		calls := make([]ToolCall, len(m.ToolCalls))
		copy(calls, m.ToolCalls)
		m.ToolCalls = calls
	}
	return m
}

// Transcript is an ordered list of messages.
type Transcript []Message

// Append returns a new transcript with msgs added. The receiver is never
// modified and the result never aliases its backing array.
func (t Transcript) Append(msgs ...Message) Transcript {
	out := make(Transcript, 0, len(t)+len(msgs))
	out = append(out, t...)
	return append(out, msgs...)
}

// Last returns the final message, if any.
func (t Transcript) Last() (Message, bool) {
	if len(t) == 0 {
		return Message{}, false
	}
	return t[len(t)-1], true
}

// First returns the first message, if any.
func (t Transcript) First() (Message, bool) {
	if len(t) == 0 {
		return Message{}, false
	}
	return t[0], true
}

// FindLast scans backward and returns the most recent message matching fn.
func (t Transcript) FindLast(fn func(Message) bool) (Message, bool) {
	for i := len(t) - 1; i >= 0; i-- {
		if fn(t[i]) {
			return t[i], true
		}
	}
	return Message{}, false
}

// Window returns the last n messages. n <= 0 returns the whole transcript.
func (t Transcript) Window(n int) Transcript {
	if n <= 0 || n >= len(t) {
		return t
	}
	return t[len(t)-n:]
}

// Clone deep-copies the transcript.
func (t Transcript) Clone() Transcript {
	if t == nil {
		return nil
	}
	out := make(Transcript, len(t))
	for i, m := range t {
		out[i] = m.Clone()
	}
	return out
}
