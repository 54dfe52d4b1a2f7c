package transcript

import (
	"strings"

	"github.com/tmc/langchaingo/llms"
)

// ToMessageContent converts a message to langchaingo's representation.
func ToMessageContent(m Message) llms.MessageContent {
	switch m.Role {
	case RoleTool:
		return llms.MessageContent{
			Role: llms.ChatMessageTypeTool,
			Parts: []llms.ContentPart{
				llms.ToolCallResponse{
					ToolCallID: m.ToolCallID,
					Name:       m.Name,
					Content:    m.Content,
				},
			},
		}
	case RoleAI:
		mc := llms.MessageContent{Role: llms.ChatMessageTypeAI}
		if m.Content != "" {
			mc.Parts = append(mc.Parts, llms.TextPart(m.Content))
		}
		for _, tc := range m.ToolCalls {
			mc.Parts = append(mc.Parts, llms.ToolCall{
				ID:   tc.ID,
				Type: "function",
				FunctionCall: &llms.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		return mc
	case RoleSystem:
		return llms.TextParts(llms.ChatMessageTypeSystem, m.Content)
	default:
		return llms.TextParts(llms.ChatMessageTypeHuman, m.Content)
	}
}

// ToMessageContents converts a transcript in order.
func ToMessageContents(t Transcript) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(t))
	for _, m := range t {
		out = append(out, ToMessageContent(m))
	}
	return out
}

// FromMessageContent converts a langchaingo message. Text parts are joined
// with newlines; image and binary parts are dropped.
func FromMessageContent(mc llms.MessageContent) Message {
	var m Message
	switch mc.Role {
	case llms.ChatMessageTypeAI:
		m.Role = RoleAI
	case llms.ChatMessageTypeTool, llms.ChatMessageTypeFunction:
		m.Role = RoleTool
	case llms.ChatMessageTypeSystem:
		m.Role = RoleSystem
	default:
		m.Role = RoleHuman
	}

	var texts []string
	for _, part := range mc.Parts {
		switch p := part.(type) {
		case llms.TextContent:
			texts = append(texts, p.Text)
		case llms.ToolCall:
			tc := ToolCall{ID: p.ID}
			if p.FunctionCall != nil {
				tc.Name = p.FunctionCall.Name
				tc.Arguments = p.FunctionCall.Arguments
			}
			m.ToolCalls = append(m.ToolCalls, tc)
		case llms.ToolCallResponse:
			m.ToolCallID = p.ToolCallID
			m.Name = p.Name
			texts = append(texts, p.Content)
		}
	}
	m.Content = strings.Join(texts, "\n")
	return m
}

// FromChoice converts a model completion choice into an AI message.
func FromChoice(choice *llms.ContentChoice) Message {
	m := AI(choice.Content)
	for _, tc := range choice.ToolCalls {
		call := ToolCall{ID: tc.ID}
		if tc.FunctionCall != nil {
			call.Name = tc.FunctionCall.Name
			call.Arguments = tc.FunctionCall.Arguments
		}
		m.ToolCalls = append(m.ToolCalls, call)
	}
	if len(m.ToolCalls) == 0 && choice.FuncCall != nil {
		m.ToolCalls = append(m.ToolCalls, ToolCall{
			Name:      choice.FuncCall.Name,
			Arguments: choice.FuncCall.Arguments,
		})
	}
	return m
}
