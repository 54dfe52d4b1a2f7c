package prebuilt

import (
	"context"
	"errors"
	"fmt"

	"github.com/smallnest/crewgraph/tool"
	"github.com/smallnest/crewgraph/transcript"
	"github.com/tmc/langchaingo/tools"
)

// ErrToolNotFound is returned when a model asks for a tool that is not
// registered.
var ErrToolNotFound = errors.New("tool not found")

// ToolInvocation is a single request to run a tool.
type ToolInvocation struct {
	Tool      string
	ToolInput string
}

// ToolExecutor runs tools by name.
type ToolExecutor struct {
	tools map[string]tools.Tool
	order []tools.Tool
}

// NewToolExecutor registers inputTools. A later tool with the same name
// replaces an earlier one.
func NewToolExecutor(inputTools []tools.Tool) *ToolExecutor {
	e := &ToolExecutor{tools: make(map[string]tools.Tool, len(inputTools))}
	for _, t := range inputTools {
		if _, dup := e.tools[t.Name()]; !dup {
			e.order = append(e.order, t)
		} else {
			for i, o := range e.order {
				if o.Name() == t.Name() {
					e.order[i] = t
				}
			}
		}
		e.tools[t.Name()] = t
	}
	return e
}

// Tools returns the registered tools in registration order.
func (e *ToolExecutor) Tools() []tools.Tool {
	return e.order
}

// Execute runs one invocation.
func (e *ToolExecutor) Execute(ctx context.Context, inv ToolInvocation) (string, error) {
	t, ok := e.tools[inv.Tool]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrToolNotFound, inv.Tool)
	}
	return t.Call(ctx, inv.ToolInput)
}

// ExecuteCalls runs every tool call of an AI message in order and returns
// one tool message per call. A failing call is reported to the model in the
// tool message instead of aborting; only context cancellation is returned.
func (e *ToolExecutor) ExecuteCalls(ctx context.Context, calls []transcript.ToolCall) ([]transcript.Message, error) {
	out := make([]transcript.Message, 0, len(calls))
	for _, call := range calls {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		result, err := e.Execute(ctx, ToolInvocation{
			Tool:      call.Name,
			ToolInput: tool.Input(call.Arguments),
		})
		if err != nil {
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			result = fmt.Sprintf("error: %v", err)
		}
		out = append(out, transcript.ToolResult(call.ID, call.Name, result))
	}
	return out, nil
}
