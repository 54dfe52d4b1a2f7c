package tool

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/tools"
)

// Definer is implemented by tools that describe their arguments with a JSON
// schema.
type Definer interface {
	Definition() llms.Tool
}

// Definitions returns function definitions for ts. Tools without a
// Definer get a single string argument named "input".
func Definitions(ts []tools.Tool) []llms.Tool {
	out := make([]llms.Tool, 0, len(ts))
	for _, t := range ts {
		if d, ok := t.(Definer); ok {
			out = append(out, d.Definition())
			continue
		}
		out = append(out, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"input": map[string]any{"type": "string", "description": "the input to the tool"},
					},
					"required": []string{"input"},
				},
			},
		})
	}
	return out
}

// Input extracts the tool input from model-supplied arguments. A JSON
// object with a single string field "input" yields that field; anything
// else is passed through unchanged.
func Input(arguments string) string {
	var args struct {
		Input *string `json:"input"`
	}
	trimmed := strings.TrimSpace(arguments)
	if strings.HasPrefix(trimmed, "{") && json.Unmarshal([]byte(trimmed), &args) == nil && args.Input != nil {
		return *args.Input
	}
	return arguments
}

// StatusError is returned when a search service answers with a non-200
// status.
type StatusError struct {
	Service    string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status: %d", e.Service, e.StatusCode)
}

// Temporary reports true for rate limiting and server errors.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}
