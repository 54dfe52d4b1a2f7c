package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/tmc/langchaingo/llms"
)

// Multiply multiplies two numbers.
//
// Input is either a JSON object {"a": 6, "b": 7} or two numbers separated
// by "*", "x", a comma, or whitespace.
type Multiply struct{}

// Name returns the name of the tool.
func (Multiply) Name() string {
	return "multiply"
}

// Description returns the description of the tool.
func (Multiply) Description() string {
	return "Multiply two numbers a and b and return the product."
}

// Definition describes the two numeric arguments.
func (m Multiply) Definition() llms.Tool {
	return llms.Tool{
		Type: "function",
		Function: &llms.FunctionDefinition{
			Name:        m.Name(),
			Description: m.Description(),
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"a": map[string]any{"type": "number", "description": "first factor"},
					"b": map[string]any{"type": "number", "description": "second factor"},
				},
				"required": []string{"a", "b"},
			},
		},
	}
}

// Call parses the factors and returns the product.
func (Multiply) Call(ctx context.Context, input string) (string, error) {
	a, b, err := parseFactors(input)
	if err != nil {
		return "", err
	}
	return strconv.FormatFloat(a*b, 'f', -1, 64), nil
}

func parseFactors(input string) (float64, float64, error) {
	input = strings.TrimSpace(input)
	if strings.HasPrefix(input, "{") {
		var args struct {
			A *float64 `json:"a"`
			B *float64 `json:"b"`
		}
		if err := json.Unmarshal([]byte(input), &args); err != nil {
			return 0, 0, fmt.Errorf("invalid multiply arguments: %w", err)
		}
		if args.A == nil || args.B == nil {
			return 0, 0, fmt.Errorf("invalid multiply arguments: a and b are required")
		}
		return *args.A, *args.B, nil
	}

	fields := strings.FieldsFunc(input, func(r rune) bool {
		return r == '*' || r == 'x' || r == 'X' || r == '×' || r == ',' || r == ' ' || r == '\t'
	})
	if len(fields) != 2 {
		return 0, 0, fmt.Errorf("invalid multiply input %q: want two numbers", input)
	}
	a, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid number %q: %w", fields[0], err)
	}
	b, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid number %q: %w", fields[1], err)
	}
	return a, b, nil
}
