package adapter

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/smallnest/crewgraph/transcript"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/tools"
)

// ModelCompleter adapts a langchaingo model to Completer.
type ModelCompleter struct {
	model   llms.Model
	options []llms.CallOption
}

var _ Completer = (*ModelCompleter)(nil)

// NewModelCompleter wraps model. The default options are applied before
// the per-call options.
func NewModelCompleter(model llms.Model, options ...llms.CallOption) *ModelCompleter {
	return &ModelCompleter{model: model, options: options}
}

// Complete sends msgs to the model and converts the first choice into an
// AI message.
func (c *ModelCompleter) Complete(ctx context.Context, msgs []transcript.Message, options ...llms.CallOption) (transcript.Message, error) {
	opts := append(append([]llms.CallOption{}, c.options...), options...)
	resp, err := c.model.GenerateContent(ctx, transcript.ToMessageContents(msgs), opts...)
	if err != nil {
		return transcript.Message{}, Wrap(CapabilityCompletion, err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return transcript.Message{}, &CapabilityError{Capability: CapabilityCompletion, Err: ErrEmptyCompletion}
	}
	return transcript.FromChoice(resp.Choices[0]), nil
}

// ToolSearcher adapts a langchaingo tool to Searcher.
type ToolSearcher struct {
	tool tools.Tool
}

var _ Searcher = (*ToolSearcher)(nil)

// NewToolSearcher wraps a search tool.
func NewToolSearcher(tool tools.Tool) *ToolSearcher {
	return &ToolSearcher{tool: tool}
}

// Search calls the tool with the query as input.
func (s *ToolSearcher) Search(ctx context.Context, query string) (string, error) {
	if strings.TrimSpace(query) == "" {
		return "", &CapabilityError{Capability: CapabilitySearch, Err: errors.New("empty query")}
	}
	out, err := s.tool.Call(ctx, query)
	if err != nil {
		return "", Wrap(CapabilitySearch, fmt.Errorf("%s: %w", s.tool.Name(), err))
	}
	return out, nil
}
