package adapter

import (
	"context"

	"github.com/smallnest/crewgraph/transcript"
	"github.com/tmc/langchaingo/llms"
)

// Completer produces the next message of a conversation.
type Completer interface {
	Complete(ctx context.Context, msgs []transcript.Message, options ...llms.CallOption) (transcript.Message, error)
}

// Searcher runs a web search and returns a textual summary of the results.
type Searcher interface {
	Search(ctx context.Context, query string) (string, error)
}

// Retriever returns up to k snippets relevant to query. An empty result is
// valid.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]string, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, msgs []transcript.Message, options ...llms.CallOption) (transcript.Message, error)

// Complete calls f.
func (f CompleterFunc) Complete(ctx context.Context, msgs []transcript.Message, options ...llms.CallOption) (transcript.Message, error) {
	return f(ctx, msgs, options...)
}

// SearcherFunc adapts a function to Searcher.
type SearcherFunc func(ctx context.Context, query string) (string, error)

// Search calls f.
func (f SearcherFunc) Search(ctx context.Context, query string) (string, error) {
	return f(ctx, query)
}

// RetrieverFunc adapts a function to Retriever.
type RetrieverFunc func(ctx context.Context, query string, k int) ([]string, error)

// Retrieve calls f.
func (f RetrieverFunc) Retrieve(ctx context.Context, query string, k int) ([]string, error) {
	return f(ctx, query, k)
}
