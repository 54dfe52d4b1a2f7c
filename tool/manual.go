package tool

import (
	"context"
	"strings"

	"github.com/smallnest/crewgraph/adapter"
)

// NoManualContent is returned when the manual has nothing relevant.
const NoManualContent = "No relevant content found in the company manual."

// Manual answers questions from a company manual through a retriever.
type Manual struct {
	retriever adapter.Retriever
	k         int
}

// NewManual creates the lookup tool returning up to k snippets (default 3).
func NewManual(r adapter.Retriever, k int) *Manual {
	if k <= 0 {
		k = 3
	}
	return &Manual{retriever: r, k: k}
}

// Name returns the name of the tool.
func (m *Manual) Name() string {
	return "company_manual"
}

// Description returns the description of the tool.
func (m *Manual) Description() string {
	return "Look up the company manual for policies and procedures. Input should be a question or keywords."
}

// Call returns the matching snippets separated by blank lines.
func (m *Manual) Call(ctx context.Context, input string) (string, error) {
	snippets, err := m.retriever.Retrieve(ctx, input, m.k)
	if err != nil {
		return "", err
	}
	if len(snippets) == 0 {
		return NoManualContent, nil
	}
	return strings.Join(snippets, "\n\n"), nil
}
