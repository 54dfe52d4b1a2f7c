package rag

import (
	"context"
	"sort"
	"strings"
	"unicode"

	"github.com/smallnest/crewgraph/adapter"
	"github.com/tmc/langchaingo/textsplitter"
)

// KeywordRetriever ranks chunks by how often the query terms occur in them.
// Chunks without any query term are never returned.
type KeywordRetriever struct {
	chunks []string
	terms  [][]string
}

var _ adapter.Retriever = (*KeywordRetriever)(nil)

// NewKeywordRetriever indexes chunks as given.
func NewKeywordRetriever(chunks []string) *KeywordRetriever {
	r := &KeywordRetriever{chunks: chunks, terms: make([][]string, len(chunks))}
	for i, c := range chunks {
		r.terms[i] = tokenize(c)
	}
	return r
}

// NewKeywordRetrieverFromText splits text and indexes the chunks. A nil
// splitter means NewManualSplitter.
func NewKeywordRetrieverFromText(text string, splitter textsplitter.TextSplitter) (*KeywordRetriever, error) {
	if splitter == nil {
		splitter = NewManualSplitter()
	}
	chunks, err := splitter.SplitText(text)
	if err != nil {
		return nil, err
	}
	return NewKeywordRetriever(chunks), nil
}

// Len returns the number of indexed chunks.
func (r *KeywordRetriever) Len() int {
	return len(r.chunks)
}

// Retrieve returns up to k chunks, best first. Ties keep document order.
func (r *KeywordRetriever) Retrieve(ctx context.Context, query string, k int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 {
		return []string{}, nil
	}

	queryTerms := make(map[string]struct{})
	for _, t := range tokenize(query) {
		queryTerms[t] = struct{}{}
	}

	type hit struct {
		index int
		score int
	}
	var hits []hit
	for i, terms := range r.terms {
		score := 0
		for _, t := range terms {
			if _, ok := queryTerms[t]; ok {
				score++
			}
		}
		if score > 0 {
			hits = append(hits, hit{index: i, score: score})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })

	if k > len(hits) {
		k = len(hits)
	}
	out := make([]string, 0, k)
	for _, h := range hits[:k] {
		out = append(out, r.chunks[h.index])
	}
	return out, nil
}

// tokenize lowercases text and splits it into letter/digit runs. CJK text
// has no spaces, so every Han character is its own term.
func tokenize(text string) []string {
	var terms []string
	var b strings.Builder
	flush := func() {
		if b.Len() > 0 {
			terms = append(terms, b.String())
			b.Reset()
		}
	}
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.Is(unicode.Han, r):
			flush()
			terms = append(terms, string(r))
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			flush()
		}
	}
	flush()
	return terms
}
