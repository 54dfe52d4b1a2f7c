package rag

import (
	"context"
	"fmt"
	"os"

	"github.com/tmc/langchaingo/documentloaders"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/textsplitter"
)

const (
	// ManualChunkSize is the chunk size used for reference manuals.
	ManualChunkSize = 100
	// ManualChunkOverlap is the overlap between neighbouring chunks.
	ManualChunkOverlap = 20
)

// NewManualSplitter returns the recursive character splitter used for
// reference manuals.
func NewManualSplitter() textsplitter.TextSplitter {
	return textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(ManualChunkSize),
		textsplitter.WithChunkOverlap(ManualChunkOverlap),
	)
}

// LoadFile reads a text file and splits it into documents. A nil splitter
// means NewManualSplitter. Every document carries the file path under the
// "source" metadata key.
func LoadFile(ctx context.Context, path string, splitter textsplitter.TextSplitter) ([]schema.Document, error) {
	if splitter == nil {
		splitter = NewManualSplitter()
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	docs, err := documentloaders.NewText(f).LoadAndSplit(ctx, splitter)
	if err != nil {
		return nil, fmt.Errorf("failed to split %s: %w", path, err)
	}
	for i := range docs {
		if docs[i].Metadata == nil {
			docs[i].Metadata = map[string]any{}
		}
		docs[i].Metadata["source"] = path
	}
	return docs, nil
}

// Contents returns the page content of docs.
func Contents(docs []schema.Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.PageContent
	}
	return out
}
