package main

import (
	"context"
	"fmt"

	"github.com/smallnest/crewgraph/adapter"
	"github.com/smallnest/crewgraph/rag"
	"github.com/tmc/langchaingo/embeddings"
)

// loadManual indexes a text file for retrieval. With embed set the chunks
// are embedded with the configured embedding model, otherwise they are
// matched by keywords.
func (a *app) loadManual(ctx context.Context, path string, embed bool) (adapter.Retriever, error) {
	docs, err := rag.LoadFile(ctx, path, rag.NewManualSplitter())
	if err != nil {
		return nil, err
	}
	a.logger.Info("loaded %d chunk(s) from %s", len(docs), path)

	if !embed {
		return rag.NewKeywordRetriever(rag.Contents(docs)), nil
	}

	llm, err := a.model()
	if err != nil {
		return nil, err
	}
	embedder, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	vs := rag.NewMemoryVectorStore(embedder)
	if _, err := vs.AddDocuments(ctx, docs); err != nil {
		return nil, fmt.Errorf("failed to embed %s: %w", path, err)
	}
	return rag.NewVectorStoreRetriever(vs), nil
}
