package rag

import (
	"context"

	"github.com/smallnest/crewgraph/adapter"
	"github.com/tmc/langchaingo/vectorstores"
)

// VectorStoreRetriever adapts a langchaingo vector store to
// adapter.Retriever.
type VectorStoreRetriever struct {
	store   vectorstores.VectorStore
	options []vectorstores.Option
}

var _ adapter.Retriever = (*VectorStoreRetriever)(nil)

// NewVectorStoreRetriever wraps store. The options are passed to every
// similarity search.
func NewVectorStoreRetriever(store vectorstores.VectorStore, options ...vectorstores.Option) *VectorStoreRetriever {
	return &VectorStoreRetriever{store: store, options: options}
}

// Retrieve returns the page content of the k nearest documents.
func (r *VectorStoreRetriever) Retrieve(ctx context.Context, query string, k int) ([]string, error) {
	if k <= 0 {
		return []string{}, nil
	}
	docs, err := r.store.SimilaritySearch(ctx, query, k, r.options...)
	if err != nil {
		return nil, adapter.Wrap(adapter.CapabilityRetrieval, err)
	}
	return Contents(docs), nil
}
