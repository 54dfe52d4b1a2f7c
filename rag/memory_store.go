package rag

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"
)

// ErrNoEmbedder is returned when neither the store nor the call options
// provide an embedder.
var ErrNoEmbedder = errors.New("no embedder configured")

// MemoryVectorStore is a simple in-memory vector store implementing
// langchaingo's vectorstores.VectorStore.
type MemoryVectorStore struct {
	mu         sync.RWMutex
	embedder   embeddings.Embedder
	ids        []string
	documents  []schema.Document
	embeddings [][]float32
}

var _ vectorstores.VectorStore = (*MemoryVectorStore)(nil)

// NewMemoryVectorStore creates an empty store.
func NewMemoryVectorStore(embedder embeddings.Embedder) *MemoryVectorStore {
	return &MemoryVectorStore{embedder: embedder}
}

// AddDocuments embeds docs and stores them, returning their ids.
func (s *MemoryVectorStore) AddDocuments(ctx context.Context, docs []schema.Document, options ...vectorstores.Option) ([]string, error) {
	opts := s.options(options)
	if opts.Embedder == nil {
		return nil, ErrNoEmbedder
	}
	if len(docs) == 0 {
		return []string{}, nil
	}

	texts := Contents(docs)
	vectors, err := opts.Embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed documents: %w", err)
	}
	if len(vectors) != len(docs) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d documents", len(vectors), len(docs))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = uuid.NewString()
		s.ids = append(s.ids, ids[i])
		s.documents = append(s.documents, d)
		s.embeddings = append(s.embeddings, vectors[i])
	}
	return ids, nil
}

// SimilaritySearch returns the numDocuments documents closest to query.
// Each result carries its cosine similarity in Score. ScoreThreshold in the
// options drops weaker matches.
func (s *MemoryVectorStore) SimilaritySearch(ctx context.Context, query string, numDocuments int, options ...vectorstores.Option) ([]schema.Document, error) {
	opts := s.options(options)
	if opts.Embedder == nil {
		return nil, ErrNoEmbedder
	}
	if numDocuments <= 0 {
		return []schema.Document{}, nil
	}

	qv, err := opts.Embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	type docScore struct {
		index int
		score float32
	}
	scores := make([]docScore, 0, len(s.documents))
	for i, v := range s.embeddings {
		score := float32(cosineSimilarity(qv, v))
		if opts.ScoreThreshold > 0 && score < opts.ScoreThreshold {
			continue
		}
		scores = append(scores, docScore{index: i, score: score})
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })

	if numDocuments > len(scores) {
		numDocuments = len(scores)
	}
	out := make([]schema.Document, 0, numDocuments)
	for _, sc := range scores[:numDocuments] {
		d := s.documents[sc.index]
		d.Score = sc.score
		out = append(out, d)
	}
	return out, nil
}

// Len returns the number of stored documents.
func (s *MemoryVectorStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.documents)
}

func (s *MemoryVectorStore) options(options []vectorstores.Option) vectorstores.Options {
	opts := vectorstores.Options{Embedder: s.embedder}
	for _, o := range options {
		o(&opts)
	}
	return opts
}

// cosineSimilarity calculates cosine similarity between two float32 vectors
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}
	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}
