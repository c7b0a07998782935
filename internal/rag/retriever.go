package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/54b3r/askdocs-go/internal/apperr"
)

// DefaultTopK is the number of chunks retrieved when the caller passes k=0.
const DefaultTopK = 4

// Retriever embeds a query and returns its nearest chunks from a VectorIndex.
// It holds no mutable state and is safe for concurrent use.
type Retriever struct {
	// embedder converts query text to a dense vector.
	embedder Embedder

	// index performs the similarity search.
	index VectorIndex

	// defaultTopK is the number of results to return when the caller passes 0.
	defaultTopK int
}

// NewRetriever constructs a Retriever from the given Embedder and VectorIndex.
// defaultTopK sets the fallback result count when Retrieve is called with k=0.
func NewRetriever(embedder Embedder, index VectorIndex, defaultTopK int) (*Retriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("rag: embedder must not be nil")
	}
	if index == nil {
		return nil, fmt.Errorf("rag: index must not be nil")
	}
	if defaultTopK <= 0 {
		defaultTopK = DefaultTopK
	}
	return &Retriever{
		embedder:    embedder,
		index:       index,
		defaultTopK: defaultTopK,
	}, nil
}

// Retrieve embeds query and returns the k most similar chunks in descending
// score order. k=0 selects the default; negative k and blank queries fail
// with apperr.ErrInvalidInput before any embedding call is made.
// Embedding errors are wrapped with apperr.ErrEmbeddingFailure and are not
// retried.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) ([]ScoredChunk, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("rag: query is empty: %w", apperr.ErrInvalidInput)
	}
	if k < 0 {
		return nil, fmt.Errorf("rag: k must be positive, got %d: %w", k, apperr.ErrInvalidInput)
	}
	if k == 0 {
		k = r.defaultTopK
	}

	vecs, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("rag: embedding query failed: %w: %w", apperr.ErrEmbeddingFailure, err)
	}
	if len(vecs) != 1 || len(vecs[0]) == 0 {
		return nil, fmt.Errorf("rag: embedder returned no vector for query: %w", apperr.ErrEmbeddingFailure)
	}
	if dim := r.index.Dimension(); dim > 0 && len(vecs[0]) != dim {
		return nil, fmt.Errorf("rag: query vector has dimension %d, index expects %d: %w",
			len(vecs[0]), dim, apperr.ErrEmbeddingFailure)
	}

	results, err := r.index.Search(ctx, vecs[0], k)
	if err != nil {
		return nil, fmt.Errorf("rag: vector search failed: %w", err)
	}

	return results, nil
}
