package rag

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"
)

// MemoryIndex is a brute-force cosine similarity index held entirely in
// memory. It is immutable after construction and safe for concurrent reads.
type MemoryIndex struct {
	// chunks is the indexed data in insertion order.
	chunks []Chunk
	// norms caches the L2 norm of each chunk embedding.
	norms []float64
	// dim is the shared embedding dimension.
	dim int
}

// NewMemoryIndex builds an index over chunks. Each chunk's Ordinal is set to
// its position in the slice. All embeddings must share one non-zero dimension.
func NewMemoryIndex(chunks []Chunk) (*MemoryIndex, error) {
	idx := &MemoryIndex{
		chunks: make([]Chunk, len(chunks)),
		norms:  make([]float64, len(chunks)),
	}
	for i, c := range chunks {
		if len(c.Embedding) == 0 {
			return nil, fmt.Errorf("rag: chunk %d (%s) has no embedding", i, c.ID)
		}
		if idx.dim == 0 {
			idx.dim = len(c.Embedding)
		} else if len(c.Embedding) != idx.dim {
			return nil, fmt.Errorf("rag: chunk %d has dimension %d, expected %d", i, len(c.Embedding), idx.dim)
		}
		c.Ordinal = i
		idx.chunks[i] = c
		idx.norms[i] = norm(c.Embedding)
	}
	return idx, nil
}

// Search returns the k chunks most similar to vec. Scores are cosine
// similarities; equal scores keep insertion order.
func (m *MemoryIndex) Search(_ context.Context, vec []float32, k int) ([]ScoredChunk, error) {
	if k <= 0 {
		return nil, fmt.Errorf("rag: k must be positive, got %d", k)
	}
	if len(m.chunks) == 0 {
		return []ScoredChunk{}, nil
	}
	if len(vec) != m.dim {
		return nil, fmt.Errorf("rag: query dimension %d does not match index dimension %d", len(vec), m.dim)
	}

	qn := norm(vec)
	scored := make([]ScoredChunk, len(m.chunks))
	for i, c := range m.chunks {
		scored[i] = ScoredChunk{Chunk: c, Score: cosine(vec, c.Embedding, qn, m.norms[i])}
	}

	slices.SortStableFunc(scored, func(a, b ScoredChunk) int {
		return cmp.Compare(b.Score, a.Score)
	})

	if k > len(scored) {
		k = len(scored)
	}
	return scored[:k], nil
}

// Len returns the number of indexed chunks.
func (m *MemoryIndex) Len(context.Context) (int, error) { return len(m.chunks), nil }

// Dimension returns the embedding dimension, or 0 for an empty index.
func (m *MemoryIndex) Dimension() int { return m.dim }

// Close is a no-op; the index owns no external resources.
func (m *MemoryIndex) Close() error { return nil }

// norm returns the L2 norm of v.
func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// cosine returns the cosine similarity of a and b given their precomputed
// norms. Zero vectors score 0.
func cosine(a, b []float32, na, nb float64) float64 {
	if na == 0 || nb == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (na * nb)
}
