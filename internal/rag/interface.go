// Package rag defines the retrieval side of the answer pipeline: document
// chunks, the read-only vector index, the embedding interface, and the
// Retriever that ties them together.
// Concrete indexes (bbolt bundle, Qdrant) satisfy VectorIndex so the
// pipeline never depends on a specific backend.
package rag

import (
	"context"
)

// Chunk is a unit of indexed document text. Chunks are immutable once
// written to an index.
type Chunk struct {
	// ID is the stable identifier of the chunk (UUID string).
	ID string

	// Ordinal is the insertion position of the chunk in its index. Retrieval
	// breaks score ties by ascending Ordinal.
	Ordinal int

	// Text is the raw chunk content passed to the language model.
	Text string

	// Source is the origin path or URL of the document the chunk came from.
	Source string

	// Metadata holds arbitrary key-value pairs recorded at index time.
	Metadata map[string]string

	// Embedding is the chunk vector. It may be nil for chunks returned by
	// remote indexes that do not echo vectors back.
	Embedding []float32
}

// ScoredChunk is a chunk paired with its similarity to the query vector.
type ScoredChunk struct {
	// Chunk is the retrieved document chunk.
	Chunk Chunk

	// Score is the cosine similarity between query and chunk (higher is closer).
	Score float64
}

// Embedder converts text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorIndex is a read-only nearest-neighbour index over chunk embeddings.
// Implementations must be safe to call from multiple goroutines.
type VectorIndex interface {
	// Search returns up to k chunks ordered by descending similarity to vec,
	// ties broken by ascending Ordinal.
	Search(ctx context.Context, vec []float32, k int) ([]ScoredChunk, error)

	// Len returns the number of indexed chunks.
	Len(ctx context.Context) (int, error)

	// Dimension returns the embedding dimension of the index, or 0 if unknown.
	Dimension() int

	// Close releases any resources held by the index.
	Close() error
}

// IndexWriter is implemented by index backends that the offline indexer can
// populate. Serving code never writes.
type IndexWriter interface {
	// Write appends chunks (with embeddings set) to the index.
	Write(ctx context.Context, chunks []Chunk) error

	// Close flushes and releases the writer.
	Close() error
}
