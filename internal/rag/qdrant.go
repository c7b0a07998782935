package rag

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync/atomic"

	"github.com/qdrant/go-client/qdrant"
)

// Reserved payload keys. Everything else in a point payload is chunk metadata.
const (
	payloadText    = "text"
	payloadSource  = "source"
	payloadOrdinal = "ordinal"
)

// QdrantConfig holds connection parameters for a Qdrant collection.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection is the Qdrant collection name to use.
	Collection string

	// VectorSize is the embedding dimension. The writer uses it to create the
	// collection; the index uses it when the collection info omits it.
	VectorSize uint64

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

func (cfg *QdrantConfig) applyDefaults() {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.Collection == "" {
		cfg.Collection = "askdocs"
	}
}

func newQdrantClient(cfg *QdrantConfig) (*qdrant.Client, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}
	return client, nil
}

// QdrantIndex implements VectorIndex against an existing Qdrant collection.
// Serving never writes to the collection.
type QdrantIndex struct {
	// client is the underlying Qdrant gRPC client.
	client *qdrant.Client

	// cfg holds the resolved configuration for this index.
	cfg QdrantConfig

	// dim is the collection vector size, or 0 if unknown.
	dim int
}

// NewQdrantIndex connects to Qdrant and verifies that the configured
// collection exists. It does not create collections.
func NewQdrantIndex(ctx context.Context, cfg QdrantConfig) (*QdrantIndex, error) {
	cfg.applyDefaults()
	client, err := newQdrantClient(&cfg)
	if err != nil {
		return nil, err
	}

	exists, err := client.CollectionExists(ctx, cfg.Collection)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	if !exists {
		_ = client.Close()
		return nil, fmt.Errorf("qdrant: collection %q does not exist; run `askdocs index --backend qdrant` first", cfg.Collection)
	}

	dim := int(cfg.VectorSize)
	info, err := client.GetCollectionInfo(ctx, cfg.Collection)
	if err == nil {
		if size := info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize(); size > 0 {
			dim = int(size)
		}
	}

	return &QdrantIndex{client: client, cfg: cfg, dim: dim}, nil
}

// Qdrant breaks score ties by its own point order, not by chunk ordinal.
// Search fetches tieSlack extra points so a tie straddling the k-th result
// can be re-ranked locally, widening the fetch while the tie runs past the
// page, up to maxTieFetch points. Ties that extend beyond maxTieFetch keep
// the server's order.
const (
	tieSlack    = 8
	maxTieFetch = 1024
)

// Search performs a cosine similarity search and returns the top-k results.
// Equal scores are ordered by ascending chunk ordinal.
func (q *QdrantIndex) Search(ctx context.Context, vec []float32, k int) ([]ScoredChunk, error) {
	if k <= 0 {
		return nil, fmt.Errorf("qdrant: k must be positive, got %d", k)
	}

	limit := k + tieSlack
	for {
		hits, err := q.query(ctx, vec, limit)
		if err != nil {
			return nil, err
		}
		top, settled := rankTopK(hits, k, limit)
		if settled || limit >= maxTieFetch {
			return top, nil
		}
		limit = min(limit*2, maxTieFetch)
	}
}

// query fetches up to limit nearest points with their payloads.
func (q *QdrantIndex) query(ctx context.Context, vec []float32, limit int) ([]ScoredChunk, error) {
	n := uint64(limit)
	results, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.cfg.Collection,
		Query:          qdrant.NewQuery(vec...),
		Limit:          &n,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search failed: %w", err)
	}

	out := make([]ScoredChunk, 0, len(results))
	for _, r := range results {
		out = append(out, scoredChunkFromPoint(r))
	}
	return out, nil
}

// scoredChunkFromPoint decodes a search hit. Payload keys other than the
// reserved ones become chunk metadata.
func scoredChunkFromPoint(r *qdrant.ScoredPoint) ScoredChunk {
	c := Chunk{ID: r.GetId().GetUuid()}
	for key, v := range r.GetPayload() {
		switch key {
		case payloadText:
			c.Text = v.GetStringValue()
		case payloadSource:
			c.Source = v.GetStringValue()
		case payloadOrdinal:
			c.Ordinal = int(v.GetIntegerValue())
		default:
			if c.Metadata == nil {
				c.Metadata = make(map[string]string)
			}
			c.Metadata[key] = v.GetStringValue()
		}
	}
	return ScoredChunk{Chunk: c, Score: float64(r.GetScore())}
}

// rankTopK sorts hits by descending score then ascending ordinal and keeps
// the first k. settled is false when the page of limit hits came back full
// and its last hit ties the k-th: an unfetched point with that score and a
// lower ordinal could still belong in the top k.
func rankTopK(hits []ScoredChunk, k, limit int) (top []ScoredChunk, settled bool) {
	slices.SortStableFunc(hits, func(a, b ScoredChunk) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.Chunk.Ordinal, b.Chunk.Ordinal)
	})
	if len(hits) <= k {
		return hits, true
	}
	settled = len(hits) < limit || hits[len(hits)-1].Score != hits[k-1].Score
	return hits[:k], settled
}

// Len returns the exact number of points in the collection.
func (q *QdrantIndex) Len(ctx context.Context) (int, error) {
	n, err := q.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: q.cfg.Collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant: count failed: %w", err)
	}
	return int(n), nil
}

// Dimension returns the collection vector size, or 0 if unknown.
func (q *QdrantIndex) Dimension() int { return q.dim }

// Client exposes the gRPC client for health checks.
func (q *QdrantIndex) Client() *qdrant.Client { return q.client }

// Close closes the underlying Qdrant gRPC connection.
func (q *QdrantIndex) Close() error {
	return q.client.Close()
}

// QdrantWriter implements IndexWriter. It recreates the collection on open so
// every indexing run produces a fresh, consistently ordered collection.
type QdrantWriter struct {
	// client is the underlying Qdrant gRPC client.
	client *qdrant.Client

	// cfg holds the resolved configuration for this writer.
	cfg QdrantConfig

	// next is the ordinal assigned to the next written chunk.
	next atomic.Int64
}

// NewQdrantWriter connects to Qdrant, drops the collection if present, and
// creates it with cosine distance and cfg.VectorSize dimensions.
func NewQdrantWriter(ctx context.Context, cfg QdrantConfig) (*QdrantWriter, error) {
	cfg.applyDefaults()
	if cfg.VectorSize == 0 {
		return nil, fmt.Errorf("qdrant: vector size must be set to create collection %q", cfg.Collection)
	}
	client, err := newQdrantClient(&cfg)
	if err != nil {
		return nil, err
	}

	exists, err := client.CollectionExists(ctx, cfg.Collection)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	if exists {
		if err := client.DeleteCollection(ctx, cfg.Collection); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("qdrant: failed to drop collection %q: %w", cfg.Collection, err)
		}
	}

	err = client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: cfg.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     cfg.VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("qdrant: failed to create collection %q: %w", cfg.Collection, err)
	}

	return &QdrantWriter{client: client, cfg: cfg}, nil
}

// Write upserts chunks as points. Chunk IDs must be UUID strings.
func (w *QdrantWriter) Write(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	points := make([]*qdrant.PointStruct, 0, len(chunks))
	for _, c := range chunks {
		if uint64(len(c.Embedding)) != w.cfg.VectorSize {
			return fmt.Errorf("qdrant: chunk %s has dimension %d, collection expects %d",
				c.ID, len(c.Embedding), w.cfg.VectorSize)
		}
		payload := map[string]any{
			payloadText:    c.Text,
			payloadSource:  c.Source,
			payloadOrdinal: w.next.Add(1) - 1,
		}
		for k, v := range c.Metadata {
			if _, reserved := payload[k]; !reserved {
				payload[k] = v
			}
		}

		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(c.ID),
			Vectors: qdrant.NewVectors(c.Embedding...),
			Payload: qdrant.NewValueMap(payload),
		})
	}

	_, err := w.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: w.cfg.Collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert failed: %w", err)
	}
	return nil
}

// Close closes the underlying Qdrant gRPC connection.
func (w *QdrantWriter) Close() error {
	return w.client.Close()
}
