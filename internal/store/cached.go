package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/54b3r/askdocs-go/internal/logging"
	"github.com/54b3r/askdocs-go/internal/rag"
)

// CachedEmbedder wraps a rag.Embedder with an EmbeddingCache. Only cache
// misses reach the inner embedder. Cache errors are logged and treated as
// misses so a broken cache never fails a question.
type CachedEmbedder struct {
	// inner produces vectors for cache misses.
	inner rag.Embedder
	// cache stores vectors keyed by model and text.
	cache EmbeddingCache
	// model namespaces cache entries.
	model string
}

// NewCachedEmbedder returns an embedder that consults cache before inner.
func NewCachedEmbedder(inner rag.Embedder, cache EmbeddingCache, model string) *CachedEmbedder {
	return &CachedEmbedder{inner: inner, cache: cache, model: model}
}

// Embed returns embeddings for texts, calling the inner embedder only for
// texts not already cached.
func (c *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	log := logging.FromContext(ctx)

	out, err := c.cache.Lookup(ctx, c.model, texts)
	if err != nil {
		log.Warn("store: embedding cache lookup failed", slog.String("error", err.Error()))
		out = make([][]float32, len(texts))
	}

	var missIdx []int
	var missTexts []string
	for i, v := range out {
		if v == nil {
			missIdx = append(missIdx, i)
			missTexts = append(missTexts, texts[i])
		}
	}
	if len(missTexts) == 0 {
		log.Debug("store: embedding cache hit", slog.Int("texts", len(texts)))
		return out, nil
	}

	vecs, err := c.inner.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missTexts) {
		return nil, fmt.Errorf("store: embedder returned %d vectors for %d texts", len(vecs), len(missTexts))
	}
	for j, i := range missIdx {
		out[i] = vecs[j]
	}

	if err := c.cache.Save(ctx, c.model, missTexts, vecs); err != nil {
		log.Warn("store: embedding cache save failed", slog.String("error", err.Error()))
	}
	log.Debug("store: embedding cache",
		slog.Int("hits", len(texts)-len(missTexts)),
		slog.Int("misses", len(missTexts)),
	)
	return out, nil
}
