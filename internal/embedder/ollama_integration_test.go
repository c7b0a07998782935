//go:build integration

package embedder

import (
	"context"
	"math"
	"os"
	"testing"
	"time"
)

// TestOllamaEmbedder_Integration embeds three town-hall style sentences with a
// running Ollama server and checks that the two on the same topic land closer
// together than the unrelated one.
//
//	ollama pull nomic-embed-text
//	go test -tags=integration -run TestOllamaEmbedder_Integration ./internal/embedder/
//
// OLLAMA_HOST and EMBEDDING_MODEL override the defaults.
func TestOllamaEmbedder_Integration(t *testing.T) {
	host := envOrDefault("OLLAMA_HOST", "http://localhost:11434")
	model := envOrDefault("EMBEDDING_MODEL", "nomic-embed-text")

	emb := NewOllamaEmbedder(&OllamaConfig{Host: host, Model: model})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	vecs, err := emb.Embed(ctx, []string{
		"Acme Corp signed on as a new partner this quarter.",
		"Two new companies joined our partner programme.",
		"The cafeteria now closes at 3pm on Fridays.",
	})
	if err != nil {
		t.Fatalf("Embed: %v (is %q pulled on %s?)", err, model, host)
	}

	related := cosineSim(vecs[0], vecs[1])
	unrelated := cosineSim(vecs[0], vecs[2])
	t.Logf("model=%s dim=%d related=%.3f unrelated=%.3f", model, len(vecs[0]), related, unrelated)
	if related <= unrelated {
		t.Errorf("related sentences should score higher: related=%.3f unrelated=%.3f", related, unrelated)
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func cosineSim(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
