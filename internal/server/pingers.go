package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/qdrant/go-client/qdrant"

	"github.com/54b3r/askdocs-go/internal/rag"
)

// IndexPinger checks that the vector index answers a count query.
// An empty index is reported healthy; it answers every question with the
// no-answer text.
type IndexPinger struct {
	// index is the serving vector index.
	index rag.VectorIndex
}

// NewIndexPinger constructs an IndexPinger for the given index.
func NewIndexPinger(index rag.VectorIndex) *IndexPinger {
	return &IndexPinger{index: index}
}

// Name returns the dependency label used in readiness responses.
func (p *IndexPinger) Name() string { return "index" }

// Ping counts the index.
func (p *IndexPinger) Ping(ctx context.Context) error {
	if _, err := p.index.Len(ctx); err != nil {
		return fmt.Errorf("count failed: %w", err)
	}
	return nil
}

// HTTPPinger probes an HTTP endpoint (e.g. Ollama's /api/tags) without
// spending tokens. Any response below 500 counts as reachable.
type HTTPPinger struct {
	// name identifies the dependency in readiness responses.
	name string
	// url is the endpoint to GET.
	url string
	// client performs the probe.
	client *http.Client
}

// NewHTTPPinger constructs an HTTPPinger for url.
func NewHTTPPinger(name, url string) *HTTPPinger {
	return &HTTPPinger{
		name:   name,
		url:    url,
		client: &http.Client{Timeout: probeTimeout + time.Second},
	}
}

// Name returns the dependency label used in readiness responses.
func (p *HTTPPinger) Name() string { return p.name }

// Ping issues a GET against the endpoint.
func (p *HTTPPinger) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("unhealthy status %d", resp.StatusCode)
	}
	return nil
}

// FuncPinger adapts a plain check function, such as the embedding cache's
// Ping method, to the Pinger interface.
type FuncPinger struct {
	// name identifies the dependency in readiness responses.
	name string
	// fn performs the check.
	fn func(ctx context.Context) error
}

// NewFuncPinger constructs a FuncPinger.
func NewFuncPinger(name string, fn func(ctx context.Context) error) *FuncPinger {
	return &FuncPinger{name: name, fn: fn}
}

// Name returns the dependency label used in readiness responses.
func (p *FuncPinger) Name() string { return p.name }

// Ping runs the check function.
func (p *FuncPinger) Ping(ctx context.Context) error { return p.fn(ctx) }

// QdrantPinger probes a Qdrant instance using its native HealthCheck RPC.
// It satisfies the Pinger interface and is used by GET /api/ready.
type QdrantPinger struct {
	// client is the Qdrant gRPC client to probe.
	client *qdrant.Client
}

// NewQdrantPinger constructs a QdrantPinger for the given Qdrant client.
func NewQdrantPinger(client *qdrant.Client) *QdrantPinger {
	return &QdrantPinger{client: client}
}

// Name returns the dependency label used in readiness responses.
func (p *QdrantPinger) Name() string { return "qdrant" }

// Ping calls the Qdrant HealthCheck RPC.
// Returns nil if Qdrant is reachable, or a descriptive error otherwise.
func (p *QdrantPinger) Ping(ctx context.Context) error {
	_, err := p.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}
