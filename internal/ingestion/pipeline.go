// Package ingestion implements the offline indexing pipeline.
// It loads documents from local files and URLs, chunks the content, embeds
// each chunk, and writes the results to an index writer (bbolt bundle or
// Qdrant collection). It is invoked by the `askdocs index` CLI command and
// never runs inside the server.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/54b3r/askdocs-go/internal/logging"
	"github.com/54b3r/askdocs-go/internal/rag"
)

// Source describes one document to index. Exactly one of Path or URL is set.
type Source struct {
	// Path is a local file path.
	Path string

	// URL is an HTTP(S) URL to fetch.
	URL string

	// Metadata holds extra key-value pairs attached to every chunk of the
	// document. Explicit keys win over inferred ones.
	Metadata map[string]string
}

// Name returns the source identifier recorded on chunks.
func (s Source) Name() string {
	if s.URL != "" {
		return s.URL
	}
	return s.Path
}

// Config holds the configuration for the ingestion pipeline.
type Config struct {
	// ChunkSize is the maximum number of characters per document chunk.
	// Defaults to 1000 if zero.
	ChunkSize int

	// ChunkOverlap is the number of characters to overlap between consecutive chunks.
	// Defaults to 100 if zero.
	ChunkOverlap int

	// BatchSize is the number of chunks embedded per provider call.
	// Defaults to 32 if zero.
	BatchSize int

	// MaxRetries is the number of retries for a failed embedding batch.
	// Defaults to 3 if zero; negative disables retries.
	MaxRetries int

	// RetryBase is the first backoff interval between embedding retries.
	// Defaults to 1s if zero.
	RetryBase time.Duration

	// HTTPTimeout is the timeout for each URL fetch.
	// Defaults to 30s if zero.
	HTTPTimeout time.Duration

	// UserAgent is the HTTP User-Agent header sent with fetch requests.
	UserAgent string
}

// Progress is reported after every embedded batch.
type Progress struct {
	// Embedded is the number of chunks embedded and written so far.
	Embedded int
	// Total is the number of chunks to embed.
	Total int
	// Source is the document the last batch came from.
	Source string
}

// Stats summarises a completed ingestion run.
type Stats struct {
	// Documents is the number of sources that produced at least one chunk.
	Documents int
	// Skipped is the number of sources that were empty after extraction.
	Skipped int
	// Chunks is the number of chunks written.
	Chunks int
}

// Pipeline orchestrates the load → chunk → embed → write flow for a set of
// sources.
type Pipeline struct {
	// embedder converts text chunks into dense vector embeddings.
	embedder rag.Embedder

	// writer persists the embedded chunks.
	writer rag.IndexWriter

	// cfg holds the resolved pipeline configuration.
	cfg *Config

	// httpClient is the HTTP client used for fetching URLs.
	httpClient *http.Client
}

// NewPipeline constructs a Pipeline from the provided dependencies and config.
func NewPipeline(embedder rag.Embedder, writer rag.IndexWriter, cfg *Config) (*Pipeline, error) {
	if embedder == nil {
		return nil, fmt.Errorf("ingestion: embedder must not be nil")
	}
	if writer == nil {
		return nil, fmt.Errorf("ingestion: writer must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 1000
	}
	if cfg.ChunkOverlap < 0 {
		cfg.ChunkOverlap = 0
	}
	if cfg.ChunkOverlap == 0 {
		cfg.ChunkOverlap = 100
	}
	if cfg.ChunkOverlap >= cfg.ChunkSize {
		cfg.ChunkOverlap = cfg.ChunkSize / 10
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = time.Second
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 30 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "askdocs-go/1.0 (document indexer)"
	}

	return &Pipeline{
		embedder: embedder,
		writer:   writer,
		cfg:      cfg,
		httpClient: &http.Client{
			Timeout: cfg.HTTPTimeout,
		},
	}, nil
}

// Ingest loads and chunks every source, then embeds and writes the chunks in
// batches, preserving source order so index ordinals follow the input.
// It returns the first error encountered. Progress is reported via the
// optional progress callback.
func (p *Pipeline) Ingest(ctx context.Context, sources []Source, progress func(Progress)) (Stats, error) {
	log := logging.FromContext(ctx)
	if progress == nil {
		progress = func(Progress) {}
	}

	var stats Stats
	var all []rag.Chunk
	for _, src := range sources {
		text, err := p.load(ctx, src)
		if err != nil {
			return stats, fmt.Errorf("ingestion: load %s: %w", src.Name(), err)
		}

		chunks := p.chunksFor(src, text)
		if len(chunks) == 0 {
			stats.Skipped++
			log.Warn("ingestion: source has no text", slog.String("source", src.Name()))
			continue
		}
		stats.Documents++
		log.Debug("ingestion: chunked source",
			slog.String("source", src.Name()),
			slog.Int("chunks", len(chunks)),
		)
		all = append(all, chunks...)
	}

	total := len(all)
	for start := 0; start < total; start += p.cfg.BatchSize {
		end := min(start+p.cfg.BatchSize, total)
		batch := all[start:end]

		vecs, err := p.embedBatch(ctx, batch)
		if err != nil {
			return stats, fmt.Errorf("ingestion: embedding chunks %d-%d failed: %w", start, end-1, err)
		}
		for i := range batch {
			batch[i].Embedding = vecs[i]
		}

		if err := p.writer.Write(ctx, batch); err != nil {
			return stats, fmt.Errorf("ingestion: write chunks %d-%d failed: %w", start, end-1, err)
		}
		stats.Chunks += len(batch)
		progress(Progress{Embedded: stats.Chunks, Total: total, Source: batch[len(batch)-1].Source})
	}

	return stats, nil
}

// embedBatch embeds one batch with Fibonacci backoff. A batch whose result
// count does not match its input is retried like any other failure.
func (p *Pipeline) embedBatch(ctx context.Context, batch []rag.Chunk) ([][]float32, error) {
	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.Text
	}

	attempt := func(ctx context.Context) ([][]float32, error) {
		vecs, err := p.embedder.Embed(ctx, texts)
		if err != nil {
			return nil, err
		}
		if len(vecs) != len(texts) {
			return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(texts))
		}
		return vecs, nil
	}

	if p.cfg.MaxRetries < 0 {
		return attempt(ctx)
	}

	var out [][]float32
	backoff := retry.WithMaxRetries(uint64(p.cfg.MaxRetries), retry.NewFibonacci(p.cfg.RetryBase))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		vecs, err := attempt(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			logging.FromContext(ctx).Warn("ingestion: embedding batch failed, retrying", slog.Any("error", err))
			return retry.RetryableError(err)
		}
		out = vecs
		return nil
	})
	return out, err
}

// chunksFor splits text into chunks carrying source metadata. Chunk IDs are
// name-based UUIDs of the source and chunk index, so re-indexing the same
// corpus yields the same IDs.
func (p *Pipeline) chunksFor(src Source, text string) []rag.Chunk {
	pieces := Split(text, p.cfg.ChunkSize, p.cfg.ChunkOverlap)
	if len(pieces) == 0 {
		return nil
	}

	base := InferMetadata(src.Name()).Map()
	for k, v := range src.Metadata {
		base[k] = v
	}

	chunks := make([]rag.Chunk, 0, len(pieces))
	for i, piece := range pieces {
		meta := make(map[string]string, len(base)+1)
		for k, v := range base {
			meta[k] = v
		}
		meta["chunk_index"] = strconv.Itoa(i)
		chunks = append(chunks, rag.Chunk{
			ID:       chunkID(src.Name(), i),
			Text:     piece,
			Source:   src.Name(),
			Metadata: meta,
		})
	}
	return chunks
}

// load returns the extracted text of src.
func (p *Pipeline) load(ctx context.Context, src Source) (string, error) {
	switch {
	case src.URL != "":
		return p.fetch(ctx, src.URL)
	case src.Path != "":
		data, err := os.ReadFile(src.Path)
		if err != nil {
			return "", err
		}
		if isHTMLPath(src.Path) {
			return stripHTML(string(data)), nil
		}
		return string(data), nil
	default:
		return "", errors.New("source has neither path nor URL")
	}
}

// fetch retrieves the text content of a URL, stripping markup from HTML
// responses.
func (p *Pipeline) fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", p.cfg.UserAgent)
	req.Header.Set("Accept", "text/plain, text/markdown, text/html")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d for %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading body: %w", err)
	}

	if mt, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type")); err == nil && mt == "text/html" {
		return stripHTML(string(body)), nil
	}
	return string(body), nil
}

// chunkID derives a deterministic UUID for a chunk from its source and index.
func chunkID(source string, index int) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(source+"#"+strconv.Itoa(index))).String()
}

// isHTMLPath reports whether path names an HTML file.
func isHTMLPath(path string) bool {
	lower := strings.ToLower(path)
	return strings.HasSuffix(lower, ".html") || strings.HasSuffix(lower, ".htm")
}
