package ingestion

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/54b3r/askdocs-go/internal/rag"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

// lenEmbedder embeds each text as [len(text), 1]. failFirst makes the first
// n calls fail.
type lenEmbedder struct {
	mu        sync.Mutex
	calls     int
	failFirst int
	batches   []int
}

func (e *lenEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.calls <= e.failFirst {
		return nil, errors.New("provider overloaded")
	}
	e.batches = append(e.batches, len(texts))
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

// memWriter collects written chunks.
type memWriter struct {
	chunks []rag.Chunk
	err    error
}

func (w *memWriter) Write(_ context.Context, chunks []rag.Chunk) error {
	if w.err != nil {
		return w.err
	}
	w.chunks = append(w.chunks, chunks...)
	return nil
}

func (w *memWriter) Close() error { return nil }

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

// ---------------------------------------------------------------------------
// Construction
// ---------------------------------------------------------------------------

func TestNewPipeline_Validation(t *testing.T) {
	t.Parallel()

	if _, err := NewPipeline(nil, &memWriter{}, nil); err == nil {
		t.Error("expected error for nil embedder")
	}
	if _, err := NewPipeline(&lenEmbedder{}, nil, nil); err == nil {
		t.Error("expected error for nil writer")
	}
}

func TestNewPipeline_Defaults(t *testing.T) {
	t.Parallel()

	p, err := NewPipeline(&lenEmbedder{}, &memWriter{}, &Config{ChunkSize: 50, ChunkOverlap: 80})
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	if p.cfg.ChunkOverlap != 5 {
		t.Errorf("overlap >= size should fall back to size/10, got %d", p.cfg.ChunkOverlap)
	}
	if p.cfg.BatchSize != 32 || p.cfg.MaxRetries != 3 {
		t.Errorf("unexpected defaults: batch=%d retries=%d", p.cfg.BatchSize, p.cfg.MaxRetries)
	}
}

// ---------------------------------------------------------------------------
// Ingest
// ---------------------------------------------------------------------------

func TestIngest_FilesInOrderWithMetadata(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	partners := writeFile(t, dir, "partners.md", "Acme Corp joined as a partner in Q1.")
	remote := writeFile(t, dir, "remote_work.txt", "Remote work reduced in-person collaboration.")
	empty := writeFile(t, dir, "empty.md", "   \n")

	emb := &lenEmbedder{}
	w := &memWriter{}
	p, err := NewPipeline(emb, w, &Config{BatchSize: 1})
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}

	var reports []Progress
	stats, err := p.Ingest(t.Context(), []Source{
		{Path: partners, Metadata: map[string]string{"title": "Partners"}},
		{Path: empty},
		{Path: remote},
	}, func(pr Progress) { reports = append(reports, pr) })
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	if stats.Documents != 2 || stats.Skipped != 1 || stats.Chunks != 2 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if len(w.chunks) != 2 {
		t.Fatalf("expected 2 chunks written, got %d", len(w.chunks))
	}

	first, second := w.chunks[0], w.chunks[1]
	if first.Source != partners || second.Source != remote {
		t.Errorf("chunks out of source order: %q, %q", first.Source, second.Source)
	}
	if first.Metadata["title"] != "Partners" {
		t.Errorf("explicit metadata should win, got title %q", first.Metadata["title"])
	}
	if second.Metadata["title"] != "remote work" || second.Metadata["format"] != "text" {
		t.Errorf("unexpected inferred metadata: %v", second.Metadata)
	}
	if first.Metadata["chunk_index"] != "0" {
		t.Errorf("expected chunk_index 0, got %q", first.Metadata["chunk_index"])
	}
	if len(first.Embedding) != 2 || first.Embedding[0] != float32(len(first.Text)) {
		t.Errorf("embedding not attached: %v", first.Embedding)
	}
	if _, err := uuid.Parse(first.ID); err != nil {
		t.Errorf("chunk ID must be a UUID, got %q", first.ID)
	}

	if len(reports) != 2 || reports[1].Embedded != 2 || reports[1].Total != 2 {
		t.Errorf("unexpected progress reports: %+v", reports)
	}
}

func TestIngest_DeterministicIDs(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeFile(t, dir, "doc.md", strings.Repeat("word ", 100))

	run := func() []string {
		w := &memWriter{}
		p, err := NewPipeline(&lenEmbedder{}, w, &Config{ChunkSize: 100, ChunkOverlap: 10})
		if err != nil {
			t.Fatalf("NewPipeline: %v", err)
		}
		if _, err := p.Ingest(t.Context(), []Source{{Path: path}}, nil); err != nil {
			t.Fatalf("Ingest: %v", err)
		}
		ids := make([]string, len(w.chunks))
		for i, c := range w.chunks {
			ids[i] = c.ID
		}
		return ids
	}

	a, b := run(), run()
	if len(a) < 2 {
		t.Fatalf("expected several chunks, got %d", len(a))
	}
	if !equalStrings(a, b) {
		t.Error("re-indexing the same corpus should produce the same IDs")
	}
	if a[0] == a[1] {
		t.Error("chunk IDs within a document must differ")
	}
}

func TestIngest_Batches(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	var sources []Source
	for _, name := range []string{"a.md", "b.md", "c.md", "d.md", "e.md"} {
		sources = append(sources, Source{Path: writeFile(t, dir, name, "text "+name)})
	}

	emb := &lenEmbedder{}
	p, err := NewPipeline(emb, &memWriter{}, &Config{BatchSize: 2})
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	if _, err := p.Ingest(t.Context(), sources, nil); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	want := []int{2, 2, 1}
	if len(emb.batches) != len(want) {
		t.Fatalf("batches = %v, want %v", emb.batches, want)
	}
	for i := range want {
		if emb.batches[i] != want[i] {
			t.Errorf("batches = %v, want %v", emb.batches, want)
			break
		}
	}
}

func TestIngest_RetriesEmbedding(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	src := Source{Path: writeFile(t, dir, "a.md", "hello")}

	emb := &lenEmbedder{failFirst: 2}
	w := &memWriter{}
	p, err := NewPipeline(emb, w, &Config{MaxRetries: 3, RetryBase: time.Millisecond})
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	if _, err := p.Ingest(t.Context(), []Source{src}, nil); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if emb.calls != 3 {
		t.Errorf("expected 3 embed calls, got %d", emb.calls)
	}
	if len(w.chunks) != 1 {
		t.Errorf("expected 1 chunk written, got %d", len(w.chunks))
	}
}

func TestIngest_GivesUpAfterRetries(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	src := Source{Path: writeFile(t, dir, "a.md", "hello")}

	emb := &lenEmbedder{failFirst: 100}
	w := &memWriter{}
	p, err := NewPipeline(emb, w, &Config{MaxRetries: 2, RetryBase: time.Millisecond})
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	if _, err := p.Ingest(t.Context(), []Source{src}, nil); err == nil {
		t.Fatal("expected error after retries are exhausted")
	}
	if emb.calls != 3 {
		t.Errorf("expected 1 attempt + 2 retries, got %d calls", emb.calls)
	}
	if len(w.chunks) != 0 {
		t.Errorf("nothing should be written, got %d chunks", len(w.chunks))
	}
}

func TestIngest_NoRetriesWhenDisabled(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	src := Source{Path: writeFile(t, dir, "a.md", "hello")}

	emb := &lenEmbedder{failFirst: 1}
	p, err := NewPipeline(emb, &memWriter{}, &Config{MaxRetries: -1})
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	if _, err := p.Ingest(t.Context(), []Source{src}, nil); err == nil {
		t.Fatal("expected error")
	}
	if emb.calls != 1 {
		t.Errorf("expected a single call, got %d", emb.calls)
	}
}

func TestIngest_WriterError(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	src := Source{Path: writeFile(t, dir, "a.md", "hello")}

	p, err := NewPipeline(&lenEmbedder{}, &memWriter{err: errors.New("disk full")}, nil)
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	_, err = p.Ingest(t.Context(), []Source{src}, nil)
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("expected writer error, got %v", err)
	}
}

func TestIngest_MissingFile(t *testing.T) {
	t.Parallel()

	p, err := NewPipeline(&lenEmbedder{}, &memWriter{}, nil)
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	_, err = p.Ingest(t.Context(), []Source{{Path: filepath.Join(t.TempDir(), "nope.md")}}, nil)
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected ErrNotExist, got %v", err)
	}
}

func TestIngest_URLStripsHTML(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") == "" {
			t.Error("expected a User-Agent header")
		}
		switch r.URL.Path {
		case "/page":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte("<html><body><p>Acme Corp joined.</p><script>x()</script></body></html>"))
		case "/plain":
			w.Header().Set("Content-Type", "text/plain")
			_, _ = w.Write([]byte("<not> html"))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	w := &memWriter{}
	p, err := NewPipeline(&lenEmbedder{}, w, nil)
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	sources, err := URLSources([]string{srv.URL + "/page", srv.URL + "/plain"})
	if err != nil {
		t.Fatalf("URLSources: %v", err)
	}
	if _, err := p.Ingest(t.Context(), sources, nil); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if len(w.chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(w.chunks))
	}
	if w.chunks[0].Text != "Acme Corp joined." {
		t.Errorf("html not stripped: %q", w.chunks[0].Text)
	}
	if w.chunks[1].Text != "<not> html" {
		t.Errorf("plain text must be kept verbatim: %q", w.chunks[1].Text)
	}

	_, err = p.Ingest(t.Context(), []Source{{URL: srv.URL + "/missing"}}, nil)
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Errorf("expected status error, got %v", err)
	}
}

// TestIngest_IntoBundle runs the indexer into a real bbolt bundle and loads
// it back for retrieval.
func TestIngest_IntoBundle(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	a := writeFile(t, dir, "a.md", "short")
	b := writeFile(t, dir, "b.md", "a much longer document body")

	bundle := filepath.Join(dir, "index")
	bw, err := rag.CreateBundle(bundle, "len-embed")
	if err != nil {
		t.Fatalf("CreateBundle: %v", err)
	}
	p, err := NewPipeline(&lenEmbedder{}, bw, nil)
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	if _, err := p.Ingest(t.Context(), []Source{{Path: a}, {Path: b}}, nil); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if err := bw.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	idx, err := rag.LoadBundle(bundle)
	if err != nil {
		t.Fatalf("LoadBundle: %v", err)
	}
	info := idx.Info()
	if info.Chunks != 2 || info.Dimension != 2 || info.Model != "len-embed" {
		t.Errorf("unexpected bundle info: %+v", info)
	}
}
