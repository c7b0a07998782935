package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

// openTestCache opens an in-memory SQLiteCache for use in tests.
func openTestCache(t *testing.T) *SQLiteCache {
	t.Helper()
	c, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open in-memory cache: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func Test_Cache_SaveAndLookup(t *testing.T) {
	t.Parallel()
	c := openTestCache(t)
	ctx := context.Background()

	if err := c.Save(ctx, "m", []string{"hello", "world"}, [][]float32{{1, 2.5}, {-3, 0}}); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := c.Lookup(ctx, "m", []string{"world", "missing", "hello"})
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("want 3 entries, got %d", len(got))
	}
	if got[0][0] != -3 || got[0][1] != 0 {
		t.Errorf("world: got %v", got[0])
	}
	if got[1] != nil {
		t.Errorf("missing: want nil, got %v", got[1])
	}
	if got[2][0] != 1 || got[2][1] != 2.5 {
		t.Errorf("hello: got %v", got[2])
	}
}

func Test_Cache_ModelIsolation(t *testing.T) {
	t.Parallel()
	c := openTestCache(t)
	ctx := context.Background()

	if err := c.Save(ctx, "model-a", []string{"q"}, [][]float32{{1}}); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := c.Lookup(ctx, "model-b", []string{"q"})
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got[0] != nil {
		t.Errorf("model-b must not see model-a vectors, got %v", got[0])
	}
	if n, _ := c.Count(ctx, "model-a"); n != 1 {
		t.Errorf("Count(model-a) = %d, want 1", n)
	}
}

func Test_Cache_DuplicateTextsInLookup(t *testing.T) {
	t.Parallel()
	c := openTestCache(t)
	ctx := context.Background()

	if err := c.Save(ctx, "m", []string{"dup"}, [][]float32{{7}}); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := c.Lookup(ctx, "m", []string{"dup", "dup"})
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got[0] == nil || got[1] == nil {
		t.Errorf("both duplicate entries should hit, got %v", got)
	}
}

func Test_Cache_SaveLengthMismatch(t *testing.T) {
	t.Parallel()
	c := openTestCache(t)
	if err := c.Save(context.Background(), "m", []string{"a", "b"}, [][]float32{{1}}); err == nil {
		t.Error("want error for mismatched lengths")
	}
}

func Test_Cache_PersistsAcrossOpen(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "sub", "embeddings.db")
	ctx := context.Background()

	c, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := c.Save(ctx, "m", []string{"kept"}, [][]float32{{4, 2}}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	c, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer c.Close()
	if err := c.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
	got, err := c.Lookup(ctx, "m", []string{"kept"})
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if len(got[0]) != 2 || got[0][0] != 4 {
		t.Errorf("want [4 2], got %v", got[0])
	}
}

// ---------------------------------------------------------------------------
// CachedEmbedder
// ---------------------------------------------------------------------------

// countingEmbedder records every text it is asked to embed.
type countingEmbedder struct {
	seen []string
	err  error
}

func (e *countingEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	e.seen = append(e.seen, texts...)
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t))}
	}
	return out, nil
}

func Test_CachedEmbedder_OnlyMissesReachInner(t *testing.T) {
	t.Parallel()
	inner := &countingEmbedder{}
	emb := NewCachedEmbedder(inner, openTestCache(t), "m")
	ctx := context.Background()

	if _, err := emb.Embed(ctx, []string{"a", "bb"}); err != nil {
		t.Fatalf("first embed: %v", err)
	}
	got, err := emb.Embed(ctx, []string{"bb", "ccc", "a"})
	if err != nil {
		t.Fatalf("second embed: %v", err)
	}

	if len(inner.seen) != 3 || inner.seen[2] != "ccc" {
		t.Errorf("inner saw %v, want [a bb ccc]", inner.seen)
	}
	want := []float32{2, 3, 1}
	for i := range want {
		if got[i][0] != want[i] {
			t.Errorf("got[%d] = %v, want %v", i, got[i][0], want[i])
		}
	}
}

func Test_CachedEmbedder_InnerErrorPropagates(t *testing.T) {
	t.Parallel()
	boom := errors.New("provider down")
	emb := NewCachedEmbedder(&countingEmbedder{err: boom}, openTestCache(t), "m")
	if _, err := emb.Embed(context.Background(), []string{"x"}); !errors.Is(err, boom) {
		t.Errorf("want provider error, got %v", err)
	}
}

// brokenCache fails every operation.
type brokenCache struct{}

func (brokenCache) Lookup(context.Context, string, []string) ([][]float32, error) {
	return nil, errors.New("disk full")
}
func (brokenCache) Save(context.Context, string, []string, [][]float32) error {
	return errors.New("disk full")
}
func (brokenCache) Close() error { return nil }

func Test_CachedEmbedder_BrokenCacheFallsThrough(t *testing.T) {
	t.Parallel()
	inner := &countingEmbedder{}
	emb := NewCachedEmbedder(inner, brokenCache{}, "m")
	got, err := emb.Embed(context.Background(), []string{"abcd"})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if got[0][0] != 4 {
		t.Errorf("got %v", got[0])
	}
}
