// Package store provides a SQLite-backed embedding cache. Vectors are keyed by
// embedding model and exact text, so repeated questions and unchanged chunks
// re-indexed with the same model skip the embedding call entirely.
package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// EmbeddingCache persists embeddings keyed by (model, text).
// Implementations must be safe for concurrent use.
type EmbeddingCache interface {
	// Lookup returns one entry per text. Misses are nil.
	Lookup(ctx context.Context, model string, texts []string) ([][]float32, error)
	// Save stores vecs[i] for texts[i] under model.
	Save(ctx context.Context, model string, texts []string, vecs [][]float32) error
	// Close releases any resources held by the cache.
	Close() error
}

// SQLiteCache is an EmbeddingCache backed by a local SQLite database.
type SQLiteCache struct {
	// db is the underlying database connection pool.
	db *sql.DB
}

// DefaultDBPath returns the default path for the embedding cache database.
// It resolves to ~/.askdocs/embeddings.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("store: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".askdocs")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("store: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "embeddings.db"), nil
}

// Open opens (or creates) a SQLiteCache at the given path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*SQLiteCache, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("store: create dir for %s: %w", path, err)
		}
	}
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	c := &SQLiteCache{db: db}
	if err := c.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return c, nil
}

// migrate creates the schema if it does not already exist.
func (c *SQLiteCache) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS embeddings (
    key          TEXT    PRIMARY KEY, -- hex sha256(model || 0x00 || text)
    model        TEXT    NOT NULL,
    dim          INTEGER NOT NULL,
    vector       BLOB    NOT NULL,    -- little-endian float32
    created_at   INTEGER NOT NULL     -- Unix timestamp (seconds)
);
CREATE INDEX IF NOT EXISTS idx_embeddings_model ON embeddings (model);
`
	if _, err := c.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// cacheKey returns the primary key for (model, text).
func cacheKey(model, text string) string {
	h := sha256.New()
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// Lookup returns cached vectors for texts. Entries for misses are nil.
func (c *SQLiteCache) Lookup(ctx context.Context, model string, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	if len(texts) == 0 {
		return out, nil
	}

	keys := make([]any, len(texts))
	pos := make(map[string][]int, len(texts))
	for i, t := range texts {
		k := cacheKey(model, t)
		keys[i] = k
		pos[k] = append(pos[k], i)
	}

	q := `SELECT key, vector FROM embeddings WHERE key IN (?` + strings.Repeat(",?", len(keys)-1) + `)`
	rows, err := c.db.QueryContext(ctx, q, keys...)
	if err != nil {
		return nil, fmt.Errorf("store: lookup: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var blob []byte
		if err := rows.Scan(&key, &blob); err != nil {
			return nil, fmt.Errorf("store: lookup scan: %w", err)
		}
		vec, err := decodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("store: lookup %s: %w", key, err)
		}
		for _, i := range pos[key] {
			out[i] = vec
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: lookup rows: %w", err)
	}
	return out, nil
}

// Save upserts vectors in a single transaction.
func (c *SQLiteCache) Save(ctx context.Context, model string, texts []string, vecs [][]float32) error {
	if len(texts) != len(vecs) {
		return fmt.Errorf("store: save: %d texts but %d vectors", len(texts), len(vecs))
	}
	if len(texts) == 0 {
		return nil
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: save begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const q = `INSERT OR REPLACE INTO embeddings (key, model, dim, vector, created_at) VALUES (?, ?, ?, ?, ?)`
	now := time.Now().Unix()
	for i, t := range texts {
		if len(vecs[i]) == 0 {
			continue
		}
		if _, err := tx.ExecContext(ctx, q, cacheKey(model, t), model, len(vecs[i]), encodeVector(vecs[i]), now); err != nil {
			return fmt.Errorf("store: save: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: save commit: %w", err)
	}
	return nil
}

// Count returns the number of cached vectors for model.
func (c *SQLiteCache) Count(ctx context.Context, model string) (int, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM embeddings WHERE model = ?`, model).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count: %w", err)
	}
	return n, nil
}

// Ping verifies the database is reachable. It satisfies the server's readiness
// Pinger contract.
func (c *SQLiteCache) Ping(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		return fmt.Errorf("store: ping: %w", err)
	}
	return nil
}

// Close releases the database connection pool.
func (c *SQLiteCache) Close() error {
	if err := c.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(x))
	}
	return buf
}

func decodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("vector blob length %d is not a multiple of 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, nil
}
