package rag

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.etcd.io/bbolt"
)

// BundleFile is the database file name used when a bundle path is a directory.
const BundleFile = "index.db"

// bundleFormatVersion is bumped whenever the on-disk layout changes.
const bundleFormatVersion = "1"

var (
	bucketMeta   = []byte("meta")
	bucketChunks = []byte("chunks")

	keyDimension = []byte("dimension")
	keyModel     = []byte("model")
	keyCreatedAt = []byte("created_at")
	keyVersion   = []byte("format_version")
)

// BundleInfo describes a loaded index bundle.
type BundleInfo struct {
	// Path is the resolved database file path.
	Path string
	// Model is the embedding model recorded by the indexer.
	Model string
	// Dimension is the embedding dimension recorded by the indexer.
	Dimension int
	// CreatedAt is when the bundle was written.
	CreatedAt time.Time
	// Chunks is the number of chunks in the bundle.
	Chunks int
}

// storedChunk is the JSON value stored per chunk in the chunks bucket.
type storedChunk struct {
	ID       string            `json:"id"`
	Text     string            `json:"text"`
	Source   string            `json:"source,omitempty"`
	Metadata map[string]string `json:"meta,omitempty"`
	Vector   []float32         `json:"v"`
}

// BoltIndex is a MemoryIndex loaded from a bbolt bundle written by the
// offline indexer. The database is opened read-only and closed once loaded.
type BoltIndex struct {
	*MemoryIndex
	// info describes the bundle the index was loaded from.
	info BundleInfo
}

// Info returns the bundle metadata.
func (b *BoltIndex) Info() BundleInfo { return b.info }

// ResolveBundlePath returns the database file for path. A path ending in
// ".db" is used as-is; anything else is treated as a bundle directory.
func ResolveBundlePath(path string) string {
	if strings.HasSuffix(path, ".db") {
		return path
	}
	if fi, err := os.Stat(path); err == nil && !fi.IsDir() {
		return path
	}
	return filepath.Join(path, BundleFile)
}

// LoadBundle opens the bundle at path read-only and loads every chunk into
// memory in insertion order.
func LoadBundle(path string) (*BoltIndex, error) {
	dbPath := ResolveBundlePath(path)
	if _, err := os.Stat(dbPath); err != nil {
		return nil, fmt.Errorf("rag: index bundle %s: %w", dbPath, err)
	}

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{ReadOnly: true, Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("rag: open bundle %s: %w", dbPath, err)
	}
	defer db.Close()

	info := BundleInfo{Path: dbPath}
	var chunks []Chunk

	err = db.View(func(tx *bbolt.Tx) error {
		meta := tx.Bucket(bucketMeta)
		if meta == nil {
			return errors.New("missing meta bucket")
		}
		if v := string(meta.Get(keyVersion)); v != bundleFormatVersion {
			return fmt.Errorf("unsupported bundle format %q", v)
		}
		info.Model = string(meta.Get(keyModel))
		if v := meta.Get(keyDimension); v != nil {
			dim, err := strconv.Atoi(string(v))
			if err != nil {
				return fmt.Errorf("bad dimension %q: %w", v, err)
			}
			info.Dimension = dim
		}
		if v := meta.Get(keyCreatedAt); v != nil {
			info.CreatedAt, _ = time.Parse(time.RFC3339, string(v))
		}

		b := tx.Bucket(bucketChunks)
		if b == nil {
			return errors.New("missing chunks bucket")
		}
		// Keys are big-endian ordinals so ForEach walks insertion order.
		return b.ForEach(func(k, v []byte) error {
			var sc storedChunk
			if err := json.Unmarshal(v, &sc); err != nil {
				return fmt.Errorf("chunk %x: %w", k, err)
			}
			chunks = append(chunks, Chunk{
				ID:        sc.ID,
				Text:      sc.Text,
				Source:    sc.Source,
				Metadata:  sc.Metadata,
				Embedding: sc.Vector,
			})
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("rag: load bundle %s: %w", dbPath, err)
	}

	mem, err := NewMemoryIndex(chunks)
	if err != nil {
		return nil, fmt.Errorf("rag: load bundle %s: %w", dbPath, err)
	}
	if info.Dimension != 0 && mem.Dimension() != 0 && info.Dimension != mem.Dimension() {
		return nil, fmt.Errorf("rag: bundle %s records dimension %d but chunks have %d",
			dbPath, info.Dimension, mem.Dimension())
	}
	info.Chunks = len(chunks)

	return &BoltIndex{MemoryIndex: mem, info: info}, nil
}

// BundleWriter writes a fresh index bundle. It implements IndexWriter.
type BundleWriter struct {
	// db is the open bundle database.
	db *bbolt.DB
	// dim is the dimension fixed by the first written chunk.
	dim int
}

// CreateBundle creates a new bundle at path, replacing any existing bundle
// file, and records the embedding model name in its metadata.
func CreateBundle(path, model string) (*BundleWriter, error) {
	dbPath := ResolveBundlePath(path)
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("rag: create bundle dir: %w", err)
	}
	if err := os.Remove(dbPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("rag: remove old bundle %s: %w", dbPath, err)
	}

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("rag: create bundle %s: %w", dbPath, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		meta, err := tx.CreateBucketIfNotExists(bucketMeta)
		if err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(bucketChunks); err != nil {
			return err
		}
		if err := meta.Put(keyVersion, []byte(bundleFormatVersion)); err != nil {
			return err
		}
		if err := meta.Put(keyModel, []byte(model)); err != nil {
			return err
		}
		return meta.Put(keyCreatedAt, []byte(time.Now().UTC().Format(time.RFC3339)))
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("rag: init bundle %s: %w", dbPath, err)
	}

	return &BundleWriter{db: db}, nil
}

// Write appends chunks to the bundle in slice order.
func (w *BundleWriter) Write(_ context.Context, chunks []Chunk) error {
	err := w.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketChunks)
		for _, c := range chunks {
			if len(c.Embedding) == 0 {
				return fmt.Errorf("chunk %s has no embedding", c.ID)
			}
			if w.dim == 0 {
				w.dim = len(c.Embedding)
				if err := tx.Bucket(bucketMeta).Put(keyDimension, []byte(strconv.Itoa(w.dim))); err != nil {
					return err
				}
			} else if len(c.Embedding) != w.dim {
				return fmt.Errorf("chunk %s has dimension %d, expected %d", c.ID, len(c.Embedding), w.dim)
			}

			seq, err := b.NextSequence()
			if err != nil {
				return err
			}
			data, err := json.Marshal(storedChunk{
				ID:       c.ID,
				Text:     c.Text,
				Source:   c.Source,
				Metadata: c.Metadata,
				Vector:   c.Embedding,
			})
			if err != nil {
				return err
			}
			key := make([]byte, 8)
			binary.BigEndian.PutUint64(key, seq)
			if err := b.Put(key, data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("rag: bundle write: %w", err)
	}
	return nil
}

// Close closes the bundle database.
func (w *BundleWriter) Close() error {
	if err := w.db.Close(); err != nil {
		return fmt.Errorf("rag: bundle close: %w", err)
	}
	return nil
}
