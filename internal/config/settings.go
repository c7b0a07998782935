package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Index backends accepted by ASKDOCS_INDEX_BACKEND.
const (
	BackendBolt   = "bolt"
	BackendQdrant = "qdrant"
)

// Settings holds the askdocs-specific knobs resolved from the environment
// after Load and LoadDotEnv have filled it in. Provider and embedding
// settings are resolved by their own packages.
type Settings struct {
	// IndexBackend is BackendBolt or BackendQdrant.
	IndexBackend string
	// IndexPath is the bundle location for the bolt backend.
	IndexPath string

	// QdrantHost, QdrantPort, QdrantCollection, QdrantAPIKey and QdrantTLS
	// locate the Qdrant collection.
	QdrantHost       string
	QdrantPort       int
	QdrantCollection string
	QdrantAPIKey     string
	QdrantTLS        bool

	// TopK is the number of chunks retrieved per question.
	TopK int
	// Concurrency bounds parallel per-chunk model calls.
	Concurrency int
	// ModelTimeout bounds each model call.
	ModelTimeout time.Duration
	// MaxChunkTokens caps chunk text per model call (0 = no limit).
	MaxChunkTokens int
	// NoAnswer overrides the reply used when nothing was retrieved.
	NoAnswer string

	// Host and Port are the HTTP bind address.
	Host string
	Port int
	// APIKey enables Bearer auth on the API when non-empty.
	APIKey string
	// AuthUser and AuthPassword enable Basic auth when both are set.
	AuthUser     string
	AuthPassword string
	// SecureCookie marks the session cookie Secure (behind TLS).
	SecureCookie bool
	// ChatTimeout bounds one chat request.
	ChatTimeout time.Duration
	// SessionTTL is the idle session lifetime.
	SessionTTL time.Duration
	// RateLimit and RateBurst bound chat requests per client IP.
	RateLimit float64
	RateBurst int

	// Title, Placeholder and Examples customise the chat page.
	Title       string
	Placeholder string
	Examples    []string

	// EmbedCache is the SQLite cache path, "" for the default location, or
	// "disabled".
	EmbedCache string
}

// Defaults used when the matching variable is unset.
const (
	DefaultIndexPath    = "index"
	DefaultTopK         = 4
	DefaultConcurrency  = 4
	DefaultModelTimeout = 60 * time.Second
	DefaultChatTimeout  = 3 * time.Minute
	DefaultSessionTTL   = 30 * time.Minute
	DefaultHost         = "127.0.0.1"
	DefaultPort         = 8080
	DefaultRateLimit    = 10
	DefaultRateBurst    = 20
)

// SettingsFromEnv resolves Settings from environment variables, applying
// defaults and rejecting malformed or out-of-range values.
func SettingsFromEnv() (Settings, error) {
	s := Settings{
		IndexBackend:     strings.ToLower(envOr("ASKDOCS_INDEX_BACKEND", BackendBolt)),
		IndexPath:        envOr("ASKDOCS_INDEX_PATH", DefaultIndexPath),
		QdrantHost:       os.Getenv("QDRANT_HOST"),
		QdrantCollection: os.Getenv("QDRANT_COLLECTION"),
		QdrantAPIKey:     os.Getenv("QDRANT_API_KEY"),
		NoAnswer:         os.Getenv("ASKDOCS_NO_ANSWER"),
		Host:             envOr("ASKDOCS_HOST", DefaultHost),
		APIKey:           os.Getenv("ASKDOCS_API_KEY"),
		AuthUser:         os.Getenv("ASKDOCS_AUTH_USER"),
		AuthPassword:     os.Getenv("ASKDOCS_AUTH_PASSWORD"),
		Title:            os.Getenv("ASKDOCS_TITLE"),
		Placeholder:      os.Getenv("ASKDOCS_PLACEHOLDER"),
		Examples:         splitExamples(os.Getenv("ASKDOCS_EXAMPLES")),
		EmbedCache:       os.Getenv("ASKDOCS_EMBED_CACHE"),
	}

	switch s.IndexBackend {
	case BackendBolt, BackendQdrant:
	default:
		return s, fmt.Errorf("config: ASKDOCS_INDEX_BACKEND must be %q or %q, got %q", BackendBolt, BackendQdrant, s.IndexBackend)
	}

	var err error
	if s.QdrantTLS, err = envBool("QDRANT_TLS"); err != nil {
		return s, err
	}
	if s.SecureCookie, err = envBool("ASKDOCS_SECURE_COOKIE"); err != nil {
		return s, err
	}
	if s.QdrantPort, err = envInt("QDRANT_PORT", 0, 0); err != nil {
		return s, err
	}
	if s.TopK, err = envInt("ASKDOCS_TOP_K", DefaultTopK, 1); err != nil {
		return s, err
	}
	if s.Concurrency, err = envInt("ASKDOCS_MAP_CONCURRENCY", DefaultConcurrency, 1); err != nil {
		return s, err
	}
	if s.MaxChunkTokens, err = envInt("ASKDOCS_MAX_CHUNK_TOKENS", 0, 0); err != nil {
		return s, err
	}
	if s.Port, err = envInt("ASKDOCS_PORT", DefaultPort, 1); err != nil {
		return s, err
	}
	if s.RateBurst, err = envInt("ASKDOCS_RATE_BURST", DefaultRateBurst, 1); err != nil {
		return s, err
	}
	if s.ModelTimeout, err = parseDuration("ASKDOCS_MODEL_TIMEOUT", os.Getenv("ASKDOCS_MODEL_TIMEOUT"), DefaultModelTimeout); err != nil {
		return s, err
	}
	if s.ChatTimeout, err = parseDuration("ASKDOCS_CHAT_TIMEOUT", os.Getenv("ASKDOCS_CHAT_TIMEOUT"), DefaultChatTimeout); err != nil {
		return s, err
	}
	if s.SessionTTL, err = parseDuration("ASKDOCS_SESSION_TTL", os.Getenv("ASKDOCS_SESSION_TTL"), DefaultSessionTTL); err != nil {
		return s, err
	}

	s.RateLimit = DefaultRateLimit
	if v := os.Getenv("ASKDOCS_RATE_LIMIT"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			return s, fmt.Errorf("config: ASKDOCS_RATE_LIMIT must be a positive number, got %q", v)
		}
		s.RateLimit = f
	}

	if s.Port > 65535 {
		return s, fmt.Errorf("config: ASKDOCS_PORT out of range: %d", s.Port)
	}
	if (s.AuthUser == "") != (s.AuthPassword == "") {
		return s, fmt.Errorf("config: ASKDOCS_AUTH_USER and ASKDOCS_AUTH_PASSWORD must be set together")
	}
	return s, nil
}

// Addr returns the host:port bind address.
func (s Settings) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// CacheDisabled reports whether the embedding cache is turned off.
func (s Settings) CacheDisabled() bool {
	return strings.EqualFold(s.EmbedCache, "disabled") || strings.EqualFold(s.EmbedCache, "off")
}

// splitExamples splits a pipe-separated list, dropping blank entries.
func splitExamples(v string) []string {
	var out []string
	for _, e := range strings.Split(v, examplesSep) {
		if e = strings.TrimSpace(e); e != "" {
			out = append(out, e)
		}
	}
	return out
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// envInt parses key as an int no smaller than minVal.
func envInt(key string, fallback, minVal int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s must be an integer, got %q", key, v)
	}
	if n < minVal {
		return 0, fmt.Errorf("config: %s must be >= %d, got %d", key, minVal, n)
	}
	return n, nil
}

func envBool(key string) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("config: %s must be a boolean, got %q", key, v)
	}
	return b, nil
}
