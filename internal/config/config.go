// Package config resolves askdocs settings. The environment always wins; a
// .env file is applied next and the YAML file last, each only filling in
// variables that are still unset, and anything left falls back to defaults.
// Every setting therefore has exactly one env name.
//
// YAML file search order:
//  1. --config CLI flag (explicit path)
//  2. ASKDOCS_CONFIG environment variable
//  3. ~/.askdocs/config.yaml
//  4. ./askdocs.yaml
//
// If no file is found the system runs entirely from env vars.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config mirrors the YAML file. Every leaf carries an env tag naming the
// variable it feeds; Load copies non-zero leaves into unset variables, so the
// rest of askdocs only ever reads the environment.
type Config struct {
	Model     ModelConfig     `yaml:"model"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Index     IndexConfig     `yaml:"index"`
	Qdrant    QdrantConfig    `yaml:"qdrant"`
	Answer    AnswerConfig    `yaml:"answer"`
	Server    ServerConfig    `yaml:"server"`
	Widget    WidgetConfig    `yaml:"widget"`
	Cache     CacheConfig     `yaml:"cache"`
	Logging   LoggingConfig   `yaml:"logging"`
	Tracing   TracingConfig   `yaml:"tracing"`
}

// ModelConfig selects the chat model. Provider is one of ollama, openai,
// azure, bedrock or gemini; only the matching sub-section is read.
type ModelConfig struct {
	Provider    string        `yaml:"provider" env:"MODEL_PROVIDER"`
	MaxTokens   int           `yaml:"max_tokens" env:"MODEL_MAX_TOKENS"`
	Temperature float32       `yaml:"temperature" env:"MODEL_TEMPERATURE"`
	Ollama      OllamaConfig  `yaml:"ollama"`
	OpenAI      OpenAIConfig  `yaml:"openai"`
	Azure       AzureConfig   `yaml:"azure"`
	Bedrock     BedrockConfig `yaml:"bedrock"`
	Gemini      GeminiConfig  `yaml:"gemini"`
}

type OllamaConfig struct {
	Host  string `yaml:"host" env:"OLLAMA_HOST"`
	Model string `yaml:"model" env:"OLLAMA_MODEL"`
}

// OpenAIConfig also serves OpenAI-compatible servers through BaseURL.
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key" env:"OPENAI_API_KEY"`
	Model   string `yaml:"model" env:"OPENAI_MODEL"`
	BaseURL string `yaml:"base_url" env:"OPENAI_BASE_URL"`
}

type AzureConfig struct {
	APIKey     string `yaml:"api_key" env:"AZURE_OPENAI_API_KEY"`
	Endpoint   string `yaml:"endpoint" env:"AZURE_OPENAI_ENDPOINT"`
	Deployment string `yaml:"deployment" env:"AZURE_OPENAI_DEPLOYMENT"`
	APIVersion string `yaml:"api_version" env:"AZURE_OPENAI_API_VERSION"`
}

type BedrockConfig struct {
	Region  string `yaml:"region" env:"AWS_REGION"`
	ModelID string `yaml:"model_id" env:"BEDROCK_MODEL_ID"`
}

type GeminiConfig struct {
	APIKey string `yaml:"api_key" env:"GOOGLE_API_KEY"`
	Model  string `yaml:"model" env:"GEMINI_MODEL"`
}

// EmbeddingConfig overrides the embedding backend. Unset fields are inherited
// from the chat model section.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider" env:"EMBEDDING_PROVIDER"`
	Model      string `yaml:"model" env:"EMBEDDING_MODEL"`
	Dimensions int    `yaml:"dimensions" env:"EMBEDDING_DIMENSIONS"`
	APIKey     string `yaml:"api_key" env:"EMBEDDING_API_KEY"`
	Endpoint   string `yaml:"endpoint" env:"EMBEDDING_ENDPOINT"`
}

// IndexConfig picks "bolt" (a local bundle at Path) or "qdrant".
type IndexConfig struct {
	Backend string `yaml:"backend" env:"ASKDOCS_INDEX_BACKEND"`
	Path    string `yaml:"path" env:"ASKDOCS_INDEX_PATH"`
}

type QdrantConfig struct {
	Host       string `yaml:"host" env:"QDRANT_HOST"`
	Port       int    `yaml:"port" env:"QDRANT_PORT"`
	Collection string `yaml:"collection" env:"QDRANT_COLLECTION"`
	APIKey     string `yaml:"api_key" env:"QDRANT_API_KEY"`
	TLS        bool   `yaml:"tls" env:"QDRANT_TLS"`
}

// AnswerConfig tunes retrieval and synthesis. ModelTimeout is a Go duration.
type AnswerConfig struct {
	TopK           int    `yaml:"top_k" env:"ASKDOCS_TOP_K"`
	Concurrency    int    `yaml:"concurrency" env:"ASKDOCS_MAP_CONCURRENCY"`
	ModelTimeout   string `yaml:"model_timeout" env:"ASKDOCS_MODEL_TIMEOUT"`
	MaxChunkTokens int    `yaml:"max_chunk_tokens" env:"ASKDOCS_MAX_CHUNK_TOKENS"`
	NoAnswer       string `yaml:"no_answer" env:"ASKDOCS_NO_ANSWER"`
}

// ServerConfig configures askdocs serve. Secrets are better kept in the
// environment than in this file.
type ServerConfig struct {
	Host         string  `yaml:"host" env:"ASKDOCS_HOST"`
	Port         int     `yaml:"port" env:"ASKDOCS_PORT"`
	APIKey       string  `yaml:"api_key" env:"ASKDOCS_API_KEY"`
	AuthUser     string  `yaml:"auth_user" env:"ASKDOCS_AUTH_USER"`
	AuthPassword string  `yaml:"auth_password" env:"ASKDOCS_AUTH_PASSWORD"`
	SecureCookie bool    `yaml:"secure_cookie" env:"ASKDOCS_SECURE_COOKIE"`
	ChatTimeout  string  `yaml:"chat_timeout" env:"ASKDOCS_CHAT_TIMEOUT"`
	SessionTTL   string  `yaml:"session_ttl" env:"ASKDOCS_SESSION_TTL"`
	RateLimit    float64 `yaml:"rate_limit" env:"ASKDOCS_RATE_LIMIT"`
	RateBurst    int     `yaml:"rate_burst" env:"ASKDOCS_RATE_BURST"`
}

type WidgetConfig struct {
	Title       string   `yaml:"title" env:"ASKDOCS_TITLE"`
	Placeholder string   `yaml:"placeholder" env:"ASKDOCS_PLACEHOLDER"`
	Examples    []string `yaml:"examples" env:"ASKDOCS_EXAMPLES"`
}

// CacheConfig locates the embedding cache. Path "disabled" turns it off.
type CacheConfig struct {
	Path string `yaml:"path" env:"ASKDOCS_EMBED_CACHE"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Format string `yaml:"format" env:"LOG_FORMAT"`
}

type TracingConfig struct {
	PublicKey string `yaml:"public_key" env:"LANGFUSE_PUBLIC_KEY"`
	SecretKey string `yaml:"secret_key" env:"LANGFUSE_SECRET_KEY"`
	Host      string `yaml:"host" env:"LANGFUSE_HOST"`
}

// examplesSep separates example questions in ASKDOCS_EXAMPLES. Questions
// routinely contain commas, so a pipe is used.
const examplesSep = "|"

// envPair is one YAML leaf rendered for the environment.
type envPair struct {
	key   string
	value string
}

// envPairs walks cfg and returns every leaf with an env tag and a non-zero
// value, in declaration order.
func envPairs(cfg *Config) []envPair {
	var out []envPair
	var walk func(v reflect.Value)
	walk = func(v reflect.Value) {
		t := v.Type()
		for i := range t.NumField() {
			f, fv := t.Field(i), v.Field(i)
			if f.Type.Kind() == reflect.Struct {
				walk(fv)
				continue
			}
			key := f.Tag.Get("env")
			if key == "" {
				continue
			}
			if s := envValue(fv); s != "" {
				out = append(out, envPair{key: key, value: s})
			}
		}
	}
	walk(reflect.ValueOf(cfg).Elem())
	return out
}

// envValue formats a YAML leaf as an env value. Zero values format as "" so
// they never shadow defaults.
func envValue(v reflect.Value) string {
	if v.IsZero() {
		return ""
	}
	switch v.Kind() {
	case reflect.String:
		return v.String()
	case reflect.Int:
		return strconv.FormatInt(v.Int(), 10)
	case reflect.Float32:
		return strconv.FormatFloat(v.Float(), 'f', -1, 32)
	case reflect.Float64:
		return strconv.FormatFloat(v.Float(), 'f', -1, 64)
	case reflect.Bool:
		return "true"
	case reflect.Slice:
		parts := make([]string, v.Len())
		for i := range parts {
			parts[i] = v.Index(i).String()
		}
		return strings.Join(parts, examplesSep)
	default:
		return ""
	}
}

// LoadDotEnv loads variables from the given .env files (default: ./.env)
// without overriding variables already set. Missing files are skipped.
// Returns the files that were loaded.
func LoadDotEnv(paths ...string) ([]string, error) {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	var loaded []string
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return loaded, fmt.Errorf("config: failed to load %s: %w", p, err)
		}
		loaded = append(loaded, p)
	}
	return loaded, nil
}

// Load reads a YAML config file and applies non-empty values as environment
// variables. Existing env vars are never overwritten (env always wins).
// Returns the path that was loaded, or empty string if no file was found.
// An explicit path that does not exist is an error.
func Load(explicitPath string, log *slog.Logger) (string, error) {
	path, err := resolveConfigPath(explicitPath)
	if err != nil {
		return "", err
	}
	if path == "" {
		log.Debug("config: no YAML config file found, using env vars only")
		return "", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return "", fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	applied := 0
	for _, p := range envPairs(&cfg) {
		if _, set := os.LookupEnv(p.key); set {
			continue
		}
		if err := os.Setenv(p.key, p.value); err != nil {
			return "", fmt.Errorf("config: set %s: %w", p.key, err)
		}
		applied++
	}

	log.Info("config: loaded YAML config",
		slog.String("path", path),
		slog.Int("keys_applied", applied),
	)

	return path, nil
}

// resolveConfigPath returns the first config file path that exists.
func resolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config: %w", err)
		}
		return explicit, nil
	}

	if envPath := os.Getenv("ASKDOCS_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath, nil
		}
	}

	home, err := os.UserHomeDir()
	if err == nil {
		p := filepath.Join(home, ".askdocs", "config.yaml")
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	if _, err := os.Stat("askdocs.yaml"); err == nil {
		return "askdocs.yaml", nil
	}

	return "", nil
}

// parseDuration parses a Go duration, falling back when s is empty.
func parseDuration(key, s string, fallback time.Duration) (time.Duration, error) {
	if s == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("config: %s must be positive, got %s", key, s)
	}
	return d, nil
}
