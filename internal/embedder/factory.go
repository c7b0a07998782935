package embedder

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/54b3r/askdocs-go/internal/rag"
)

// profile holds a backend's defaults and the chat-provider variables its
// credentials are inherited from.
type profile struct {
	model      string
	dimensions int
	// keyEnv is the inherited API key variable; "" means no key is needed.
	keyEnv string
	// endpointEnv is the inherited endpoint variable.
	endpointEnv string
	// endpoint is used when neither EMBEDDING_ENDPOINT nor endpointEnv is set.
	// "" makes the endpoint mandatory.
	endpoint string
}

// profiles lists the embedding backends. Dimensions are those of the default
// model; a different EMBEDDING_MODEL usually needs EMBEDDING_DIMENSIONS too.
var profiles = map[string]profile{
	"ollama": {model: "nomic-embed-text", dimensions: 768, endpointEnv: "OLLAMA_HOST", endpoint: "http://localhost:11434"},
	"openai": {model: "text-embedding-3-small", dimensions: 1536, keyEnv: "OPENAI_API_KEY", endpoint: "https://api.openai.com/v1"},
	"azure":  {model: "text-embedding-3-small", dimensions: 1536, keyEnv: "AZURE_OPENAI_API_KEY", endpointEnv: "AZURE_OPENAI_ENDPOINT"},
	"gemini": {model: "text-embedding-004", dimensions: 768, keyEnv: "GOOGLE_API_KEY"},
}

const defaultAzureAPIVersion = "2025-04-01-preview"

// Settings is the resolved embedding configuration. The model name keys the
// embedding cache and is recorded in index bundles; Dimensions sizes new
// Qdrant collections.
type Settings struct {
	// Backend is one of ollama, openai, azure, gemini.
	Backend string
	// Model is the embedding model (or Azure deployment) name.
	Model string
	// Dimensions is the expected vector length.
	Dimensions int
	// Endpoint is the base URL for HTTP backends.
	Endpoint string
	// APIKey authenticates against the backend. Never logged.
	APIKey string
	// APIVersion is the Azure OpenAI API version.
	APIVersion string
}

// SettingsFromEnv resolves embedding settings. EMBEDDING_PROVIDER picks the
// backend and falls back to MODEL_PROVIDER, so a single-provider setup needs
// no embedding variables at all. Credentials and endpoints are inherited from
// the chat provider's variables unless EMBEDDING_API_KEY or
// EMBEDDING_ENDPOINT override them; EMBEDDING_MODEL and EMBEDDING_DIMENSIONS
// override the backend defaults.
func SettingsFromEnv() (Settings, error) {
	backend := strings.ToLower(firstEnv("EMBEDDING_PROVIDER", "MODEL_PROVIDER"))
	if backend == "" {
		backend = "ollama"
	}
	if backend == "bedrock" {
		return Settings{Backend: backend}, fmt.Errorf("embedder: bedrock has no embedding backend; set EMBEDDING_PROVIDER to ollama, openai, azure or gemini")
	}
	p, ok := profiles[backend]
	if !ok {
		return Settings{Backend: backend}, fmt.Errorf("embedder: unknown backend %q (valid: ollama, openai, azure, gemini)", backend)
	}

	s := Settings{
		Backend:    backend,
		Model:      envOr("EMBEDDING_MODEL", p.model),
		Dimensions: p.dimensions,
	}

	if v := os.Getenv("EMBEDDING_DIMENSIONS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return s, fmt.Errorf("embedder: EMBEDDING_DIMENSIONS must be an integer, got %q", v)
		}
		s.Dimensions = n
	}

	if p.keyEnv != "" {
		s.APIKey = firstEnv("EMBEDDING_API_KEY", p.keyEnv)
		if s.APIKey == "" {
			return s, fmt.Errorf("embedder: %s requires %s or EMBEDDING_API_KEY", backend, p.keyEnv)
		}
	}

	s.Endpoint = firstEnv("EMBEDDING_ENDPOINT", p.endpointEnv)
	if s.Endpoint == "" {
		s.Endpoint = p.endpoint
	}
	if s.Endpoint == "" && backend != "gemini" {
		return s, fmt.Errorf("embedder: %s requires %s or EMBEDDING_ENDPOINT", backend, p.endpointEnv)
	}

	if backend == "azure" {
		s.APIVersion = envOr("AZURE_OPENAI_API_VERSION", defaultAzureAPIVersion)
	}
	return s, nil
}

// New constructs a rag.Embedder from resolved settings.
func New(ctx context.Context, s Settings) (rag.Embedder, error) {
	switch s.Backend {
	case "ollama":
		return NewOllamaEmbedder(&OllamaConfig{Host: s.Endpoint, Model: s.Model}), nil
	case "openai", "azure":
		cfg := &OpenAIConfig{
			BaseURL:    s.Endpoint,
			APIKey:     s.APIKey,
			Model:      s.Model,
			Dimensions: s.Dimensions,
		}
		if s.Backend == "azure" {
			cfg.BaseURL = strings.TrimRight(s.Endpoint, "/") + "/openai"
			cfg.Azure = true
			cfg.APIVersion = s.APIVersion
		}
		return NewOpenAIEmbedder(cfg), nil
	case "gemini":
		return NewGeminiEmbedder(ctx, &GeminiConfig{
			APIKey:     s.APIKey,
			Model:      s.Model,
			Dimensions: s.Dimensions,
		})
	default:
		return nil, fmt.Errorf("embedder: unknown backend %q", s.Backend)
	}
}

// NewFromEnv resolves settings from the environment and constructs the
// embedder. The settings are returned so callers can key caches and size
// collections.
func NewFromEnv(ctx context.Context) (rag.Embedder, Settings, error) {
	s, err := SettingsFromEnv()
	if err != nil {
		return nil, s, err
	}
	emb, err := New(ctx, s)
	if err != nil {
		return nil, s, err
	}
	return emb, s, nil
}

// firstEnv returns the first non-empty value among keys. Empty keys are
// skipped.
func firstEnv(keys ...string) string {
	for _, k := range keys {
		if k == "" {
			continue
		}
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return ""
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
