package embedder

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

const ollamaName = "ollama embedder"

// OllamaEmbedder embeds text through a local Ollama server's /api/embed
// endpoint. It needs no credentials and is safe for concurrent use.
type OllamaEmbedder struct {
	endpoint string
	model    string
	client   *http.Client
}

// OllamaConfig holds the settings for constructing an OllamaEmbedder.
type OllamaConfig struct {
	// Host is the Ollama base URL (e.g. "http://localhost:11434").
	Host string
	// Model is the embedding model (e.g. "nomic-embed-text").
	Model string
}

// NewOllamaEmbedder constructs an OllamaEmbedder from the given config.
func NewOllamaEmbedder(cfg *OllamaConfig) *OllamaEmbedder {
	return &OllamaEmbedder{
		endpoint: strings.TrimRight(cfg.Host, "/") + "/api/embed",
		model:    cfg.Model,
		client:   &http.Client{Timeout: 60 * time.Second},
	}
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Error      string      `json:"error,omitempty"`
}

// Embed returns one vector per text, in input order.
func (e *OllamaEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	var out ollamaEmbedResponse
	call := jsonCall{
		name: ollamaName,
		url:  e.endpoint,
		body: ollamaEmbedRequest{Model: e.model, Input: texts},
	}
	if err := postJSON(ctx, e.client, call, ollamaErrorDetail, &out); err != nil {
		return nil, err
	}
	if err := checkVectors(ollamaName, len(texts), out.Embeddings); err != nil {
		return nil, err
	}
	return out.Embeddings, nil
}

// ollamaErrorDetail reads {"error": "..."} from a failed response.
func ollamaErrorDetail(body []byte) string {
	var r ollamaEmbedResponse
	if json.Unmarshal(body, &r) != nil {
		return ""
	}
	return r.Error
}
