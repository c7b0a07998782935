// Package embedder provides implementations of the rag.Embedder interface for
// converting questions and document chunks into dense vectors. OpenAI, Azure
// OpenAI and Ollama are reached over plain HTTP; Gemini goes through the
// google.golang.org/genai client already used for chat.
package embedder

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const openaiName = "openai embedder"

// OpenAIEmbedder embeds text through the OpenAI embeddings API or an Azure
// OpenAI deployment. It is safe for concurrent use.
type OpenAIEmbedder struct {
	endpoint   string
	header     http.Header
	model      string
	dimensions int
	client     *http.Client
}

// OpenAIConfig holds the settings for constructing an OpenAIEmbedder.
type OpenAIConfig struct {
	// BaseURL is "https://api.openai.com/v1" for OpenAI or
	// "https://<resource>.openai.azure.com/openai" for Azure.
	BaseURL string
	// APIKey authenticates as a Bearer token (OpenAI) or api-key header (Azure).
	APIKey string
	// Model is the embedding model, or the deployment name on Azure.
	Model string
	// Dimensions requests a shortened vector (0 = model default).
	Dimensions int
	// Azure switches to deployment URLs and api-key auth.
	Azure bool
	// APIVersion is the Azure api-version query value.
	APIVersion string
}

// NewOpenAIEmbedder constructs an OpenAIEmbedder from the given config.
func NewOpenAIEmbedder(cfg *OpenAIConfig) *OpenAIEmbedder {
	base := strings.TrimRight(cfg.BaseURL, "/")
	e := &OpenAIEmbedder{
		endpoint:   base + "/embeddings",
		header:     http.Header{},
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		client:     &http.Client{Timeout: 30 * time.Second},
	}
	if cfg.Azure {
		e.endpoint = base + "/deployments/" + url.PathEscape(cfg.Model) +
			"/embeddings?api-version=" + url.QueryEscape(cfg.APIVersion)
		e.header.Set("api-key", cfg.APIKey)
	} else {
		e.header.Set("Authorization", "Bearer "+cfg.APIKey)
	}
	return e
}

type openaiEmbedRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type openaiEmbedding struct {
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

type openaiEmbedResponse struct {
	Data  []openaiEmbedding `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Embed returns one vector per text, in input order.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	var out openaiEmbedResponse
	call := jsonCall{
		name:   openaiName,
		url:    e.endpoint,
		header: e.header,
		body:   openaiEmbedRequest{Input: texts, Model: e.model, Dimensions: e.dimensions},
	}
	if err := postJSON(ctx, e.client, call, openaiErrorDetail, &out); err != nil {
		return nil, err
	}

	vecs, err := placeByIndex(out.Data, len(texts))
	if err != nil {
		return nil, err
	}
	if err := checkVectors(openaiName, len(texts), vecs); err != nil {
		return nil, err
	}
	return vecs, nil
}

// placeByIndex orders data by its Index field. The API does not promise
// response order matches input order.
func placeByIndex(data []openaiEmbedding, n int) ([][]float32, error) {
	if len(data) != n {
		return nil, fmt.Errorf("%s: expected %d embeddings, got %d", openaiName, n, len(data))
	}
	vecs := make([][]float32, n)
	for _, d := range data {
		if d.Index < 0 || d.Index >= n {
			return nil, fmt.Errorf("%s: index %d out of range [0, %d)", openaiName, d.Index, n)
		}
		if vecs[d.Index] != nil {
			return nil, fmt.Errorf("%s: duplicate index %d", openaiName, d.Index)
		}
		vecs[d.Index] = d.Embedding
	}
	return vecs, nil
}

// openaiErrorDetail reads {"error": {"message": "..."}} from a failed response.
func openaiErrorDetail(body []byte) string {
	var r openaiEmbedResponse
	if json.Unmarshal(body, &r) != nil || r.Error == nil {
		return ""
	}
	return r.Error.Message
}
