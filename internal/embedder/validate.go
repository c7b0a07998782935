package embedder

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// chatModelMarkers are name fragments of chat models. An embedding model
// whose name contains one is almost certainly misconfigured.
var chatModelMarkers = []string{
	"gpt-4", "gpt-3.5", "gpt-35", "o1", "o3",
	"llama2", "llama3", "llama-2", "llama-3",
	"mistral", "mixtral", "gemma", "phi3", "phi-",
	"claude", "command-r", "deepseek", "qwen",
	"solar", "vicuna", "falcon", "yi-",
}

// embeddingModelMarkers short-circuit the chat-model check for names such as
// "mistral-embed" or "qwen3-embedding".
var embeddingModelMarkers = []string{"embed", "bge-", "e5-", "minilm", "gte-"}

// looksLikeChatModel reports whether model is named like a chat model rather
// than an embedding model.
func looksLikeChatModel(model string) bool {
	lower := strings.ToLower(model)
	for _, m := range embeddingModelMarkers {
		if strings.Contains(lower, m) {
			return false
		}
	}
	for _, m := range chatModelMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// Validate checks resolved settings before an index is opened or built. An
// unusable dimension is an error; an inherited backend or a chat-looking model
// name is only logged.
func Validate(log *slog.Logger, s Settings) error {
	if s.Dimensions <= 0 {
		return fmt.Errorf("embedder: EMBEDDING_DIMENSIONS must be positive, got %d", s.Dimensions)
	}

	if s.Backend != "ollama" && os.Getenv("EMBEDDING_PROVIDER") == "" {
		log.Warn("embedder: EMBEDDING_PROVIDER unset, using MODEL_PROVIDER",
			slog.String("backend", s.Backend),
			slog.String("hint", "set EMBEDDING_PROVIDER explicitly so index and query embeddings cannot drift"),
		)
	}
	if looksLikeChatModel(s.Model) {
		log.Warn("embedder: EMBEDDING_MODEL looks like a chat model",
			slog.String("model", s.Model),
			slog.String("hint", "use an embedding model such as nomic-embed-text or text-embedding-3-small"),
		)
	}
	return nil
}
