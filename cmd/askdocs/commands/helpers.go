package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/54b3r/askdocs-go/internal/chat"
	"github.com/54b3r/askdocs-go/internal/config"
	"github.com/54b3r/askdocs-go/internal/embedder"
	"github.com/54b3r/askdocs-go/internal/provider"
	"github.com/54b3r/askdocs-go/internal/rag"
	"github.com/54b3r/askdocs-go/internal/server"
	"github.com/54b3r/askdocs-go/internal/store"
	"github.com/54b3r/askdocs-go/internal/synth"
)

// closers collects cleanup functions and runs them in reverse order.
type closers []func()

func (c *closers) add(fn func()) { *c = append(*c, fn) }

func (c closers) run() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

// embedding is a resolved embedder together with its settings and the
// optional cache backing it.
type embedding struct {
	embedder rag.Embedder
	settings embedder.Settings
	cache    *store.SQLiteCache
}

// buildEmbedder resolves the embedder from the environment and wraps it with
// the SQLite cache unless ASKDOCS_EMBED_CACHE=disabled. A cache that cannot
// be opened is logged and skipped.
func buildEmbedder(ctx context.Context, log *slog.Logger, s config.Settings, cl *closers) (*embedding, error) {
	emb, es, err := embedder.NewFromEnv(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}
	if err := embedder.Validate(log, es); err != nil {
		return nil, err
	}
	log.Info("embedder initialised",
		slog.String("backend", es.Backend),
		slog.String("model", es.Model),
		slog.Int("dimensions", es.Dimensions),
	)

	out := &embedding{embedder: emb, settings: es}
	if s.CacheDisabled() {
		log.Info("embed cache: disabled via ASKDOCS_EMBED_CACHE")
		return out, nil
	}

	dbPath := s.EmbedCache
	if dbPath == "" {
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			log.Warn("embed cache: could not resolve default path, disabling", slog.Any("error", err))
			return out, nil
		}
	}
	cache, err := store.Open(dbPath)
	if err != nil {
		log.Warn("embed cache: failed to open, disabling", slog.String("path", dbPath), slog.Any("error", err))
		return out, nil
	}
	cl.add(func() { _ = cache.Close() })
	log.Info("embed cache: opened", slog.String("path", dbPath))

	out.embedder = store.NewCachedEmbedder(emb, cache, es.Model)
	out.cache = cache
	return out, nil
}

// qdrantConfig builds the collection settings from resolved config.
func qdrantConfig(s config.Settings, dimensions int) rag.QdrantConfig {
	return rag.QdrantConfig{
		Host:       s.QdrantHost,
		Port:       s.QdrantPort,
		Collection: s.QdrantCollection,
		VectorSize: uint64(dimensions), //nolint:gosec // dimensions are validated positive
		APIKey:     s.QdrantAPIKey,
		UseTLS:     s.QdrantTLS,
	}
}

// openIndex opens the configured vector index. For Qdrant the concrete
// index is also returned so callers can probe the client.
func openIndex(ctx context.Context, log *slog.Logger, s config.Settings, es embedder.Settings, cl *closers) (rag.VectorIndex, *rag.QdrantIndex, error) {
	switch s.IndexBackend {
	case config.BackendQdrant:
		qidx, err := rag.NewQdrantIndex(ctx, qdrantConfig(s, es.Dimensions))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open qdrant index: %w", err)
		}
		cl.add(func() { _ = qidx.Close() })
		log.Info("index: qdrant collection opened", slog.Int("dimension", qidx.Dimension()))
		return qidx, qidx, nil

	default:
		bidx, err := rag.LoadBundle(s.IndexPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load index bundle: %w", err)
		}
		cl.add(func() { _ = bidx.Close() })
		info := bidx.Info()
		log.Info("index: bundle loaded",
			slog.String("path", info.Path),
			slog.Int("chunks", info.Chunks),
			slog.Int("dimension", info.Dimension),
			slog.String("model", info.Model),
		)
		if info.Model != "" && info.Model != es.Model {
			log.Warn("index: bundle was built with a different embedding model",
				slog.String("bundle_model", info.Model),
				slog.String("embedder_model", es.Model),
			)
		}
		return bidx, nil, nil
	}
}

// buildSynthesizer constructs the model-backed map-rerank synthesizer.
func buildSynthesizer(ctx context.Context, log *slog.Logger, s config.Settings) (*synth.Synthesizer, *provider.Config, error) {
	chatModel, pcfg, err := provider.NewFromEnv(ctx)
	if err != nil {
		return nil, pcfg, fmt.Errorf("failed to initialise model provider: %w", err)
	}
	completer, err := provider.NewChatCompleter(chatModel, pcfg.SupportsSampling())
	if err != nil {
		return nil, pcfg, err
	}
	log.Info("provider initialised",
		slog.String("provider", string(pcfg.Backend)),
		slog.String("model", pcfg.ModelName()),
	)

	sy, err := synth.New(completer, synth.Config{
		MaxTokens:      pcfg.Tuning.MaxTokens,
		Temperature:    pcfg.Tuning.Temperature,
		Concurrency:    s.Concurrency,
		CallTimeout:    s.ModelTimeout,
		MaxChunkTokens: s.MaxChunkTokens,
		NoAnswer:       s.NoAnswer,
	})
	if err != nil {
		return nil, pcfg, err
	}
	return sy, pcfg, nil
}

// stack is everything a question needs, built once per process.
type stack struct {
	pipeline *chat.Pipeline
	emb      *embedding
	index    rag.VectorIndex
	qdrant   *rag.QdrantIndex
	provider *provider.Config
}

// buildStack wires embedder, index, retriever and synthesizer into a
// pipeline. observer may be nil. Cleanups are registered on cl in open
// order so they run in reverse.
func buildStack(ctx context.Context, log *slog.Logger, s config.Settings, observer chat.StageObserver, cl *closers) (*stack, error) {
	emb, err := buildEmbedder(ctx, log, s, cl)
	if err != nil {
		return nil, err
	}
	idx, qidx, err := openIndex(ctx, log, s, emb.settings, cl)
	if err != nil {
		return nil, err
	}
	if d := idx.Dimension(); d > 0 && d != emb.settings.Dimensions {
		log.Warn("index dimension differs from embedder setting; searches will fail unless the model emits index-sized vectors",
			slog.Int("index_dimension", d),
			slog.Int("embedder_dimensions", emb.settings.Dimensions),
		)
	}

	retriever, err := rag.NewRetriever(emb.embedder, idx, s.TopK)
	if err != nil {
		return nil, err
	}
	sy, pcfg, err := buildSynthesizer(ctx, log, s)
	if err != nil {
		return nil, err
	}
	pipeline, err := chat.NewPipeline(retriever, sy, s.TopK, observer)
	if err != nil {
		return nil, err
	}
	return &stack{pipeline: pipeline, emb: emb, index: idx, qdrant: qidx, provider: pcfg}, nil
}

// buildPingers returns the readiness probes for the serving dependencies.
func buildPingers(st *stack) []server.Pinger {
	pingers := []server.Pinger{server.NewIndexPinger(st.index)}
	if st.qdrant != nil {
		pingers = append(pingers, server.NewQdrantPinger(st.qdrant.Client()))
	}
	if st.emb.cache != nil {
		pingers = append(pingers, server.NewFuncPinger("embed_cache", st.emb.cache.Ping))
	}
	if st.emb.settings.Backend == "ollama" {
		pingers = append(pingers, server.NewHTTPPinger("embedder", ollamaTagsURL(st.emb.settings.Endpoint)))
	}
	if st.provider != nil && st.provider.Backend == provider.BackendOllama {
		pingers = append(pingers, server.NewHTTPPinger("model", ollamaTagsURL(st.provider.Ollama.Host)))
	}
	return pingers
}

// ollamaTagsURL returns the model listing endpoint, which answers without
// loading a model.
func ollamaTagsURL(host string) string {
	return strings.TrimRight(host, "/") + "/api/tags"
}

// errNoQuestion is returned by ask for blank input.
var errNoQuestion = errors.New("ask: question must not be blank")
