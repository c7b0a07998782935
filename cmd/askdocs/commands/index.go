package commands

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/54b3r/askdocs-go/internal/config"
	"github.com/54b3r/askdocs-go/internal/ingestion"
	"github.com/54b3r/askdocs-go/internal/logging"
	"github.com/54b3r/askdocs-go/internal/rag"
)

// NewIndexCmd constructs the `askdocs index` command, which runs the offline
// ingestion pipeline to build the vector index the server answers from.
func NewIndexCmd() *cobra.Command {
	var (
		globs      []string
		excludes   []string
		urls       []string
		meta       []string
		backend    string
		out        string
		chunkSize  int
		overlap    int
		batchSize  int
		noProgress bool
	)

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Build the vector index from local files and URLs",
		Long: `Chunk, embed, and store documents in the vector index.

Local files are selected with doublestar globs (a bare directory means every
supported document below it). URLs are fetched and HTML is reduced to text.
The bolt backend writes a self-contained bundle that 'askdocs serve' loads
at startup; the qdrant backend upserts into a collection.

Re-indexing the same corpus produces the same chunk IDs, so a Qdrant
collection is updated in place. A bolt bundle is always rebuilt.

Examples:
  askdocs index --glob 'docs/**/*.md'
  askdocs index --glob transcripts/ --exclude '**/drafts/**' --out ./index
  askdocs index --url https://example.com/town-hall-notes.html --meta event=townhall
  askdocs index --backend qdrant --glob 'docs/**/*.txt'`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)

			if len(globs) == 0 && len(urls) == 0 {
				return fmt.Errorf("index: at least one --glob or --url is required")
			}

			settings, err := config.SettingsFromEnv()
			if err != nil {
				return fmt.Errorf("index: %w", err)
			}
			if cmd.Flags().Changed("backend") {
				settings.IndexBackend = strings.ToLower(backend)
			}
			if cmd.Flags().Changed("out") {
				settings.IndexPath = out
			}

			extra, err := parseMeta(meta)
			if err != nil {
				return fmt.Errorf("index: %w", err)
			}

			sources, err := collectSources(globs, excludes, urls, extra)
			if err != nil {
				return fmt.Errorf("index: %w", err)
			}
			log.Info("index: sources resolved", slog.Int("sources", len(sources)))

			var cl closers
			defer cl.run()

			emb, err := buildEmbedder(ctx, log, settings, &cl)
			if err != nil {
				return fmt.Errorf("index: %w", err)
			}

			writer, err := openWriter(cmd, settings, emb)
			if err != nil {
				return fmt.Errorf("index: %w", err)
			}

			pipeline, err := ingestion.NewPipeline(emb.embedder, writer, &ingestion.Config{
				ChunkSize:    chunkSize,
				ChunkOverlap: overlap,
				BatchSize:    batchSize,
			})
			if err != nil {
				_ = writer.Close()
				return fmt.Errorf("index: failed to create pipeline: %w", err)
			}

			var progress func(ingestion.Progress)
			if !noProgress {
				progress = newProgressReporter(cmd.ErrOrStderr())
			}

			stats, err := pipeline.Ingest(ctx, sources, progress)
			closeErr := writer.Close()
			if err != nil {
				return fmt.Errorf("index: pipeline failed: %w", err)
			}
			if closeErr != nil {
				return fmt.Errorf("index: finalise index: %w", closeErr)
			}

			log.Info("index: complete",
				slog.String("backend", settings.IndexBackend),
				slog.Int("documents", stats.Documents),
				slog.Int("skipped", stats.Skipped),
				slog.Int("chunks", stats.Chunks),
			)
			fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d chunks from %d documents (%d skipped)\n",
				stats.Chunks, stats.Documents, stats.Skipped)
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&globs, "glob", "g", nil, "File glob or directory to index (repeatable, supports **)")
	cmd.Flags().StringArrayVar(&excludes, "exclude", nil, "Glob of files to skip (repeatable)")
	cmd.Flags().StringArrayVarP(&urls, "url", "u", nil, "URL to fetch and index (repeatable)")
	cmd.Flags().StringArrayVar(&meta, "meta", nil, "Metadata key=value attached to every chunk (repeatable)")
	cmd.Flags().StringVar(&backend, "backend", config.BackendBolt, "Index backend: bolt or qdrant (overrides ASKDOCS_INDEX_BACKEND)")
	cmd.Flags().StringVarP(&out, "out", "o", config.DefaultIndexPath, "Bundle path for the bolt backend (overrides ASKDOCS_INDEX_PATH)")
	cmd.Flags().IntVar(&chunkSize, "chunk-size", 1000, "Maximum characters per chunk")
	cmd.Flags().IntVar(&overlap, "chunk-overlap", 100, "Characters shared by consecutive chunks")
	cmd.Flags().IntVar(&batchSize, "batch-size", 32, "Chunks per embedding request")
	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "Disable the progress bar")

	return cmd
}

// openWriter creates the index writer for the configured backend.
func openWriter(cmd *cobra.Command, s config.Settings, emb *embedding) (rag.IndexWriter, error) {
	switch s.IndexBackend {
	case config.BackendBolt:
		return rag.CreateBundle(s.IndexPath, emb.settings.Model)
	case config.BackendQdrant:
		return rag.NewQdrantWriter(cmd.Context(), qdrantConfig(s, emb.settings.Dimensions))
	default:
		return nil, fmt.Errorf("unknown backend %q (want %s or %s)", s.IndexBackend, config.BackendBolt, config.BackendQdrant)
	}
}

// collectSources expands globs and URLs into ingestion sources carrying the
// extra metadata.
func collectSources(globs, excludes, urls []string, extra map[string]string) ([]ingestion.Source, error) {
	var sources []ingestion.Source
	if len(globs) > 0 {
		files, err := ingestion.ExpandGlobs(globs, excludes)
		if err != nil {
			return nil, err
		}
		sources = append(sources, files...)
	}
	if len(urls) > 0 {
		remote, err := ingestion.URLSources(urls)
		if err != nil {
			return nil, err
		}
		sources = append(sources, remote...)
	}
	if len(extra) > 0 {
		for i := range sources {
			sources[i].Metadata = extra
		}
	}
	return sources, nil
}

// parseMeta parses key=value pairs.
func parseMeta(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("--meta %q: want key=value", p)
		}
		out[k] = strings.TrimSpace(v)
	}
	return out, nil
}

// newProgressReporter returns a progress callback that draws a bar on w,
// created once the total chunk count is known.
func newProgressReporter(w io.Writer) func(ingestion.Progress) {
	var bar *progressbar.ProgressBar
	return func(p ingestion.Progress) {
		if bar == nil {
			bar = progressbar.NewOptions(p.Total,
				progressbar.OptionSetWriter(w),
				progressbar.OptionEnableColorCodes(true),
				progressbar.OptionShowBytes(false),
				progressbar.OptionSetWidth(40),
				progressbar.OptionShowCount(),
				progressbar.OptionSetDescription("[cyan]Embedding[reset]"),
				progressbar.OptionOnCompletion(func() {
					fmt.Fprintln(w)
				}),
			)
		}
		_ = bar.Set(p.Embedded)
	}
}
