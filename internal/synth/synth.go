// Package synth turns a question and its retrieved chunks into one answer
// using a map-rerank policy: the model answers the question once per chunk
// and scores its own confidence, then the best-scored answer is returned
// verbatim. Answers are never merged.
package synth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/54b3r/askdocs-go/internal/apperr"
	"github.com/54b3r/askdocs-go/internal/budget"
	"github.com/54b3r/askdocs-go/internal/logging"
	"github.com/54b3r/askdocs-go/internal/rag"
)

// Defaults applied by New for zero-valued Config fields.
const (
	DefaultMaxTokens   = 1024
	DefaultConcurrency = 4
	DefaultCallTimeout = 60 * time.Second

	// DefaultNoAnswer is returned when retrieval produced no chunks.
	DefaultNoAnswer = "I couldn't find any relevant information in the indexed documents to answer that."
)

// Completer is a language model that completes a single prompt.
// Implementations must be safe to call from multiple goroutines.
type Completer interface {
	Complete(ctx context.Context, prompt string, maxTokens int, temperature float32) (string, error)
}

// Config tunes a Synthesizer.
type Config struct {
	// MaxTokens caps each per-chunk answer.
	MaxTokens int

	// Temperature is passed to every model call. Zero is a valid setting.
	Temperature float32

	// Concurrency bounds the number of in-flight model calls.
	Concurrency int

	// CallTimeout bounds each model call.
	CallTimeout time.Duration

	// MaxChunkTokens truncates chunk text before prompting (0 = no limit).
	MaxChunkTokens int

	// NoAnswer is returned, without calling the model, when chunks is empty.
	NoAnswer string
}

// Candidate is one per-chunk answer produced in the map phase.
type Candidate struct {
	// Text is the parsed answer text.
	Text string

	// Score is the model's self-reported confidence (0-100). Valid only when
	// HasScore is true.
	Score float64

	// HasScore reports whether the reply contained a parsable score line.
	HasScore bool

	// Rank is the chunk's position in the retrieval result.
	Rank int

	// Chunk is the source chunk the answer was generated from.
	Chunk rag.Chunk

	// Err is set when the model call failed or returned nothing usable.
	Err error
}

// Result is the outcome of a synthesis run.
type Result struct {
	// Text is the selected answer.
	Text string

	// Best indexes the winning entry of Candidates, or -1 when no model call
	// was made.
	Best int

	// Candidates holds every map-phase result in retrieval order.
	Candidates []Candidate
}

// Synthesizer implements map-rerank answer synthesis over a Completer.
// It holds no mutable state and is safe for concurrent use.
type Synthesizer struct {
	// completer is the language model.
	completer Completer

	// cfg is the resolved configuration.
	cfg Config
}

// New returns a Synthesizer with defaults applied to zero-valued fields.
func New(completer Completer, cfg Config) (*Synthesizer, error) {
	if completer == nil {
		return nil, errors.New("synth: completer must not be nil")
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	if strings.TrimSpace(cfg.NoAnswer) == "" {
		cfg.NoAnswer = DefaultNoAnswer
	}
	return &Synthesizer{completer: completer, cfg: cfg}, nil
}

// Synthesize returns the single best answer to query given chunks.
func (s *Synthesizer) Synthesize(ctx context.Context, query string, chunks []rag.ScoredChunk) (string, error) {
	res, err := s.Run(ctx, query, chunks)
	if err != nil {
		return "", err
	}
	return res.Text, nil
}

// Run is Synthesize with the full set of candidates returned for inspection.
func (s *Synthesizer) Run(ctx context.Context, query string, chunks []rag.ScoredChunk) (Result, error) {
	// No chunks means no answer, whatever the query.
	if len(chunks) == 0 {
		return Result{Text: s.cfg.NoAnswer, Best: -1}, nil
	}
	if strings.TrimSpace(query) == "" {
		return Result{Best: -1}, fmt.Errorf("synth: query is empty: %w", apperr.ErrInvalidInput)
	}

	log := logging.FromContext(ctx)
	cands := s.mapChunks(ctx, query, chunks)

	best := selectBest(cands)
	if best < 0 {
		var firstErr error
		for _, c := range cands {
			if c.Err != nil {
				firstErr = c.Err
				break
			}
		}
		return Result{Best: -1, Candidates: cands},
			fmt.Errorf("synth: all %d model calls failed: %w: %w", len(cands), apperr.ErrSynthesisFailure, firstErr)
	}

	log.Debug("synth: candidate selected",
		slog.Int("rank", best),
		slog.Bool("scored", cands[best].HasScore),
		slog.Float64("score", cands[best].Score),
		slog.String("source", cands[best].Chunk.Source),
	)
	return Result{Text: cands[best].Text, Best: best, Candidates: cands}, nil
}

// mapChunks asks the model for one candidate per chunk. Calls run
// concurrently up to cfg.Concurrency; a failed call only marks its own
// candidate.
func (s *Synthesizer) mapChunks(ctx context.Context, query string, chunks []rag.ScoredChunk) []Candidate {
	log := logging.FromContext(ctx)
	cands := make([]Candidate, len(chunks))

	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)
	for i, sc := range chunks {
		cands[i] = Candidate{Rank: i, Chunk: sc.Chunk}
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
			defer cancel()

			prompt := buildPrompt(query, budget.Truncate(sc.Chunk.Text, s.cfg.MaxChunkTokens))
			reply, err := s.completer.Complete(callCtx, prompt, s.cfg.MaxTokens, s.cfg.Temperature)
			if err != nil {
				cands[i].Err = err
				log.Warn("synth: model call failed", slog.Int("rank", i), slog.String("error", err.Error()))
				return nil
			}

			text, score, ok := parseReply(reply)
			if text == "" {
				cands[i].Err = errors.New("model returned no answer text")
				log.Warn("synth: empty model reply", slog.Int("rank", i))
				return nil
			}
			cands[i].Text = text
			cands[i].Score = score
			cands[i].HasScore = ok
			return nil
		})
	}
	_ = g.Wait()
	return cands
}

// selectBest returns the index of the winning candidate, or -1 if every
// candidate failed. The highest score wins and ties go to the lower rank.
// When no candidate carries a score, the first successful one wins.
func selectBest(cands []Candidate) int {
	best, firstOK := -1, -1
	for i, c := range cands {
		if c.Err != nil {
			continue
		}
		if firstOK < 0 {
			firstOK = i
		}
		if !c.HasScore {
			continue
		}
		if best < 0 || c.Score > cands[best].Score {
			best = i
		}
	}
	if best >= 0 {
		return best
	}
	return firstOK
}
