// Package chat binds the answer pipeline to per-session conversation state.
// A Pipeline runs retrieval then synthesis for one question; Sessions owns
// one conversation.State per session; Bot ties both together and turns
// pipeline failures into visible error answers.
package chat

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/54b3r/askdocs-go/internal/logging"
	"github.com/54b3r/askdocs-go/internal/rag"
	"github.com/54b3r/askdocs-go/internal/synth"
)

// Pipeline stage names reported to a StageObserver.
const (
	StageRetrieve   = "retrieve"
	StageSynthesize = "synthesize"
)

// Retriever returns the chunks nearest to a query. *rag.Retriever satisfies it.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]rag.ScoredChunk, error)
}

// Synthesizer selects one answer from retrieved chunks. *synth.Synthesizer
// satisfies it.
type Synthesizer interface {
	Run(ctx context.Context, query string, chunks []rag.ScoredChunk) (synth.Result, error)
}

// StageObserver receives the duration and outcome of each pipeline stage.
// The server's metrics implement it.
type StageObserver interface {
	ObserveStage(stage string, d time.Duration, err error)
}

// Reply is the outcome of one pipeline run.
type Reply struct {
	// Text is the selected answer.
	Text string
	// Chunks is the retrieval result the answer was chosen from.
	Chunks []rag.ScoredChunk
	// Result carries every map-phase candidate.
	Result synth.Result
}

// Source returns the chunk the selected answer came from, if any.
func (r *Reply) Source() (rag.Chunk, bool) {
	if r.Result.Best < 0 || r.Result.Best >= len(r.Result.Candidates) {
		return rag.Chunk{}, false
	}
	return r.Result.Candidates[r.Result.Best].Chunk, true
}

// Pipeline answers one question: retrieve, then synthesize. Dependencies are
// injected; it holds no per-request state and is safe for concurrent use.
type Pipeline struct {
	// retriever finds candidate chunks.
	retriever Retriever
	// synth picks the answer.
	synth Synthesizer
	// topK is the number of chunks retrieved per question (0 = retriever default).
	topK int
	// observer receives stage timings; may be nil.
	observer StageObserver
}

// NewPipeline constructs a Pipeline. observer may be nil.
func NewPipeline(retriever Retriever, synthesizer Synthesizer, topK int, observer StageObserver) (*Pipeline, error) {
	if retriever == nil {
		return nil, errors.New("chat: retriever must not be nil")
	}
	if synthesizer == nil {
		return nil, errors.New("chat: synthesizer must not be nil")
	}
	return &Pipeline{retriever: retriever, synth: synthesizer, topK: topK, observer: observer}, nil
}

// Ask runs the pipeline for question. Errors carry the apperr kind of the
// failing stage.
func (p *Pipeline) Ask(ctx context.Context, question string) (*Reply, error) {
	log := logging.FromContext(ctx)

	start := time.Now()
	chunks, err := p.retriever.Retrieve(ctx, question, p.topK)
	p.observe(StageRetrieve, time.Since(start), err)
	if err != nil {
		return nil, err
	}
	log.Debug("chat: retrieved chunks",
		slog.Int("count", len(chunks)),
		slog.Duration("duration", time.Since(start)),
	)

	start = time.Now()
	res, err := p.synth.Run(ctx, question, chunks)
	p.observe(StageSynthesize, time.Since(start), err)
	if err != nil {
		return nil, err
	}
	log.Debug("chat: synthesized answer",
		slog.Int("candidates", len(res.Candidates)),
		slog.Int("best", res.Best),
		slog.Duration("duration", time.Since(start)),
	)

	return &Reply{Text: res.Text, Chunks: chunks, Result: res}, nil
}

func (p *Pipeline) observe(stage string, d time.Duration, err error) {
	if p.observer != nil {
		p.observer.ObserveStage(stage, d, err)
	}
}
