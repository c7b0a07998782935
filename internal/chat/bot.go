package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/54b3r/askdocs-go/internal/apperr"
	"github.com/54b3r/askdocs-go/internal/conversation"
	"github.com/54b3r/askdocs-go/internal/logging"
)

// Asker answers one question. *Pipeline satisfies it.
type Asker interface {
	Ask(ctx context.Context, question string) (*Reply, error)
}

// Bot runs the pipeline for session turns. A failed pipeline run completes
// the pending turn with a visible error message, so a session is never left
// stuck on a pending turn.
type Bot struct {
	// asker runs the answer pipeline.
	asker Asker
	// sessions owns per-session conversation state.
	sessions *Sessions
}

// NewBot constructs a Bot.
func NewBot(asker Asker, sessions *Sessions) (*Bot, error) {
	if asker == nil {
		return nil, errors.New("chat: asker must not be nil")
	}
	if sessions == nil {
		return nil, errors.New("chat: sessions must not be nil")
	}
	return &Bot{asker: asker, sessions: sessions}, nil
}

// Submit appends question to the session, runs the pipeline, and completes
// the turn. It returns the session's turns after the run. Validation and
// state errors leave the history untouched; pipeline errors are returned
// after the turn has been completed with ErrorMessage(err). When the session
// is cleared during the run, the answer is dropped and the error matches
// apperr.ErrCleared, whatever the pipeline returned.
func (b *Bot) Submit(ctx context.Context, sessionID, question string) ([]conversation.Turn, error) {
	log := logging.FromContext(ctx)
	state := b.sessions.Get(sessionID)

	h, err := state.Submit(question)
	if err != nil {
		return state.Turns(), err
	}

	reply, askErr := b.asker.Ask(ctx, question)
	answer := ""
	if askErr != nil {
		answer = ErrorMessage(askErr)
		log.Error("chat: pipeline failed",
			slog.String("kind", apperr.Kind(askErr)),
			slog.String("error", askErr.Error()),
		)
	} else {
		answer = reply.Text
		if src, ok := reply.Source(); ok {
			log.Info("chat: answered",
				slog.String("source", src.Source),
				slog.Int("chunks", len(reply.Chunks)),
			)
		}
	}

	if err := state.Complete(h, answer); err != nil {
		log.Warn("chat: turn discarded", slog.String("error", err.Error()))
		if askErr != nil && !errors.Is(err, apperr.ErrCleared) {
			return state.Turns(), askErr
		}
		return state.Turns(), err
	}
	return state.Turns(), askErr
}

// Clear resets the session's history.
func (b *Bot) Clear(sessionID string) {
	if state, ok := b.sessions.Lookup(sessionID); ok {
		state.Clear()
	}
}

// History returns the session's turns, oldest first.
func (b *Bot) History(sessionID string) []conversation.Turn {
	state, ok := b.sessions.Lookup(sessionID)
	if !ok {
		return []conversation.Turn{}
	}
	return state.Turns()
}

// ErrorMessage is the answer text shown for a failed turn.
func ErrorMessage(err error) string {
	switch {
	case errors.Is(err, apperr.ErrEmbeddingFailure):
		return "Sorry, I couldn't search the documents right now (the embedding service failed). Please try again."
	case errors.Is(err, apperr.ErrSynthesisFailure):
		return "Sorry, the language model didn't respond for any of the matching documents. Please try again."
	case errors.Is(err, context.DeadlineExceeded):
		return "Sorry, that took too long to answer. Please try again."
	case errors.Is(err, apperr.ErrInvalidInput):
		return "Please enter a question."
	default:
		return fmt.Sprintf("Sorry, something went wrong (%s).", apperr.Kind(err))
	}
}
