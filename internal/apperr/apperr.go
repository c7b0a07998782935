// Package apperr defines the error kinds surfaced by the answer pipeline.
// Callers wrap these sentinels with fmt.Errorf("...: %w") and classify them
// with errors.Is at the boundary (CLI or HTTP).
package apperr

import "errors"

var (
	// ErrEmbeddingFailure means the embedding call errored or returned a
	// malformed vector.
	ErrEmbeddingFailure = errors.New("embedding failure")

	// ErrSynthesisFailure means every per-chunk model call errored.
	ErrSynthesisFailure = errors.New("synthesis failure")

	// ErrInvalidInput means a blank question or an out-of-range parameter.
	ErrInvalidInput = errors.New("invalid input")

	// ErrState means a conversation turn was submitted or completed out of order.
	ErrState = errors.New("conversation state error")

	// ErrCleared means the conversation was cleared while a turn was being
	// answered, so the answer was dropped. Errors carrying it also carry
	// ErrState.
	ErrCleared = errors.New("conversation cleared")
)

// Kind returns a short label for err suitable for metric labels and logs:
// "embedding", "synthesis", "invalid_input", "cleared", "state", or "internal".
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrCleared):
		return "cleared"
	case errors.Is(err, ErrState):
		return "state"
	case errors.Is(err, ErrEmbeddingFailure):
		return "embedding"
	case errors.Is(err, ErrSynthesisFailure):
		return "synthesis"
	default:
		return "internal"
	}
}
