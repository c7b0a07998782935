package apperr

import (
	"context"
	"fmt"
	"testing"
)

func TestKind(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, "ok"},
		{"invalid input", fmt.Errorf("rag: k: %w", ErrInvalidInput), "invalid_input"},
		{"state", fmt.Errorf("conversation: pending: %w", ErrState), "state"},
		{"cleared outranks state", fmt.Errorf("conversation: stale: %w: %w", ErrCleared, ErrState), "cleared"},
		{"embedding", fmt.Errorf("rag: embed: %w", ErrEmbeddingFailure), "embedding"},
		{"synthesis", fmt.Errorf("synth: %w", ErrSynthesisFailure), "synthesis"},
		{"other", context.Canceled, "internal"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := Kind(tc.err); got != tc.want {
				t.Errorf("Kind() = %q, want %q", got, tc.want)
			}
		})
	}
}
