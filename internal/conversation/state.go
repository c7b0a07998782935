// Package conversation holds the per-session question/answer history and
// enforces its turn state machine: a turn is Pending from Submit until
// Complete, at most one turn is Pending at a time, and Clear always resets.
package conversation

import (
	"fmt"
	"strings"
	"sync"

	"github.com/54b3r/askdocs-go/internal/apperr"
)

// Turn is one question and its answer. Answer is nil while the turn is pending.
type Turn struct {
	Question string  `json:"question"`
	Answer   *string `json:"answer"`
}

// Pending reports whether the turn is still waiting for its answer.
func (t Turn) Pending() bool { return t.Answer == nil }

// Handle identifies a submitted turn. Epoch ties the handle to the history it
// was issued against so a handle from before a Clear cannot complete a later
// turn at the same index.
type Handle struct {
	Index int
	Epoch uint64
}

// State is the ordered turn history of one session. It is safe for
// concurrent use, but a session should drive it from one request at a time.
type State struct {
	mu    sync.Mutex
	turns []Turn
	epoch uint64
}

// New returns an empty State.
func New() *State {
	return &State{}
}

// Submit appends a pending turn for question. It fails with
// apperr.ErrInvalidInput for a blank question and apperr.ErrState when a turn
// is already pending.
func (s *State) Submit(question string) (Handle, error) {
	if strings.TrimSpace(question) == "" {
		return Handle{}, fmt.Errorf("conversation: question is empty: %w", apperr.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if n := len(s.turns); n > 0 && s.turns[n-1].Pending() {
		return Handle{}, fmt.Errorf("conversation: turn %d is still pending: %w", n-1, apperr.ErrState)
	}
	s.turns = append(s.turns, Turn{Question: question})
	return Handle{Index: len(s.turns) - 1, Epoch: s.epoch}, nil
}

// Complete sets the answer of the turn named by h. It fails with
// apperr.ErrState unless h is the current pending turn of the current epoch;
// a handle from before a Clear also matches apperr.ErrCleared.
func (s *State) Complete(h Handle, answer string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if h.Epoch != s.epoch {
		return fmt.Errorf("conversation: handle from a cleared conversation: %w: %w", apperr.ErrCleared, apperr.ErrState)
	}
	last := len(s.turns) - 1
	if h.Index != last || last < 0 {
		return fmt.Errorf("conversation: turn %d is not the current turn: %w", h.Index, apperr.ErrState)
	}
	if !s.turns[last].Pending() {
		return fmt.Errorf("conversation: turn %d is already completed: %w", h.Index, apperr.ErrState)
	}
	s.turns[last].Answer = &answer
	return nil
}

// Clear drops every turn, pending or not, and invalidates outstanding handles.
func (s *State) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = nil
	s.epoch++
}

// Turns returns a copy of the history, oldest first.
func (s *State) Turns() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Turn, len(s.turns))
	for i, t := range s.turns {
		out[i] = Turn{Question: t.Question}
		if t.Answer != nil {
			a := *t.Answer
			out[i].Answer = &a
		}
	}
	return out
}

// Len returns the number of turns.
func (s *State) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.turns)
}

// Pending reports whether the last turn is awaiting its answer.
func (s *State) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.turns)
	return n > 0 && s.turns[n-1].Pending()
}
