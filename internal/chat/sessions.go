package chat

import (
	"sync"
	"time"

	"github.com/54b3r/askdocs-go/internal/conversation"
)

// DefaultSessionTTL is how long an idle session is kept before eviction.
const DefaultSessionTTL = 30 * time.Minute

// session holds one conversation and the last time it was used.
type session struct {
	// state is the session's turn history.
	state *conversation.State
	// lastSeen is updated on every access for idle eviction.
	lastSeen time.Time
}

// Sessions maps session IDs to their conversation state. Idle sessions are
// evicted by a background goroutine so memory stays bounded; nothing is
// persisted.
type Sessions struct {
	// mu protects sessions.
	mu sync.Mutex
	// sessions maps session ID to its state.
	sessions map[string]*session
	// ttl is the idle time after which a session is evicted.
	ttl time.Duration
	// now is the clock, replaceable in tests.
	now func() time.Time
}

// NewSessions constructs a Sessions registry and starts the background
// eviction goroutine, which exits when the returned stop function is called.
func NewSessions(ttl time.Duration) (*Sessions, func()) {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	s := &Sessions{
		sessions: make(map[string]*session),
		ttl:      ttl,
		now:      time.Now,
	}

	interval := min(ttl/2, time.Minute)
	stopCh := make(chan struct{})
	go s.evictLoop(interval, stopCh)

	var once sync.Once
	return s, func() { once.Do(func() { close(stopCh) }) }
}

// Get returns the state for id, creating an empty one if needed.
func (s *Sessions) Get(id string) *conversation.State {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.sessions[id]
	if !ok {
		entry = &session{state: conversation.New()}
		s.sessions[id] = entry
	}
	entry.lastSeen = s.now()
	return entry.state
}

// Lookup returns the state for id without creating one.
func (s *Sessions) Lookup(id string) (*conversation.State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	entry.lastSeen = s.now()
	return entry.state, true
}

// Len returns the number of live sessions.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// evictLoop runs evict every interval until stopCh is closed.
func (s *Sessions) evictLoop(interval time.Duration, stopCh <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			s.evict()
		}
	}
}

// evict removes sessions idle for longer than ttl that have no pending turn,
// and returns how many were removed.
func (s *Sessions) evict() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-s.ttl)
	n := 0
	for id, entry := range s.sessions {
		if entry.lastSeen.Before(cutoff) && !entry.state.Pending() {
			delete(s.sessions, id)
			n++
		}
	}
	return n
}
