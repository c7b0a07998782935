package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// ---------------------------------------------------------------------------
// Fake Pinger for readiness tests
// ---------------------------------------------------------------------------

// fakePinger is a test double for the Pinger interface.
type fakePinger struct {
	// name is returned by Name().
	name string
	// err is returned by Ping(); nil means healthy.
	err error
}

func (f *fakePinger) Name() string                 { return f.name }
func (f *fakePinger) Ping(_ context.Context) error { return f.err }

// newReadyTestServer builds a *Server with the given pingers wired in.
func newReadyTestServer(pingers ...Pinger) *Server {
	s := newTestServer()
	s.pingers = pingers
	return s
}

// getReady calls handleReady and decodes the response.
func getReady(t *testing.T, s *Server) (int, readyResponse) {
	t.Helper()
	w := httptest.NewRecorder()
	s.handleReady(w, httptest.NewRequest(http.MethodGet, "/api/ready", nil))

	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: expected application/json, got %q", ct)
	}
	var resp readyResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return w.Code, resp
}

// ---------------------------------------------------------------------------
// GET /api/health: liveness
// ---------------------------------------------------------------------------

func TestHandleHealth_OK(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	w := httptest.NewRecorder()
	s.handleHealth(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d, body: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: expected application/json, got %q", ct)
	}

	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status: expected %q, got %q", "ok", body["status"])
	}
}

// ---------------------------------------------------------------------------
// GET /api/ready: readiness
// ---------------------------------------------------------------------------

func TestHandleReady(t *testing.T) {
	t.Parallel()

	down := errors.New("connection refused")
	cases := []struct {
		name      string
		pingers   []Pinger
		wantCode  int
		wantReady bool
		wantOK    []bool
	}{
		{"no pingers", nil, http.StatusOK, true, nil},
		{
			"all healthy",
			[]Pinger{&fakePinger{name: "index"}, &fakePinger{name: "model"}},
			http.StatusOK, true, []bool{true, true},
		},
		{
			"one failing",
			[]Pinger{&fakePinger{name: "index"}, &fakePinger{name: "qdrant", err: down}},
			http.StatusServiceUnavailable, false, []bool{true, false},
		},
		{
			"all failing",
			[]Pinger{&fakePinger{name: "embedder", err: down}, &fakePinger{name: "qdrant", err: down}},
			http.StatusServiceUnavailable, false, []bool{false, false},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			code, resp := getReady(t, newReadyTestServer(tc.pingers...))
			if code != tc.wantCode {
				t.Errorf("status: want %d, got %d", tc.wantCode, code)
			}
			if resp.Ready != tc.wantReady {
				t.Errorf("ready: want %v, got %v", tc.wantReady, resp.Ready)
			}
			if len(resp.Checks) != len(tc.wantOK) {
				t.Fatalf("checks: want %d, got %d", len(tc.wantOK), len(resp.Checks))
			}
			for i, c := range resp.Checks {
				if c.Name != tc.pingers[i].Name() {
					t.Errorf("check %d: want name %q, got %q", i, tc.pingers[i].Name(), c.Name)
				}
				if c.OK != tc.wantOK[i] {
					t.Errorf("check %q: want ok=%v", c.Name, tc.wantOK[i])
				}
				if c.OK != (c.Error == "") {
					t.Errorf("check %q: error %q inconsistent with ok=%v", c.Name, c.Error, c.OK)
				}
			}
		})
	}
}

// barrierPinger blocks until every pinger sharing its WaitGroup has started,
// which only happens when probes run concurrently.
type barrierPinger struct {
	name    string
	started *sync.WaitGroup
}

func (b *barrierPinger) Name() string { return b.name }

func (b *barrierPinger) Ping(ctx context.Context) error {
	b.started.Done()
	done := make(chan struct{})
	go func() { b.started.Wait(); close(done) }()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(2 * time.Second):
		return errors.New("probes did not run concurrently")
	}
}

func TestHandleReady_ProbesConcurrently(t *testing.T) {
	t.Parallel()

	var started sync.WaitGroup
	started.Add(3)
	s := newReadyTestServer(
		&barrierPinger{name: "index", started: &started},
		&barrierPinger{name: "embedder", started: &started},
		&barrierPinger{name: "model", started: &started},
	)

	code, resp := getReady(t, s)
	if code != http.StatusOK || !resp.Ready {
		t.Fatalf("want 200 ready, got %d %+v", code, resp)
	}
	want := []string{"index", "embedder", "model"}
	for i, c := range resp.Checks {
		if c.Name != want[i] {
			t.Errorf("check %d: want %q, got %q", i, want[i], c.Name)
		}
	}
}
