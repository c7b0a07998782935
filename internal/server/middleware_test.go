package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/54b3r/askdocs-go/internal/logging"
)

func TestRequestLogger_RequestID(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		inbound string
		keep    bool
	}{
		{"none", "", false},
		{"upstream id", "edge-7f3a9c", true},
		{"contains space", "bad id", false},
		{"too long", strings.Repeat("a", maxRequestIDLen+1), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				logging.FromContext(r.Context()).Info("inside handler")
				w.WriteHeader(http.StatusOK)
			})
			h := requestLogger(slog.New(slog.NewTextHandler(&buf, nil)), next)

			req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
			if tc.inbound != "" {
				req.Header.Set(requestIDHeader, tc.inbound)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			got := w.Header().Get(requestIDHeader)
			if tc.keep {
				if got != tc.inbound {
					t.Errorf("request id: got %q, want %q", got, tc.inbound)
				}
			} else if _, err := uuid.Parse(got); err != nil {
				t.Errorf("request id %q is not a UUID", got)
			}
			if !strings.Contains(buf.String(), "request_id="+got) {
				t.Errorf("handler logger lacks request_id %q: %s", got, buf.String())
			}
		})
	}
}

func TestRequestLogger_LogLine(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	h := requestLogger(base, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = io.WriteString(w, "short and stout")
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/chat", nil)
	req.RemoteAddr = "10.1.2.3:5555"
	h.ServeHTTP(httptest.NewRecorder(), req)

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if line["status"] != float64(http.StatusTeapot) {
		t.Errorf("status: got %v", line["status"])
	}
	if line["bytes"] != float64(len("short and stout")) {
		t.Errorf("bytes: got %v", line["bytes"])
	}
	if line["client_ip"] != "10.1.2.3" {
		t.Errorf("client_ip: got %v", line["client_ip"])
	}
}

func TestRequestLogger_QuietPaths(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	h := requestLogger(base, okHandler)

	for path := range quietPaths {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}
	if buf.Len() != 0 {
		t.Errorf("probe paths should log below Info, got %q", buf.String())
	}
}
