package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/askdocs-go/internal/conversation"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response. It must
	// exceed ChatTimeout so a slow answer can still be delivered.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// ChatTimeout bounds one POST /api/chat request, covering retrieval and
	// every model call (default: 3m).
	ChatTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on
	// POST /api/chat (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token accepted on /api/* routes.
	// If empty, Bearer authentication is disabled.
	APIKey string
	// AuthUser and AuthPassword form a static HTTP Basic credential pair
	// gating the widget and the API. Both empty disables Basic auth.
	// A single shared password is a demo gate, not production access control.
	AuthUser     string
	AuthPassword string
	// SecureCookie marks the session cookie Secure (set behind TLS).
	SecureCookie bool
	// Widget holds the text rendered by the chat page.
	Widget Widget
	// Metrics is the metric set the server records into. If nil, one is
	// registered against MetricsRegistry.
	Metrics *Metrics
	// MetricsRegistry is the Prometheus registerer used when Metrics is nil.
	// Defaults to a fresh registry so repeated New calls never collide.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer serves GET /metrics. Defaults to MetricsRegistry when
	// that is a *prometheus.Registry.
	MetricsGatherer prometheus.Gatherer
}

// Widget is the text shown by the embedded chat page.
type Widget struct {
	// Title is the page heading.
	Title string
	// Placeholder is the input box hint.
	Placeholder string
	// Examples are clickable sample questions.
	Examples []string
}

// chatBot is the session-aware answering interface the handlers call.
// *chat.Bot satisfies it; tests inject a fake.
type chatBot interface {
	// Submit runs one turn for sessionID and returns the session's turns.
	Submit(ctx context.Context, sessionID, question string) ([]conversation.Turn, error)
	// Clear resets sessionID's history.
	Clear(sessionID string)
	// History returns sessionID's turns.
	History(sessionID string) []conversation.Turn
}

// Server is the HTTP server that exposes the chat bot.
type Server struct {
	// bot answers questions per session.
	bot chatBot
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics records chat and HTTP metrics.
	metrics *Metrics
	// page is the rendered chat widget served at GET /.
	page []byte
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// chatRequest is the JSON body for POST /api/chat.
type chatRequest struct {
	// Message is the user's question.
	Message string `json:"message"`
}

// chatResponse is the JSON body returned by POST /api/chat and
// GET /api/history.
type chatResponse struct {
	// Turns is the session history, oldest first.
	Turns []conversation.Turn `json:"turns"`
	// Error is the error kind when the turn failed or was rejected.
	Error string `json:"error,omitempty"`
}

// errorResponse is the JSON body for requests rejected before reaching the bot.
type errorResponse struct {
	// Error is a short description of the problem.
	Error string `json:"error"`
}
