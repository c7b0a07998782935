// Package server implements the HTTP server that exposes the document
// question-answering bot as a JSON API and serves the embedded chat widget.
// The server is started by the `askdocs serve` CLI command.
package server

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/54b3r/askdocs-go/internal/apperr"
	"github.com/54b3r/askdocs-go/internal/chat"
	"github.com/54b3r/askdocs-go/internal/logging"
)

// sessionCookie names the cookie carrying the caller's session ID.
const sessionCookie = "askdocs_session"

// maxRequestBody caps the size of a POST /api/chat body.
const maxRequestBody = 64 << 10

// DefaultChatTimeout bounds one chat request when Config.ChatTimeout is zero.
const DefaultChatTimeout = 3 * time.Minute

//go:embed ui/index.html
var uiFS embed.FS

// New constructs a Server from the provided bot and config.
func New(bot *chat.Bot, cfg *Config) (*Server, error) {
	if bot == nil {
		return nil, fmt.Errorf("server: bot must not be nil")
	}
	return newServer(bot, cfg)
}

// newServer builds a Server around any chatBot. Tests use it with fakes.
func newServer(bot chatBot, cfg *Config) (*Server, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.ChatTimeout == 0 {
		cfg.ChatTimeout = DefaultChatTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = cfg.ChatTimeout + 30*time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	if cfg.MetricsRegistry == nil {
		reg := prometheus.NewRegistry()
		cfg.MetricsRegistry = reg
		if cfg.MetricsGatherer == nil {
			cfg.MetricsGatherer = reg
		}
	}
	if cfg.MetricsGatherer == nil {
		if g, ok := cfg.MetricsRegistry.(prometheus.Gatherer); ok {
			cfg.MetricsGatherer = g
		} else {
			cfg.MetricsGatherer = prometheus.DefaultGatherer
		}
	}

	log := cfg.Logger
	if log == nil {
		log = logging.New()
	}

	metrics := cfg.Metrics
	if metrics == nil {
		metrics = NewMetrics(cfg.MetricsRegistry)
	}

	page, err := renderPage(cfg.Widget)
	if err != nil {
		return nil, err
	}

	s := &Server{
		bot:     bot,
		cfg:     cfg,
		log:     log,
		pingers: cfg.Pingers,
		metrics: metrics,
		page:    page,
	}

	if cfg.APIKey == "" && cfg.AuthUser == "" && cfg.AuthPassword == "" {
		log.Warn("server: authentication disabled; set ASKDOCS_API_KEY or ASKDOCS_AUTH_USER/ASKDOCS_AUTH_PASSWORD")
	}

	s.httpServer = &http.Server{
		Addr:         net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Handler:      s.routes(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// routes builds the full handler chain: request logging, HTTP metrics, and
// the route mux with auth and rate limiting on the chat endpoints.
func (s *Server) routes() http.Handler {
	rl, stop := newRateLimiter(s.cfg.RateLimit, s.cfg.RateBurst)
	s.stopRL = stop

	// The widget can only present Basic credentials, so it never needs the
	// Bearer key.
	pageAuth := func(h http.Handler) http.Handler {
		return authMiddleware("", s.cfg.AuthUser, s.cfg.AuthPassword, h)
	}
	apiAuth := func(h http.Handler) http.Handler {
		return authMiddleware(s.cfg.APIKey, s.cfg.AuthUser, s.cfg.AuthPassword, h)
	}

	mux := http.NewServeMux()
	mux.Handle("GET /{$}", pageAuth(http.HandlerFunc(s.handleIndex)))
	mux.Handle("POST /api/chat", apiAuth(rl.middleware(http.HandlerFunc(s.handleChat))))
	mux.Handle("POST /api/clear", apiAuth(http.HandlerFunc(s.handleClear)))
	mux.Handle("GET /api/history", apiAuth(http.HandlerFunc(s.handleHistory)))
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/ready", s.handleReady)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.cfg.MetricsGatherer, promhttp.HandlerOpts{}))

	return requestLogger(s.log, s.metrics.instrument(mux))
}

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	defer s.stopRL()

	errCh := make(chan error, 1)

	go func() {
		s.log.Info("askdocs server listening", slog.String("addr", "http://"+s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// handleIndex serves the chat widget.
func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(s.page)
}

// handleChat handles POST /api/chat. It runs one turn for the caller's
// session and returns the updated history. A failed pipeline run still
// returns 200: the turn carries a visible error message and the response's
// error field names the failure kind. A turn dropped because the session was
// cleared while it ran also returns 200, with error "cleared" and the
// post-clear history; a second turn while one is pending returns 409.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req chatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		writeJSON(w, log, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeJSON(w, log, http.StatusBadRequest, errorResponse{Error: "message is required"})
		return
	}

	sid := s.sessionID(w, r)

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.ChatTimeout)
	defer cancel()

	s.metrics.chatInFlight.Inc()
	defer s.metrics.chatInFlight.Dec()

	start := time.Now()
	turns, err := s.bot.Submit(ctx, sid, req.Message)
	outcome := chatOutcome(err)
	s.metrics.observeChat(outcome, time.Since(start))

	switch {
	case err == nil:
		writeJSON(w, log, http.StatusOK, chatResponse{Turns: turns})
	case errors.Is(err, apperr.ErrInvalidInput):
		writeJSON(w, log, http.StatusBadRequest, chatResponse{Turns: turns, Error: outcome})
	case errors.Is(err, apperr.ErrCleared):
		// The caller cleared the session mid-turn; the empty history is the answer.
		writeJSON(w, log, http.StatusOK, chatResponse{Turns: turns, Error: outcome})
	case errors.Is(err, apperr.ErrState):
		writeJSON(w, log, http.StatusConflict, chatResponse{Turns: turns, Error: outcome})
	default:
		log.Warn("chat: turn failed",
			slog.String("outcome", outcome),
			slog.Any("error", err),
		)
		writeJSON(w, log, http.StatusOK, chatResponse{Turns: turns, Error: outcome})
	}
}

// handleClear handles POST /api/clear.
func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	s.bot.Clear(s.sessionID(w, r))
	w.WriteHeader(http.StatusNoContent)
}

// handleHistory handles GET /api/history.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	turns := s.bot.History(s.sessionID(w, r))
	writeJSON(w, logging.FromContext(r.Context()), http.StatusOK, chatResponse{Turns: turns})
}

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, logging.FromContext(r.Context()), http.StatusOK, map[string]string{"status": "ok"})
}

// sessionID returns the caller's session ID from the session cookie, issuing
// a fresh UUID cookie when it is absent or malformed.
func (s *Server) sessionID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(sessionCookie); err == nil {
		if _, err := uuid.Parse(c.Value); err == nil {
			return c.Value
		}
	}
	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.cfg.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

// chatOutcome maps a Submit error to the chat metric outcome label.
func chatOutcome(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return apperr.Kind(err)
}

// writeJSON encodes v as the response body with the given status.
func writeJSON(w http.ResponseWriter, log *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("response encode error", slog.Any("error", err))
	}
}

// pageData is the template input for the chat widget.
type pageData struct {
	Title       string
	Placeholder string
	Examples    []string
}

// renderPage renders the embedded widget template once at startup.
func renderPage(wg Widget) ([]byte, error) {
	tmpl, err := template.ParseFS(uiFS, "ui/index.html")
	if err != nil {
		return nil, fmt.Errorf("server: parse widget template: %w", err)
	}
	data := pageData{
		Title:       wg.Title,
		Placeholder: wg.Placeholder,
		Examples:    wg.Examples,
	}
	if data.Title == "" {
		data.Title = "Ask the docs"
	}
	if data.Placeholder == "" {
		data.Placeholder = "Ask a question about the documents"
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("server: render widget: %w", err)
	}
	return buf.Bytes(), nil
}
