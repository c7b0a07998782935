package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/54b3r/askdocs-go/internal/chat"
	"github.com/54b3r/askdocs-go/internal/config"
	"github.com/54b3r/askdocs-go/internal/logging"
	"github.com/54b3r/askdocs-go/internal/server"
	"github.com/54b3r/askdocs-go/internal/tracing"
)

// NewServeCmd constructs the `askdocs serve` command, which starts the HTTP
// server and serves the chat widget.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the askdocs HTTP server and chat widget",
		Long: `Start the askdocs HTTP server.

The server loads the index once at startup and serves a chat page where
each browser session keeps its own question and answer history. The JSON
API, health and readiness probes, and Prometheus metrics are served on the
same port.

Examples:
  askdocs serve
  askdocs serve --port 9090
  ASKDOCS_AUTH_USER=admin ASKDOCS_AUTH_PASSWORD=secret askdocs serve`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.FromContext(ctx)

			settings, err := config.SettingsFromEnv()
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			if cmd.Flags().Changed("host") {
				settings.Host = host
			}
			if cmd.Flags().Changed("port") {
				settings.Port = port
			}

			log.Info("serve starting",
				slog.String("provider", os.Getenv("MODEL_PROVIDER")),
				slog.String("index_backend", settings.IndexBackend),
			)

			// Langfuse tracing is opt-in, no-op if keys are absent.
			flush, ok := tracing.Enable(tracing.ConfigFromEnv())
			defer flush()
			if ok {
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY or LANGFUSE_SECRET_KEY not set"))
			}

			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)
			metrics := server.NewMetrics(reg)

			var cl closers
			defer cl.run()

			st, err := buildStack(ctx, log, settings, metrics, &cl)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			sessions, stopSessions := chat.NewSessions(settings.SessionTTL)
			cl.add(stopSessions)

			bot, err := chat.NewBot(st.pipeline, sessions)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			srv, err := server.New(bot, &server.Config{
				Host:            settings.Host,
				Port:            settings.Port,
				ChatTimeout:     settings.ChatTimeout,
				Logger:          log,
				Pingers:         buildPingers(st),
				RateLimit:       settings.RateLimit,
				RateBurst:       settings.RateBurst,
				APIKey:          settings.APIKey,
				AuthUser:        settings.AuthUser,
				AuthPassword:    settings.AuthPassword,
				SecureCookie:    settings.SecureCookie,
				Metrics:         metrics,
				MetricsRegistry: reg,
				MetricsGatherer: reg,
				Widget: server.Widget{
					Title:       settings.Title,
					Placeholder: settings.Placeholder,
					Examples:    settings.Examples,
				},
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", config.DefaultHost, "Host address to bind to (overrides ASKDOCS_HOST)")
	cmd.Flags().IntVarP(&port, "port", "p", config.DefaultPort, "TCP port to listen on (overrides ASKDOCS_PORT)")

	return cmd
}
