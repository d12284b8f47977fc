package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/54b3r/ragbot-go/internal/logging"
	"github.com/54b3r/ragbot-go/internal/server"
	"github.com/54b3r/ragbot-go/internal/tracing"
)

// NewServeCmd constructs the `ragbot serve` command, which starts the HTTP API.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the ragbot HTTP API",
		Long: `Start the ragbot HTTP server.

The server exposes file upload and training, per-tenant document and prompt
management, chat, health/readiness probes and Prometheus metrics.

Environment variables:
  RAGBOT_HOST / RAGBOT_PORT   Bind address (default: 127.0.0.1:8080)
  RAGBOT_API_KEY              Bearer token for /api/* (unset: auth disabled)
  RAGBOT_CHAT_TIMEOUT         Per-question deadline (default: 2m)
  RAGBOT_TRAIN_TIMEOUT        Per-document ingestion deadline (default: 10m)
  RAGBOT_MAX_UPLOAD_BYTES     Upload size cap (default: 32 MiB)
  RAGBOT_RATE_LIMIT / _BURST  Per-IP limit on chat, upload and train

Examples:
  ragbot serve
  ragbot serve --port 9090
  VECTOR_BACKEND=memory RAGBOT_MEMORY_DB=memory ragbot serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			log.Info("serve starting", slog.String("provider", os.Getenv("MODEL_PROVIDER")))

			// Langfuse tracing is opt-in and a no-op without keys.
			handler, flush, ok := tracing.Setup()
			if ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}

			// Flags win; otherwise the env, which the config file may have set.
			if !cmd.Flags().Changed("host") {
				host = getEnvOrDefault("RAGBOT_HOST", host)
			}
			if !cmd.Flags().Changed("port") {
				port = getEnvInt("RAGBOT_PORT", port)
			}

			a, err := buildApp(ctx, log, prometheus.DefaultRegisterer)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer func() {
				if err := a.Close(); err != nil {
					log.Warn("serve: close failed", slog.Any("error", err))
				}
			}()

			srv, err := server.New(a.svc, &server.Config{
				Host:            host,
				Port:            port,
				ChatTimeout:     getEnvDuration("RAGBOT_CHAT_TIMEOUT", 0),
				TrainTimeout:    getEnvDuration("RAGBOT_TRAIN_TIMEOUT", 0),
				ShutdownTimeout: getEnvDuration("RAGBOT_SHUTDOWN_TIMEOUT", 10*time.Second),
				MaxUploadBytes:  int64(getEnvInt("RAGBOT_MAX_UPLOAD_BYTES", 0)),
				Logger:          log,
				Pingers:         a.pingers,
				RateLimit:       float64(getEnvFloat32("RAGBOT_RATE_LIMIT", 0)),
				RateBurst:       getEnvInt("RAGBOT_RATE_BURST", 0),
				APIKey:          os.Getenv("RAGBOT_API_KEY"),
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx) //nolint:wrapcheck // CLI entry point
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to (env: RAGBOT_HOST)")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on (env: RAGBOT_PORT)")

	return cmd
}
