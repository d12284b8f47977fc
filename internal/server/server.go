// Package server implements the HTTP API in front of the knowledge-base
// orchestrator: file upload and training, per-tenant document and prompt
// management, chat, and the health, readiness and metrics endpoints.
// The server is started by the `ragbot serve` CLI command.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/54b3r/ragbot-go/internal/logging"
)

// New constructs a Server from the provided backend and config.
func New(backend Backend, cfg *Config) (*Server, error) {
	if backend == nil {
		return nil, fmt.Errorf("server: backend must not be nil")
	}
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
		cfg.ChatTimeout = 2 * time.Minute
	}
	if cfg.TrainTimeout == 0 {
		cfg.TrainTimeout = 10 * time.Minute
	}
	if cfg.WriteTimeout == 0 {
		// Training a large document runs inside the request.
		cfg.WriteTimeout = cfg.TrainTimeout + 30*time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.MaxUploadBytes == 0 {
		cfg.MaxUploadBytes = 32 << 20
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.New()
	}
	if cfg.MetricsRegistry == nil {
		cfg.MetricsRegistry = prometheus.DefaultRegisterer
	}
	if cfg.MetricsGatherer == nil {
		cfg.MetricsGatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		backend: backend,
		cfg:     cfg,
		log:     cfg.Logger,
		pingers: cfg.Pingers,
		metrics: newServerMetrics(cfg.MetricsRegistry),
	}

	if cfg.APIKey == "" {
		s.log.Warn("server: RAGBOT_API_KEY not set, API authentication is disabled")
	}

	rl, stop := newRateLimiter(cfg.RateLimit, cfg.RateBurst, s.log)
	s.stopRL = stop

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      requestLogger(s.log, s.routes(rl)),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// routes registers every endpoint. API routes are authenticated; the
// expensive ones (chat, upload, train) are also rate limited per IP.
func (s *Server) routes(rl *rateLimiter) http.Handler {
	mux := http.NewServeMux()

	handle := func(pattern, name string, h http.HandlerFunc, limited bool) {
		var handler http.Handler = h
		if limited && rl != nil {
			handler = rl.middleware(handler)
		}
		handler = authMiddleware(s.cfg.APIKey, handler)
		mux.Handle(pattern, s.instrument(name, handler))
	}

	handle("POST /api/chat", "chat", s.handleChat, true)
	handle("POST /api/files", "files_upload", s.handleUpload, true)
	handle("GET /api/files", "files_list", s.handleListFiles, false)
	handle("GET /api/files/{filename}", "files_download", s.handleDownload, false)
	handle("DELETE /api/files/{filename}", "files_delete", s.handleDeleteFile, false)
	handle("POST /api/train/{filename}", "train", s.handleTrain, true)
	handle("GET /api/tenants/{tenant}/documents", "documents_list", s.handleDocuments, false)
	handle("DELETE /api/tenants/{tenant}/documents/{filename}", "documents_delete", s.handleDeleteDocument, false)
	handle("GET /api/tenants/{tenant}/prompt", "prompt_get", s.handleGetPrompt, false)
	handle("PUT /api/tenants/{tenant}/prompt", "prompt_put", s.handlePutPrompt, false)
	handle("DELETE /api/tenants/{tenant}/prompt", "prompt_delete", s.handleDeletePrompt, false)

	mux.Handle("GET /api/health", s.instrument("health", http.HandlerFunc(s.handleHealth)))
	mux.Handle("GET /api/ready", s.instrument("ready", http.HandlerFunc(s.handleReady)))
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.cfg.MetricsGatherer, promhttp.HandlerOpts{}))

	return mux
}

// Handler returns the fully wrapped HTTP handler. Used by tests.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	defer s.stopRL()

	errCh := make(chan error, 1)

	go func() {
		s.log.Info("server: listening", slog.String("addr", "http://"+s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		s.log.Info("server: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}
