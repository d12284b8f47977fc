package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/ragbot-go/internal/orchestrator"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// ChatTimeout bounds a single /api/chat request (default: 2m).
	ChatTimeout time.Duration
	// TrainTimeout bounds a single ingestion request (default: 10m).
	TrainTimeout time.Duration
	// MaxUploadBytes caps the size of an uploaded file (default: 32 MiB).
	MaxUploadBytes int64
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// MetricsRegistry receives the server metrics. Defaults to
	// prometheus.DefaultRegisterer.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer backs GET /metrics. Defaults to prometheus.DefaultGatherer.
	MetricsGatherer prometheus.Gatherer
}

// Backend is the knowledge-base service the handlers call.
// *orchestrator.Service satisfies it; tests inject a fake.
type Backend interface {
	// Query answers a question for a tenant within a session.
	Query(ctx context.Context, tenantID, sessionID, query string) (string, error)
	// Train indexes a stored file for a tenant.
	Train(ctx context.Context, tenantID, filename string) (*orchestrator.IngestResult, error)
	// DeleteDocument removes a document for one tenant, or everywhere when
	// tenantID is empty.
	DeleteDocument(ctx context.Context, tenantID, documentID string) (*orchestrator.DeleteResult, error)
	// Documents lists a tenant's indexed documents.
	Documents(ctx context.Context, tenantID string) ([]string, error)
	// Upload stores a file and returns its key.
	Upload(ctx context.Context, filename string, data []byte) (string, error)
	// Download returns a stored file.
	Download(ctx context.Context, filename string) ([]byte, error)
	// Files lists the stored files.
	Files(ctx context.Context) ([]string, error)
	// Prompt returns a tenant's system prompt and whether it is custom.
	Prompt(ctx context.Context, tenantID string) (string, bool, error)
	// SetPrompt stores a custom system prompt.
	SetPrompt(ctx context.Context, tenantID, prompt string) error
	// DeletePrompt restores the default system prompt.
	DeletePrompt(ctx context.Context, tenantID string) error
}

// Server is the HTTP server that exposes the knowledge-base Backend.
type Server struct {
	// backend handles every API operation.
	backend Backend
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the Prometheus collectors owned by the server.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// chatRequest is the JSON body for POST /api/chat.
type chatRequest struct {
	// TenantID selects the chatbot whose knowledge base answers.
	TenantID string `json:"tenantId"`
	// SessionID identifies the conversation. A new one is issued when empty.
	SessionID string `json:"sessionId"`
	// Message is the user's question.
	Message string `json:"message"`
}

// chatResponse is the JSON response for POST /api/chat.
type chatResponse struct {
	// SessionID is the conversation the reply belongs to.
	SessionID string `json:"sessionId"`
	// Reply is the generated answer.
	Reply string `json:"reply"`
}

// uploadResponse is the JSON response for POST /api/files.
type uploadResponse struct {
	// Filename is the stored key, also the document id used for training.
	Filename string `json:"filename"`
	// Training is set when the upload also trained a tenant.
	Training *orchestrator.IngestResult `json:"training,omitempty"`
}

// filesResponse is the JSON response for GET /api/files.
type filesResponse struct {
	// Files lists the stored file names.
	Files []string `json:"files"`
}

// documentsResponse is the JSON response for GET /api/tenants/{tenant}/documents.
type documentsResponse struct {
	// TenantID is the tenant that was listed.
	TenantID string `json:"tenantId"`
	// Documents lists the tenant's indexed document ids.
	Documents []string `json:"documents"`
}

// promptRequest is the JSON body for PUT /api/tenants/{tenant}/prompt.
type promptRequest struct {
	// Prompt is the new system prompt.
	Prompt string `json:"prompt"`
}

// promptResponse is the JSON response for GET|PUT /api/tenants/{tenant}/prompt.
type promptResponse struct {
	// TenantID is the tenant the prompt belongs to.
	TenantID string `json:"tenantId"`
	// Prompt is the effective system prompt.
	Prompt string `json:"prompt"`
	// Custom is false when the default prompt is in effect.
	Custom bool `json:"custom"`
}

// errorResponse is the JSON body of every error reply.
type errorResponse struct {
	// Error is the human-readable failure reason.
	Error string `json:"error"`
}
