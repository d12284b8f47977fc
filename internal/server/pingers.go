package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/qdrant/go-client/qdrant"
)

// QdrantPinger probes a Qdrant instance using its native HealthCheck RPC.
// It satisfies the Pinger interface and is used by GET /api/ready.
type QdrantPinger struct {
	// client is the Qdrant gRPC client to probe.
	client *qdrant.Client
}

// NewQdrantPinger constructs a QdrantPinger for the given Qdrant client.
func NewQdrantPinger(client *qdrant.Client) *QdrantPinger {
	return &QdrantPinger{client: client}
}

// Name returns the dependency label used in readiness responses.
func (p *QdrantPinger) Name() string { return "qdrant" }

// Ping calls the Qdrant HealthCheck RPC.
// Returns nil if Qdrant is reachable, or a descriptive error otherwise.
func (p *QdrantPinger) Ping(ctx context.Context) error {
	_, err := p.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// HTTPPinger probes an HTTP dependency (e.g. the Ollama API) with a GET
// request. Any status below 500 counts as reachable, so it costs no tokens.
type HTTPPinger struct {
	// name identifies the dependency in readiness responses.
	name string
	// url is the endpoint to probe.
	url string
	// client performs the request.
	client *http.Client
}

// NewHTTPPinger constructs an HTTPPinger. A nil client uses http.DefaultClient.
func NewHTTPPinger(name, url string, client *http.Client) *HTTPPinger {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPPinger{name: name, url: url, client: client}
}

// Name returns the dependency label used in readiness responses.
func (p *HTTPPinger) Name() string { return p.name }

// Ping issues the GET request.
func (p *HTTPPinger) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("unhealthy status %d", resp.StatusCode)
	}
	return nil
}

// FuncPinger adapts a ping function, such as the memory store's database
// ping, to the Pinger interface.
type FuncPinger struct {
	// name identifies the dependency in readiness responses.
	name string
	// fn performs the probe.
	fn func(ctx context.Context) error
}

// NewFuncPinger constructs a FuncPinger.
func NewFuncPinger(name string, fn func(ctx context.Context) error) *FuncPinger {
	return &FuncPinger{name: name, fn: fn}
}

// Name returns the dependency label used in readiness responses.
func (p *FuncPinger) Name() string { return p.name }

// Ping runs the probe function.
func (p *FuncPinger) Ping(ctx context.Context) error { return p.fn(ctx) }
