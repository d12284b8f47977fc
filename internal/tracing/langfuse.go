// Package tracing wires Langfuse tracing into the eino callback system so
// every retrieval-augmented generation call can be inspected per session.
package tracing

import (
	"os"
	"strconv"

	"github.com/cloudwego/eino-ext/callbacks/langfuse"
	"github.com/cloudwego/eino/callbacks"

	"github.com/54b3r/ragbot-go/internal/version"
)

// defaultHost is the Langfuse endpoint used when LANGFUSE_HOST is unset.
const defaultHost = "http://localhost:3000"

// Config holds the Langfuse connection settings.
type Config struct {
	// Host is the Langfuse base URL.
	Host string
	// PublicKey and SecretKey authenticate the project.
	PublicKey string
	SecretKey string
	// SampleRate is the fraction of traces sent, in (0, 1]. Zero means 1.
	SampleRate float64
}

// Enabled reports whether both keys are present.
func (c *Config) Enabled() bool {
	return c.PublicKey != "" && c.SecretKey != ""
}

// ConfigFromEnv reads LANGFUSE_HOST, LANGFUSE_PUBLIC_KEY, LANGFUSE_SECRET_KEY
// and LANGFUSE_SAMPLE_RATE. Invalid or out-of-range sample rates fall back to 1.
func ConfigFromEnv() *Config {
	cfg := &Config{
		Host:       os.Getenv("LANGFUSE_HOST"),
		PublicKey:  os.Getenv("LANGFUSE_PUBLIC_KEY"),
		SecretKey:  os.Getenv("LANGFUSE_SECRET_KEY"),
		SampleRate: 1,
	}
	if cfg.Host == "" {
		cfg.Host = defaultHost
	}
	if v := os.Getenv("LANGFUSE_SAMPLE_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 && f <= 1 {
			cfg.SampleRate = f
		}
	}
	return cfg
}

// Setup initialises the Langfuse callback handler from the environment.
// Returns a flush function that must be called before process exit to ensure
// all traces are sent. If Langfuse is not configured, the handler and flush
// function are nil and ok is false.
func Setup() (handler callbacks.Handler, flush func(), ok bool) {
	return New(ConfigFromEnv())
}

// New builds the Langfuse handler for cfg. See [Setup].
func New(cfg *Config) (callbacks.Handler, func(), bool) {
	if cfg == nil || !cfg.Enabled() {
		return nil, nil, false
	}
	rate := cfg.SampleRate
	if rate <= 0 {
		rate = 1
	}

	handler, flusher := langfuse.NewLangfuseHandler(&langfuse.Config{
		Host:       cfg.Host,
		PublicKey:  cfg.PublicKey,
		SecretKey:  cfg.SecretKey,
		Name:       "ragbot",
		Release:    version.Version,
		SampleRate: rate,
	})

	return handler, flusher, true
}
