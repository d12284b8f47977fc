// Package config provides YAML-based configuration for ragbot.
// Configuration is loaded with a layered precedence: defaults → .env file →
// YAML file → env vars. Environment variables always win.
//
// File search order:
//  1. --config CLI flag (explicit path)
//  2. RAGBOT_CONFIG environment variable
//  3. ~/.ragbot/config.yaml
//  4. ./ragbot.yaml
//
// If no file is found the system runs entirely from env vars.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration structure.
// Field names use yaml tags that mirror the env var naming (lowercase, underscored).
type Config struct {
	// Model configures the LLM chat model provider.
	Model ModelConfig `yaml:"model"`

	// Embedding configures the embedding provider.
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Vector selects and tunes the vector index backend.
	Vector VectorConfig `yaml:"vector"`

	// Qdrant configures the Qdrant vector store connection.
	Qdrant QdrantConfig `yaml:"qdrant"`

	// Segment configures document fragmenting.
	Segment SegmentConfig `yaml:"segment"`

	// Retriever configures similarity search thresholds.
	Retriever RetrieverConfig `yaml:"retriever"`

	// Retry configures backoff for calls to external services.
	Retry RetryConfig `yaml:"retry"`

	// Server configures the HTTP server.
	Server ServerConfig `yaml:"server"`

	// Storage configures the blob store for uploaded files and prompts.
	Storage StorageConfig `yaml:"storage"`

	// Memory configures conversation memory persistence.
	Memory MemoryConfig `yaml:"memory"`

	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging"`

	// Tracing configures Langfuse tracing integration.
	Tracing TracingConfig `yaml:"tracing"`
}

// ModelConfig holds LLM chat model settings.
type ModelConfig struct {
	// Provider selects the backend: ollama, openai, azure, ark, gemini.
	Provider string `yaml:"provider"`

	// MaxTokens is the maximum number of tokens in the response.
	MaxTokens int `yaml:"max_tokens"`

	// Temperature controls response randomness (0.0–1.0).
	Temperature float32 `yaml:"temperature"`

	// SystemPrompt replaces the built-in default tenant prompt.
	SystemPrompt string `yaml:"system_prompt"`

	// Ollama holds Ollama-specific settings.
	Ollama OllamaConfig `yaml:"ollama"`

	// OpenAI holds OpenAI-specific settings.
	OpenAI OpenAIConfig `yaml:"openai"`

	// Azure holds Azure OpenAI-specific settings.
	Azure AzureConfig `yaml:"azure"`

	// Ark holds Volcengine Ark-specific settings.
	Ark ArkConfig `yaml:"ark"`

	// Gemini holds Google Gemini-specific settings.
	Gemini GeminiConfig `yaml:"gemini"`
}

// OllamaConfig holds Ollama provider settings.
type OllamaConfig struct {
	// Host is the Ollama API endpoint.
	Host string `yaml:"host"`
	// Model is the Ollama model name.
	Model string `yaml:"model"`
}

// OpenAIConfig holds OpenAI provider settings.
type OpenAIConfig struct {
	// APIKey is the OpenAI API key. Prefer env var OPENAI_API_KEY.
	APIKey string `yaml:"api_key"`
	// Model is the OpenAI model name.
	Model string `yaml:"model"`
	// BaseURL points at an OpenAI-compatible server.
	BaseURL string `yaml:"base_url"`
}

// AzureConfig holds Azure OpenAI provider settings.
type AzureConfig struct {
	// APIKey is the Azure OpenAI API key. Prefer env var AZURE_OPENAI_API_KEY.
	APIKey string `yaml:"api_key"`
	// Endpoint is the Azure OpenAI resource endpoint.
	Endpoint string `yaml:"endpoint"`
	// Deployment is the Azure OpenAI deployment name.
	Deployment string `yaml:"deployment"`
	// APIVersion is the Azure OpenAI API version.
	APIVersion string `yaml:"api_version"`
}

// ArkConfig holds Volcengine Ark provider settings.
type ArkConfig struct {
	// APIKey is the Ark API key. Prefer env var ARK_API_KEY.
	APIKey string `yaml:"api_key"`
	// Model is the Ark endpoint or model id.
	Model string `yaml:"model"`
	// BaseURL overrides the Ark region endpoint.
	BaseURL string `yaml:"base_url"`
}

// GeminiConfig holds Google Gemini provider settings.
type GeminiConfig struct {
	// APIKey is the Google API key. Prefer env var GOOGLE_API_KEY.
	APIKey string `yaml:"api_key"`
	// Model is the Gemini model name.
	Model string `yaml:"model"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	// Provider selects the embedding backend (ollama, openai, azure, gemini).
	Provider string `yaml:"provider"`
	// Model is the embedding model name.
	Model string `yaml:"model"`
	// Dimensions overrides the embedding vector size.
	Dimensions int `yaml:"dimensions"`
	// APIKey is the embedding API key. Prefer env var EMBEDDING_API_KEY.
	APIKey string `yaml:"api_key"`
	// Endpoint is the embedding API endpoint.
	Endpoint string `yaml:"endpoint"`
}

// VectorConfig selects the vector index.
type VectorConfig struct {
	// Backend is "qdrant" (default) or "memory".
	Backend string `yaml:"backend"`
	// ListCap bounds filter-only listings.
	ListCap int `yaml:"list_cap"`
}

// QdrantConfig holds Qdrant vector store settings.
type QdrantConfig struct {
	// Host is the Qdrant server hostname.
	Host string `yaml:"host"`
	// Port is the Qdrant gRPC port.
	Port int `yaml:"port"`
	// Collection is the Qdrant collection name.
	Collection string `yaml:"collection"`
	// APIKey is the Qdrant API key. Prefer env var QDRANT_API_KEY.
	APIKey string `yaml:"api_key"`
	// TLS enables TLS for the Qdrant connection.
	TLS bool `yaml:"tls"`
}

// SegmentConfig holds fragment sizing settings.
type SegmentConfig struct {
	// MaxTokens is the soft token ceiling per fragment.
	MaxTokens int `yaml:"max_tokens"`
	// TitleMaxChars is the longest line treated as a section title.
	TitleMaxChars int `yaml:"title_max_chars"`
}

// RetrieverConfig holds similarity search settings.
type RetrieverConfig struct {
	// TopK is the number of candidates fetched per query.
	TopK int `yaml:"top_k"`
	// PrimaryThreshold is the preferred minimum similarity.
	PrimaryThreshold float32 `yaml:"primary_threshold"`
	// FallbackThreshold is used when too few matches pass the primary one.
	FallbackThreshold float32 `yaml:"fallback_threshold"`
	// MinResults is the number of primary matches needed to skip the fallback.
	MinResults int `yaml:"min_results"`
}

// RetryConfig holds backoff settings. Intervals use Go duration syntax.
type RetryConfig struct {
	// MaxAttempts is the total attempts including the first.
	MaxAttempts int `yaml:"max_attempts"`
	// InitialInterval is the first backoff delay (e.g. "200ms").
	InitialInterval string `yaml:"initial_interval"`
	// MaxInterval caps a single delay (e.g. "2s").
	MaxInterval string `yaml:"max_interval"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the bind address.
	Host string `yaml:"host"`
	// Port is the TCP port.
	Port int `yaml:"port"`
	// APIKey is the Bearer token for API authentication. Prefer env var RAGBOT_API_KEY.
	APIKey string `yaml:"api_key"`
}

// StorageConfig holds blob storage settings.
type StorageConfig struct {
	// BlobDir is the directory for uploaded files and prompts.
	BlobDir string `yaml:"blob_dir"`
}

// MemoryConfig holds conversation memory settings.
type MemoryConfig struct {
	// DBPath is the SQLite database path. "memory" keeps history in-process.
	DBPath string `yaml:"db_path"`
	// Cap is the number of messages kept per session.
	Cap int `yaml:"cap"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is the log output format: json, text.
	Format string `yaml:"format"`
}

// TracingConfig holds Langfuse tracing settings.
type TracingConfig struct {
	// PublicKey is the Langfuse public key. Prefer env var LANGFUSE_PUBLIC_KEY.
	PublicKey string `yaml:"public_key"`
	// SecretKey is the Langfuse secret key. Prefer env var LANGFUSE_SECRET_KEY.
	SecretKey string `yaml:"secret_key"`
	// Host is the Langfuse API host.
	Host string `yaml:"host"`
}

// envMapping maps YAML config fields to their corresponding env var names.
// Only non-empty YAML values are applied; env vars always take precedence.
var envMapping = []struct {
	envKey string
	value  func(*Config) string
}{
	{"MODEL_PROVIDER", func(c *Config) string { return c.Model.Provider }},
	{"MODEL_MAX_TOKENS", func(c *Config) string { return intStr(c.Model.MaxTokens) }},
	{"MODEL_TEMPERATURE", func(c *Config) string { return float32Str(c.Model.Temperature) }},
	{"SYSTEM_PROMPT", func(c *Config) string { return c.Model.SystemPrompt }},
	{"OLLAMA_HOST", func(c *Config) string { return c.Model.Ollama.Host }},
	{"OLLAMA_MODEL", func(c *Config) string { return c.Model.Ollama.Model }},
	{"OPENAI_API_KEY", func(c *Config) string { return c.Model.OpenAI.APIKey }},
	{"OPENAI_MODEL", func(c *Config) string { return c.Model.OpenAI.Model }},
	{"OPENAI_BASE_URL", func(c *Config) string { return c.Model.OpenAI.BaseURL }},
	{"AZURE_OPENAI_API_KEY", func(c *Config) string { return c.Model.Azure.APIKey }},
	{"AZURE_OPENAI_ENDPOINT", func(c *Config) string { return c.Model.Azure.Endpoint }},
	{"AZURE_OPENAI_DEPLOYMENT", func(c *Config) string { return c.Model.Azure.Deployment }},
	{"AZURE_OPENAI_API_VERSION", func(c *Config) string { return c.Model.Azure.APIVersion }},
	{"ARK_API_KEY", func(c *Config) string { return c.Model.Ark.APIKey }},
	{"ARK_MODEL", func(c *Config) string { return c.Model.Ark.Model }},
	{"ARK_BASE_URL", func(c *Config) string { return c.Model.Ark.BaseURL }},
	{"GOOGLE_API_KEY", func(c *Config) string { return c.Model.Gemini.APIKey }},
	{"GEMINI_MODEL", func(c *Config) string { return c.Model.Gemini.Model }},
	{"EMBEDDING_PROVIDER", func(c *Config) string { return c.Embedding.Provider }},
	{"EMBEDDING_MODEL", func(c *Config) string { return c.Embedding.Model }},
	{"EMBEDDING_DIMENSIONS", func(c *Config) string { return intStr(c.Embedding.Dimensions) }},
	{"EMBEDDING_API_KEY", func(c *Config) string { return c.Embedding.APIKey }},
	{"EMBEDDING_ENDPOINT", func(c *Config) string { return c.Embedding.Endpoint }},
	{"VECTOR_BACKEND", func(c *Config) string { return c.Vector.Backend }},
	{"VECTOR_LIST_CAP", func(c *Config) string { return intStr(c.Vector.ListCap) }},
	{"QDRANT_HOST", func(c *Config) string { return c.Qdrant.Host }},
	{"QDRANT_PORT", func(c *Config) string { return intStr(c.Qdrant.Port) }},
	{"QDRANT_COLLECTION", func(c *Config) string { return c.Qdrant.Collection }},
	{"QDRANT_API_KEY", func(c *Config) string { return c.Qdrant.APIKey }},
	{"QDRANT_TLS", func(c *Config) string { return boolStr(c.Qdrant.TLS) }},
	{"SEGMENT_MAX_TOKENS", func(c *Config) string { return intStr(c.Segment.MaxTokens) }},
	{"SEGMENT_TITLE_MAX_CHARS", func(c *Config) string { return intStr(c.Segment.TitleMaxChars) }},
	{"RETRIEVER_TOP_K", func(c *Config) string { return intStr(c.Retriever.TopK) }},
	{"RETRIEVER_PRIMARY_THRESHOLD", func(c *Config) string { return float32Str(c.Retriever.PrimaryThreshold) }},
	{"RETRIEVER_FALLBACK_THRESHOLD", func(c *Config) string { return float32Str(c.Retriever.FallbackThreshold) }},
	{"RETRIEVER_MIN_RESULTS", func(c *Config) string { return intStr(c.Retriever.MinResults) }},
	{"RETRY_MAX_ATTEMPTS", func(c *Config) string { return intStr(c.Retry.MaxAttempts) }},
	{"RETRY_INITIAL_INTERVAL", func(c *Config) string { return c.Retry.InitialInterval }},
	{"RETRY_MAX_INTERVAL", func(c *Config) string { return c.Retry.MaxInterval }},
	{"RAGBOT_HOST", func(c *Config) string { return c.Server.Host }},
	{"RAGBOT_PORT", func(c *Config) string { return intStr(c.Server.Port) }},
	{"RAGBOT_API_KEY", func(c *Config) string { return c.Server.APIKey }},
	{"RAGBOT_BLOB_DIR", func(c *Config) string { return c.Storage.BlobDir }},
	{"RAGBOT_MEMORY_DB", func(c *Config) string { return c.Memory.DBPath }},
	{"RAGBOT_MEMORY_CAP", func(c *Config) string { return intStr(c.Memory.Cap) }},
	{"LOG_LEVEL", func(c *Config) string { return c.Logging.Level }},
	{"LOG_FORMAT", func(c *Config) string { return c.Logging.Format }},
	{"LANGFUSE_PUBLIC_KEY", func(c *Config) string { return c.Tracing.PublicKey }},
	{"LANGFUSE_SECRET_KEY", func(c *Config) string { return c.Tracing.SecretKey }},
	{"LANGFUSE_HOST", func(c *Config) string { return c.Tracing.Host }},
}

// LoadDotEnv loads KEY=VALUE pairs from path (".env" when empty) into the
// environment without overriding variables that are already set. A missing
// file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: failed to load %s: %w", path, err)
	}
	return nil
}

// Load reads a YAML config file and applies non-empty values as environment
// variables. Existing env vars are never overwritten (env always wins).
// Returns the path that was loaded, or empty string if no file was found.
func Load(explicitPath string, log *slog.Logger) (string, error) {
	path := resolveConfigPath(explicitPath)
	if path == "" {
		log.Debug("config: no YAML config file found, using env vars only")
		return "", nil
	}

	data, err := os.ReadFile(path) //nolint:gosec // operator-supplied config path
	if err != nil {
		return "", fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return "", fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	applied := 0
	for _, m := range envMapping {
		yamlVal := m.value(&cfg)
		if yamlVal == "" || yamlVal == "0" || yamlVal == "false" {
			continue
		}
		if os.Getenv(m.envKey) != "" {
			continue // env var already set; do not override
		}
		if err := os.Setenv(m.envKey, yamlVal); err != nil {
			return "", fmt.Errorf("config: failed to set %s: %w", m.envKey, err)
		}
		applied++
	}

	log.Info("config: loaded YAML config",
		slog.String("path", path),
		slog.Int("keys_applied", applied),
	)

	return path, nil
}

// resolveConfigPath returns the first config file path that exists.
func resolveConfigPath(explicit string) string {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit
		}
		return ""
	}

	if envPath := os.Getenv("RAGBOT_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	home, err := os.UserHomeDir()
	if err == nil {
		p := filepath.Join(home, ".ragbot", "config.yaml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	if _, err := os.Stat("ragbot.yaml"); err == nil {
		return "ragbot.yaml"
	}

	return ""
}

// intStr converts an int to string, returning "" for zero values.
func intStr(v int) string {
	if v == 0 {
		return ""
	}
	return fmt.Sprintf("%d", v)
}

// float32Str converts a float32 to string, returning "" for zero values.
func float32Str(v float32) string {
	if v == 0 {
		return ""
	}
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.4f", v), "0"), ".")
}

// boolStr converts a bool to string, returning "" for false.
func boolStr(v bool) string {
	if !v {
		return ""
	}
	return "true"
}
