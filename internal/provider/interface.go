// Package provider selects and constructs the chat model backend used for
// answer generation. Supported backends: Ollama, OpenAI, Azure OpenAI,
// Volcengine Ark and Google Gemini.
package provider

import (
	"fmt"
	"strings"
)

// Backend enumerates the supported LLM inference providers.
type Backend string

const (
	// BackendOllama selects a locally running Ollama instance.
	BackendOllama Backend = "ollama"
	// BackendOpenAI selects the OpenAI API.
	BackendOpenAI Backend = "openai"
	// BackendAzure selects Azure OpenAI Service.
	BackendAzure Backend = "azure"
	// BackendArk selects the Volcengine Ark model runtime.
	BackendArk Backend = "ark"
	// BackendGemini selects Google Gemini via AI Studio.
	BackendGemini Backend = "gemini"
)

// ProviderOllama holds Ollama settings.
type ProviderOllama struct {
	// Host is the Ollama server base URL.
	Host string
	// Model is the chat model name (e.g. "llama3").
	Model string
}

// ProviderOpenAI holds OpenAI settings.
type ProviderOpenAI struct {
	// APIKey is the OpenAI API key.
	APIKey string
	// Model is the chat model name (e.g. "gpt-4o-mini").
	Model string
	// BaseURL overrides the API endpoint for OpenAI-compatible servers.
	BaseURL string
}

// ProviderAzureOpenAI holds Azure OpenAI settings.
type ProviderAzureOpenAI struct {
	// APIKey is the Azure OpenAI resource key.
	APIKey string
	// Endpoint is the resource endpoint (https://<name>.openai.azure.com).
	Endpoint string
	// Deployment is the model deployment name.
	Deployment string
	// APIVersion is the REST API version (e.g. "2024-02-01").
	APIVersion string
}

// ProviderArk holds Volcengine Ark settings.
type ProviderArk struct {
	// APIKey is the Ark API key.
	APIKey string
	// Model is the Ark endpoint or model id.
	Model string
	// BaseURL overrides the Ark region endpoint.
	BaseURL string
}

// ProviderGemini holds Google Gemini settings.
type ProviderGemini struct {
	// APIKey is the Google AI Studio API key.
	APIKey string
	// Model is the Gemini model name (e.g. "gemini-1.5-pro").
	Model string
}

// SharedTuning holds generation defaults applied to every backend. Per-call
// options from a tenant profile override them.
type SharedTuning struct {
	// MaxTokens caps the number of tokens the model may generate per response.
	MaxTokens int
	// Temperature controls response randomness (0.0–1.0).
	Temperature float32
}

// Config holds all provider-level configuration resolved from environment
// variables or explicit caller-supplied values.
type Config struct {
	// Backend identifies which inference provider to use.
	Backend Backend

	Ollama      ProviderOllama
	OpenAI      ProviderOpenAI
	AzureOpenAI ProviderAzureOpenAI
	Ark         ProviderArk
	Gemini      ProviderGemini

	// Tuning holds the shared generation defaults.
	Tuning SharedTuning
}

// Validate checks that the selected backend has everything it needs. Errors
// name the environment variable to set.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendOllama:
		if c.Ollama.Model == "" {
			return fmt.Errorf("provider: OLLAMA_MODEL is required for ollama backend")
		}
	case BackendOpenAI:
		if c.OpenAI.APIKey == "" {
			return fmt.Errorf("provider: OPENAI_API_KEY is required for openai backend")
		}
		if c.OpenAI.Model == "" {
			return fmt.Errorf("provider: OPENAI_MODEL is required for openai backend")
		}
	case BackendAzure:
		if c.AzureOpenAI.APIKey == "" {
			return fmt.Errorf("provider: AZURE_OPENAI_API_KEY is required for azure backend")
		}
		if c.AzureOpenAI.Endpoint == "" {
			return fmt.Errorf("provider: AZURE_OPENAI_ENDPOINT is required for azure backend")
		}
		if c.AzureOpenAI.Deployment == "" {
			return fmt.Errorf("provider: AZURE_OPENAI_DEPLOYMENT is required for azure backend")
		}
	case BackendArk:
		if c.Ark.APIKey == "" {
			return fmt.Errorf("provider: ARK_API_KEY is required for ark backend")
		}
		if c.Ark.Model == "" {
			return fmt.Errorf("provider: ARK_MODEL is required for ark backend")
		}
	case BackendGemini:
		if c.Gemini.APIKey == "" {
			return fmt.Errorf("provider: GOOGLE_API_KEY is required for gemini backend")
		}
		if c.Gemini.Model == "" {
			return fmt.Errorf("provider: GEMINI_MODEL is required for gemini backend")
		}
	default:
		return fmt.Errorf("provider: unknown backend %q, valid values: ollama, openai, azure, ark, gemini", c.Backend)
	}
	return nil
}

// ModelName returns the configured model or deployment for the backend.
func (c *Config) ModelName() string {
	switch c.Backend {
	case BackendOllama:
		return c.Ollama.Model
	case BackendOpenAI:
		return c.OpenAI.Model
	case BackendAzure:
		return c.AzureOpenAI.Deployment
	case BackendArk:
		return c.Ark.Model
	case BackendGemini:
		return c.Gemini.Model
	}
	return ""
}

// isAzureReasoningModel reports whether an Azure deployment name belongs to
// the o-series or codex reasoning models, which reject temperature and
// max_tokens.
func isAzureReasoningModel(deployment string) bool {
	d := strings.ToLower(deployment)
	for _, prefix := range []string{"o1", "o3", "o4", "codex"} {
		if strings.HasPrefix(d, prefix) {
			return true
		}
	}
	return false
}
