// Package profile resolves the per-tenant generation settings: the system
// prompt (stored as a blob, editable at runtime) and the model parameters.
package profile

import (
	"context"
	"errors"
	"strings"

	"github.com/54b3r/ragbot-go/internal/apperr"
	"github.com/54b3r/ragbot-go/internal/blob"
	"github.com/54b3r/ragbot-go/internal/generator"
)

// DefaultSystemPrompt is used for tenants without a stored prompt.
const DefaultSystemPrompt = `You are a helpful assistant for this organisation's knowledge base.
Answer the user's question using only the knowledge base context provided.
If the context does not contain the answer, reply "I don't have enough information."
Answer in the same language as the question.`

// promptPrefix is the blob key prefix for stored prompts.
const promptPrefix = "prompts/prompt_"

// Profile is the generation configuration for one tenant.
type Profile struct {
	// TenantID identifies the tenant.
	TenantID string
	// SystemPrompt is the tenant's prompt, or the default.
	SystemPrompt string
	// CustomPrompt is true when SystemPrompt came from the blob store.
	CustomPrompt bool
	// Model holds the model name and sampling parameters.
	Model generator.Model
}

// Defaults are applied to every tenant without an override.
type Defaults struct {
	// SystemPrompt replaces DefaultSystemPrompt when non-empty.
	SystemPrompt string
	// Model is the default model configuration.
	Model generator.Model
}

// DefaultModel returns the model defaults: backend model, 500 tokens, 0.5.
func DefaultModel() generator.Model {
	return generator.Model{MaxTokens: 500, Temperature: 0.5}
}

// Store loads and edits tenant profiles backed by a blob.Store.
type Store struct {
	blobs    blob.Store
	defaults Defaults
}

// NewStore returns a Store. Zero fields of d take package defaults.
func NewStore(blobs blob.Store, d Defaults) *Store {
	if d.SystemPrompt == "" {
		d.SystemPrompt = DefaultSystemPrompt
	}
	if d.Model.MaxTokens <= 0 {
		d.Model.MaxTokens = DefaultModel().MaxTokens
	}
	return &Store{blobs: blobs, defaults: d}
}

// PromptKey returns the blob key holding tenantID's prompt.
func PromptKey(tenantID string) (string, error) {
	if tenantID == "" {
		return "", apperr.Validation("profile: tenant id is required")
	}
	if strings.ContainsAny(tenantID, `/\`) || strings.Contains(tenantID, "..") {
		return "", apperr.Validation("profile: invalid tenant id %q", tenantID)
	}
	return promptPrefix + tenantID + ".txt", nil
}

// Load returns tenantID's profile, falling back to the defaults when no
// prompt is stored.
func (s *Store) Load(ctx context.Context, tenantID string) (*Profile, error) {
	prompt, custom, err := s.Prompt(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return &Profile{
		TenantID:     tenantID,
		SystemPrompt: prompt,
		CustomPrompt: custom,
		Model:        s.defaults.Model,
	}, nil
}

// Prompt returns the tenant's effective prompt and whether it is custom.
func (s *Store) Prompt(ctx context.Context, tenantID string) (string, bool, error) {
	key, err := PromptKey(tenantID)
	if err != nil {
		return "", false, err
	}
	data, err := s.blobs.Get(ctx, key)
	if errors.Is(err, apperr.ErrNotFound) {
		return s.defaults.SystemPrompt, false, nil
	}
	if err != nil {
		return "", false, err
	}
	if strings.TrimSpace(string(data)) == "" {
		return s.defaults.SystemPrompt, false, nil
	}
	return string(data), true, nil
}

// SetPrompt stores prompt as tenantID's system prompt, replacing any
// previous one.
func (s *Store) SetPrompt(ctx context.Context, tenantID, prompt string) error {
	key, err := PromptKey(tenantID)
	if err != nil {
		return err
	}
	if strings.TrimSpace(prompt) == "" {
		return apperr.Validation("profile: prompt must not be empty")
	}
	return s.blobs.Put(ctx, key, []byte(prompt))
}

// DeletePrompt removes tenantID's prompt. A missing prompt is not an error.
func (s *Store) DeletePrompt(ctx context.Context, tenantID string) error {
	key, err := PromptKey(tenantID)
	if err != nil {
		return err
	}
	if err := s.blobs.Delete(ctx, key); err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return err
	}
	return nil
}
