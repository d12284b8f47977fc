// Package generator produces the final answer for a query from the tenant's
// system prompt, the retrieved context and the session history, using an
// Eino chat model.
package generator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/ragbot-go/internal/apperr"
	"github.com/54b3r/ragbot-go/internal/budget"
	"github.com/54b3r/ragbot-go/internal/logging"
	"github.com/54b3r/ragbot-go/internal/memory"
	"github.com/54b3r/ragbot-go/internal/retry"
)

// NoAnswer is returned when the model produces an empty completion.
const NoAnswer = "I don't have enough information to answer that."

// Model selects the model and sampling parameters for one request.
type Model struct {
	// Name overrides the backend's configured model. Empty keeps the default.
	Name string
	// MaxTokens caps the completion length. Zero leaves the backend default.
	MaxTokens int
	// Temperature is the sampling temperature.
	Temperature float32
}

// Request is everything needed to answer one query.
type Request struct {
	// SystemPrompt establishes the assistant's persona and rules.
	SystemPrompt string
	// Context is the retrieved knowledge-base context, or the retriever's
	// no-results sentinel.
	Context string
	// History is the prior conversation, oldest first.
	History []memory.Message
	// Query is the user's question.
	Query string
	// Model selects the model and sampling parameters.
	Model Model
}

// Generator answers a Request.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Config holds the dependencies required to construct a ChatGenerator.
type Config struct {
	// ChatModel is the LLM backend constructed by the provider factory.
	ChatModel model.BaseChatModel

	// MaxContextTokens is the estimated token budget for the full input
	// (system prompt + context + history + question). History is trimmed
	// oldest-first to fit. Defaults to budget.DefaultMaxContextTokens.
	MaxContextTokens int

	// Retry wraps the completion call.
	Retry retry.Policy
}

// ChatGenerator implements Generator over an Eino chat model.
type ChatGenerator struct {
	// chat is the underlying chat model.
	chat model.BaseChatModel

	// maxContextTokens is the estimated token budget for the full input context.
	maxContextTokens int

	// retry is the policy applied to each completion call.
	retry retry.Policy
}

// New constructs a ChatGenerator from cfg.
func New(cfg *Config) (*ChatGenerator, error) {
	if cfg == nil || cfg.ChatModel == nil {
		return nil, fmt.Errorf("generator: ChatModel must not be nil")
	}
	maxCtx := cfg.MaxContextTokens
	if maxCtx <= 0 {
		maxCtx = budget.DefaultMaxContextTokens
	}
	return &ChatGenerator{chat: cfg.ChatModel, maxContextTokens: maxCtx, retry: cfg.Retry}, nil
}

// Generate sends the assembled messages to the model and returns the
// trimmed completion, or NoAnswer when the model returns nothing.
func (g *ChatGenerator) Generate(ctx context.Context, req Request) (string, error) {
	if strings.TrimSpace(req.Query) == "" {
		return "", apperr.Validation("generator: query must not be empty")
	}

	messages := g.buildMessages(ctx, req)
	opts := modelOptions(req.Model)

	reply, err := retry.Value(ctx, g.retry, "chat completion", func(ctx context.Context) (*schema.Message, error) {
		msg, err := g.chat.Generate(ctx, messages, opts...)
		return msg, apperr.Dependency("generator: completion", err)
	})
	if err != nil {
		return "", err
	}

	if reply == nil || strings.TrimSpace(reply.Content) == "" {
		return NoAnswer, nil
	}
	return strings.TrimSpace(reply.Content), nil
}

// buildMessages orders the input as
// [system, ...history, context, user], trimming history to the budget.
func (g *ChatGenerator) buildMessages(ctx context.Context, req Request) []*schema.Message {
	system := schema.SystemMessage(req.SystemPrompt)
	contextMsg := schema.SystemMessage("Knowledge base context:\n\n" + req.Context)
	user := schema.UserMessage(req.Query)

	history := make([]*schema.Message, 0, len(req.History))
	for _, m := range req.History {
		switch m.Role {
		case memory.RoleUser:
			history = append(history, schema.UserMessage(m.Content))
		case memory.RoleAssistant:
			history = append(history, schema.AssistantMessage(m.Content, nil))
		}
	}

	before := len(history)
	history = budget.TrimHistory([]*schema.Message{system, contextMsg, user}, history, g.maxContextTokens)
	if dropped := before - len(history); dropped > 0 {
		logging.FromContext(ctx).Warn("budget: dropped history messages to fit context window",
			slog.Int("dropped", dropped),
			slog.Int("retained", len(history)),
			slog.Int("max_tokens", g.maxContextTokens),
		)
	}

	out := make([]*schema.Message, 0, len(history)+3)
	out = append(out, system)
	out = append(out, history...)
	out = append(out, contextMsg, user)
	return out
}

// modelOptions converts m into per-call Eino model options.
func modelOptions(m Model) []model.Option {
	opts := []model.Option{model.WithTemperature(m.Temperature)}
	if m.Name != "" {
		opts = append(opts, model.WithModel(m.Name))
	}
	if m.MaxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(m.MaxTokens))
	}
	return opts
}
