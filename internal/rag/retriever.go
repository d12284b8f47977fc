package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/54b3r/ragbot-go/internal/apperr"
	"github.com/54b3r/ragbot-go/internal/logging"
	"github.com/54b3r/ragbot-go/internal/retry"
)

// NoRelevantResults is the context returned when no fragment passes the
// relevance thresholds. It is a normal outcome, not an error.
const NoRelevantResults = "No relevant information was found in the knowledge base for this question."

// RetrieverConfig tunes similarity search and the adaptive threshold policy.
//
// Matches scoring at least PrimaryThreshold are used when there are at least
// MinResults of them. Otherwise the bar drops to FallbackThreshold, which
// must not be stricter than PrimaryThreshold.
type RetrieverConfig struct {
	// TopK is the number of candidates requested from the index.
	TopK int
	// PrimaryThreshold is the preferred minimum similarity score.
	PrimaryThreshold float32
	// FallbackThreshold is the minimum score used when too few matches pass
	// the primary threshold.
	FallbackThreshold float32
	// MinResults is the number of primary matches needed to skip the fallback.
	MinResults int
	// DefaultTitle groups matches stored without a title.
	DefaultTitle string
	// Retry wraps the embedding and search calls.
	Retry retry.Policy
}

// DefaultRetrieverConfig returns the standard retrieval policy.
func DefaultRetrieverConfig() RetrieverConfig {
	return RetrieverConfig{
		TopK:              15,
		PrimaryThreshold:  0.4,
		FallbackThreshold: 0.3,
		MinResults:        5,
		DefaultTitle:      "general information",
		Retry:             retry.None(),
	}
}

// Result is the structured outcome of a retrieval.
type Result struct {
	// Context is the grouped context string, or NoRelevantResults.
	Context string
	// Matches are the fragments that passed the threshold, best first.
	Matches []Match
	// UsedFallback is true when the fallback threshold selected Matches.
	UsedFallback bool
}

// Found reports whether any fragment passed the thresholds.
func (r *Result) Found() bool { return len(r.Matches) > 0 }

// Retriever embeds queries and assembles tenant-scoped context.
// It is safe for concurrent use.
type Retriever struct {
	// embedder converts query text to a dense vector.
	embedder Embedder

	// index performs the vector similarity search.
	index Index

	// cfg holds the resolved retrieval policy.
	cfg RetrieverConfig
}

// NewRetriever constructs a Retriever. A nil cfg uses DefaultRetrieverConfig.
// It fails when the fallback threshold is stricter than the primary one.
func NewRetriever(embedder Embedder, index Index, cfg *RetrieverConfig) (*Retriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("rag: embedder must not be nil")
	}
	if index == nil {
		return nil, fmt.Errorf("rag: index must not be nil")
	}

	c := DefaultRetrieverConfig()
	if cfg != nil {
		c = *cfg
	}
	if c.TopK <= 0 {
		c.TopK = 15
	}
	if c.MinResults <= 0 {
		c.MinResults = 1
	}
	if c.DefaultTitle == "" {
		c.DefaultTitle = "general information"
	}
	if c.FallbackThreshold > c.PrimaryThreshold {
		return nil, fmt.Errorf("rag: fallback threshold %.2f must not exceed primary threshold %.2f",
			c.FallbackThreshold, c.PrimaryThreshold)
	}

	return &Retriever{embedder: embedder, index: index, cfg: c}, nil
}

// Search returns the context string for query within tenantID, or
// NoRelevantResults when nothing is relevant enough.
func (r *Retriever) Search(ctx context.Context, query, tenantID string) (string, error) {
	res, err := r.Retrieve(ctx, query, tenantID)
	if err != nil {
		return "", err
	}
	return res.Context, nil
}

// Retrieve runs the full retrieval and returns the structured result.
func (r *Retriever) Retrieve(ctx context.Context, query, tenantID string) (*Result, error) {
	if tenantID == "" {
		return nil, apperr.Validation("rag: tenant id is required")
	}
	if strings.TrimSpace(query) == "" {
		return nil, apperr.Validation("rag: query must not be empty")
	}

	vectors, err := retry.Value(ctx, r.cfg.Retry, "embed query", func(ctx context.Context) ([][]float32, error) {
		v, err := r.embedder.Embed(ctx, []string{query})
		return v, apperr.Dependency("rag: embed query", err)
	})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, apperr.Dependency("rag: embed query", fmt.Errorf("embedder returned empty result"))
	}

	candidates, err := retry.Value(ctx, r.cfg.Retry, "vector search", func(ctx context.Context) ([]Match, error) {
		m, err := r.index.Search(ctx, vectors[0], Filter{TenantID: tenantID}, r.cfg.TopK)
		return m, apperr.Dependency("rag: search", err)
	})
	if err != nil {
		return nil, err
	}

	candidates = dedupe(ownedBy(candidates, tenantID))
	selected, fallback := r.selectMatches(candidates)

	logging.FromContext(ctx).Debug("rag: retrieval",
		slog.String("tenant", tenantID),
		slog.Int("candidates", len(candidates)),
		slog.Int("selected", len(selected)),
		slog.Bool("fallback", fallback),
	)

	if len(selected) == 0 {
		return &Result{Context: NoRelevantResults}, nil
	}
	return &Result{
		Context:      r.buildContext(selected),
		Matches:      selected,
		UsedFallback: fallback,
	}, nil
}

// selectMatches applies the primary threshold and falls back to the looser
// threshold when fewer than MinResults pass.
func (r *Retriever) selectMatches(matches []Match) ([]Match, bool) {
	primary := aboveThreshold(matches, r.cfg.PrimaryThreshold)
	if len(primary) >= r.cfg.MinResults {
		return primary, false
	}
	fallback := aboveThreshold(matches, r.cfg.FallbackThreshold)
	return fallback, len(fallback) > len(primary)
}

// buildContext groups matches by title in first-seen order and renders each
// group under a markdown header.
func (r *Retriever) buildContext(matches []Match) string {
	var order []string
	groups := make(map[string][]string)
	for _, m := range matches {
		title := strings.TrimSpace(m.Metadata.Title)
		if title == "" {
			title = r.cfg.DefaultTitle
		}
		if _, ok := groups[title]; !ok {
			order = append(order, title)
		}
		groups[title] = append(groups[title], m.Metadata.Content)
	}

	var sb strings.Builder
	for i, title := range order {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString("### ")
		sb.WriteString(title)
		sb.WriteString("\n")
		sb.WriteString(strings.Join(groups[title], "\n"))
	}
	return sb.String()
}

// ownedBy drops any match whose stored tenant differs from tenantID.
// The index filter should already guarantee this.
func ownedBy(matches []Match, tenantID string) []Match {
	out := matches[:0:0]
	for _, m := range matches {
		if m.Metadata.TenantID == tenantID {
			out = append(out, m)
		}
	}
	return out
}

// dedupe keeps the first (best scoring) match for each distinct content.
func dedupe(matches []Match) []Match {
	seen := make(map[string]struct{}, len(matches))
	out := make([]Match, 0, len(matches))
	for _, m := range matches {
		if _, ok := seen[m.Metadata.Content]; ok {
			continue
		}
		seen[m.Metadata.Content] = struct{}{}
		out = append(out, m)
	}
	return out
}

// aboveThreshold returns the matches scoring at least floor, preserving order.
func aboveThreshold(matches []Match, floor float32) []Match {
	var out []Match
	for _, m := range matches {
		if m.Score >= floor {
			out = append(out, m)
		}
	}
	return out
}
