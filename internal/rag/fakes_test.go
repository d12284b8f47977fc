package rag

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"sync"
	"unicode"
)

// ---------------------------------------------------------------------------
// Test doubles shared by the rag tests
// ---------------------------------------------------------------------------

// hashEmbedder is a deterministic bag-of-words embedder: each lowercased word
// increments one of dim buckets. Texts sharing words have positive cosine
// similarity; texts with disjoint vocabularies score (almost always) zero.
type hashEmbedder struct {
	dim int

	mu    sync.Mutex
	calls int
	texts int
}

func newHashEmbedder() *hashEmbedder { return &hashEmbedder{dim: 256} }

func (e *hashEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls++
	e.texts += len(texts)
	e.mu.Unlock()

	out := make([][]float32, len(texts))
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, errors.New("hash embedder: empty text")
		}
		v := make([]float32, e.dim)
		for _, w := range strings.FieldsFunc(strings.ToLower(t), func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		}) {
			h := fnv.New32a()
			_, _ = h.Write([]byte(w))
			v[h.Sum32()%uint32(e.dim)]++ //nolint:gosec // dim is small
		}
		out[i] = v
	}
	return out, nil
}

// embeddedTexts returns how many texts were embedded in total.
func (e *hashEmbedder) embeddedTexts() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.texts
}

// failingEmbedder always returns err.
type failingEmbedder struct{ err error }

func (e failingEmbedder) Embed(context.Context, []string) ([][]float32, error) {
	return nil, e.err
}

// stubIndex returns canned search results and records the filter it saw.
type stubIndex struct {
	*MemoryIndex
	results    []Match
	lastFilter Filter
}

func newStubIndex(results ...Match) *stubIndex {
	return &stubIndex{MemoryIndex: NewMemoryIndex(), results: results}
}

func (s *stubIndex) Search(_ context.Context, _ []float32, filter Filter, topK int) ([]Match, error) {
	s.lastFilter = filter
	out := s.results
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

// scored builds a match for tenant with the given score, content and title.
func scored(tenant string, score float32, content, title string) Match {
	return Match{
		ID:    content,
		Score: score,
		Metadata: Metadata{
			Content:    content,
			Title:      title,
			DocumentID: "doc.pdf",
			TenantID:   tenant,
		},
	}
}
