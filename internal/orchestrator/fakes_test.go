package orchestrator

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"sync"
	"testing"
	"unicode"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/ragbot-go/internal/apperr"
	"github.com/54b3r/ragbot-go/internal/blob"
	"github.com/54b3r/ragbot-go/internal/generator"
	"github.com/54b3r/ragbot-go/internal/memory"
	"github.com/54b3r/ragbot-go/internal/profile"
	"github.com/54b3r/ragbot-go/internal/rag"
)

// ---------------------------------------------------------------------------
// Test doubles
// ---------------------------------------------------------------------------

// textExtractor returns the text registered for a filename, or the raw bytes
// when none is registered. Non-PDF names are rejected like the real one.
type textExtractor struct {
	mu    sync.Mutex
	texts map[string]string
	calls int
}

func newTextExtractor() *textExtractor {
	return &textExtractor{texts: make(map[string]string)}
}

func (e *textExtractor) set(filename, text string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.texts[filename] = text
}

func (e *textExtractor) Extract(_ context.Context, filename string, data []byte) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if !strings.HasSuffix(strings.ToLower(filename), ".pdf") {
		return "", apperr.Validation("extract: unsupported type %q", filename)
	}
	if t, ok := e.texts[filename]; ok {
		return t, nil
	}
	return string(data), nil
}

// wordEmbedder is a deterministic bag-of-words embedder.
type wordEmbedder struct{}

func (wordEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, errors.New("word embedder: empty text")
		}
		v := make([]float32, 256)
		for _, w := range strings.FieldsFunc(strings.ToLower(t), func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		}) {
			h := fnv.New32a()
			_, _ = h.Write([]byte(w))
			v[h.Sum32()%256]++
		}
		out[i] = v
	}
	return out, nil
}

// recordingGenerator echoes a canned reply and records every request.
type recordingGenerator struct {
	mu       sync.Mutex
	requests []generator.Request
	reply    string
	err      error
}

func (g *recordingGenerator) Generate(_ context.Context, req generator.Request) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	if g.err != nil {
		return "", g.err
	}
	if g.reply != "" {
		return g.reply, nil
	}
	return "answer to: " + req.Query, nil
}

func (g *recordingGenerator) last(t *testing.T) generator.Request {
	t.Helper()
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.requests) == 0 {
		t.Fatal("generator was never called")
	}
	return g.requests[len(g.requests)-1]
}

// fixture bundles a Service with the real in-memory collaborators behind it.
type fixture struct {
	svc       *Service
	index     *rag.MemoryIndex
	extractor *textExtractor
	gen       *recordingGenerator
	mem       *memory.InMemoryStore
	blobs     *blob.FileStore
	reg       *prometheus.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithStore(t, nil)
}

// newFixtureWithStore builds a fixture whose vector store uses storeCfg.
func newFixtureWithStore(t *testing.T, storeCfg *rag.StoreConfig) *fixture {
	t.Helper()

	idx := rag.NewMemoryIndex()
	emb := wordEmbedder{}

	vectors, err := rag.NewStore(idx, emb, storeCfg)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	retriever, err := rag.NewRetriever(emb, idx, &rag.RetrieverConfig{
		TopK:              15,
		PrimaryThreshold:  0.2,
		FallbackThreshold: 0.1,
		MinResults:        1,
	})
	if err != nil {
		t.Fatalf("NewRetriever: %v", err)
	}
	blobs, err := blob.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	f := &fixture{
		index:     idx,
		extractor: newTextExtractor(),
		gen:       &recordingGenerator{},
		mem:       memory.NewInMemoryStore(memory.DefaultCap),
		blobs:     blobs,
		reg:       prometheus.NewRegistry(),
	}
	f.svc, err = New(&Config{
		Extractor:       f.extractor,
		Vectors:         vectors,
		Retriever:       retriever,
		Memory:          f.mem,
		Generator:       f.gen,
		Profiles:        profile.NewStore(blobs, profile.Defaults{Model: profile.DefaultModel()}),
		Blobs:           blobs,
		MetricsRegistry: f.reg,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return f
}
