package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/ragbot-go/internal/blob"
	"github.com/54b3r/ragbot-go/internal/embedder"
	"github.com/54b3r/ragbot-go/internal/extract"
	"github.com/54b3r/ragbot-go/internal/generator"
	"github.com/54b3r/ragbot-go/internal/memory"
	"github.com/54b3r/ragbot-go/internal/orchestrator"
	"github.com/54b3r/ragbot-go/internal/profile"
	"github.com/54b3r/ragbot-go/internal/provider"
	"github.com/54b3r/ragbot-go/internal/rag"
	"github.com/54b3r/ragbot-go/internal/retry"
	"github.com/54b3r/ragbot-go/internal/segment"
	"github.com/54b3r/ragbot-go/internal/server"
)

// Vector index backends selectable with VECTOR_BACKEND.
const (
	vectorQdrant = "qdrant"
	vectorMemory = "memory"
)

// memoryDisabled is the RAGBOT_MEMORY_DB value that keeps history in process.
const memoryDisabled = "memory"

// app is the fully wired service plus the resources that back it.
type app struct {
	// svc is the orchestrator every command talks to.
	svc *orchestrator.Service
	// pingers are the dependency probes for GET /api/ready.
	pingers []server.Pinger
	// closers release the index and history store, in reverse order.
	closers []func() error
}

// Close releases every resource opened by buildApp.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

// buildApp assembles the orchestrator from environment configuration.
// reg receives the service metrics; nil keeps them private.
func buildApp(ctx context.Context, log *slog.Logger, reg prometheus.Registerer) (_ *app, err error) {
	rt := &app{}
	defer func() {
		if err != nil {
			_ = rt.Close()
		}
	}()

	policy := retry.PolicyFromEnv()

	blobs, err := openBlobs()
	if err != nil {
		return nil, err
	}
	log.Info("blob store ready", slog.String("dir", blobs.Root()))
	rt.pingers = append(rt.pingers, server.NewFuncPinger("blobs", func(ctx context.Context) error {
		_, err := blobs.List(ctx, "prompts/")
		return err
	}))

	if err := embedder.Validate(log); err != nil {
		return nil, err
	}
	emb, err := embedder.NewFromEnv(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}
	log.Info("embedder initialised", slog.String("provider", embedder.ResolveBackend()))

	index, pinger, err := openIndex(ctx, log)
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, index.Close)
	if pinger != nil {
		rt.pingers = append(rt.pingers, pinger)
	}

	vectors, err := rag.NewStore(index, emb, &rag.StoreConfig{
		ListCap: getEnvInt("VECTOR_LIST_CAP", rag.DefaultListCap),
		Retry:   policy,
	})
	if err != nil {
		return nil, err
	}

	retrieverCfg := retrieverConfigFromEnv()
	retrieverCfg.Retry = policy
	retriever, err := rag.NewRetriever(emb, index, &retrieverCfg)
	if err != nil {
		return nil, err
	}

	history, historyPinger, err := openMemory(log)
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, history.Close)
	if historyPinger != nil {
		rt.pingers = append(rt.pingers, historyPinger)
	}

	providerCfg := provider.ConfigFromEnv()
	chatModel, err := provider.New(ctx, providerCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise model provider: %w", err)
	}
	log.Info("provider initialised",
		slog.String("provider", string(providerCfg.Backend)),
		slog.String("model", providerCfg.ModelName()),
	)
	if providerCfg.Backend == provider.BackendOllama {
		rt.pingers = append(rt.pingers, server.NewHTTPPinger("ollama",
			strings.TrimRight(providerCfg.Ollama.Host, "/")+"/api/tags", nil))
	}

	gen, err := generator.New(&generator.Config{
		ChatModel:        chatModel,
		MaxContextTokens: getEnvInt("MODEL_MAX_CONTEXT_TOKENS", 0),
		Retry:            policy,
	})
	if err != nil {
		return nil, err
	}

	profiles := profile.NewStore(blobs, profileDefaultsFromEnv())

	rt.svc, err = orchestrator.New(&orchestrator.Config{
		Extractor: extract.NewPDFExtractor(),
		Segmenter: segment.New(segment.Config{
			MaxTokens:     getEnvInt("SEGMENT_MAX_TOKENS", 0),
			TitleMaxChars: getEnvInt("SEGMENT_TITLE_MAX_CHARS", 0),
		}),
		Vectors:         vectors,
		Retriever:       retriever,
		Memory:          history,
		Generator:       gen,
		Profiles:        profiles,
		Blobs:           blobs,
		MetricsRegistry: reg,
	})
	if err != nil {
		return nil, err
	}
	return rt, nil
}

// openBlobs opens the file store at RAGBOT_BLOB_DIR (default ~/.ragbot/files).
func openBlobs() (*blob.FileStore, error) {
	dir := os.Getenv("RAGBOT_BLOB_DIR")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("blob: could not determine home directory: %w", err)
		}
		dir = filepath.Join(home, ".ragbot", "files")
	}
	return blob.NewFileStore(dir)
}

// openIndex connects the vector index selected by VECTOR_BACKEND. The
// returned pinger is nil for the in-process index.
func openIndex(ctx context.Context, log *slog.Logger) (rag.Index, server.Pinger, error) {
	backend := strings.ToLower(getEnvOrDefault("VECTOR_BACKEND", vectorQdrant))
	switch backend {
	case vectorMemory:
		log.Warn("vector index is in-process; indexed documents are lost on exit")
		return rag.NewMemoryIndex(), nil, nil

	case vectorQdrant:
		host := getEnvOrDefault("QDRANT_HOST", "localhost")
		port := getEnvInt("QDRANT_PORT", 6334)
		collection := getEnvOrDefault("QDRANT_COLLECTION", "ragbot")
		idx, err := rag.NewQdrantIndex(ctx, &rag.QdrantConfig{
			Host:       host,
			Port:       port,
			Collection: collection,
			VectorSize: uint64(embedder.DefaultDimensions(embedder.ResolveBackend())), //nolint:gosec // dimensions are bounded
			APIKey:     os.Getenv("QDRANT_API_KEY"),
			UseTLS:     os.Getenv("QDRANT_TLS") == "true",
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to Qdrant at %s:%d: %w", host, port, err)
		}
		log.Info("qdrant index ready",
			slog.String("host", host),
			slog.Int("port", port),
			slog.String("collection", collection),
		)
		return idx, server.NewQdrantPinger(idx.Client()), nil

	default:
		return nil, nil, fmt.Errorf("unknown VECTOR_BACKEND %q, valid values: %s, %s", backend, vectorQdrant, vectorMemory)
	}
}

// openMemory opens the conversation history store. RAGBOT_MEMORY_DB selects
// the SQLite path (default ~/.ragbot/history.db); the value "memory" keeps
// history in process only.
func openMemory(log *slog.Logger) (memory.Store, server.Pinger, error) {
	capacity := getEnvInt("RAGBOT_MEMORY_CAP", memory.DefaultCap)

	path := os.Getenv("RAGBOT_MEMORY_DB")
	if path == memoryDisabled {
		log.Info("history: in-process store", slog.Int("cap", capacity))
		return memory.NewInMemoryStore(capacity), nil, nil
	}
	if path == "" {
		var err error
		if path, err = memory.DefaultDBPath(); err != nil {
			return nil, nil, err
		}
	}

	st, err := memory.OpenSQLite(path, capacity)
	if err != nil {
		return nil, nil, err
	}
	log.Info("history: store opened", slog.String("path", path), slog.Int("cap", capacity))
	return st, server.NewFuncPinger("history", st.Ping), nil
}

// retrieverConfigFromEnv overlays RETRIEVER_* settings on the defaults.
func retrieverConfigFromEnv() rag.RetrieverConfig {
	c := rag.DefaultRetrieverConfig()
	c.TopK = getEnvInt("RETRIEVER_TOP_K", c.TopK)
	c.PrimaryThreshold = getEnvFloat32("RETRIEVER_PRIMARY_THRESHOLD", c.PrimaryThreshold)
	c.FallbackThreshold = getEnvFloat32("RETRIEVER_FALLBACK_THRESHOLD", c.FallbackThreshold)
	c.MinResults = getEnvInt("RETRIEVER_MIN_RESULTS", c.MinResults)
	return c
}

// profileDefaultsFromEnv returns the prompt and model defaults applied to
// tenants without overrides.
func profileDefaultsFromEnv() profile.Defaults {
	m := profile.DefaultModel()
	m.MaxTokens = getEnvInt("MODEL_MAX_TOKENS", m.MaxTokens)
	m.Temperature = getEnvFloat32("MODEL_TEMPERATURE", m.Temperature)
	return profile.Defaults{
		SystemPrompt: os.Getenv("SYSTEM_PROMPT"),
		Model:        m,
	}
}

// getEnvOrDefault returns the value of the named environment variable, or
// fallback if the variable is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the named environment variable parsed as an int, or
// fallback if unset or unparseable.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// getEnvFloat32 returns the named environment variable parsed as a float32,
// or fallback if unset or unparseable.
func getEnvFloat32(key string, fallback float32) float32 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 32); err == nil {
			return float32(f)
		}
	}
	return fallback
}

// getEnvDuration returns the named environment variable parsed as a
// duration (e.g. "90s"), or fallback if unset or unparseable.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
