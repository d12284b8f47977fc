package commands

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/54b3r/ragbot-go/internal/memory"
	"github.com/54b3r/ragbot-go/internal/rag"
)

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("T_STR", "value")
	t.Setenv("T_INT", "42")
	t.Setenv("T_BAD_INT", "forty-two")
	t.Setenv("T_FLOAT", "0.35")
	t.Setenv("T_DUR", "90s")
	t.Setenv("T_EMPTY", "")

	if got := getEnvOrDefault("T_STR", "x"); got != "value" {
		t.Errorf("getEnvOrDefault = %q", got)
	}
	if got := getEnvOrDefault("T_EMPTY", "x"); got != "x" {
		t.Errorf("empty var should fall back, got %q", got)
	}
	if got := getEnvInt("T_INT", 1); got != 42 {
		t.Errorf("getEnvInt = %d", got)
	}
	if got := getEnvInt("T_BAD_INT", 7); got != 7 {
		t.Errorf("unparseable int should fall back, got %d", got)
	}
	if got := getEnvFloat32("T_FLOAT", 0); got != 0.35 {
		t.Errorf("getEnvFloat32 = %v", got)
	}
	if got := getEnvDuration("T_DUR", time.Second); got != 90*time.Second {
		t.Errorf("getEnvDuration = %v", got)
	}
	if got := getEnvDuration("T_EMPTY", time.Second); got != time.Second {
		t.Errorf("empty duration should fall back, got %v", got)
	}
}

func TestRetrieverConfigFromEnv(t *testing.T) {
	t.Setenv("RETRIEVER_TOP_K", "20")
	t.Setenv("RETRIEVER_PRIMARY_THRESHOLD", "0.5")
	t.Setenv("RETRIEVER_FALLBACK_THRESHOLD", "")
	t.Setenv("RETRIEVER_MIN_RESULTS", "3")

	got := retrieverConfigFromEnv()
	def := rag.DefaultRetrieverConfig()
	if got.TopK != 20 || got.PrimaryThreshold != 0.5 || got.MinResults != 3 {
		t.Errorf("overrides not applied: %+v", got)
	}
	if got.FallbackThreshold != def.FallbackThreshold || got.DefaultTitle != def.DefaultTitle {
		t.Errorf("defaults not kept: %+v", got)
	}
}

func TestProfileDefaultsFromEnv(t *testing.T) {
	t.Setenv("SYSTEM_PROMPT", "Be brief.")
	t.Setenv("MODEL_MAX_TOKENS", "256")
	t.Setenv("MODEL_TEMPERATURE", "")

	d := profileDefaultsFromEnv()
	if d.SystemPrompt != "Be brief." || d.Model.MaxTokens != 256 || d.Model.Temperature != 0.5 {
		t.Errorf("defaults = %+v", d)
	}
}

func TestOpenMemory(t *testing.T) {
	log := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	t.Run("in process", func(t *testing.T) {
		t.Setenv("RAGBOT_MEMORY_DB", memoryDisabled)
		t.Setenv("RAGBOT_MEMORY_CAP", "")
		st, pinger, err := openMemory(log)
		if err != nil {
			t.Fatal(err)
		}
		defer st.Close()
		if _, ok := st.(*memory.InMemoryStore); !ok {
			t.Errorf("got %T, want *memory.InMemoryStore", st)
		}
		if pinger != nil {
			t.Error("in-process store should have no pinger")
		}
	})

	t.Run("sqlite", func(t *testing.T) {
		t.Setenv("RAGBOT_MEMORY_DB", filepath.Join(t.TempDir(), "history.db"))
		t.Setenv("RAGBOT_MEMORY_CAP", "4")
		st, pinger, err := openMemory(log)
		if err != nil {
			t.Fatal(err)
		}
		defer st.Close()
		if pinger == nil || pinger.Name() != "history" {
			t.Fatalf("pinger = %v", pinger)
		}
		if err := pinger.Ping(context.Background()); err != nil {
			t.Errorf("ping: %v", err)
		}
	})
}

func TestOpenIndex(t *testing.T) {
	log := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	t.Setenv("VECTOR_BACKEND", "memory")
	idx, pinger, err := openIndex(context.Background(), log)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := idx.(*rag.MemoryIndex); !ok || pinger != nil {
		t.Errorf("got %T with pinger %v", idx, pinger)
	}

	t.Setenv("VECTOR_BACKEND", "pinecone")
	if _, _, err := openIndex(context.Background(), log); err == nil || !strings.Contains(err.Error(), "pinecone") {
		t.Errorf("unknown backend error = %v", err)
	}
}

func TestOpenBlobs(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "files")
	t.Setenv("RAGBOT_BLOB_DIR", dir)
	st, err := openBlobs()
	if err != nil {
		t.Fatal(err)
	}
	if st.Root() != dir {
		t.Errorf("Root() = %q, want %q", st.Root(), dir)
	}
}

func TestRootCmd_Subcommands(t *testing.T) {
	t.Parallel()
	root := NewRootCmd()
	want := []string{"serve", "ingest", "ask", "documents", "delete", "version"}
	for _, name := range want {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}
