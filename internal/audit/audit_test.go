package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"testing"
)

func TestSanitiseKey_Secret(t *testing.T) {
	t.Parallel()
	for _, key := range []string{"OPENAI_API_KEY", "RAGBOT_API_KEY", "ARK_API_KEY", "QDRANT_API_KEY"} {
		if got := SanitiseKey(key, "sk-abc123"); got != "set" {
			t.Errorf("%s: expected 'set', got %q", key, got)
		}
		if got := SanitiseKey(key, ""); got != "unset" {
			t.Errorf("%s: expected 'unset', got %q", key, got)
		}
	}
}

func TestSanitiseKey_NonSecret(t *testing.T) {
	t.Parallel()
	if got := SanitiseKey("VECTOR_BACKEND", "qdrant"); got != "qdrant" {
		t.Errorf("expected 'qdrant', got %q", got)
	}
	if got := SanitiseKey("VECTOR_BACKEND", ""); got != "unset" {
		t.Errorf("expected 'unset', got %q", got)
	}
}

func TestSanitiseConfigPath(t *testing.T) {
	t.Parallel()
	if got := sanitiseConfigPath(""); got != "none" {
		t.Errorf("expected 'none', got %q", got)
	}
	if got := sanitiseConfigPath("/tmp/config.yaml"); got != "/tmp/config.yaml" {
		t.Errorf("expected '/tmp/config.yaml', got %q", got)
	}
	home, err := os.UserHomeDir()
	if err == nil && home != "" {
		p := home + "/.ragbot/config.yaml"
		if got := sanitiseConfigPath(p); got != "~/.ragbot/config.yaml" {
			t.Errorf("expected '~/.ragbot/config.yaml', got %q", got)
		}
	}
}

func TestLogCommandStart_RedactsSecrets(t *testing.T) {
	t.Setenv("RAGBOT_API_KEY", "super-secret-token")
	t.Setenv("VECTOR_BACKEND", "memory")

	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))
	LogCommandStart(context.Background(), log, "serve", "")

	if bytes.Contains(buf.Bytes(), []byte("super-secret-token")) {
		t.Fatalf("secret value leaked into audit log: %s", buf.String())
	}

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode audit record: %v", err)
	}
	want := map[string]string{
		"command":        "serve",
		"config_file":    "none",
		"RAGBOT_API_KEY": "set",
		"VECTOR_BACKEND": "memory",
	}
	for k, v := range want {
		if rec[k] != v {
			t.Errorf("%s = %v, want %q", k, rec[k], v)
		}
	}
}

func TestAttrs_CoversEveryKey(t *testing.T) {
	t.Parallel()
	attrs := Attrs("ask", "")
	if len(attrs) != len(auditKeys)+2 {
		t.Errorf("got %d attrs, want %d", len(attrs), len(auditKeys)+2)
	}
}
