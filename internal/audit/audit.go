// Package audit writes a structured audit record for every CLI command so
// operators can see which backends, stores and tenants-facing settings a
// run resolved, without exposing credentials.
//
// Secrets are logged as presence/absence only, never their values.
package audit

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// auditEntry defines an env var to include in the audit log.
type auditEntry struct {
	// key is the environment variable name.
	key string
	// secret indicates the value should be redacted to presence/absence.
	secret bool
}

// auditKeys is the ordered list of env vars included in every audit record.
var auditKeys = []auditEntry{
	// Generation model.
	{"MODEL_PROVIDER", false},
	{"OLLAMA_HOST", false},
	{"OLLAMA_MODEL", false},
	{"OPENAI_API_KEY", true},
	{"OPENAI_MODEL", false},
	{"OPENAI_BASE_URL", false},
	{"AZURE_OPENAI_API_KEY", true},
	{"AZURE_OPENAI_ENDPOINT", false},
	{"AZURE_OPENAI_DEPLOYMENT", false},
	{"ARK_API_KEY", true},
	{"ARK_MODEL", false},
	{"GOOGLE_API_KEY", true},
	{"GEMINI_MODEL", false},

	// Embeddings and vector index.
	{"EMBEDDING_PROVIDER", false},
	{"EMBEDDING_MODEL", false},
	{"EMBEDDING_API_KEY", true},
	{"VECTOR_BACKEND", false},
	{"QDRANT_HOST", false},
	{"QDRANT_PORT", false},
	{"QDRANT_COLLECTION", false},
	{"QDRANT_API_KEY", true},

	// Service state.
	{"RAGBOT_API_KEY", true},
	{"RAGBOT_BLOB_DIR", false},
	{"RAGBOT_MEMORY_DB", false},
	{"RAGBOT_MEMORY_CAP", false},

	// Observability.
	{"LOG_LEVEL", false},
	{"LOG_FORMAT", false},
	{"LANGFUSE_PUBLIC_KEY", true},
	{"LANGFUSE_SECRET_KEY", true},
}

// secretEnvKeys is the set of audited keys whose values must never be logged.
var secretEnvKeys = func() map[string]bool {
	m := make(map[string]bool)
	for _, e := range auditKeys {
		if e.secret {
			m[e.key] = true
		}
	}
	return m
}()

// LogCommandStart emits a structured audit log entry when a CLI command begins.
// It records the command name, config file source, and sanitised environment.
func LogCommandStart(ctx context.Context, log *slog.Logger, command string, configPath string) {
	log.LogAttrs(ctx, slog.LevelInfo, "audit: command start", Attrs(command, configPath)...)
}

// Attrs returns the attributes of an audit record for command.
func Attrs(command, configPath string) []slog.Attr {
	attrs := make([]slog.Attr, 0, len(auditKeys)+2)
	attrs = append(attrs,
		slog.String("command", command),
		slog.String("config_file", sanitiseConfigPath(configPath)),
	)
	for _, entry := range auditKeys {
		attrs = append(attrs, slog.String(entry.key, SanitiseKey(entry.key, os.Getenv(entry.key))))
	}
	return attrs
}

// SanitiseKey returns "set" or "unset" for known secret keys, or the actual
// value for non-secret keys. This is safe to use in log messages.
func SanitiseKey(key, value string) string {
	if secretEnvKeys[key] {
		return presence(value)
	}
	return valOrUnset(value)
}

// presence returns "set" if the value is non-empty, "unset" otherwise.
func presence(v string) string {
	if v != "" {
		return "set"
	}
	return "unset"
}

// valOrUnset returns the value if non-empty, "unset" otherwise.
func valOrUnset(v string) string {
	if v != "" {
		return v
	}
	return "unset"
}

// sanitiseConfigPath returns the config path or "none" if empty, with the
// home directory shortened to "~".
func sanitiseConfigPath(p string) string {
	if p == "" {
		return "none"
	}
	home, err := os.UserHomeDir()
	if err == nil && home != "" && strings.HasPrefix(p, home+string(os.PathSeparator)) {
		return "~" + p[len(home):]
	}
	return p
}
