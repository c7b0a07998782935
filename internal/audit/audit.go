// Package audit records which command ran and under what configuration.
// Each askdocs command emits one structured entry at start-up naming the
// config and .env files in effect and the relevant environment variables.
// Secret variables are reported as "set" or "unset", never by value.
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

// auditKeys is the ordered list of env vars included in every audit log entry.
var auditKeys = []auditEntry{
	{"MODEL_PROVIDER", false},
	{"OLLAMA_HOST", false},
	{"OLLAMA_MODEL", false},
	{"OPENAI_API_KEY", true},
	{"OPENAI_MODEL", false},
	{"OPENAI_BASE_URL", false},
	{"AZURE_OPENAI_API_KEY", true},
	{"AZURE_OPENAI_ENDPOINT", false},
	{"AZURE_OPENAI_DEPLOYMENT", false},
	{"GOOGLE_API_KEY", true},
	{"GEMINI_MODEL", false},
	{"AWS_REGION", false},
	{"BEDROCK_MODEL_ID", false},
	{"BEDROCK_API_KEY", true},
	{"EMBEDDING_PROVIDER", false},
	{"EMBEDDING_MODEL", false},
	{"EMBEDDING_API_KEY", true},
	{"ASKDOCS_INDEX_BACKEND", false},
	{"ASKDOCS_INDEX_PATH", false},
	{"QDRANT_HOST", false},
	{"QDRANT_PORT", false},
	{"QDRANT_COLLECTION", false},
	{"QDRANT_API_KEY", true},
	{"ASKDOCS_TOP_K", false},
	{"ASKDOCS_MAP_CONCURRENCY", false},
	{"ASKDOCS_MODEL_TIMEOUT", false},
	{"ASKDOCS_EMBED_CACHE", false},
	{"ASKDOCS_API_KEY", true},
	{"ASKDOCS_AUTH_USER", false},
	{"ASKDOCS_AUTH_PASSWORD", true},
	{"LOG_LEVEL", false},
	{"LOG_FORMAT", false},
	{"LANGFUSE_PUBLIC_KEY", true},
	{"LANGFUSE_SECRET_KEY", true},
	{"AWS_SECRET_ACCESS_KEY", true},
	{"AWS_SESSION_TOKEN", true},
}

// secretEnvKeys indexes the secret entries of auditKeys.
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
// dotenvFiles lists the .env files that were loaded, if any.
func LogCommandStart(ctx context.Context, log *slog.Logger, command, configPath string, dotenvFiles []string) {
	attrs := []slog.Attr{
		slog.String("command", command),
		slog.String("config_file", sanitisePath(configPath)),
		slog.String("dotenv", dotenvList(dotenvFiles)),
	}

	for _, entry := range auditKeys {
		attrs = append(attrs, slog.String(entry.key, SanitiseKey(entry.key, os.Getenv(entry.key))))
	}

	log.LogAttrs(ctx, slog.LevelInfo, "audit: command start", attrs...)
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

// dotenvList joins sanitised .env paths, or returns "none".
func dotenvList(files []string) string {
	if len(files) == 0 {
		return "none"
	}
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = sanitisePath(f)
	}
	return strings.Join(out, ",")
}

// sanitisePath returns p with the home directory shown as "~", or "none"
// if p is empty.
func sanitisePath(p string) string {
	if p == "" {
		return "none"
	}
	home, err := os.UserHomeDir()
	if err == nil && home != "" && strings.HasPrefix(p, home) {
		return "~" + p[len(home):]
	}
	return p
}
