package audit

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSanitiseKey(t *testing.T) {
	t.Parallel()
	tests := []struct {
		key, value, want string
	}{
		{"OPENAI_API_KEY", "sk-abc123", "set"},
		{"OPENAI_API_KEY", "", "unset"},
		{"ASKDOCS_AUTH_PASSWORD", "hunter2", "set"},
		{"ASKDOCS_API_KEY", "token", "set"},
		{"MODEL_PROVIDER", "azure", "azure"},
		{"MODEL_PROVIDER", "", "unset"},
		{"ASKDOCS_AUTH_USER", "admin", "admin"},
	}
	for _, tt := range tests {
		if got := SanitiseKey(tt.key, tt.value); got != tt.want {
			t.Errorf("SanitiseKey(%s, %q) = %q, want %q", tt.key, tt.value, got, tt.want)
		}
	}
}

func TestSecretKeysCoverCredentials(t *testing.T) {
	t.Parallel()
	for _, e := range auditKeys {
		looksSecret := strings.HasSuffix(e.key, "_KEY") ||
			strings.Contains(e.key, "PASSWORD") ||
			strings.Contains(e.key, "TOKEN")
		if looksSecret && !e.secret {
			t.Errorf("%s looks like a credential but is not marked secret", e.key)
		}
	}
}

func TestSanitisePath(t *testing.T) {
	t.Parallel()
	if got := sanitisePath(""); got != "none" {
		t.Errorf("expected 'none', got %q", got)
	}
	if got := sanitisePath("/tmp/config.yaml"); got != "/tmp/config.yaml" {
		t.Errorf("expected '/tmp/config.yaml', got %q", got)
	}
	home, err := os.UserHomeDir()
	if err == nil && home != "" {
		p := filepath.Join(home, ".askdocs", "config.yaml")
		if got := sanitisePath(p); got != "~/.askdocs/config.yaml" {
			t.Errorf("expected '~/.askdocs/config.yaml', got %q", got)
		}
	}
}

func TestLogCommandStart_RedactsSecrets(t *testing.T) {
	t.Setenv("ASKDOCS_AUTH_PASSWORD", "hunter2")
	t.Setenv("ASKDOCS_AUTH_USER", "admin")

	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))
	LogCommandStart(t.Context(), log, "serve", "", []string{".env"})

	if bytes.Contains(buf.Bytes(), []byte("hunter2")) {
		t.Fatalf("secret value leaked into audit log: %s", buf.String())
	}

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	checks := map[string]string{
		"command":               "serve",
		"config_file":           "none",
		"dotenv":                ".env",
		"ASKDOCS_AUTH_PASSWORD": "set",
		"ASKDOCS_AUTH_USER":     "admin",
	}
	for k, want := range checks {
		if got := entry[k]; got != want {
			t.Errorf("%s: got %v, want %q", k, got, want)
		}
	}
}
