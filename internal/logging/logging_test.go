package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewWithOptions_JSON(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := NewWithOptions(Options{Level: "warn", Output: &buf})

	log.Info("dropped")
	log.Warn("kept", slog.String("index", "bolt"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("want 1 line, got %d: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("not JSON: %v", err)
	}
	if rec["msg"] != "kept" || rec["index"] != "bolt" {
		t.Errorf("unexpected record: %v", rec)
	}
}

func TestNewWithOptions_Text(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	NewWithOptions(Options{Format: "TEXT", Output: &buf}).Info("hello")

	if !strings.Contains(buf.String(), "msg=hello") {
		t.Errorf("want text output, got %q", buf.String())
	}
}

func TestFromContext(t *testing.T) {
	t.Parallel()
	if FromContext(context.Background()) != slog.Default() {
		t.Error("empty context should yield slog.Default")
	}

	var buf bytes.Buffer
	log := NewWithOptions(Options{Output: &buf})
	ctx := WithLogger(context.Background(), log)
	if FromContext(ctx) != log {
		t.Error("FromContext should return the stored logger")
	}
}
