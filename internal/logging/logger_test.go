package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"DEBUG", slog.LevelDebug},
		{"debug", slog.LevelDebug},
		{" info ", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestValidLevel(t *testing.T) {
	if !ValidLevel("warn") || !ValidLevel("ERROR") {
		t.Error("ValidLevel rejected a known level")
	}
	if ValidLevel("verbose") {
		t.Error("ValidLevel accepted an unknown level")
	}
}

func TestNewWriterFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriter(&buf, LevelWarn)

	logger.Info("dropped")
	logger.Warn("kept", "state", "monitoring")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %q", len(lines), buf.String())
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["msg"] != "kept" || entry["state"] != "monitoring" {
		t.Errorf("unexpected entry: %v", entry)
	}
}

func TestNewWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "limitwatch.log")

	logger, closer, err := New(LevelInfo, path)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	logger.Info("hello", "session", "abc")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error: %v", err)
	}
	if !strings.Contains(string(data), `"session":"abc"`) {
		t.Errorf("log file missing attribute: %s", data)
	}
}

func TestNewStderr(t *testing.T) {
	logger, closer, err := New(LevelDebug, "")
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if logger == nil || closer == nil {
		t.Fatal("New() returned nil logger or closer")
	}
	if err := closer.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
}
