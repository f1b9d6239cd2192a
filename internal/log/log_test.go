package log

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestNewWithWriter_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, Config{Level: slog.LevelInfo})

	logger.Info("hello", "key", "value")

	out := buf.String()
	if !strings.Contains(out, "hello") {
		t.Errorf("expected message in output, got %q", out)
	}
	if !strings.Contains(out, "key=value") {
		t.Errorf("expected key=value in text output, got %q", out)
	}
}

func TestNewWithWriter_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, Config{JSON: true})

	logger.Info("hello")

	out := buf.String()
	if !strings.Contains(out, `"msg":"hello"`) {
		t.Errorf("expected JSON output, got %q", out)
	}
}

func TestNewWithWriter_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, Config{Level: slog.LevelWarn})

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")

	out := buf.String()
	if strings.Contains(out, "debug message") || strings.Contains(out, "info message") {
		t.Errorf("levels below warn should be filtered, got %q", out)
	}
	if !strings.Contains(out, "warn message") {
		t.Errorf("warn message should be logged, got %q", out)
	}
}

func TestNewNop_DiscardsOutput(t *testing.T) {
	logger := NewNop()
	// Must not panic and must accept all levels.
	logger.Debug("discarded")
	logger.Error("discarded too")
}
