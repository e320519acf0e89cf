package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestLoggerWritesJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "opex.log")
	logger, err := New(path, "info")
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	logger.Printf("dispatched %s\n", "approve")
	zl := logger.With("dispatcher")
	zl.Debug().Msg("hidden")
	zl.Warn().Int64("transaction", 7).Msg("conflict")
	if err := logger.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines (debug filtered), got %d: %q", len(lines), lines)
	}
	var first map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("decode line: %v", err)
	}
	if first["message"] != "dispatched approve" || first["app"] != "opex" {
		t.Fatalf("unexpected first entry: %v", first)
	}
	var second map[string]any
	if err := json.Unmarshal([]byte(lines[1]), &second); err != nil {
		t.Fatalf("decode line: %v", err)
	}
	if second["component"] != "dispatcher" || second["level"] != "warn" {
		t.Fatalf("unexpected second entry: %v", second)
	}
}

func TestParseLevelRejectsUnknown(t *testing.T) {
	if _, err := ParseLevel("chatty"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
	if _, err := New(filepath.Join(t.TempDir(), "x.log"), "chatty"); err == nil {
		t.Fatalf("expected New to reject unknown level")
	}
}

func TestConsoleLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewConsole(&buf, "debug")
	if err != nil {
		t.Fatalf("console logger: %v", err)
	}
	logger.Zerolog().Debug().Msg("visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Fatalf("expected console output, got %q", buf.String())
	}
}

func TestNilLoggerIsSafe(t *testing.T) {
	var logger *Logger
	logger.Printf("ignored")
	if err := logger.Close(); err != nil {
		t.Fatalf("nil close: %v", err)
	}
	Nop().Printf("ignored")
	logger.Zerolog().Info().Msg("ignored")
	if logger.Zerolog().GetLevel() != zerolog.Disabled {
		t.Fatalf("nil logger should hand out a disabled zerolog")
	}
}
