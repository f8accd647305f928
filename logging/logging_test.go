package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNew_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Config{Level: "debug", Output: &buf})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	l.Info().Str(FieldToolID, "echo").Msg("compiled")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON line, got %q: %v", buf.String(), err)
	}
	if entry[FieldToolID] != "echo" || entry["message"] != "compiled" {
		t.Errorf("unexpected entry: %v", entry)
	}
	if _, ok := entry["time"]; !ok {
		t.Error("expected timestamp field")
	}
}

func TestNew_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Config{Level: "WARN", Output: &buf})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	l.Info().Msg("hidden")
	if buf.Len() != 0 {
		t.Errorf("expected info to be filtered, got %q", buf.String())
	}
}

func TestNew_InvalidLevel(t *testing.T) {
	if _, err := New(Config{Level: "loud"}); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestOrNop(t *testing.T) {
	if OrNop(nil).GetLevel() != zerolog.Disabled {
		t.Error("expected nil to become a disabled logger")
	}
	l := zerolog.New(nil).Level(zerolog.WarnLevel)
	if OrNop(&l).GetLevel() != zerolog.WarnLevel {
		t.Error("expected logger to be returned as is")
	}
}

func TestWriter_OneEventPerLine(t *testing.T) {
	var buf bytes.Buffer
	l := zerolog.New(&buf).Level(zerolog.DebugLevel)
	w := Writer(l, "stdout")
	n, err := w.Write([]byte("first\nsecond\n"))
	if err != nil || n != len("first\nsecond\n") {
		t.Fatalf("Write = %d, %v", n, err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 events, got %d: %q", len(lines), buf.String())
	}
	if !strings.Contains(lines[1], `"stream":"stdout"`) || !strings.Contains(lines[1], `"message":"second"`) {
		t.Errorf("unexpected event: %s", lines[1])
	}
}
