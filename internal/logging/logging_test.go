package logging

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestLoggerEmitsJSONWithFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelDebug, Format: FormatJSON, Output: &buf})
	l.With("interface", "eth0").Info("adjacency entered THREE_WAY")

	var decoded map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("expected valid JSON line, got error: %v, line: %s", err, buf.String())
	}
	if decoded["interface"] != "eth0" {
		t.Fatalf("expected interface field to be eth0, got %v", decoded["interface"])
	}
	if decoded["message"] != "adjacency entered THREE_WAY" {
		t.Fatalf("unexpected message field: %v", decoded["message"])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelWarn, Format: FormatJSON, Output: &buf})
	l.Info("should be filtered")
	if buf.Len() != 0 {
		t.Fatalf("expected info to be filtered at warn level, got: %s", buf.String())
	}
	l.Warn("should appear")
	if buf.Len() == 0 {
		t.Fatal("expected warn line to be emitted")
	}
}
