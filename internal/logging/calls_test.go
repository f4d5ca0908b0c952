package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	return entry
}

func TestLogCallSuccess(t *testing.T) {
	var buf bytes.Buffer
	l := NewJSON(&buf, slog.LevelInfo, "cli")

	l.LogCall(context.Background(), "SetState", []string{"pomodoro", "1500"}, nil)

	entry := decode(t, &buf)
	if entry["msg"] != "timer_call" {
		t.Errorf("msg = %v", entry["msg"])
	}
	if entry["level"] != "INFO" {
		t.Errorf("level = %v, want INFO", entry["level"])
	}
	if entry["source"] != "cli" || entry["method"] != "SetState" || entry["result"] != "ok" {
		t.Errorf("unexpected entry: %v", entry)
	}
	args, ok := entry["args"].([]any)
	if !ok || len(args) != 2 || args[0] != "pomodoro" {
		t.Errorf("args = %v", entry["args"])
	}
	if _, ok := entry["error"]; ok {
		t.Error("unexpected error attribute")
	}
}

func TestLogCallFailure(t *testing.T) {
	var buf bytes.Buffer
	l := NewJSON(&buf, slog.LevelInfo, "api")

	l.LogCall(context.Background(), "Start", nil, errors.New("timer unavailable"))

	entry := decode(t, &buf)
	if entry["level"] != "WARN" {
		t.Errorf("level = %v, want WARN", entry["level"])
	}
	if entry["result"] != "error" || entry["error"] != "timer unavailable" {
		t.Errorf("unexpected entry: %v", entry)
	}
	if _, ok := entry["args"]; ok {
		t.Error("args should be omitted when empty")
	}
}

func TestLogCallBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewJSON(&buf, slog.LevelWarn, "cli")

	l.LogCall(context.Background(), "Stop", nil, nil)
	if buf.Len() != 0 {
		t.Errorf("expected no output, got %q", buf.String())
	}
}

func TestWithSource(t *testing.T) {
	var buf bytes.Buffer
	l := NewJSON(&buf, slog.LevelInfo, "cli").WithSource("api")

	l.LogCall(context.Background(), "Pause", nil, nil)
	if entry := decode(t, &buf); entry["source"] != "api" {
		t.Errorf("source = %v, want api", entry["source"])
	}
}
