package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/google/uuid"
)

func TestInit(t *testing.T) {
	logger := Init("test-service", slog.LevelInfo)
	if logger == nil {
		t.Fatal("expected non-nil logger")
	}
}

func TestInitWriter_JSONWithService(t *testing.T) {
	var buf bytes.Buffer
	l := InitWriter(&buf, "monitor", slog.LevelInfo)
	ctx := WithTraceID(context.Background(), "cycle-1")
	l.Info("cycle done", append(LogWithTrace(ctx), slog.Int("events", 2))...)
	l.Debug("hidden")

	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("not a single JSON line: %q (%v)", buf.String(), err)
	}
	if line["service"] != "monitor" || line["trace_id"] != "cycle-1" || line["events"] != float64(2) {
		t.Errorf("line = %v", line)
	}
}

func TestTraceID_RoundTrip(t *testing.T) {
	ctx := context.Background()

	// No trace ID set
	if tid := TraceID(ctx); tid != "" {
		t.Errorf("expected empty trace id, got %q", tid)
	}

	// Set and retrieve
	ctx = WithTraceID(ctx, "test-trace-123")
	if tid := TraceID(ctx); tid != "test-trace-123" {
		t.Errorf("expected 'test-trace-123', got %q", tid)
	}
}

func TestStartTrace(t *testing.T) {
	ctx, id := StartTrace(context.Background())
	if _, err := uuid.Parse(id); err != nil {
		t.Fatalf("trace id %q is not a uuid: %v", id, err)
	}
	if TraceID(ctx) != id {
		t.Errorf("context carries %q, want %q", TraceID(ctx), id)
	}
	if _, other := StartTrace(context.Background()); other == id {
		t.Error("two traces share an id")
	}
}

func TestLogWithTrace(t *testing.T) {
	ctx := context.Background()

	if attrs := LogWithTrace(ctx); attrs != nil {
		t.Errorf("expected nil attrs when no trace id, got %v", attrs)
	}

	ctx = WithTraceID(ctx, "abc-123")
	attrs := LogWithTrace(ctx)
	if len(attrs) != 1 {
		t.Fatalf("expected 1 attr, got %d", len(attrs))
	}
	attr, ok := attrs[0].(slog.Attr)
	if !ok || attr.Key != "trace_id" || attr.Value.String() != "abc-123" {
		t.Errorf("attr = %v", attrs[0])
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug, "WARN": slog.LevelWarn, "error": slog.LevelError, "": slog.LevelInfo, "loud": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
