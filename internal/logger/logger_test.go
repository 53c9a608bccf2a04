package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestWithRequestID_And_RequestIDFromContext(t *testing.T) {
	ctx := context.Background()
	requestID := "req-12345"

	if got := RequestIDFromContext(ctx); got != "" {
		t.Errorf("RequestIDFromContext() on empty ctx = %v, want empty", got)
	}

	ctx = WithRequestID(ctx, requestID)
	if got := RequestIDFromContext(ctx); got != requestID {
		t.Errorf("RequestIDFromContext() = %v, want %v", got, requestID)
	}
}

func TestFromContext_AttachesRequestID(t *testing.T) {
	var buf bytes.Buffer
	base := NewWithLevel(&buf, "info")
	ctx := WithRequestID(context.Background(), "req-67890")

	FromContext(ctx, base).Info("batch moved", "batch_number", "B-1")

	var line map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("log line is not JSON: %v (%s)", err, buf.String())
	}
	if line["request_id"] != "req-67890" {
		t.Errorf("request_id = %v, want req-67890", line["request_id"])
	}
	if line["batch_number"] != "B-1" {
		t.Errorf("batch_number = %v, want B-1", line["batch_number"])
	}
}

func TestFromContext_WithoutRequestIDReturnsBase(t *testing.T) {
	base := New()
	if got := FromContext(context.Background(), base); got != base {
		t.Error("FromContext() without request ID should return the base logger")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{" warn ", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"verbose", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewWithLevel_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithLevel(&buf, "warn")

	l.Info("dropped")
	if buf.Len() != 0 {
		t.Errorf("expected info line to be filtered, got %s", buf.String())
	}
	l.Warn("kept")
	if buf.Len() == 0 {
		t.Error("expected warn line to be written")
	}
}
