package tracing

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewTraceID(t *testing.T) {
	id1 := NewTraceID()
	id2 := NewTraceID()

	if id1 == "" {
		t.Error("NewTraceID returned empty string")
	}

	if id1 == id2 {
		t.Error("NewTraceID returned duplicate IDs")
	}
}

func TestContextValues(t *testing.T) {
	ctx := context.Background()
	ctx = WithTraceID(ctx, "trace-1")
	ctx = WithSubmitID(ctx, "submit-1")
	ctx = WithSessionID(ctx, "session-1")

	tc := FromContext(ctx)
	if tc.TraceID != "trace-1" {
		t.Errorf("Expected trace ID trace-1, got %s", tc.TraceID)
	}
	if tc.SubmitID != "submit-1" {
		t.Errorf("Expected submit ID submit-1, got %s", tc.SubmitID)
	}
	if tc.SessionID != "session-1" {
		t.Errorf("Expected session ID session-1, got %s", tc.SessionID)
	}
}

func TestEmptyContext(t *testing.T) {
	ctx := context.Background()

	if GetTraceID(ctx) != "" {
		t.Error("Expected empty trace ID")
	}
	if GetSubmitID(ctx) != "" {
		t.Error("Expected empty submit ID")
	}
	if GetSessionID(ctx) != "" {
		t.Error("Expected empty session ID")
	}
}

func TestNewSubmitContext(t *testing.T) {
	ctx := NewSubmitContext(context.Background(), "chat-42")

	if GetSubmitID(ctx) == "" {
		t.Error("Expected submit ID to be set")
	}
	if GetSessionID(ctx) != "chat-42" {
		t.Errorf("Expected session ID chat-42, got %s", GetSessionID(ctx))
	}

	other := NewSubmitContext(context.Background(), "chat-42")
	if GetSubmitID(other) == GetSubmitID(ctx) {
		t.Error("Expected distinct submit IDs")
	}
}

func TestNewRequestContext(t *testing.T) {
	ctx := NewRequestContext(context.Background())
	if GetTraceID(ctx) == "" {
		t.Error("Expected trace ID to be set")
	}
}

func TestLoggerFromContext(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	ctx := WithSessionID(WithTraceID(context.Background(), "trace-9"), "session-9")
	logger := LoggerFromContext(ctx, base)
	logger.Info().Msg("hello")

	out := buf.String()
	if !strings.Contains(out, `"trace_id":"trace-9"`) {
		t.Errorf("Expected trace_id in log output, got %s", out)
	}
	if !strings.Contains(out, `"session_id":"session-9"`) {
		t.Errorf("Expected session_id in log output, got %s", out)
	}
	if strings.Contains(out, "submit_id") {
		t.Errorf("Did not expect submit_id in log output, got %s", out)
	}
}

func TestStartSpanPropagatesTraceID(t *testing.T) {
	if err := InitOpenTelemetry(context.Background(), Config{ServiceName: "test"}); err != nil {
		t.Fatalf("InitOpenTelemetry failed: %v", err)
	}

	ctx, span := StartSpan(context.Background(), "test", "op")
	defer span.End()

	if !span.SpanContext().IsValid() {
		t.Fatal("Expected a valid span context")
	}
	if GetTraceID(ctx) != span.SpanContext().TraceID().String() {
		t.Errorf("Expected trace ID %s, got %s", span.SpanContext().TraceID(), GetTraceID(ctx))
	}

	ctx = WithTraceID(context.Background(), "preset")
	ctx, child := StartSpan(ctx, "test", "child")
	defer child.End()
	if GetTraceID(ctx) != "preset" {
		t.Errorf("Expected preset trace ID to be kept, got %s", GetTraceID(ctx))
	}
}
