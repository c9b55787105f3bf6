package tracing

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ContextKey is the type for context keys
type ContextKey string

const (
	// TraceIDKey is the context key for trace ID
	TraceIDKey ContextKey = "trace_id"
	// SubmitIDKey identifies one agent submission
	SubmitIDKey ContextKey = "submit_id"
	// SessionIDKey is the context key for the agent session
	SessionIDKey ContextKey = "session_id"
)

// TraceContext holds tracing information
type TraceContext struct {
	TraceID   string
	SubmitID  string
	SessionID string
}

// NewTraceID generates a new trace ID
func NewTraceID() string {
	return uuid.New().String()
}

// WithTraceID adds a trace ID to the context
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// WithSubmitID adds a submission ID to the context
func WithSubmitID(ctx context.Context, submitID string) context.Context {
	return context.WithValue(ctx, SubmitIDKey, submitID)
}

// WithSessionID adds a session ID to the context
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, SessionIDKey, sessionID)
}

// GetTraceID retrieves the trace ID from the context
func GetTraceID(ctx context.Context) string {
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok {
		return traceID
	}
	return ""
}

// GetSubmitID retrieves the submission ID from the context
func GetSubmitID(ctx context.Context) string {
	if submitID, ok := ctx.Value(SubmitIDKey).(string); ok {
		return submitID
	}
	return ""
}

// GetSessionID retrieves the session ID from the context
func GetSessionID(ctx context.Context) string {
	if sessionID, ok := ctx.Value(SessionIDKey).(string); ok {
		return sessionID
	}
	return ""
}

// FromContext extracts all tracing information from the context
func FromContext(ctx context.Context) *TraceContext {
	return &TraceContext{
		TraceID:   GetTraceID(ctx),
		SubmitID:  GetSubmitID(ctx),
		SessionID: GetSessionID(ctx),
	}
}

// NewSubmitContext tags ctx with the session and a fresh submission ID.
func NewSubmitContext(ctx context.Context, sessionID string) context.Context {
	ctx = WithSubmitID(ctx, uuid.New().String())
	if sessionID != "" {
		ctx = WithSessionID(ctx, sessionID)
	}
	return ctx
}

// NewRequestContext creates a new context for a request with a new trace ID
func NewRequestContext(ctx context.Context) context.Context {
	return WithTraceID(ctx, NewTraceID())
}

// LoggerFromContext returns baseLogger enriched with the tracing fields found in ctx.
func LoggerFromContext(ctx context.Context, baseLogger zerolog.Logger) zerolog.Logger {
	tc := FromContext(ctx)
	if tc.TraceID == "" && tc.SubmitID == "" && tc.SessionID == "" {
		return baseLogger
	}

	lc := baseLogger.With()
	if tc.TraceID != "" {
		lc = lc.Str("trace_id", tc.TraceID)
	}
	if tc.SubmitID != "" {
		lc = lc.Str("submit_id", tc.SubmitID)
	}
	if tc.SessionID != "" {
		lc = lc.Str("session_id", tc.SessionID)
	}
	return lc.Logger()
}
