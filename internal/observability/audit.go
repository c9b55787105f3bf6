package observability

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// AuditEvent is one entry of the work item audit trail.
type AuditEvent struct {
	Type      string                 `json:"event_type"`
	Timestamp time.Time              `json:"timestamp"`
	Actor     string                 `json:"actor,omitempty"` // agent session ID
	Action    string                 `json:"action"`          // e.g. "workitem:update"
	Status    string                 `json:"status"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	TraceID   string                 `json:"trace_id,omitempty"`
}

// AuditLogger writes audit events as JSON lines.
type AuditLogger struct {
	logger zerolog.Logger
	mu     sync.Mutex
	closer io.Closer
}

var (
	auditMu   sync.RWMutex
	auditInst = &AuditLogger{logger: zerolog.Nop()}
)

// GetAuditLogger returns the global audit logger. It discards events until
// InitAuditLogger is called.
func GetAuditLogger() *AuditLogger {
	auditMu.RLock()
	defer auditMu.RUnlock()
	return auditInst
}

// InitAuditLogger directs audit events to the file at path.
func InitAuditLogger(path string) error {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	SetAuditOutput(file)
	return nil
}

// SetAuditOutput directs audit events to w, closing the previous output if
// it was opened by InitAuditLogger.
func SetAuditOutput(w io.Writer) {
	next := &AuditLogger{logger: zerolog.New(w).With().Timestamp().Logger()}
	if c, ok := w.(io.Closer); ok {
		next.closer = c
	}

	auditMu.Lock()
	prev := auditInst
	auditInst = next
	auditMu.Unlock()

	_ = prev.Close()
}

// Record emits an audit event and mirrors it onto the active span.
func (a *AuditLogger) Record(ctx context.Context, event AuditEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		event.TraceID = span.SpanContext().TraceID().String()

		span.AddEvent(event.Action, trace.WithAttributes(
			attribute.String("audit.type", event.Type),
			attribute.String("audit.status", event.Status),
			attribute.String("audit.actor", event.Actor),
		))
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	entry := a.logger.Log().
		Str("type", event.Type).
		Str("actor", event.Actor).
		Str("action", event.Action).
		Str("status", event.Status).
		Str("trace_id", event.TraceID)

	if event.Metadata != nil {
		entry.Interface("metadata", event.Metadata)
	}

	entry.Msg("")
}

// Close closes the audit output if it owns one.
func (a *AuditLogger) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closer != nil {
		err := a.closer.Close()
		a.closer = nil
		return err
	}
	return nil
}

// RecordMutationAudit appends a work item mutation to the audit trail.
func RecordMutationAudit(ctx context.Context, op, actor, status string, metadata map[string]interface{}) {
	GetAuditLogger().Record(ctx, AuditEvent{
		Type:     "workitem",
		Actor:    actor,
		Action:   "workitem:" + op,
		Status:   status,
		Metadata: metadata,
	})
}
