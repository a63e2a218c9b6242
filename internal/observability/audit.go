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

// AuditEvent represents a structured event for the audit log
type AuditEvent struct {
	Type      string                 `json:"event_type"`
	Timestamp time.Time              `json:"timestamp"`
	Command   string                 `json:"command,omitempty"`
	Action    string                 `json:"action"` // e.g. "user_status"
	Status    string                 `json:"status"` // "accepted", "rejected"
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	TraceID   string                 `json:"trace_id,omitempty"`
}

// AuditLogger handles recording and persisting audit events
type AuditLogger struct {
	logger zerolog.Logger
	mu     sync.Mutex
	file   *os.File
}

var (
	auditOnce sync.Once
	auditMu   sync.RWMutex
	auditInst *AuditLogger
)

// GetAuditLogger returns the global audit logger instance
func GetAuditLogger() *AuditLogger {
	auditOnce.Do(func() {
		auditMu.Lock()
		defer auditMu.Unlock()
		if auditInst == nil {
			// Default to stderr if not initialized
			auditInst = &AuditLogger{
				logger: zerolog.New(os.Stderr).With().Timestamp().Logger(),
			}
		}
	})
	auditMu.RLock()
	defer auditMu.RUnlock()
	return auditInst
}

// InitAuditLogger points the global audit logger at a file.
func InitAuditLogger(path string) error {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	setAuditLogger(&AuditLogger{
		logger: zerolog.New(file).With().Timestamp().Logger(),
		file:   file,
	})
	return nil
}

// NewAuditLogger creates an audit logger writing to w and installs it globally.
func NewAuditLogger(w io.Writer) *AuditLogger {
	a := &AuditLogger{
		logger: zerolog.New(w).With().Timestamp().Logger(),
	}
	setAuditLogger(a)
	return a
}

func setAuditLogger(a *AuditLogger) {
	auditOnce.Do(func() {})
	auditMu.Lock()
	defer auditMu.Unlock()
	auditInst = a
}

// Record emits an audit event to the log file and optionally to OpenTelemetry
func (a *AuditLogger) Record(ctx context.Context, event AuditEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	// Extract tracing info if available
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		event.TraceID = span.SpanContext().TraceID().String()

		span.AddEvent(event.Action, trace.WithAttributes(
			attribute.String("audit.type", event.Type),
			attribute.String("audit.status", event.Status),
			attribute.String("audit.command", event.Command),
		))
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	entry := a.logger.Log().
		Str("type", event.Type).
		Str("command", event.Command).
		Str("action", event.Action).
		Str("status", event.Status).
		Str("trace_id", event.TraceID)

	if event.Metadata != nil {
		entry.Interface("metadata", event.Metadata)
	}

	entry.Msg("")
}

// Close closes the audit logger's file handle
func (a *AuditLogger) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file != nil {
		return a.file.Close()
	}
	return nil
}

// RecordUserSignalAudit records an attempt to signal a user command.
func RecordUserSignalAudit(ctx context.Context, commandID string, code int, accepted bool, reason string) {
	status := "rejected"
	if accepted {
		status = "accepted"
	}
	RecordUserSignal(accepted)

	metadata := map[string]interface{}{"code": code}
	if reason != "" {
		metadata["reason"] = reason
	}

	GetAuditLogger().Record(ctx, AuditEvent{
		Type:     "protocol",
		Command:  commandID,
		Action:   "user_status",
		Status:   status,
		Metadata: metadata,
	})
}
