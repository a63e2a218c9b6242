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
	// QueueIDKey is the context key for the executing queue
	QueueIDKey ContextKey = "queue_id"
	// CommandIDKey is the context key for the executing command
	CommandIDKey ContextKey = "command_id"
)

// NewTraceID generates a new trace ID
func NewTraceID() string {
	return uuid.New().String()
}

// WithTraceID adds a trace ID to the context
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// WithQueueID adds a queue ID to the context
func WithQueueID(ctx context.Context, queueID string) context.Context {
	return context.WithValue(ctx, QueueIDKey, queueID)
}

// WithCommandID adds a command ID to the context
func WithCommandID(ctx context.Context, commandID string) context.Context {
	return context.WithValue(ctx, CommandIDKey, commandID)
}

func stringValue(ctx context.Context, key ContextKey) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// GetTraceID retrieves the trace ID from the context
func GetTraceID(ctx context.Context) string {
	return stringValue(ctx, TraceIDKey)
}

// GetQueueID retrieves the queue ID from the context
func GetQueueID(ctx context.Context) string {
	return stringValue(ctx, QueueIDKey)
}

// GetCommandID retrieves the command ID from the context
func GetCommandID(ctx context.Context) string {
	return stringValue(ctx, CommandIDKey)
}

// LoggerFromContext adds the tracing fields found in ctx to baseLogger.
func LoggerFromContext(ctx context.Context, baseLogger zerolog.Logger) zerolog.Logger {
	lc := baseLogger.With()
	if v := GetTraceID(ctx); v != "" {
		lc = lc.Str("trace_id", v)
	}
	if v := GetQueueID(ctx); v != "" {
		lc = lc.Str("queue", v)
	}
	if v := GetCommandID(ctx); v != "" {
		lc = lc.Str("command", v)
	}
	return lc.Logger()
}
