package tracing

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestContextKeys(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetTraceID(ctx))
	assert.Empty(t, GetQueueID(ctx))
	assert.Empty(t, GetCommandID(ctx))

	ctx = WithTraceID(ctx, "t-1")
	ctx = WithQueueID(ctx, "q-1")
	ctx = WithCommandID(ctx, "c-1")

	assert.Equal(t, "t-1", GetTraceID(ctx))
	assert.Equal(t, "q-1", GetQueueID(ctx))
	assert.Equal(t, "c-1", GetCommandID(ctx))
}

func TestNewTraceID_Unique(t *testing.T) {
	a := NewTraceID()
	b := NewTraceID()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}

func TestLoggerFromContext(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	ctx := WithQueueID(WithCommandID(context.Background(), "c-9"), "q-9")
	logger := LoggerFromContext(ctx, base)
	logger.Info().Msg("hello")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "q-9", entry["queue"])
	assert.Equal(t, "c-9", entry["command"])
	assert.NotContains(t, entry, "trace_id")
}

func TestStartSpan_PropagatesTraceID(t *testing.T) {
	require.NoError(t, InitOpenTelemetry("clevent-test", 1))
	t.Cleanup(func() { _ = ShutdownOpenTelemetry(context.Background()) })

	ctx, span := StartSpan(context.Background(), "test.span", attribute.String("k", "v"))
	defer span.End()

	assert.True(t, span.SpanContext().IsValid())
	assert.Equal(t, span.SpanContext().TraceID().String(), GetTraceID(ctx))
}

func TestStartSpan_NilContext(t *testing.T) {
	//nolint:staticcheck // nil context is accepted deliberately
	ctx, span := StartSpan(nil, "nil.span")
	defer span.End()
	assert.NotNil(t, ctx)
}
