package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordEnqueueAndFlush(t *testing.T) {
	m := getMetrics()

	before := testutil.ToFloat64(m.enqueueTotal.WithLabelValues("obs-q"))
	RecordEnqueue("obs-q", 3)

	assert.Equal(t, before+1, testutil.ToFloat64(m.enqueueTotal.WithLabelValues("obs-q")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.queuePending.WithLabelValues("obs-q")))

	batches := testutil.ToFloat64(m.batchesTotal.WithLabelValues("obs-q"))
	RecordFlush("obs-q", 0)
	assert.Equal(t, batches, testutil.ToFloat64(m.batchesTotal.WithLabelValues("obs-q")), "empty flush is not a batch")
	RecordFlush("obs-q", 3)
	assert.Equal(t, batches+1, testutil.ToFloat64(m.batchesTotal.WithLabelValues("obs-q")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.queuePending.WithLabelValues("obs-q")))
}

func TestRecordRetired(t *testing.T) {
	m := getMetrics()

	ok := testutil.ToFloat64(m.retiredTotal.WithLabelValues("obs-r", "complete"))
	bad := testutil.ToFloat64(m.retiredTotal.WithLabelValues("obs-r", "error"))

	RecordRetired("obs-r", true)
	RecordRetired("obs-r", false)
	RecordRetired("obs-r", false)

	assert.Equal(t, ok+1, testutil.ToFloat64(m.retiredTotal.WithLabelValues("obs-r", "complete")))
	assert.Equal(t, bad+2, testutil.ToFloat64(m.retiredTotal.WithLabelValues("obs-r", "error")))
}

func TestLiveCommandsGauge(t *testing.T) {
	m := getMetrics()
	before := testutil.ToFloat64(m.commandsLive)

	IncLiveCommands()
	IncLiveCommands()
	DecLiveCommands()

	assert.Equal(t, before+1, testutil.ToFloat64(m.commandsLive))
	DecLiveCommands()
}

func TestMetricsHandler(t *testing.T) {
	RecordExecution("obs-h", 5*time.Millisecond)
	RecordCallback("complete")

	rec := httptest.NewRecorder()
	MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "clevent_command_duration_seconds")
	assert.Contains(t, body, "clevent_callbacks_fired_total")
}

func TestRecordUserSignalAudit(t *testing.T) {
	var buf bytes.Buffer
	NewAuditLogger(&buf)
	t.Cleanup(func() { NewAuditLogger(&bytes.Buffer{}) })

	RecordUserSignalAudit(context.Background(), "cmd-1", 0, true, "")
	RecordUserSignalAudit(context.Background(), "cmd-1", 0, false, "already signalled")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)

	var first, second map[string]interface{}
	require.NoError(t, json.Unmarshal(lines[0], &first))
	require.NoError(t, json.Unmarshal(lines[1], &second))

	assert.Equal(t, "protocol", first["type"])
	assert.Equal(t, "cmd-1", first["command"])
	assert.Equal(t, "accepted", first["status"])
	assert.Equal(t, "rejected", second["status"])

	meta, ok := second["metadata"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "already signalled", meta["reason"])
}
