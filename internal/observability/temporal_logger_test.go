package observability

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	buf.Reset()
	return entry
}

func TestTemporalLogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewTemporalLogger(zerolog.New(&buf).Level(zerolog.DebugLevel))

	l.Info("activity started", "ActivityType", "RunCycle", "Attempt", 2)
	entry := decodeLine(t, &buf)
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "temporal-sdk", entry["component"])
	assert.Equal(t, "RunCycle", entry["ActivityType"])
	assert.Equal(t, float64(2), entry["Attempt"])

	l.Warn("odd keyvals", 42, "value", "dangling")
	entry = decodeLine(t, &buf)
	assert.Equal(t, "value", entry["42"])
	assert.NotContains(t, entry, "dangling")

	child := l.With("WorkflowID", "paper-ingest-cron")
	child.Error("workflow failed")
	entry = decodeLine(t, &buf)
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "paper-ingest-cron", entry["WorkflowID"])
}
