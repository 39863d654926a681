package observability

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// capture returns a debug-level JSON logger and a reader for its records.
func capture(t *testing.T) (*slog.Logger, func() []map[string]any) {
	t.Helper()
	buf := &bytes.Buffer{}
	logger := slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	return logger, func() []map[string]any {
		var records []map[string]any
		for _, line := range bytes.Split(buf.Bytes(), []byte("\n")) {
			if len(line) == 0 {
				continue
			}
			var m map[string]any
			require.NoError(t, json.Unmarshal(line, &m))
			records = append(records, m)
		}
		return records
	}
}

func lastRecord(t *testing.T, records []map[string]any) map[string]any {
	t.Helper()
	require.NotEmpty(t, records)
	return records[len(records)-1]
}

func TestEnrichLogger(t *testing.T) {
	t.Run("adds session_id, node_id, and step", func(t *testing.T) {
		logger, records := capture(t)

		EnrichLogger(logger, "sess-1", "router", 2).Info("classified")

		rec := lastRecord(t, records())
		assert.Equal(t, "sess-1", rec["session_id"])
		assert.Equal(t, "router", rec["node_id"])
		assert.Equal(t, float64(2), rec["step"]) // JSON decodes ints as float64
		assert.Equal(t, "classified", rec["msg"])
	})

	t.Run("nil logger returns nil", func(t *testing.T) {
		assert.Nil(t, EnrichLogger(nil, "sess-1", "router", 1))
	})
}

func TestRunLogging(t *testing.T) {
	logger, records := capture(t)

	LogRunStart(logger, "sess-1", "invoke")
	LogRunComplete(logger, "sess-1", "suspended", 12.5, 3)
	LogRunError(logger, "sess-1", errors.New("store down"), 4, "approve")

	recs := records()
	require.Len(t, recs, 3)

	assert.Equal(t, "graph run starting", recs[0]["msg"])
	assert.Equal(t, "invoke", recs[0]["mode"])

	assert.Equal(t, "graph run completed", recs[1]["msg"])
	assert.Equal(t, "suspended", recs[1]["status"])
	assert.Equal(t, float64(3), recs[1]["nodes_executed"])

	assert.Equal(t, "ERROR", recs[2]["level"])
	assert.Equal(t, "store down", recs[2]["error"])
	assert.Equal(t, "approve", recs[2]["last_node"])
}

func TestNodeLogging(t *testing.T) {
	logger, records := capture(t)

	LogNodeStart(logger, "router")
	LogNodeComplete(logger, "router", 1.5)
	LogNodeError(logger, "responder", errors.New("timeout"))

	recs := records()
	require.Len(t, recs, 3)
	assert.Equal(t, "DEBUG", recs[0]["level"])
	assert.Equal(t, "node completed", recs[1]["msg"])
	assert.Equal(t, 1.5, recs[1]["duration_ms"])
	assert.Equal(t, "ERROR", recs[2]["level"])
	assert.Equal(t, "responder", recs[2]["node_id"])
}

func TestInterruptLogging(t *testing.T) {
	logger, records := capture(t)

	LogInterrupt(logger, "sess-1", "approve", 4)
	LogInterruptAbandoned(logger, "sess-1", "approve", 4)

	recs := records()
	require.Len(t, recs, 2)
	assert.Equal(t, "INFO", recs[0]["level"])
	assert.Equal(t, "run suspended", recs[0]["msg"])
	assert.Equal(t, "WARN", recs[1]["level"])
	assert.Equal(t, float64(4), recs[1]["suspended_step"])
}

func TestCheckpointLogging(t *testing.T) {
	logger, records := capture(t)

	LogCheckpoint(logger, "sess-1", 3, 512)
	LogCheckpointError(logger, "sess-1", "save", errors.New("conflict"))

	recs := records()
	require.Len(t, recs, 2)
	assert.Equal(t, float64(512), recs[0]["size_bytes"])
	assert.Equal(t, "save", recs[1]["operation"])
	assert.Equal(t, "conflict", recs[1]["error"])
}

func TestLogging_NilLoggerIsSafe(t *testing.T) {
	assert.NotPanics(t, func() {
		LogRunStart(nil, "s", "invoke")
		LogRunComplete(nil, "s", "terminated", 1, 1)
		LogRunError(nil, "s", errors.New("x"), 1, "n")
		LogNodeStart(nil, "n")
		LogNodeComplete(nil, "n", 1)
		LogNodeError(nil, "n", errors.New("x"))
		LogInterrupt(nil, "s", "n", 1)
		LogInterruptAbandoned(nil, "s", "n", 1)
		LogCheckpoint(nil, "s", 1, 1)
		LogCheckpointError(nil, "s", "save", errors.New("x"))
	})
}

func TestTimedOperation(t *testing.T) {
	done := TimedOperation()
	time.Sleep(5 * time.Millisecond)
	assert.GreaterOrEqual(t, done(), 5.0)
}
