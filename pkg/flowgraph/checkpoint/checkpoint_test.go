package checkpoint_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/randalmurphal/taskrouter/pkg/flowgraph/checkpoint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckpoint_New(t *testing.T) {
	state := []byte(`{"query": "hi"}`)
	cp := checkpoint.New("sess-1", 1, checkpoint.StatusTerminated, state)

	assert.Equal(t, checkpoint.Version, cp.Version)
	assert.Equal(t, "sess-1", cp.SessionID)
	assert.Equal(t, 1, cp.Step)
	assert.Equal(t, checkpoint.StatusTerminated, cp.Status)
	assert.Equal(t, json.RawMessage(state), cp.State)
	assert.Zero(t, cp.ParentStep)
	assert.Nil(t, cp.Interrupt)
	assert.False(t, cp.Suspended())
	assert.False(t, cp.Timestamp.IsZero())
}

func TestCheckpoint_WithInterrupt(t *testing.T) {
	cp := checkpoint.New("sess-1", 3, checkpoint.StatusTerminated, []byte("{}")).
		WithParent(2).
		WithInterrupt("approve", []byte(`{"question":"ok?"}`))

	assert.Equal(t, 2, cp.ParentStep)
	assert.Equal(t, checkpoint.StatusSuspended, cp.Status)
	require.NotNil(t, cp.Interrupt)
	assert.Equal(t, "approve", cp.Interrupt.NodeID)
	assert.Equal(t, cp.Timestamp, cp.Interrupt.CreatedAt)
	assert.True(t, cp.Suspended())
}

func TestCheckpoint_MarshalUnmarshal(t *testing.T) {
	original := checkpoint.New("sess-9", 5, checkpoint.StatusSuspended, []byte(`{"counter":10}`)).
		WithParent(4).
		WithInterrupt("approve", []byte(`{"function":[{"name":"start_vehicle"}]}`))

	data, err := original.Marshal()
	require.NoError(t, err)
	assert.NotEmpty(t, data)

	loaded, err := checkpoint.Unmarshal(data)
	require.NoError(t, err)

	assert.Equal(t, original.Version, loaded.Version)
	assert.Equal(t, original.SessionID, loaded.SessionID)
	assert.Equal(t, original.Step, loaded.Step)
	assert.Equal(t, original.ParentStep, loaded.ParentStep)
	assert.Equal(t, original.Status, loaded.Status)
	assert.JSONEq(t, string(original.State), string(loaded.State))
	require.NotNil(t, loaded.Interrupt)
	assert.Equal(t, "approve", loaded.Interrupt.NodeID)
	assert.JSONEq(t, string(original.Interrupt.Payload), string(loaded.Interrupt.Payload))

	// Timestamp should be preserved (within a small margin due to JSON serialization)
	assert.WithinDuration(t, original.Timestamp, loaded.Timestamp, time.Second)
}

func TestCheckpoint_UnmarshalInvalidJSON(t *testing.T) {
	_, err := checkpoint.Unmarshal([]byte("not json"))
	assert.Error(t, err)
}

func TestCheckpoint_UnmarshalIgnoresUnknownFields(t *testing.T) {
	data := []byte(`{
		"version": 2,
		"session_id": "sess-1",
		"step": 4,
		"status": "terminated",
		"state": {"query": "x", "new_field": true},
		"lineage": {"branch": "main"}
	}`)

	cp, err := checkpoint.Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, "sess-1", cp.SessionID)
	assert.Equal(t, 4, cp.Step)
	assert.Equal(t, checkpoint.StatusTerminated, cp.Status)
	assert.JSONEq(t, `{"query": "x", "new_field": true}`, string(cp.State))
}

func TestCheckpoint_JSONFormat(t *testing.T) {
	cp := checkpoint.New("sess-1", 1, checkpoint.StatusTerminated, []byte(`{"value":42}`))

	data, err := cp.Marshal()
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))

	assert.Equal(t, float64(checkpoint.Version), raw["version"])
	assert.Equal(t, "sess-1", raw["session_id"])
	assert.Equal(t, float64(1), raw["step"])
	assert.Equal(t, "terminated", raw["status"])
	assert.NotEmpty(t, raw["timestamp"])
	assert.NotContains(t, raw, "interrupt")
	assert.NotContains(t, raw, "parent_step")

	// State should be nested JSON
	stateMap, ok := raw["state"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(42), stateMap["value"])
}

func TestCheckpoint_Info(t *testing.T) {
	cp := checkpoint.New("sess-1", 2, checkpoint.StatusTerminated, []byte("{}"))
	info := cp.Info(128)

	assert.Equal(t, "sess-1", info.SessionID)
	assert.Equal(t, 2, info.Step)
	assert.Equal(t, checkpoint.StatusTerminated, info.Status)
	assert.Equal(t, int64(128), info.Size)
	assert.Equal(t, cp.Timestamp, info.Timestamp)
}
