package checkpoint

import (
	"encoding/json"
	"time"
)

// Version is the current checkpoint format version.
// Increment when making breaking changes to checkpoint structure.
const Version = 1

// Status records how the run that produced a checkpoint ended.
type Status string

// Checkpoint status values.
const (
	// StatusTerminated means the run reached a terminal node.
	StatusTerminated Status = "terminated"
	// StatusSuspended means the run stopped at a node awaiting a resume decision.
	StatusSuspended Status = "suspended"
)

// Interrupt describes a pending suspension point.
type Interrupt struct {
	// NodeID is the node that raised the suspension and receives the decision on resume.
	NodeID string `json:"node_id"`

	// Payload is the JSON-encoded value the node suspended with.
	Payload json.RawMessage `json:"payload,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Checkpoint is an immutable snapshot of a session's state.
// A session owns a sequence of checkpoints with strictly increasing Step.
//
// Unknown JSON fields are ignored on decode so older readers can load
// checkpoints written by newer versions.
type Checkpoint struct {
	// Metadata
	Version   int       `json:"version"`
	SessionID string    `json:"session_id"`
	Step      int       `json:"step"`
	Timestamp time.Time `json:"timestamp"`

	// ParentStep is the last terminated checkpoint the producing run started
	// from. Zero when the run started from an empty state.
	ParentStep int `json:"parent_step,omitempty"`

	// Execution state
	Status    Status          `json:"status"`
	State     json.RawMessage `json:"state"`
	Interrupt *Interrupt      `json:"interrupt,omitempty"`
}

// New creates a checkpoint for the given session and step.
// State must already be JSON-serialized.
func New(sessionID string, step int, status Status, state []byte) *Checkpoint {
	return &Checkpoint{
		Version:   Version,
		SessionID: sessionID,
		Step:      step,
		Timestamp: time.Now().UTC(),
		Status:    status,
		State:     state,
	}
}

// WithParent sets the parent step.
func (c *Checkpoint) WithParent(step int) *Checkpoint {
	c.ParentStep = step
	return c
}

// WithInterrupt attaches a pending interrupt and marks the checkpoint suspended.
func (c *Checkpoint) WithInterrupt(nodeID string, payload []byte) *Checkpoint {
	c.Status = StatusSuspended
	c.Interrupt = &Interrupt{
		NodeID:    nodeID,
		Payload:   payload,
		CreatedAt: c.Timestamp,
	}
	return c
}

// Suspended reports whether the checkpoint carries a pending interrupt.
func (c *Checkpoint) Suspended() bool {
	return c.Status == StatusSuspended && c.Interrupt != nil
}

// Info returns the listing metadata for the checkpoint.
func (c *Checkpoint) Info(size int64) Info {
	return Info{
		SessionID: c.SessionID,
		Step:      c.Step,
		Status:    c.Status,
		Timestamp: c.Timestamp,
		Size:      size,
	}
}

// Marshal serializes a checkpoint to JSON.
func (c *Checkpoint) Marshal() ([]byte, error) {
	return json.Marshal(c)
}

// Unmarshal deserializes a checkpoint from JSON.
func Unmarshal(data []byte) (*Checkpoint, error) {
	var c Checkpoint
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return &c, nil
}
