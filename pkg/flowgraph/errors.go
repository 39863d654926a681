package flowgraph

import (
	"errors"
	"fmt"

	"github.com/randalmurphal/taskrouter/pkg/flowgraph/session"
)

// Checkpoint operations reported in CheckpointError.Op.
const (
	opLoad      = "load"
	opSave      = "save"
	opSerialize = "serialize"
	opDecode    = "decode"
)

// Sentinel errors for graph building and compilation.
var (
	// ErrNoEntryPoint indicates SetEntry() was not called before Compile().
	ErrNoEntryPoint = errors.New("entry point not set")

	// ErrEntryNotFound indicates the entry point references a non-existent node.
	ErrEntryNotFound = errors.New("entry point node not found")

	// ErrNodeNotFound indicates an edge references a non-existent node.
	ErrNodeNotFound = errors.New("node not found")

	// ErrUnmappedLabel indicates a declared router label has no route.
	ErrUnmappedLabel = errors.New("router label has no route")

	// ErrNoOutgoingEdge indicates a non-terminal node has nowhere to go.
	ErrNoOutgoingEdge = errors.New("node has no outgoing edge")

	// ErrAmbiguousEdge indicates a node has more than one way out.
	ErrAmbiguousEdge = errors.New("node has more than one outgoing edge")

	// ErrTerminalHasEdges indicates a terminal node was given outgoing edges.
	ErrTerminalHasEdges = errors.New("terminal node has outgoing edges")

	// ErrNoPathToEnd indicates a reachable node cannot reach a terminal.
	ErrNoPathToEnd = errors.New("no path to END")

	// ErrInvalidOption indicates an option does not fit the graph's state type.
	ErrInvalidOption = errors.New("invalid option")
)

// Sentinel errors for execution.
var (
	// ErrSessionIDRequired indicates Invoke or Resume was called without a session ID.
	ErrSessionIDRequired = errors.New("session ID required")

	// ErrInvalidResume indicates Resume was called on a session without a pending interrupt.
	ErrInvalidResume = errors.New("no pending interrupt to resume")

	// ErrStepBudgetExceeded indicates a run executed too many nodes without
	// terminating or suspending.
	ErrStepBudgetExceeded = errors.New("step budget exceeded")

	// ErrUnknownRoute indicates a router returned a label missing from its routes.
	ErrUnknownRoute = errors.New("router returned unmapped label")

	// ErrSerializeState indicates state or payload serialization failed.
	ErrSerializeState = errors.New("failed to serialize state")

	// ErrDeserializeState indicates a stored state could not be decoded.
	ErrDeserializeState = errors.New("failed to deserialize state")

	// ErrCheckpointVersionMismatch indicates a checkpoint written by a newer format.
	ErrCheckpointVersionMismatch = errors.New("checkpoint version mismatch")
)

// ConfigError reports every wiring defect found by Compile.
// Use errors.Is with the compile sentinels to test for a specific defect.
type ConfigError struct {
	Err error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid graph: %v", e.Err)
}

// Unwrap returns the joined defects for errors.Is/As support.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// CheckpointError wraps errors from checkpoint operations.
// The run that produced it did not progress; it is safe to retry.
type CheckpointError struct {
	// SessionID is the session whose checkpoint failed.
	SessionID string
	// Op is the operation that failed ("load", "save", "serialize", "decode").
	Op string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *CheckpointError) Error() string {
	return fmt.Sprintf("checkpoint %s for session %s: %v", e.Op, e.SessionID, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *CheckpointError) Unwrap() error {
	return e.Err
}

// NodeError wraps an error with node context.
// It provides information about which node failed and what operation was attempted.
type NodeError struct {
	// NodeID is the identifier of the node that failed.
	NodeID string
	// Op is the operation that failed (e.g., "execute").
	Op string
	// Err is the underlying error from the node.
	Err error
}

// Error implements the error interface.
func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s: %s: %v", e.NodeID, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *NodeError) Unwrap() error {
	return e.Err
}

// PanicError captures panic information from node execution.
// It includes the stack trace for debugging.
type PanicError struct {
	// NodeID is the identifier of the node that panicked.
	NodeID string
	// Value is the value passed to panic().
	Value any
	// Stack is the full stack trace at the point of panic.
	Stack string
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("node %s panicked: %v", e.NodeID, e.Value)
}

// CancellationError captures the state when execution was cancelled.
// Nothing is persisted for a cancelled run.
type CancellationError struct {
	// NodeID is the node that was about to execute, empty if the run was
	// cancelled after its last node but before its checkpoint was saved.
	NodeID string
	// Cause is the underlying cancellation cause (context.Canceled or context.DeadlineExceeded).
	Cause error
}

// Error implements the error interface.
func (e *CancellationError) Error() string {
	if e.NodeID == "" {
		return fmt.Sprintf("cancelled before commit: %v", e.Cause)
	}
	return fmt.Sprintf("cancelled before node %s: %v", e.NodeID, e.Cause)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *CancellationError) Unwrap() error {
	return e.Cause
}

// RouterError wraps errors from conditional edge routing.
// It provides context about which router failed and what it returned.
type RouterError struct {
	// FromNode is the node with the conditional edge.
	FromNode string
	// Returned is the label the router returned.
	Returned string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *RouterError) Error() string {
	return fmt.Sprintf("router from %s returned %q: %v", e.FromNode, e.Returned, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *RouterError) Unwrap() error {
	return e.Err
}

// StepBudgetError provides context when a run exceeds its step budget.
// A run that hits the budget is a graph defect: a cycle with no exit.
type StepBudgetError struct {
	// Budget is the configured step limit.
	Budget int
	// NodeID is the node that would have executed next.
	NodeID string
}

// Error implements the error interface.
func (e *StepBudgetError) Error() string {
	return fmt.Sprintf("exceeded step budget (%d) at node %s", e.Budget, e.NodeID)
}

// Unwrap returns ErrStepBudgetExceeded for errors.Is support.
func (e *StepBudgetError) Unwrap() error {
	return ErrStepBudgetExceeded
}

// IsRetryable reports whether err left the session unchanged and the
// request can be repeated as is: checkpoint load or save failures, session
// lock failures, and runs cancelled before they committed.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var cpErr *CheckpointError
	if errors.As(err, &cpErr) {
		return cpErr.Op == opLoad || cpErr.Op == opSave
	}
	if errors.Is(err, session.ErrLockAcquire) {
		return true
	}
	var cancelErr *CancellationError
	return errors.As(err, &cancelErr)
}
