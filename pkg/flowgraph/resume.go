package flowgraph

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/randalmurphal/taskrouter/pkg/flowgraph/checkpoint"
	"github.com/randalmurphal/taskrouter/pkg/flowgraph/session"
)

// Resume continues a suspended run with the caller's decision.
//
// The node that suspended runs again with Context.ResumeValue reporting
// decision; it decides whether the run continues or terminates. From there
// execution proceeds exactly as in Invoke.
//
// Resume returns ErrInvalidResume, without persisting anything, if the
// session is unknown or its latest checkpoint is not suspended.
//
// Example:
//
//	res, err := compiled.Invoke(ctx, "sess-1", input)
//	if res.Suspended() {
//	    res, err = compiled.Resume(ctx, "sess-1", "yes")
//	}
func (cg *CompiledGraph[S]) Resume(ctx context.Context, sessionID string, decision any) (*Result[S], error) {
	if sessionID == "" {
		return nil, ErrSessionIDRequired
	}

	var result *Result[S]
	err := session.WithLock(ctx, cg.locker, sessionID, func(ctx context.Context) error {
		latest, err := cg.loadLatest(ctx, sessionID)
		if err != nil {
			return err
		}
		if latest == nil {
			return fmt.Errorf("%w: session %s has no checkpoints", ErrInvalidResume, sessionID)
		}
		if !latest.Suspended() {
			return fmt.Errorf("%w: session %s is %s at step %d",
				ErrInvalidResume, sessionID, latest.Status, latest.Step)
		}

		nodeID := latest.Interrupt.NodeID
		if !cg.HasNode(nodeID) {
			return fmt.Errorf("%w: suspended node %q is not in the graph", ErrInvalidResume, nodeID)
		}

		state, err := decodeState[S](sessionID, latest.State)
		if err != nil {
			return err
		}

		result, err = cg.execute(ctx, runSpec{
			mode:      "resume",
			sessionID: sessionID,
			start:     nodeID,
			step:      latest.Step + 1,
			parent:    latest.ParentStep,
			resume:    decision,
			resumed:   true,
		}, state)
		return err
	})
	return result, err
}

// Snapshot is a read-only view of a session's latest checkpoint.
type Snapshot[S any] struct {
	SessionID string
	Step      int
	Status    Status
	State     S
	Interrupt *Interrupt
	Timestamp time.Time
}

// Suspended reports whether the session has a pending interrupt.
func (s *Snapshot[S]) Suspended() bool {
	return s.Status == StatusSuspended
}

// GetState returns the session's latest committed state.
// It does not take the session lock; it sees the last committed checkpoint.
// Returns an error wrapping checkpoint.ErrNotFound for unknown sessions.
func (cg *CompiledGraph[S]) GetState(ctx context.Context, sessionID string) (*Snapshot[S], error) {
	if sessionID == "" {
		return nil, ErrSessionIDRequired
	}

	latest, err := cg.loadLatest(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if latest == nil {
		return nil, fmt.Errorf("session %s: %w", sessionID, checkpoint.ErrNotFound)
	}

	state, err := decodeState[S](sessionID, latest.State)
	if err != nil {
		return nil, err
	}

	return &Snapshot[S]{
		SessionID: sessionID,
		Step:      latest.Step,
		Status:    latest.Status,
		State:     state,
		Interrupt: interruptFrom(latest.Interrupt),
		Timestamp: latest.Timestamp,
	}, nil
}

// History lists the session's checkpoints, oldest first.
func (cg *CompiledGraph[S]) History(ctx context.Context, sessionID string) ([]checkpoint.Info, error) {
	if sessionID == "" {
		return nil, ErrSessionIDRequired
	}
	infos, err := cg.store.List(ctx, sessionID)
	if err != nil {
		return nil, &CheckpointError{SessionID: sessionID, Op: opLoad, Err: err}
	}
	return infos, nil
}

// IsNotFound reports whether err means the session has no checkpoints.
func IsNotFound(err error) bool {
	return errors.Is(err, checkpoint.ErrNotFound)
}
