// Package checkpoint provides durable, per-session checkpoint storage.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Store persists session checkpoints.
// Implementations must be safe for concurrent use.
type Store interface {
	// Save appends a checkpoint to its session.
	// cp.Step must be exactly one greater than the session's latest step
	// (1 for a new session); otherwise ErrStepConflict is returned and
	// nothing is written.
	Save(ctx context.Context, cp *Checkpoint) error

	// LoadLatest returns the checkpoint with the highest step.
	// Returns ErrNotFound if the session has no checkpoints.
	LoadLatest(ctx context.Context, sessionID string) (*Checkpoint, error)

	// Load returns the checkpoint at a specific step.
	// Returns ErrNotFound if it doesn't exist.
	Load(ctx context.Context, sessionID string, step int) (*Checkpoint, error)

	// List returns all checkpoints for a session, ordered by step.
	// Returns empty slice (not error) if the session has no checkpoints.
	List(ctx context.Context, sessionID string) ([]Info, error)

	// DeleteSession removes all checkpoints for a session.
	// Returns nil if the session has no checkpoints.
	DeleteSession(ctx context.Context, sessionID string) error

	// Close releases any resources (connections, files).
	Close() error
}

// Info provides metadata without loading full state.
type Info struct {
	SessionID string
	Step      int
	Status    Status
	Timestamp time.Time
	Size      int64
}

// Sentinel errors for checkpoint operations.
var (
	// ErrNotFound indicates a checkpoint doesn't exist.
	ErrNotFound = errors.New("checkpoint not found")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("checkpoint store closed")

	// ErrStepConflict indicates a concurrent or out-of-order write for a session.
	ErrStepConflict = errors.New("checkpoint step conflict")

	// ErrInvalidCheckpoint indicates a checkpoint is missing required fields.
	ErrInvalidCheckpoint = errors.New("invalid checkpoint")
)

// validate checks the fields every backend relies on.
func validate(cp *Checkpoint) error {
	if cp == nil {
		return fmt.Errorf("%w: nil checkpoint", ErrInvalidCheckpoint)
	}
	if cp.SessionID == "" {
		return fmt.Errorf("%w: empty session id", ErrInvalidCheckpoint)
	}
	if cp.Step < 1 {
		return fmt.Errorf("%w: step must be positive, got %d", ErrInvalidCheckpoint, cp.Step)
	}
	return nil
}

// conflict builds the error returned when cp.Step does not follow latest.
func conflict(sessionID string, latest, step int) error {
	return fmt.Errorf("%w: session %s is at step %d, cannot write step %d",
		ErrStepConflict, sessionID, latest, step)
}
