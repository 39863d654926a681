// Package session provides per-session mutual exclusion for graph runs.
//
// At most one run may be in flight for a session at a time. A Locker hands
// out an UnlockFunc once the caller owns the session; callers block until
// then or until their context is done.
package session

import (
	"context"
	"errors"
	"fmt"
)

// ErrLockAcquire is returned when a session lock cannot be acquired.
var ErrLockAcquire = errors.New("failed to acquire session lock")

// ErrLockLost is returned on unlock when the lock was no longer held.
var ErrLockLost = errors.New("session lock lost before release")

// UnlockFunc releases a session lock. It is safe to call exactly once.
type UnlockFunc func(ctx context.Context) error

// Locker serializes access to a session.
type Locker interface {
	// Lock blocks until the session is owned by the caller or ctx is done.
	Lock(ctx context.Context, sessionID string) (UnlockFunc, error)
}

// WithLock runs fn while holding the session lock.
// An unlock failure is reported only when fn itself succeeded.
func WithLock(ctx context.Context, l Locker, sessionID string, fn func(ctx context.Context) error) (err error) {
	unlock, err := l.Lock(ctx, sessionID)
	if err != nil {
		return err
	}
	defer func() {
		// Release even when ctx was cancelled mid-run.
		if uerr := unlock(context.WithoutCancel(ctx)); uerr != nil && err == nil {
			err = fmt.Errorf("release session lock: %w", uerr)
		}
	}()
	return fn(ctx)
}
