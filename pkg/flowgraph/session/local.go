package session

import (
	"context"
	"fmt"
	"sync"
)

// lockEntry holds the session's semaphore and the reference count.
type lockEntry struct {
	sem  chan struct{}
	refs int
}

// LocalLocker is an in-process keyed mutex.
// It uses reference counting to garbage collect unused entries.
type LocalLocker struct {
	mu    sync.Mutex            // guards locks
	locks map[string]*lockEntry // active locks by session
}

// NewLocalLocker creates an in-process locker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{
		locks: make(map[string]*lockEntry),
	}
}

// acquire gets or creates a lock entry and increments its reference count.
// Callers must pair it with release.
func (l *LocalLocker) acquire(sessionID string) *lockEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, exists := l.locks[sessionID]
	if !exists {
		entry = &lockEntry{sem: make(chan struct{}, 1)}
		l.locks[sessionID] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (l *LocalLocker) release(sessionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, exists := l.locks[sessionID]
	if !exists {
		return
	}

	entry.refs--
	if entry.refs <= 0 {
		delete(l.locks, sessionID)
	}
}

// Lock implements Locker.
func (l *LocalLocker) Lock(ctx context.Context, sessionID string) (UnlockFunc, error) {
	entry := l.acquire(sessionID)

	select {
	case entry.sem <- struct{}{}:
	case <-ctx.Done():
		l.release(sessionID)
		return nil, fmt.Errorf("%w: %w", ErrLockAcquire, ctx.Err())
	}

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			<-entry.sem
			l.release(sessionID)
		})
		return nil
	}, nil
}

// Active returns the number of sessions with a holder or waiter.
// Useful for testing.
func (l *LocalLocker) Active() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
