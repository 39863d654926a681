package checkpoint

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory checkpoint store for testing and single-process use.
// Data is lost when the process exits.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][][]byte // sessionID -> encoded checkpoints, index = step-1
	closed   bool
}

// NewMemoryStore creates a new in-memory checkpoint store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string][][]byte),
	}
}

// Save implements Store.
func (m *MemoryStore) Save(_ context.Context, cp *Checkpoint) error {
	if err := validate(cp); err != nil {
		return err
	}
	// Stored encoded so callers cannot mutate saved state.
	data, err := cp.Marshal()
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	latest := len(m.sessions[cp.SessionID])
	if cp.Step != latest+1 {
		return conflict(cp.SessionID, latest, cp.Step)
	}
	m.sessions[cp.SessionID] = append(m.sessions[cp.SessionID], data)
	return nil
}

// LoadLatest implements Store.
func (m *MemoryStore) LoadLatest(_ context.Context, sessionID string) (*Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	entries := m.sessions[sessionID]
	if len(entries) == 0 {
		return nil, ErrNotFound
	}
	return Unmarshal(entries[len(entries)-1])
}

// Load implements Store.
func (m *MemoryStore) Load(_ context.Context, sessionID string, step int) (*Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	entries := m.sessions[sessionID]
	if step < 1 || step > len(entries) {
		return nil, ErrNotFound
	}
	return Unmarshal(entries[step-1])
}

// List implements Store.
func (m *MemoryStore) List(_ context.Context, sessionID string) ([]Info, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	entries := m.sessions[sessionID]
	infos := make([]Info, 0, len(entries))
	for _, data := range entries {
		cp, err := Unmarshal(data)
		if err != nil {
			return nil, err
		}
		infos = append(infos, cp.Info(int64(len(data))))
	}
	return infos, nil
}

// DeleteSession implements Store.
func (m *MemoryStore) DeleteSession(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	delete(m.sessions, sessionID)
	return nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.sessions = nil
	return nil
}

// Len returns the total number of checkpoints across all sessions.
// Useful for testing.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, entries := range m.sessions {
		count += len(entries)
	}
	return count
}
