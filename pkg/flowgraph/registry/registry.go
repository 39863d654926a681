package registry

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"sync"
)

// Sentinel errors for registry operations.
var (
	// ErrNotFound indicates no entry is registered under a key.
	ErrNotFound = errors.New("registry: key not found")

	// ErrDuplicate indicates a key is already registered.
	ErrDuplicate = errors.New("registry: key already registered")
)

// Registry is a thread-safe set of named capabilities.
// Keys are unique; registering a key twice is an error so that wiring
// mistakes surface at startup instead of silently replacing an entry.
type Registry[K cmp.Ordered, V any] struct {
	mu      sync.RWMutex
	entries map[K]V
}

// New creates a new empty registry.
func New[K cmp.Ordered, V any]() *Registry[K, V] {
	return &Registry[K, V]{
		entries: make(map[K]V),
	}
}

// Register adds a value under key.
// Returns ErrDuplicate if key is already present.
func (r *Registry[K, V]) Register(key K, value V) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[key]; exists {
		return fmt.Errorf("%w: %v", ErrDuplicate, key)
	}
	r.entries[key] = value
	return nil
}

// MustRegister is Register for static wiring; it panics on duplicates.
func (r *Registry[K, V]) MustRegister(key K, value V) {
	if err := r.Register(key, value); err != nil {
		panic(err)
	}
}

// Replace adds or overwrites the value under key.
func (r *Registry[K, V]) Replace(key K, value V) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[key] = value
}

// Get returns the value for a key and whether it exists.
func (r *Registry[K, V]) Get(key K) (V, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.entries[key]
	return v, ok
}

// Lookup returns the value for key or an error wrapping ErrNotFound.
func (r *Registry[K, V]) Lookup(key K) (V, error) {
	v, ok := r.Get(key)
	if !ok {
		return v, fmt.Errorf("%w: %v", ErrNotFound, key)
	}
	return v, nil
}

// Has returns true if the key exists in the registry.
func (r *Registry[K, V]) Has(key K) bool {
	_, ok := r.Get(key)
	return ok
}

// Delete removes a key from the registry.
func (r *Registry[K, V]) Delete(key K) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, key)
}

// Keys returns all keys in ascending order.
func (r *Registry[K, V]) Keys() []K {
	r.mu.RLock()
	keys := make([]K, 0, len(r.entries))
	for k := range r.entries {
		keys = append(keys, k)
	}
	r.mu.RUnlock()

	slices.Sort(keys)
	return keys
}

// Len returns the number of entries in the registry.
func (r *Registry[K, V]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Range calls fn for each entry in key order until fn returns false.
// It iterates over a snapshot, so fn may mutate the registry.
func (r *Registry[K, V]) Range(fn func(K, V) bool) {
	r.mu.RLock()
	snapshot := make(map[K]V, len(r.entries))
	for k, v := range r.entries {
		snapshot[k] = v
	}
	r.mu.RUnlock()

	keys := make([]K, 0, len(snapshot))
	for k := range snapshot {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	for _, k := range keys {
		if !fn(k, snapshot[k]) {
			return
		}
	}
}
