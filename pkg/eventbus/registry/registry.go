package registry

import (
	"sort"
	"sync"
)

// Registry is a thread-safe index of values by key.
// Writers take the exclusive lock; lookups share the read lock.
type Registry[K comparable, V any] struct {
	mu      sync.RWMutex
	entries map[K]V
}

// New creates an empty registry.
func New[K comparable, V any]() *Registry[K, V] {
	return &Registry[K, V]{
		entries: make(map[K]V),
	}
}

// Store sets the value for key, replacing any existing value.
func (r *Registry[K, V]) Store(key K, value V) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[key] = value
}

// StoreIfAbsent sets the value for key only when the key is not present.
// It reports whether the value was stored.
func (r *Registry[K, V]) StoreIfAbsent(key K, value V) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[key]; ok {
		return false
	}
	r.entries[key] = value
	return true
}

// Get returns the value for key and whether it exists.
func (r *Registry[K, V]) Get(key K) (V, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.entries[key]
	return v, ok
}

// Has returns true if key is present.
func (r *Registry[K, V]) Has(key K) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[key]
	return ok
}

// LoadAndDelete removes key and returns the value it held.
func (r *Registry[K, V]) LoadAndDelete(key K) (V, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.entries[key]
	if ok {
		delete(r.entries, key)
	}
	return v, ok
}

// Len returns the number of entries.
func (r *Registry[K, V]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Range calls fn for each entry of a snapshot taken under the read lock.
// Iteration stops when fn returns false. Mutating the registry from fn is
// safe and does not affect the snapshot being iterated.
func (r *Registry[K, V]) Range(fn func(K, V) bool) {
	r.mu.RLock()
	snapshot := make(map[K]V, len(r.entries))
	for k, v := range r.entries {
		snapshot[k] = v
	}
	r.mu.RUnlock()

	for k, v := range snapshot {
		if !fn(k, v) {
			return
		}
	}
}

// Values returns a snapshot of all values ordered by less.
func (r *Registry[K, V]) Values(less func(a, b V) bool) []V {
	r.mu.RLock()
	values := make([]V, 0, len(r.entries))
	for _, v := range r.entries {
		values = append(values, v)
	}
	r.mu.RUnlock()

	if less != nil {
		sort.Slice(values, func(i, j int) bool { return less(values[i], values[j]) })
	}
	return values
}
