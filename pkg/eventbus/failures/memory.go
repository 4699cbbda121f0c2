package failures

import (
	"context"
	"sync"
)

// MemoryStore keeps failures in memory, bounded to the most recent entries.
// Data is lost when the process exits.
type MemoryStore struct {
	mu      sync.RWMutex
	records []Record
	max     int
	closed  bool
}

// DefaultMemoryCapacity bounds a MemoryStore created with a non-positive capacity.
const DefaultMemoryCapacity = 1024

// NewMemoryStore creates a store holding at most capacity records; older
// records are discarded first.
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &MemoryStore{max: capacity}
}

// Record implements Store.
func (m *MemoryStore) Record(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	m.records = append(m.records, rec)
	if over := len(m.records) - m.max; over > 0 {
		m.records = append(m.records[:0:0], m.records[over:]...)
	}
	return nil
}

// List implements Store.
func (m *MemoryStore) List(_ context.Context, filter Filter) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	var out []Record
	for i := len(m.records) - 1; i >= 0; i-- {
		rec := m.records[i]
		if filter.EventType != "" && rec.EventType != filter.EventType {
			continue
		}
		out = append(out, rec)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

// Count implements Store.
func (m *MemoryStore) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return 0, ErrStoreClosed
	}
	return len(m.records), nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.records = nil
	return nil
}
