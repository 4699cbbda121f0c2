package eventbus

import (
	"sort"
	"sync"
	"sync/atomic"
)

// table holds the registered listeners per exact event type key. Slices are
// sorted by (priority, seq) and replaced wholesale on every mutation, so a
// slice handed to a reader is never modified afterwards.
type table struct {
	mu      sync.RWMutex
	entries map[*EventType][]*Listener
	count   int

	// version moves on every successful mutation, under the write lock.
	version atomic.Uint64
}

func newTable() *table {
	return &table{entries: make(map[*EventType][]*Listener)}
}

func (t *table) insert(l *Listener) {
	t.mu.Lock()
	defer t.mu.Unlock()

	old := t.entries[l.typ]
	i := sort.Search(len(old), func(i int) bool { return less(l, old[i]) })

	next := make([]*Listener, 0, len(old)+1)
	next = append(next, old[:i]...)
	next = append(next, l)
	next = append(next, old[i:]...)

	t.entries[l.typ] = next
	t.count++
	t.version.Add(1)
}

// remove deletes exactly l. It reports false when l is not registered.
func (t *table) remove(l *Listener) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	old := t.entries[l.typ]
	i := sort.Search(len(old), func(i int) bool { return !less(old[i], l) })
	if i == len(old) || old[i] != l {
		return false
	}

	if len(old) == 1 {
		delete(t.entries, l.typ)
	} else {
		next := make([]*Listener, 0, len(old)-1)
		next = append(next, old[:i]...)
		next = append(next, old[i+1:]...)
		t.entries[l.typ] = next
	}
	t.count--
	t.version.Add(1)
	return true
}

func (t *table) get(key *EventType) []*Listener {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.entries[key]
}

// gather returns the slices of every key along with the version they were
// read at.
func (t *table) gather(keys []*EventType) ([][]*Listener, int, uint64) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	parts := make([][]*Listener, 0, len(keys))
	total := 0
	for _, k := range keys {
		if s := t.entries[k]; len(s) > 0 {
			parts = append(parts, s)
			total += len(s)
		}
	}
	return parts, total, t.version.Load()
}

// keys returns the keys with at least one listener, in declaration order.
func (t *table) keys() []*EventType {
	t.mu.RLock()
	keys := make([]*EventType, 0, len(t.entries))
	for k := range t.entries {
		keys = append(keys, k)
	}
	t.mu.RUnlock()

	sort.Slice(keys, func(i, j int) bool { return keys[i].index < keys[j].index })
	return keys
}

func (t *table) size() (keys, listeners int) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries), t.count
}
