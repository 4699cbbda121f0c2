package eventbus

import (
	"slices"
	"strconv"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// DefaultCacheSize bounds the number of cached listener chains.
const DefaultCacheSize = 512

// bakedGroup is the merged, globally ordered listener chain of one
// concrete event type. Contributing keys are the type's supertypes.
type bakedGroup struct {
	listeners []*Listener
	version   uint64
}

// resolver merges the table slices of a type's supertypes and caches the
// result per concrete type. The cache is never authoritative: a group is
// dropped whenever one of its contributing keys changes and rebuilt on the
// next fire.
type resolver struct {
	table *table

	// cacheMu orders stores against invalidation; the cache itself is
	// safe for concurrent reads.
	cacheMu sync.Mutex
	cache   *lru.Cache[*EventType, *bakedGroup]
	flight  singleflight.Group
}

func newResolver(t *table, size int) (*resolver, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[*EventType, *bakedGroup](size)
	if err != nil {
		return nil, err
	}
	return &resolver{table: t, cache: cache}, nil
}

// resolve returns the listener chain for concrete type t and whether the
// cache served it.
func (r *resolver) resolve(t *EventType) ([]*Listener, bool) {
	if g, ok := r.cache.Get(t); ok {
		return g.listeners, true
	}

	key := strconv.Itoa(t.index) + ":" + strconv.FormatUint(r.table.version.Load(), 10)
	v, _, _ := r.flight.Do(key, func() (any, error) {
		return r.bake(t), nil
	})
	return v.(*bakedGroup).listeners, false
}

func (r *resolver) bake(t *EventType) *bakedGroup {
	parts, total, version := r.table.gather(t.closure)

	var merged []*Listener
	switch len(parts) {
	case 0:
	case 1:
		merged = parts[0]
	default:
		merged = make([]*Listener, 0, total)
		for _, p := range parts {
			merged = append(merged, p...)
		}
		slices.SortFunc(merged, func(a, b *Listener) int {
			switch {
			case less(a, b):
				return -1
			case less(b, a):
				return 1
			default:
				return 0
			}
		})
	}

	g := &bakedGroup{listeners: merged, version: version}

	r.cacheMu.Lock()
	if r.table.version.Load() == version {
		r.cache.Add(t, g)
	}
	r.cacheMu.Unlock()
	return g
}

// invalidate drops every cached group key contributes to. Callers bump the
// table version before invalidating.
func (r *resolver) invalidate(key *EventType) {
	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	for _, t := range r.cache.Keys() {
		if t.Is(key) {
			r.cache.Remove(t)
		}
	}
}

func (r *resolver) cached() []*EventType {
	return r.cache.Keys()
}

func (r *resolver) peek(t *EventType) ([]*Listener, bool) {
	g, ok := r.cache.Peek(t)
	if !ok {
		return nil, false
	}
	return g.listeners, true
}
