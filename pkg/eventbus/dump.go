package eventbus

import (
	"fmt"
	"sort"
	"strings"

	"github.com/randalmurphal/eventbus/pkg/eventbus/observability"
)

// CountListeners returns the number of listeners registered on exactly t.
// Listeners on supertypes are not counted.
func (b *Bus) CountListeners(t *EventType) int {
	return len(b.table.get(t))
}

// Listeners returns the resolved chain for events of concrete type t: every
// listener of t and its supertypes, in the order a fire would run them.
func (b *Bus) Listeners(t *EventType) []*Listener {
	if !b.hierarchy.owns(t) {
		return nil
	}
	listeners, _ := b.resolver.resolve(t)
	return append([]*Listener(nil), listeners...)
}

// Dump describes the listeners registered on t and the cached chain for t,
// if any.
func (b *Bus) Dump(t *EventType) string {
	var sb strings.Builder
	b.dumpType(&sb, t)
	return sb.String()
}

// DumpAll describes every registration and every cached chain.
func (b *Bus) DumpAll() string {
	var sb strings.Builder
	keys, listeners := b.table.size()
	fmt.Fprintf(&sb, "eventbus: %d keys, %d listeners, %d cached chains\n", keys, listeners, b.resolver.cache.Len())
	for _, t := range b.table.keys() {
		b.dumpType(&sb, t)
	}
	for _, t := range b.resolver.cached() {
		if len(b.table.get(t)) == 0 {
			b.dumpCached(&sb, t)
		}
	}
	b.dumpOwners(&sb)
	return sb.String()
}

// dumpOwners lists the handler objects registered by
// RegisterListeningMethods.
func (b *Bus) dumpOwners(sb *strings.Builder) {
	var lines []string
	b.owners.Range(func(obj any, listeners []*Listener) bool {
		names := make([]string, len(listeners))
		for i, l := range listeners {
			names[i] = l.String()
		}
		lines = append(lines, fmt.Sprintf("  %T %p: %s", obj, obj, strings.Join(names, ", ")))
		return true
	})
	if len(lines) == 0 {
		return
	}
	sort.Strings(lines)
	sb.WriteString("listener objects:\n")
	for _, line := range lines {
		sb.WriteString(line)
		sb.WriteString("\n")
	}
}

func (b *Bus) dumpType(sb *strings.Builder, t *EventType) {
	fmt.Fprintf(sb, "%s", t)
	if t != nil && t.suspendable {
		sb.WriteString(" (suspendable)")
	}
	sb.WriteString("\n")
	for _, l := range b.table.get(t) {
		fmt.Fprintf(sb, "  %s %s %s\n", l.priority, l.variant, l)
	}
	b.dumpCached(sb, t)
}

func (b *Bus) dumpCached(sb *strings.Builder, t *EventType) {
	chain, ok := b.resolver.peek(t)
	if !ok {
		return
	}
	fmt.Fprintf(sb, "  cached chain for %s:\n", t)
	for i, l := range chain {
		fmt.Fprintf(sb, "    %d. %s %s %s (on %s)\n", i+1, l.priority, l.variant, l, l.typ)
	}
}

// Stats is a point-in-time view of bus state.
type Stats struct {
	EventTypes       int
	Listeners        int
	CachedGroups     int
	ListenerOwners   int
	Fires            uint64
	AsyncFires       uint64
	AsyncCompleted   uint64
	ListenerFailures uint64
	ResumeMisuses    uint64
}

// Stats returns current counts.
func (b *Bus) Stats() Stats {
	keys, listeners := b.table.size()
	// asyncFires is loaded first so it never exceeds fires.
	asyncFires := b.stats.asyncFires.Load()
	return Stats{
		EventTypes:       keys,
		Listeners:        listeners,
		CachedGroups:     b.resolver.cache.Len(),
		ListenerOwners:   b.owners.Len(),
		Fires:            b.stats.fires.Load(),
		AsyncFires:       asyncFires,
		AsyncCompleted:   b.stats.asyncCompleted.Load(),
		ListenerFailures: b.stats.listenerFailures.Load(),
		ResumeMisuses:    b.stats.resumeMisuses.Load(),
	}
}

// Snapshot converts s for the Prometheus collector.
func (s Stats) Snapshot() observability.BusSnapshot {
	return observability.BusSnapshot(s)
}

// Collector returns a Prometheus collector over the bus's Stats.
//
// Example:
//
//	prometheus.MustRegister(bus.Collector("myapp"))
func (b *Bus) Collector(namespace string) *observability.Collector {
	return observability.NewCollector(namespace, func() observability.BusSnapshot {
		return b.Stats().Snapshot()
	})
}
