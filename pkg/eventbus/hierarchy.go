package eventbus

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/randalmurphal/eventbus/pkg/eventbus/registry"
)

// EventType is the dispatch key of an event. Types are declared in a
// Hierarchy with an explicit list of parents; a listener registered on a
// type receives every event whose concrete type is that type or one of its
// descendants.
//
// EventType values are identity tags: compare them by pointer.
type EventType struct {
	h           *Hierarchy
	name        string
	index       int
	parents     []*EventType
	suspendable bool

	// closure is the type itself followed by every ancestor, each once.
	closure    []*EventType
	closureSet map[*EventType]struct{}
}

// Name returns the declared name.
func (t *EventType) Name() string {
	return t.name
}

// String implements fmt.Stringer.
func (t *EventType) String() string {
	if t == nil {
		return "<nil>"
	}
	return t.name
}

// Parents returns the direct parents in declaration order.
func (t *EventType) Parents() []*EventType {
	return append([]*EventType(nil), t.parents...)
}

// Suspendable reports whether events of this type may be paused by async
// listeners. Suspendability is inherited from any parent.
func (t *EventType) Suspendable() bool {
	return t.suspendable
}

// Is reports whether t is other or a descendant of other.
func (t *EventType) Is(other *EventType) bool {
	if t == nil || other == nil {
		return false
	}
	_, ok := t.closureSet[other]
	return ok
}

// Supertypes returns t followed by all of its ancestors.
func (t *EventType) Supertypes() []*EventType {
	return append([]*EventType(nil), t.closure...)
}

// TypeOption configures an event type declaration.
type TypeOption func(*typeDecl)

type typeDecl struct {
	parents     []*EventType
	suspendable bool
}

// Extends declares the parents of a new type. Parents must already be
// declared in the same hierarchy, so the type graph cannot contain cycles.
func Extends(parents ...*EventType) TypeOption {
	return func(d *typeDecl) {
		d.parents = append(d.parents, parents...)
	}
}

// Suspendable marks a new type (and therefore all of its descendants) as
// suspendable.
func Suspendable() TypeOption {
	return func(d *typeDecl) {
		d.suspendable = true
	}
}

// Hierarchy is the arena event types are declared in. A bus dispatches
// events of exactly one hierarchy.
type Hierarchy struct {
	mu       sync.Mutex
	next     int
	byName   *registry.Registry[string, *EventType]
	bindings *registry.Registry[reflect.Type, *EventType]
}

// NewHierarchy creates an empty hierarchy.
func NewHierarchy() *Hierarchy {
	return &Hierarchy{
		byName:   registry.New[string, *EventType](),
		bindings: registry.New[reflect.Type, *EventType](),
	}
}

// Define declares a new event type.
//
// Example:
//
//	h := eventbus.NewHierarchy()
//	lifecycle := h.MustDefine("lifecycle")
//	shutdown := h.MustDefine("lifecycle.shutdown", eventbus.Extends(lifecycle), eventbus.Suspendable())
func (h *Hierarchy) Define(name string, opts ...TypeOption) (*EventType, error) {
	if name == "" {
		return nil, ErrEmptyTypeName
	}

	var decl typeDecl
	for _, opt := range opts {
		opt(&decl)
	}

	t := &EventType{
		h:           h,
		name:        name,
		suspendable: decl.suspendable,
		closureSet:  make(map[*EventType]struct{}),
	}
	t.closure = append(t.closure, t)
	t.closureSet[t] = struct{}{}

	for _, p := range decl.parents {
		if p == nil {
			return nil, fmt.Errorf("define %q: parent: %w", name, ErrNilType)
		}
		if p.h != h {
			return nil, fmt.Errorf("define %q: parent %q: %w", name, p.name, ErrForeignType)
		}
		if containsType(t.parents, p) {
			continue
		}
		t.parents = append(t.parents, p)
		if p.suspendable {
			t.suspendable = true
		}
		for _, a := range p.closure {
			if _, seen := t.closureSet[a]; seen {
				continue
			}
			t.closureSet[a] = struct{}{}
			t.closure = append(t.closure, a)
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	t.index = h.next
	if !h.byName.StoreIfAbsent(name, t) {
		return nil, fmt.Errorf("define %q: %w", name, ErrDuplicateType)
	}
	h.next++
	return t, nil
}

// MustDefine is like Define but panics on error. It is intended for
// package-level declarations.
func (h *Hierarchy) MustDefine(name string, opts ...TypeOption) *EventType {
	t, err := h.Define(name, opts...)
	if err != nil {
		panic(err)
	}
	return t
}

// Lookup returns the type declared under name.
func (h *Hierarchy) Lookup(name string) (*EventType, bool) {
	return h.byName.Get(name)
}

// Types returns every declared type in declaration order.
func (h *Hierarchy) Types() []*EventType {
	return h.byName.Values(func(a, b *EventType) bool { return a.index < b.index })
}

// owns reports whether t was declared in h.
func (h *Hierarchy) owns(t *EventType) bool {
	return t != nil && t.h == h
}

// Bind associates the Go type T with an event type, so the listener adapter
// can resolve methods taking a T parameter. T must implement Event.
//
// Binding is only needed when the zero value of T cannot report its own
// event type, for example an interface type or a struct embedding Base.
func Bind[T any](h *Hierarchy, t *EventType) error {
	rt := reflect.TypeFor[T]()
	if !rt.Implements(eventInterface) {
		return fmt.Errorf("bind %s: %w", rt, ErrNotEventType)
	}
	if !h.owns(t) {
		if t == nil {
			return fmt.Errorf("bind %s: %w", rt, ErrNilType)
		}
		return fmt.Errorf("bind %s: %w", rt, ErrForeignType)
	}
	if !h.bindings.StoreIfAbsent(rt, t) {
		return fmt.Errorf("bind %s: %w", rt, ErrBindingExists)
	}
	return nil
}

// typeFor resolves the event type a listener parameter of type rt accepts.
func (h *Hierarchy) typeFor(rt reflect.Type) (*EventType, bool) {
	if t, ok := h.bindings.Get(rt); ok {
		return t, true
	}
	if !rt.Implements(eventInterface) {
		return nil, false
	}
	t := zeroEventType(rt)
	if !h.owns(t) {
		return nil, false
	}
	return t, true
}

// zeroEventType asks the zero value of rt for its event type. Methods that
// dereference a nil receiver yield nil.
func zeroEventType(rt reflect.Type) (t *EventType) {
	defer func() {
		if recover() != nil {
			t = nil
		}
	}()
	if rt.Kind() == reflect.Interface {
		return nil
	}
	evt, ok := reflect.Zero(rt).Interface().(Event)
	if !ok {
		return nil
	}
	return evt.EventType()
}

func containsType(types []*EventType, t *EventType) bool {
	for _, x := range types {
		if x == t {
			return true
		}
	}
	return false
}
