package eventbus

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/randalmurphal/eventbus/pkg/eventbus/observability"
)

// Variant distinguishes synchronous listeners from listeners that may
// suspend the dispatch chain.
type Variant uint8

const (
	// Sync listeners run to completion before the next listener starts.
	Sync Variant = iota
	// Async listeners receive a Continuation and the chain waits until it
	// is resumed.
	Async
)

// String implements fmt.Stringer.
func (v Variant) String() string {
	if v == Async {
		return "async"
	}
	return "sync"
}

// Handler is a synchronous listener callable.
type Handler func(ctx context.Context, evt Event) error

// AsyncHandler is an async listener callable. The chain resumes when c is
// resumed, from any goroutine.
type AsyncHandler func(ctx context.Context, evt Event, c *Continuation) error

// Listener is a registration record. The pointer is the registration's
// identity: registering the same function twice yields two listeners.
type Listener struct {
	id       string
	name     string
	typ      *EventType
	priority Priority
	variant  Variant
	seq      uint64

	handler Handler
	async   AsyncHandler
}

// ID returns the listener's unique ID.
func (l *Listener) ID() string { return l.id }

// Name returns the name given with WithName, or "".
func (l *Listener) Name() string { return l.name }

// Type returns the event type the listener is registered on.
func (l *Listener) Type() *EventType { return l.typ }

// Priority returns the listener's priority.
func (l *Listener) Priority() Priority { return l.priority }

// Variant returns the listener's variant.
func (l *Listener) Variant() Variant { return l.variant }

// String implements fmt.Stringer.
func (l *Listener) String() string {
	if l.name != "" {
		return l.name
	}
	return l.id
}

// less orders listeners by priority, then by registration order.
func less(a, b *Listener) bool {
	if a.priority != b.priority {
		return a.priority < b.priority
	}
	return a.seq < b.seq
}

func (l *Listener) fields(evt Event) observability.ListenerFields {
	f := observability.ListenerFields{
		ListenerID: l.id,
		Listener:   l.String(),
		EventType:  l.typ.Name(),
		Priority:   int(l.priority),
		Variant:    l.variant.String(),
	}
	if evt != nil {
		f.EventType = evt.EventType().Name()
		f.EventID = eventID(evt)
	}
	return f
}

// ListenerOption configures a listener at registration.
type ListenerOption func(*Listener)

// WithName sets the name shown in logs, dumps and the failure journal.
func WithName(name string) ListenerOption {
	return func(l *Listener) {
		l.name = name
	}
}

func newListener(t *EventType, p Priority, v Variant, callable any, seq uint64, opts []ListenerOption) (*Listener, error) {
	l := &Listener{
		id:       uuid.NewString(),
		typ:      t,
		priority: p,
		variant:  v,
		seq:      seq,
	}

	switch fn := callable.(type) {
	case nil:
		return nil, ErrNilHandler
	case Handler:
		l.handler = fn
	case func(context.Context, Event) error:
		l.handler = fn
	case AsyncHandler:
		l.async = fn
	case func(context.Context, Event, *Continuation) error:
		l.async = fn
	default:
		return nil, fmt.Errorf("%w: %T", ErrBadCallable, callable)
	}

	if l.handler == nil && l.async == nil {
		return nil, ErrNilHandler
	}
	if (v == Sync) != (l.handler != nil) {
		return nil, fmt.Errorf("%w: %s listener given %T", ErrBadCallable, v, callable)
	}

	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}
