package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/randalmurphal/eventbus/pkg/eventbus/observability"
	"github.com/randalmurphal/eventbus/pkg/eventbus/registry"
)

// ErrNilHierarchy indicates New was called without a hierarchy.
var ErrNilHierarchy = errors.New("hierarchy is nil")

// Bus dispatches events of one Hierarchy to registered listeners in
// priority order. All methods are safe for concurrent use. The bus starts
// no goroutines of its own: fires run on the caller's goroutine, and an
// async chain continues on whichever goroutine resumes it.
type Bus struct {
	hierarchy *Hierarchy
	cfg       busConfig

	table    *table
	resolver *resolver
	seq      atomic.Uint64

	adapterMu sync.Mutex
	owners    *registry.Registry[any, []*Listener]

	stats counters
}

type counters struct {
	fires            atomic.Uint64
	asyncFires       atomic.Uint64
	asyncCompleted   atomic.Uint64
	listenerFailures atomic.Uint64
	resumeMisuses    atomic.Uint64
}

// New creates a bus for events declared in h.
//
// Example:
//
//	bus, err := eventbus.New(h,
//	    eventbus.WithLogger(logger),
//	    eventbus.WithAsyncFailurePolicy(eventbus.AsyncFailureSkip),
//	)
func New(h *Hierarchy, opts ...Option) (*Bus, error) {
	if h == nil {
		return nil, ErrNilHierarchy
	}

	cfg := defaultBusConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	t := newTable()
	r, err := newResolver(t, cfg.cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create resolver cache: %w", err)
	}

	return &Bus{
		hierarchy: h,
		cfg:       cfg,
		table:     t,
		resolver:  r,
		owners:    registry.New[any, []*Listener](),
	}, nil
}

// Hierarchy returns the hierarchy the bus dispatches.
func (b *Bus) Hierarchy() *Hierarchy {
	return b.hierarchy
}

// Register adds a synchronous listener on t. It receives every event whose
// type is t or a descendant of t.
func (b *Bus) Register(t *EventType, p Priority, h Handler, opts ...ListenerOption) (*Listener, error) {
	return b.RegisterListener(t, p, Sync, h, opts...)
}

// RegisterAsync adds an async listener on t, which must be suspendable.
func (b *Bus) RegisterAsync(t *EventType, p Priority, h AsyncHandler, opts ...ListenerOption) (*Listener, error) {
	return b.RegisterListener(t, p, Async, h, opts...)
}

// RegisterListener adds a listener of the given variant. callable must be a
// Handler for Sync and an AsyncHandler for Async.
func (b *Bus) RegisterListener(t *EventType, p Priority, v Variant, callable any, opts ...ListenerOption) (*Listener, error) {
	if t == nil {
		return nil, ErrNilType
	}
	if !b.hierarchy.owns(t) {
		return nil, fmt.Errorf("register on %q: %w", t.name, ErrForeignType)
	}
	if v == Async && !t.suspendable {
		return nil, fmt.Errorf("register on %q: %w", t.name, ErrAsyncListenerOnSyncType)
	}

	l, err := newListener(t, p, v, callable, b.seq.Add(1), opts)
	if err != nil {
		return nil, fmt.Errorf("register on %q: %w", t.name, err)
	}

	b.table.insert(l)
	b.resolver.invalidate(t)
	observability.LogRegistration(b.cfg.logger, "register", l.fields(nil))
	return l, nil
}

// Unregister removes exactly l. It reports false when l is nil or not
// registered; calling it twice is harmless.
func (b *Bus) Unregister(l *Listener) bool {
	if l == nil || !b.hierarchy.owns(l.typ) {
		return false
	}
	if !b.table.remove(l) {
		return false
	}
	b.resolver.invalidate(l.typ)
	observability.LogRegistration(b.cfg.logger, "unregister", l.fields(nil))
	return true
}

// typeOf validates evt and returns its concrete type.
func (b *Bus) typeOf(evt Event) (*EventType, error) {
	if evt == nil {
		return nil, ErrNilEvent
	}
	t := evt.EventType()
	if t == nil {
		return nil, fmt.Errorf("%T: %w", evt, ErrNilType)
	}
	if !b.hierarchy.owns(t) {
		return nil, fmt.Errorf("%T: %w", evt, ErrForeignType)
	}
	return t, nil
}

func (b *Bus) resolve(ctx context.Context, t *EventType) []*Listener {
	listeners, hit := b.resolver.resolve(t)
	b.cfg.metrics.RecordResolve(ctx, t.name, hit)
	return listeners
}

// FireEvent delivers evt to every listener of its type and supertypes, in
// priority order, before returning. Listener errors and panics are logged
// and journaled; they neither stop delivery nor reach the caller.
//
// FireEvent returns ErrNilEvent for a nil event and
// ErrSuspendableOnSyncPath for an event of a suspendable type, without
// invoking any listener.
func (b *Bus) FireEvent(ctx context.Context, evt Event) error {
	t, err := b.typeOf(evt)
	if err != nil {
		return err
	}
	if t.suspendable {
		return fmt.Errorf("%s: %w", t.name, ErrSuspendableOnSyncPath)
	}

	elapsed := observability.TimedOperation(b.cfg.clock)
	listeners := b.resolve(ctx, t)
	b.stats.fires.Add(1)

	spanCtx, span := b.cfg.spans.StartFireSpan(ctx, t.name, "sync", len(listeners))
	for _, l := range listeners {
		b.runListener(spanCtx, l, evt, nil)
	}
	b.cfg.spans.EndSpanWithError(span, nil)

	duration := elapsed()
	b.cfg.metrics.RecordFire(ctx, t.name, "sync", len(listeners), duration)
	logger := observability.EnrichLogger(b.cfg.logger, t.name, eventID(evt))
	observability.LogFireComplete(logger, "sync", len(listeners), duration)
	return nil
}

// FireAsyncEvent starts delivering evt and returns a Future that completes
// once every listener has run. Sync listeners run inline; the chain pauses
// at each async listener until its continuation is resumed. Events of any
// type are accepted.
//
// Example:
//
//	fut, err := bus.FireAsyncEvent(ctx, evt)
//	if err != nil {
//	    return err
//	}
//	evt, err = fut.Wait(ctx)
func (b *Bus) FireAsyncEvent(ctx context.Context, evt Event) (*Future, error) {
	fut := newFuture()
	if err := b.fireAsync(ctx, evt, fut); err != nil {
		return nil, err
	}
	return fut, nil
}

// FireAsyncEventWithoutFuture is FireAsyncEvent for callers that do not
// observe completion.
func (b *Bus) FireAsyncEventWithoutFuture(ctx context.Context, evt Event) error {
	return b.fireAsync(ctx, evt, nil)
}

func (b *Bus) fireAsync(ctx context.Context, evt Event, fut *Future) error {
	t, err := b.typeOf(evt)
	if err != nil {
		return err
	}

	elapsed := observability.TimedOperation(b.cfg.clock)
	listeners := b.resolve(ctx, t)
	b.stats.fires.Add(1)
	b.stats.asyncFires.Add(1)

	spanCtx, span := b.cfg.spans.StartFireSpan(ctx, t.name, "async", len(listeners))
	c := &chain{
		bus:       b,
		ctx:       spanCtx,
		span:      span,
		logger:    observability.EnrichLogger(b.cfg.logger, t.name, eventID(evt)),
		event:     evt,
		listeners: listeners,
		future:    fut,
		elapsed:   elapsed,
	}
	c.run(0)
	return nil
}
