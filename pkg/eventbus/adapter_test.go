package eventbus

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

// Adapter fixtures live in their own hierarchy so event types can report
// themselves from a zero value.
var (
	adapterTypes    = NewHierarchy()
	adapterRoot     = adapterTypes.MustDefine("adapter.root")
	adapterLoaded   = adapterTypes.MustDefine("adapter.loaded", Extends(adapterRoot))
	adapterShutdown = adapterTypes.MustDefine("adapter.shutdown", Suspendable())
	adapterForced   = adapterTypes.MustDefine("adapter.shutdown.forced", Extends(adapterShutdown))
)

type LoadedEvent struct{ Name string }

func (LoadedEvent) EventType() *EventType { return adapterLoaded }

type ShutdownEvent struct{ Reason string }

func (ShutdownEvent) EventType() *EventType { return adapterShutdown }

// RootEvent is an interface parameter bound explicitly.
type RootEvent interface {
	Event
}

func init() {
	if err := Bind[RootEvent](adapterTypes, adapterRoot); err != nil {
		panic(err)
	}
}

type Audit struct {
	seen []string
	cont *Continuation
}

func (a *Audit) ListenerMethods() []MethodTag {
	return []MethodTag{
		{Method: "OnLoaded", Priority: PriorityLate},
		{Method: "OnAnything", Priority: PriorityFirst},
		{Method: "OnShutdown", Priority: PriorityNormal},
	}
}

func (a *Audit) OnLoaded(ctx context.Context, evt LoadedEvent) {
	a.seen = append(a.seen, "loaded:"+evt.Name)
}

func (a *Audit) OnAnything(evt RootEvent) {
	a.seen = append(a.seen, "root")
}

func (a *Audit) OnShutdown(evt ShutdownEvent, c *Continuation) {
	a.seen = append(a.seen, "shutdown:"+evt.Reason)
	a.cont = c
}

func newAdapterBus(t *testing.T, opts ...Option) *Bus {
	t.Helper()
	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	b, err := New(adapterTypes, opts...)
	require.NoError(t, err)
	return b
}

func TestRegisterListeningMethods(t *testing.T) {
	bus := newAdapterBus(t)
	audit := &Audit{}

	require.NoError(t, bus.RegisterListeningMethods(audit))
	assert.Equal(t, 1, bus.CountListeners(adapterLoaded))
	assert.Equal(t, 1, bus.CountListeners(adapterRoot))
	assert.Equal(t, 1, bus.Stats().ListenerOwners)

	require.NoError(t, bus.FireEvent(context.Background(), LoadedEvent{Name: "auth"}))
	assert.Equal(t, []string{"root", "loaded:auth"}, audit.seen)

	chain := bus.Listeners(adapterLoaded)
	require.Len(t, chain, 2)
	assert.Equal(t, "Audit.OnAnything", chain[0].Name())
	assert.Equal(t, "Audit.OnLoaded", chain[1].Name())

	fut, err := bus.FireAsyncEvent(context.Background(), ShutdownEvent{Reason: "sigterm"})
	require.NoError(t, err)
	require.NotNil(t, audit.cont)
	require.NoError(t, audit.cont.Resume())
	_, done := fut.Result()
	assert.True(t, done)
	assert.Equal(t, "shutdown:sigterm", audit.seen[2])
}

func TestRegisterListeningMethods_Twice(t *testing.T) {
	bus := newAdapterBus(t)
	audit := &Audit{}

	require.NoError(t, bus.RegisterListeningMethods(audit))
	assert.ErrorIs(t, bus.RegisterListeningMethods(audit), ErrAlreadyRegistered)
	assert.NoError(t, bus.RegisterListeningMethods(&Audit{}), "identity, not equality")
	assert.Equal(t, 2, bus.CountListeners(adapterLoaded))
}

func TestUnregisterListeningMethods(t *testing.T) {
	bus := newAdapterBus(t)
	audit := &Audit{}

	assert.False(t, bus.UnregisterListeningMethods(audit), "unknown object")
	assert.False(t, bus.UnregisterListeningMethods(nil))
	assert.False(t, bus.UnregisterListeningMethods(Audit{}))

	require.NoError(t, bus.RegisterListeningMethods(audit))
	assert.True(t, bus.UnregisterListeningMethods(audit))
	assert.False(t, bus.UnregisterListeningMethods(audit))

	assert.Equal(t, 0, bus.Stats().Listeners)
	require.NoError(t, bus.FireEvent(context.Background(), LoadedEvent{}))
	assert.Empty(t, audit.seen)

	require.NoError(t, bus.RegisterListeningMethods(audit), "can register again after removal")
}

func TestRegisterListeningMethods_NotPointer(t *testing.T) {
	bus := newAdapterBus(t)

	assert.ErrorIs(t, bus.RegisterListeningMethods(nil), ErrNotPointer)
	assert.ErrorIs(t, bus.RegisterListeningMethods(Audit{}), ErrNotPointer)
	assert.ErrorIs(t, bus.RegisterListeningMethods((*Audit)(nil)), ErrNotPointer)
}

type Silent struct{}

type Empty struct{}

func (*Empty) ListenerMethods() []MethodTag { return nil }

type unexportedHandler struct{}

func (*unexportedHandler) ListenerMethods() []MethodTag {
	return []MethodTag{{Method: "OnLoaded"}}
}

func (*unexportedHandler) OnLoaded(LoadedEvent) {}

func TestRegisterListeningMethods_ObjectErrors(t *testing.T) {
	bus := newAdapterBus(t)

	assert.ErrorIs(t, bus.RegisterListeningMethods(&Silent{}), ErrNoListenerMethods)
	assert.ErrorIs(t, bus.RegisterListeningMethods(&Empty{}), ErrNoListenerMethods)
	assert.ErrorIs(t, bus.RegisterListeningMethods(&unexportedHandler{}), ErrTypeNotPublic)
	assert.Equal(t, 0, bus.Stats().ListenerOwners)
}

type Base2 struct{}

func (*Base2) OnLoaded(LoadedEvent) {}

func (*Base2) OnShadowed(LoadedEvent) {}

// Broken collects every kind of invalid listener method.
type Broken struct {
	Base2
}

func (b *Broken) ListenerMethods() []MethodTag {
	return []MethodTag{
		{Method: "onPrivate"},
		{Method: "Missing"},
		{Method: "OnLoaded"},
		{Method: "ReturnsError"},
		{Method: "NoParams"},
		{Method: "TooMany"},
		{Method: "NotAnEvent"},
		{Method: "ContinuationOnSync"},
		{Method: "WrongSecond"},
		{Method: "Variadic"},
	}
}

func (b *Broken) onPrivate(LoadedEvent) {}
func (b *Broken) ReturnsError(LoadedEvent) error { return nil }
func (b *Broken) NoParams() {}
func (b *Broken) TooMany(ShutdownEvent, *Continuation, int) {}
func (b *Broken) NotAnEvent(string) {}
func (b *Broken) ContinuationOnSync(LoadedEvent, *Continuation) {}
func (b *Broken) WrongSecond(ShutdownEvent, context.Context) {}
func (b *Broken) Variadic(evts ...LoadedEvent) {}
func (b *Broken) OnShadowed(LoadedEvent) {}

func TestRegisterListeningMethods_CollectsEveryViolation(t *testing.T) {
	bus := newAdapterBus(t)
	b := &Broken{}
	b.onPrivate(LoadedEvent{})

	err := bus.RegisterListeningMethods(b)
	require.Error(t, err)

	errs := multierr.Errors(err)
	require.Len(t, errs, 10)

	want := map[string]error{
		"onPrivate":          ErrMethodNotPublic,
		"Missing":            ErrMethodNotFound,
		"OnLoaded":           ErrPromotedMethod,
		"ReturnsError":       ErrMethodReturnsValue,
		"NoParams":           ErrBadParamCount,
		"TooMany":            ErrBadParamCount,
		"NotAnEvent":         ErrNotEventType,
		"ContinuationOnSync": ErrNotSuspendable,
		"WrongSecond":        ErrBadContinuationParam,
		"Variadic":           ErrBadParamCount,
	}
	for _, e := range errs {
		var me *MethodError
		require.ErrorAs(t, e, &me)
		assert.Equal(t, "Broken", me.Type)
		assert.ErrorIs(t, e, want[me.Method], me.Method)
	}

	assert.Equal(t, 0, bus.Stats().Listeners, "nothing registered")
	assert.Equal(t, 0, bus.Stats().ListenerOwners)
}

func TestPromoted(t *testing.T) {
	ptr := reflect.TypeOf(&Broken{})
	assert.True(t, promoted(ptr, "OnLoaded"))
	assert.False(t, promoted(ptr, "OnShadowed"), "declared on the outer type")
	assert.False(t, promoted(ptr, "ReturnsError"), "no embedded candidate")
	assert.False(t, promoted(reflect.TypeOf(&Audit{}), "OnLoaded"))
}

type Mismatched struct{ got int }

func (m *Mismatched) ListenerMethods() []MethodTag {
	return []MethodTag{{Method: "OnLoaded"}}
}

func (m *Mismatched) OnLoaded(LoadedEvent) { m.got++ }

// otherLoaded shares LoadedEvent's type but is a different Go type.
type otherLoaded struct{}

func (otherLoaded) EventType() *EventType { return adapterLoaded }

func TestRegisterListeningMethods_SkipsEventOfOtherGoType(t *testing.T) {
	bus := newAdapterBus(t)
	m := &Mismatched{}
	require.NoError(t, bus.RegisterListeningMethods(m))

	require.NoError(t, bus.FireEvent(context.Background(), otherLoaded{}))
	assert.Equal(t, 0, m.got)
	assert.Equal(t, uint64(0), bus.Stats().ListenerFailures)

	require.NoError(t, bus.FireEvent(context.Background(), LoadedEvent{}))
	assert.Equal(t, 1, m.got)
}

// ForcedShutdownEvent is a subtype of ShutdownEvent's type with its own Go type.
type ForcedShutdownEvent struct{}

func (ForcedShutdownEvent) EventType() *EventType { return adapterForced }

type Drainer struct{ calls int }

func (d *Drainer) ListenerMethods() []MethodTag {
	return []MethodTag{{Method: "OnShutdown", Priority: PriorityEarly}}
}

func (d *Drainer) OnShutdown(evt ShutdownEvent, c *Continuation) {
	d.calls++
	go func() { _ = c.Resume() }()
}

func TestRegisterListeningMethods_AsyncSubtypeDoesNotStall(t *testing.T) {
	bus := newAdapterBus(t)
	d := &Drainer{}
	require.NoError(t, bus.RegisterListeningMethods(d))

	var after []string
	_, err := bus.Register(adapterShutdown, PriorityLast, func(ctx context.Context, evt Event) error {
		after = append(after, evt.EventType().Name())
		return nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	fut, err := bus.FireAsyncEvent(ctx, ForcedShutdownEvent{})
	require.NoError(t, err)
	_, err = fut.Wait(ctx)
	require.NoError(t, err, "chain completes past the non-applicable method")
	assert.Equal(t, 0, d.calls)
	assert.Equal(t, []string{"adapter.shutdown.forced"}, after)
	assert.Equal(t, uint64(0), bus.Stats().ListenerFailures)
	assert.Equal(t, uint64(0), bus.Stats().ResumeMisuses)

	fut, err = bus.FireAsyncEvent(ctx, ShutdownEvent{Reason: "drain"})
	require.NoError(t, err)
	_, err = fut.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, d.calls)
	assert.Len(t, after, 2)
}

func TestRegisterListeningMethods_ExtractorFunc(t *testing.T) {
	var calls int
	bus := newAdapterBus(t, WithExtractor(ExtractorFunc(func(h *Hierarchy, obj any) ([]Spec, error) {
		if h != adapterTypes {
			return nil, errors.New("wrong hierarchy")
		}
		return []Spec{
			{
				Type:     adapterRoot,
				Priority: PriorityNormal,
				Variant:  Sync,
				Name:     "explicit",
				Handler: func(context.Context, Event) error {
					calls++
					return nil
				},
			},
		}, nil
	})))

	handler := &struct{ n int }{}
	require.NoError(t, bus.RegisterListeningMethods(handler))
	require.NoError(t, bus.FireEvent(context.Background(), LoadedEvent{}))
	assert.Equal(t, 1, calls)
	assert.Equal(t, "explicit", bus.Listeners(adapterLoaded)[0].Name())
}

func TestRegisterListeningMethods_RollsBackOnRegistrationError(t *testing.T) {
	bus := newAdapterBus(t, WithExtractor(ExtractorFunc(func(*Hierarchy, any) ([]Spec, error) {
		noop := func(context.Context, Event) error { return nil }
		return []Spec{
			{Type: adapterRoot, Variant: Sync, Handler: noop},
			{Type: adapterRoot, Variant: Async, AsyncHandler: func(context.Context, Event, *Continuation) error { return nil }},
		}, nil
	})))

	err := bus.RegisterListeningMethods(&Audit{})
	assert.ErrorIs(t, err, ErrAsyncListenerOnSyncType)
	assert.Equal(t, 0, bus.Stats().Listeners)
	assert.Equal(t, 0, bus.Stats().ListenerOwners)
}

func TestDumpAll_ListsListenerObjects(t *testing.T) {
	bus := newAdapterBus(t)
	audit := &Audit{}
	require.NoError(t, bus.RegisterListeningMethods(audit))

	out := bus.DumpAll()
	assert.Contains(t, out, "listener objects:\n")
	assert.Contains(t, out, "*eventbus.Audit")
	assert.Contains(t, out, "Audit.OnLoaded, Audit.OnAnything, Audit.OnShutdown")

	require.True(t, bus.UnregisterListeningMethods(audit))
	assert.NotContains(t, bus.DumpAll(), "listener objects:")
}
