package eventbus

import (
	"context"
	"fmt"
	"go/token"
	"reflect"
	"runtime"
	"strings"

	"go.uber.org/multierr"

	"github.com/randalmurphal/eventbus/pkg/eventbus/observability"
)

// MethodTag marks one method of a handler object as a listener.
type MethodTag struct {
	Method   string
	Priority Priority
}

// ListenerObject is implemented by handler objects whose methods listen on
// the bus. ListenerMethods names the methods and their priorities.
//
// Example:
//
//	type Audit struct{ log []string }
//
//	func (a *Audit) ListenerMethods() []eventbus.MethodTag {
//	    return []eventbus.MethodTag{{Method: "OnLoaded", Priority: eventbus.PriorityLate}}
//	}
//
//	func (a *Audit) OnLoaded(evt PluginLoaded) { a.log = append(a.log, evt.Name) }
type ListenerObject interface {
	ListenerMethods() []MethodTag
}

// Spec describes one listener an Extractor derived from a handler object.
// Exactly one of Handler and AsyncHandler is set, matching Variant.
type Spec struct {
	Type         *EventType
	Priority     Priority
	Variant      Variant
	Handler      Handler
	AsyncHandler AsyncHandler
	Name         string
}

func (s Spec) callable() any {
	if s.Variant == Async {
		return s.AsyncHandler
	}
	return s.Handler
}

// Extractor turns a handler object into listener specs.
type Extractor interface {
	Extract(h *Hierarchy, obj any) ([]Spec, error)
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(h *Hierarchy, obj any) ([]Spec, error)

// Extract implements Extractor.
func (f ExtractorFunc) Extract(h *Hierarchy, obj any) ([]Spec, error) {
	return f(h, obj)
}

var (
	contextType      = reflect.TypeFor[context.Context]()
	continuationType = reflect.TypeFor[*Continuation]()
)

// ReflectExtractor derives listeners from the methods a ListenerObject
// names. A listener method has one of the forms
//
//	func (r *T) M(evt E)
//	func (r *T) M(evt E, c *eventbus.Continuation)
//
// optionally with a leading context.Context parameter. E must be bound to
// an event type with Bind, or be an Event whose zero value reports its type.
// The two-parameter form requires a suspendable type. Every violation is
// reported, combined into one error.
//
// A method only runs for events its parameter can hold. Events of a
// subtype declared by another Go type skip it, and an async chain
// continues past it. Bind an interface type to receive every subtype.
type ReflectExtractor struct{}

// Extract implements Extractor.
func (ReflectExtractor) Extract(h *Hierarchy, obj any) ([]Spec, error) {
	v := reflect.ValueOf(obj)
	if !v.IsValid() || v.Kind() != reflect.Pointer || v.IsNil() {
		return nil, ErrNotPointer
	}
	lo, ok := obj.(ListenerObject)
	if !ok {
		return nil, fmt.Errorf("%s: %w", v.Type(), ErrNoListenerMethods)
	}
	tags := lo.ListenerMethods()
	if len(tags) == 0 {
		return nil, fmt.Errorf("%s: %w", v.Type(), ErrNoListenerMethods)
	}

	ptr := v.Type()
	elem := ptr.Elem()
	if !token.IsExported(elem.Name()) {
		return nil, fmt.Errorf("%s: %w", ptr, ErrTypeNotPublic)
	}

	var (
		specs []Spec
		errs  error
	)
	for _, tag := range tags {
		spec, err := extractMethod(h, v, tag)
		if err != nil {
			errs = multierr.Append(errs, &MethodError{Type: elem.Name(), Method: tag.Method, Err: err})
			continue
		}
		specs = append(specs, spec)
	}
	if errs != nil {
		return nil, errs
	}
	return specs, nil
}

func extractMethod(h *Hierarchy, v reflect.Value, tag MethodTag) (Spec, error) {
	if !token.IsExported(tag.Method) {
		return Spec{}, ErrMethodNotPublic
	}
	ptr := v.Type()
	m, ok := ptr.MethodByName(tag.Method)
	if !ok {
		return Spec{}, ErrMethodNotFound
	}
	if promoted(ptr, tag.Method) {
		return Spec{}, ErrPromotedMethod
	}

	mt := m.Type
	if mt.NumOut() > 0 {
		return Spec{}, ErrMethodReturnsValue
	}
	if mt.IsVariadic() {
		return Spec{}, ErrBadParamCount
	}

	// In(0) is the receiver.
	params := make([]reflect.Type, 0, mt.NumIn()-1)
	for i := 1; i < mt.NumIn(); i++ {
		params = append(params, mt.In(i))
	}
	withCtx := len(params) > 0 && params[0] == contextType
	if withCtx {
		params = params[1:]
	}
	if len(params) != 1 && len(params) != 2 {
		return Spec{}, ErrBadParamCount
	}

	evtParam := params[0]
	t, ok := h.typeFor(evtParam)
	if !ok {
		return Spec{}, fmt.Errorf("%w: %s", ErrNotEventType, evtParam)
	}

	spec := Spec{
		Type:     t,
		Priority: tag.Priority,
		Name:     ptr.Elem().Name() + "." + tag.Method,
	}
	fn := v.Method(m.Index)

	if len(params) == 1 {
		spec.Variant = Sync
		spec.Handler = func(ctx context.Context, evt Event) error {
			return callMethod(ctx, fn, withCtx, evtParam, evt, nil)
		}
		return spec, nil
	}

	if !t.Suspendable() {
		return Spec{}, ErrNotSuspendable
	}
	if params[1] != continuationType {
		return Spec{}, ErrBadContinuationParam
	}
	spec.Variant = Async
	spec.AsyncHandler = func(ctx context.Context, evt Event, c *Continuation) error {
		return callMethod(ctx, fn, withCtx, evtParam, evt, c)
	}
	return spec, nil
}

// callMethod invokes an adapted method. An event the parameter cannot hold,
// such as a subtype event carried by another Go type, does not apply to the
// method: it is skipped, and an async chain moves past it.
func callMethod(ctx context.Context, fn reflect.Value, withCtx bool, param reflect.Type, evt Event, c *Continuation) error {
	ev := reflect.ValueOf(evt)
	if !ev.Type().AssignableTo(param) {
		if c != nil {
			return c.Resume()
		}
		return nil
	}

	args := make([]reflect.Value, 0, 3)
	if withCtx {
		args = append(args, reflect.ValueOf(&ctx).Elem())
	}
	args = append(args, ev)
	if c != nil {
		args = append(args, reflect.ValueOf(c))
	}
	fn.Call(args)
	return nil
}

// promoted reports whether method name of ptr is inherited from an
// embedded field rather than declared on the type itself.
func promoted(ptr reflect.Type, name string) bool {
	elem := ptr.Elem()
	if elem.Kind() != reflect.Struct {
		return false
	}

	embedded := false
	for i := 0; i < elem.NumField(); i++ {
		f := elem.Field(i)
		if !f.Anonymous {
			continue
		}
		if _, ok := f.Type.MethodByName(name); ok {
			embedded = true
			break
		}
		if f.Type.Kind() != reflect.Pointer && f.Type.Kind() != reflect.Interface {
			if _, ok := reflect.PointerTo(f.Type).MethodByName(name); ok {
				embedded = true
				break
			}
		}
	}
	if !embedded {
		return false
	}

	// The outer type may shadow the embedded method. Shadowing methods are
	// real functions named after the outer type; promoted ones are
	// compiler-generated wrappers.
	m, ok := elem.MethodByName(name)
	if !ok {
		m, _ = ptr.MethodByName(name)
	}
	fn := runtime.FuncForPC(m.Func.Pointer())
	if fn == nil {
		return true
	}
	if file, _ := fn.FileLine(fn.Entry()); file == "<autogenerated>" {
		return true
	}
	full := fn.Name()
	typeName := elem.Name()
	return !strings.HasSuffix(full, "."+typeName+"."+name) &&
		!strings.HasSuffix(full, ".(*"+typeName+")."+name)
}

// RegisterListeningMethods registers every listener method of obj, which
// must be a non-nil pointer. Registration is all or nothing: when any
// method is invalid, nothing is registered and the returned error lists
// every violation.
func (b *Bus) RegisterListeningMethods(obj any) error {
	v := reflect.ValueOf(obj)
	if !v.IsValid() || v.Kind() != reflect.Pointer || v.IsNil() {
		return ErrNotPointer
	}

	b.adapterMu.Lock()
	defer b.adapterMu.Unlock()

	if b.owners.Has(obj) {
		return fmt.Errorf("%s: %w", v.Type(), ErrAlreadyRegistered)
	}

	specs, err := b.cfg.extractor.Extract(b.hierarchy, obj)
	if err != nil {
		observability.LogAdapterRejected(b.cfg.logger, v.Type().String(), err)
		return err
	}
	if len(specs) == 0 {
		return fmt.Errorf("%s: %w", v.Type(), ErrNoListenerMethods)
	}

	listeners := make([]*Listener, 0, len(specs))
	for _, s := range specs {
		var opts []ListenerOption
		if s.Name != "" {
			opts = append(opts, WithName(s.Name))
		}
		l, err := b.RegisterListener(s.Type, s.Priority, s.Variant, s.callable(), opts...)
		if err != nil {
			for _, done := range listeners {
				b.Unregister(done)
			}
			observability.LogAdapterRejected(b.cfg.logger, v.Type().String(), err)
			return err
		}
		listeners = append(listeners, l)
	}

	b.owners.Store(obj, listeners)
	return nil
}

// UnregisterListeningMethods removes every listener registered for obj. It
// reports false when obj was not registered.
func (b *Bus) UnregisterListeningMethods(obj any) bool {
	v := reflect.ValueOf(obj)
	if !v.IsValid() || v.Kind() != reflect.Pointer || v.IsNil() {
		return false
	}

	b.adapterMu.Lock()
	defer b.adapterMu.Unlock()

	listeners, ok := b.owners.LoadAndDelete(obj)
	if !ok {
		return false
	}
	for _, l := range listeners {
		b.Unregister(l)
	}
	return true
}
