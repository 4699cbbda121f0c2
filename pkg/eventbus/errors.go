package eventbus

import (
	"errors"
	"fmt"
)

// Sentinel errors for event type declaration.
var (
	// ErrEmptyTypeName indicates Define was called without a name.
	ErrEmptyTypeName = errors.New("event type name is empty")

	// ErrDuplicateType indicates a name already declared in the hierarchy.
	ErrDuplicateType = errors.New("event type already defined")

	// ErrForeignType indicates an event type declared in another hierarchy.
	ErrForeignType = errors.New("event type belongs to a different hierarchy")

	// ErrNilType indicates a nil event type where one is required.
	ErrNilType = errors.New("event type is nil")

	// ErrBindingExists indicates a Go type already bound to an event type.
	ErrBindingExists = errors.New("go type already bound to an event type")
)

// Sentinel errors for registration.
var (
	// ErrNilHandler indicates a registration without a callable.
	ErrNilHandler = errors.New("listener handler is nil")

	// ErrBadCallable indicates a callable whose type does not match its variant.
	ErrBadCallable = errors.New("callable does not match listener variant")

	// ErrAsyncListenerOnSyncType indicates an async listener registered on a
	// type that is not suspendable.
	ErrAsyncListenerOnSyncType = errors.New("async listener requires a suspendable event type")
)

// Sentinel errors for protocol misuse. These indicate programming errors
// and are returned immediately to the caller.
var (
	// ErrNilEvent indicates a nil event passed to a fire call.
	ErrNilEvent = errors.New("event is nil")

	// ErrSuspendableOnSyncPath indicates a suspendable event passed to FireEvent.
	ErrSuspendableOnSyncPath = errors.New("suspendable event fired through the synchronous path")

	// ErrAlreadyResumed indicates a continuation resumed more than once.
	ErrAlreadyResumed = errors.New("continuation already resumed")
)

// Sentinel errors for the listener adapter.
var (
	ErrNotPointer           = errors.New("listener object must be a non-nil pointer")
	ErrAlreadyRegistered    = errors.New("listener object already registered")
	ErrNoListenerMethods    = errors.New("listener object declares no listener methods")
	ErrTypeNotPublic        = errors.New("listener object type is not exported")
	ErrMethodNotPublic      = errors.New("listener method is not exported")
	ErrMethodNotFound       = errors.New("listener method not found")
	ErrPromotedMethod       = errors.New("listener method is promoted from an embedded field")
	ErrMethodReturnsValue   = errors.New("listener method must not return values")
	ErrBadParamCount        = errors.New("listener method must take an event, optionally followed by a continuation")
	ErrNotEventType         = errors.New("listener method parameter is not a recognized event type")
	ErrNotSuspendable       = errors.New("continuation parameter requires a suspendable event type")
	ErrBadContinuationParam = errors.New("second listener method parameter must be *eventbus.Continuation")
)

// ListenerError describes a listener invocation that returned an error or
// panicked. It is logged and journaled, never returned from a fire call.
type ListenerError struct {
	Listener *Listener
	Event    Event
	Err      error
	// Panic holds the recovered value when the listener panicked.
	Panic any
	Stack []byte
}

// Error implements the error interface.
func (e *ListenerError) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("listener %s panicked on %s: %v", e.Listener, e.Event.EventType(), e.Panic)
	}
	return fmt.Sprintf("listener %s failed on %s: %v", e.Listener, e.Event.EventType(), e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *ListenerError) Unwrap() error {
	return e.Err
}

// Panicked reports whether the listener panicked.
func (e *ListenerError) Panicked() bool {
	return e.Panic != nil
}

// MethodError wraps a validation failure for one tagged method.
type MethodError struct {
	// Type is the Go type of the listener object.
	Type string
	// Method is the tagged method name.
	Method string
	Err    error
}

// Error implements the error interface.
func (e *MethodError) Error() string {
	return fmt.Sprintf("%s.%s: %v", e.Type, e.Method, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *MethodError) Unwrap() error {
	return e.Err
}
