/*
Package eventbus provides in-process, prioritized event publication for
plugin-style applications.

# Overview

Producers fire typed event values; consumers register on an event type,
or any of its supertypes, at a priority. When an event fires, every
matching listener runs in ascending priority order, with ties broken by
registration order. There is no cross-process delivery, no persistence of
events and no acknowledgement.

# Event Types

Event types are declared in a Hierarchy. Each type names its parents, so a
listener on "lifecycle" also receives "lifecycle.shutdown":

	h := eventbus.NewHierarchy()
	lifecycle := h.MustDefine("lifecycle")
	loaded := h.MustDefine("plugin.loaded", eventbus.Extends(lifecycle))

	type PluginLoaded struct{ Name string }

	func (PluginLoaded) EventType() *eventbus.EventType { return loaded }

# Basic Usage

	bus, err := eventbus.New(h)
	if err != nil {
	    log.Fatal(err)
	}

	bus.Register(lifecycle, eventbus.PriorityEarly, func(ctx context.Context, evt eventbus.Event) error {
	    fmt.Println("lifecycle event:", evt.EventType())
	    return nil
	})

	bus.FireEvent(ctx, PluginLoaded{Name: "auth"})

Listener errors and panics are logged, counted and optionally journaled to
a failures.Store. They never stop delivery and never reach the caller.

# Suspendable Events

Types declared with Suspendable (and all of their descendants) may be
paused by async listeners. They must be fired with FireAsyncEvent:

	shutdown := h.MustDefine("shutdown", eventbus.Suspendable())

	bus.RegisterAsync(shutdown, eventbus.PriorityNormal,
	    func(ctx context.Context, evt eventbus.Event, c *eventbus.Continuation) error {
	        go func() {
	            flush()
	            c.Resume()
	        }()
	        return nil
	    })

	fut, _ := bus.FireAsyncEvent(ctx, ShutdownEvent{})
	fut.Wait(ctx)

The chain runs on the firing goroutine until the first async listener,
then on whichever goroutine resumes. Each continuation resumes at most
once; a second Resume returns ErrAlreadyResumed.

# Listener Objects

A handler object can declare listener methods by implementing
ListenerObject:

	type Audit struct{}

	func (a *Audit) ListenerMethods() []eventbus.MethodTag {
	    return []eventbus.MethodTag{{Method: "OnLoaded", Priority: eventbus.PriorityLate}}
	}

	func (a *Audit) OnLoaded(evt PluginLoaded) { ... }

	err := bus.RegisterListeningMethods(&Audit{})

Invalid methods are rejected at registration with specific errors, such as
ErrPromotedMethod and ErrNotSuspendable.

# Caching

The listener chain for each concrete type is merged from the type's
supertypes and cached. Any registration change on a supertype drops the
cached chain; it is rebuilt on the next fire.
*/
package eventbus
