package eventbus

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"go.opentelemetry.io/otel/attribute"

	"github.com/randalmurphal/eventbus/pkg/eventbus/failures"
	"github.com/randalmurphal/eventbus/pkg/eventbus/observability"
)

// invoke calls l once, converting a returned error or a panic into a
// *ListenerError.
func invoke(ctx context.Context, l *Listener, evt Event, c *Continuation) (err error) {
	defer func() {
		if r := recover(); r != nil {
			le := &ListenerError{
				Listener: l,
				Event:    evt,
				Panic:    r,
				Stack:    debug.Stack(),
			}
			if perr, ok := r.(error); ok {
				le.Err = perr
			} else {
				le.Err = fmt.Errorf("panic: %v", r)
			}
			err = le
		}
	}()

	if l.variant == Async {
		err = l.async(ctx, evt, c)
	} else {
		err = l.handler(ctx, evt)
	}
	if err != nil {
		return &ListenerError{Listener: l, Event: evt, Err: err}
	}
	return nil
}

// runListener invokes l and reports any failure. The failure never
// reaches the fire caller.
func (b *Bus) runListener(ctx context.Context, l *Listener, evt Event, c *Continuation) error {
	err := invoke(ctx, l, evt, c)
	b.cfg.metrics.RecordListener(ctx, evt.EventType().Name(), l.variant.String(), err)
	if err != nil {
		var le *ListenerError
		if errors.As(err, &le) {
			b.handleFailure(ctx, le)
		}
	}
	return err
}

func (b *Bus) handleFailure(ctx context.Context, le *ListenerError) {
	b.stats.listenerFailures.Add(1)

	f := le.Listener.fields(le.Event)
	observability.LogListenerFailure(b.cfg.logger, f, le, le.Panicked())
	b.cfg.spans.AddSpanEvent(ctx, "listener.failed",
		attribute.String("listener", f.Listener),
		attribute.Int("priority", f.Priority),
		attribute.Bool("panicked", le.Panicked()),
	)

	if b.cfg.store == nil {
		return
	}
	rec := failures.Record{
		ListenerID: f.ListenerID,
		Listener:   f.Listener,
		EventType:  f.EventType,
		EventID:    f.EventID,
		Priority:   f.Priority,
		Variant:    f.Variant,
		Message:    le.Error(),
		Panicked:   le.Panicked(),
		At:         b.cfg.clock.Now(),
	}
	if err := b.cfg.store.Record(context.WithoutCancel(ctx), rec); err != nil {
		observability.LogFailureStoreError(b.cfg.logger, f.EventType, err)
	}
}
