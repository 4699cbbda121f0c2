package eventbus

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/randalmurphal/eventbus/pkg/eventbus/observability"
)

// AsyncFailurePolicy decides what happens to an async chain when an async
// listener returns an error or panics without resuming its continuation.
type AsyncFailurePolicy uint8

const (
	// AsyncFailureStall leaves the chain waiting at the failed listener.
	// The continuation stays valid and may still be resumed later.
	AsyncFailureStall AsyncFailurePolicy = iota

	// AsyncFailureSkip resumes the chain on the listener's behalf. A later
	// Resume by the listener fails with ErrAlreadyResumed.
	AsyncFailureSkip
)

// String implements fmt.Stringer.
func (p AsyncFailurePolicy) String() string {
	if p == AsyncFailureSkip {
		return "skip"
	}
	return "stall"
}

// chain is the dispatch state of one async fire. cursor is the index of
// the next listener to run; len(listeners) means done.
type chain struct {
	bus       *Bus
	ctx       context.Context
	span      trace.Span
	logger    *slog.Logger
	event     Event
	listeners []*Listener
	future    *Future
	elapsed   func() time.Duration

	cursor atomic.Int64
}

// run drives the chain from position i until it completes or an async
// listener takes ownership of the next step.
func (c *chain) run(i int) {
	for i < len(c.listeners) {
		l := c.listeners[i]

		if l.variant == Sync {
			c.bus.runListener(c.ctx, l, c.event, nil)
			c.cursor.Store(int64(i + 1))
			i++
			continue
		}

		cont := &Continuation{chain: c, index: i}
		if err := c.bus.runListener(c.ctx, l, c.event, cont); err != nil {
			if c.bus.cfg.policy == AsyncFailureSkip {
				if c.cursor.CompareAndSwap(int64(i), int64(i+1)) {
					i++
					continue
				}
			} else if c.cursor.Load() == int64(i) {
				observability.LogChainStalled(c.bus.cfg.logger, l.fields(c.event), i, len(c.listeners)-i-1)
			}
		}
		return
	}
	c.complete()
}

func (c *chain) complete() {
	b := c.bus
	duration := c.elapsed()
	name := c.event.EventType().Name()

	b.stats.asyncCompleted.Add(1)
	b.cfg.metrics.RecordFire(c.ctx, name, "async", len(c.listeners), duration)
	b.cfg.spans.EndSpanWithError(c.span, nil)
	observability.LogFireComplete(c.logger, "async", len(c.listeners), duration)

	if c.future != nil {
		c.future.complete(c.event)
	}
}

// Continuation is handed to an async listener. Calling Resume continues the
// chain with the next listener on the calling goroutine.
type Continuation struct {
	chain *chain
	index int
}

// Resume continues the chain. Only the first call succeeds; any further
// call returns ErrAlreadyResumed and does nothing.
//
// Resume runs the remaining listeners before returning, up to the next
// async listener.
func (c *Continuation) Resume() error {
	ch := c.chain
	if !ch.cursor.CompareAndSwap(int64(c.index), int64(c.index+1)) {
		b := ch.bus
		b.stats.resumeMisuses.Add(1)
		b.cfg.metrics.RecordResumeMisuse(ch.ctx, ch.event.EventType().Name())
		observability.LogResumeMisuse(b.cfg.logger, ch.listeners[c.index].fields(ch.event), c.index)
		return ErrAlreadyResumed
	}
	ch.run(c.index + 1)
	return nil
}

// Event returns the event being dispatched.
func (c *Continuation) Event() Event {
	return c.chain.event
}

// Context returns the context of the fire.
func (c *Continuation) Context() context.Context {
	return c.chain.ctx
}

// Index returns the position of the listener this continuation belongs to.
func (c *Continuation) Index() int {
	return c.index
}

// Future completes when an async fire has run every listener.
type Future struct {
	done  chan struct{}
	once  sync.Once
	event Event
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) complete(evt Event) {
	f.once.Do(func() {
		f.event = evt
		close(f.done)
	})
}

// Done is closed when the chain completes.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the chain completes or ctx is done. It returns the
// event, including any changes listeners made to it.
func (f *Future) Wait(ctx context.Context) (Event, error) {
	select {
	case <-f.done:
		return f.event, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Result returns the event if the chain has completed.
func (f *Future) Result() (Event, bool) {
	select {
	case <-f.done:
		return f.event, true
	default:
		return nil, false
	}
}
