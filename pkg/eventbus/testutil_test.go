package eventbus

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// testTypes is a small hierarchy used across tests:
//
//	root
//	├── plugin
//	│   ├── plugin.loaded
//	│   └── plugin.unloaded
//	└── value
//	lifecycle (suspendable)
//	└── lifecycle.shutdown
type testTypes struct {
	h         *Hierarchy
	root      *EventType
	plugin    *EventType
	loaded    *EventType
	unloaded  *EventType
	value     *EventType
	lifecycle *EventType
	shutdown  *EventType
}

func newTestTypes(t *testing.T) *testTypes {
	t.Helper()
	h := NewHierarchy()
	tt := &testTypes{h: h}
	tt.root = h.MustDefine("root")
	tt.plugin = h.MustDefine("plugin", Extends(tt.root))
	tt.loaded = h.MustDefine("plugin.loaded", Extends(tt.plugin))
	tt.unloaded = h.MustDefine("plugin.unloaded", Extends(tt.plugin))
	tt.value = h.MustDefine("value", Extends(tt.root))
	tt.lifecycle = h.MustDefine("lifecycle", Suspendable())
	tt.shutdown = h.MustDefine("lifecycle.shutdown", Extends(tt.lifecycle))
	return tt
}

// valueEvent carries a mutable integer so listener order is observable.
type valueEvent struct {
	typ *EventType
	N   int
}

func (e *valueEvent) EventType() *EventType { return e.typ }

// traceEvent records which listeners saw it.
type traceEvent struct {
	typ  *EventType
	mu   sync.Mutex
	seen []string
}

func (e *traceEvent) EventType() *EventType { return e.typ }

func (e *traceEvent) add(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.seen = append(e.seen, name)
}

func (e *traceEvent) trace() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.seen...)
}

// recordingHandler returns a sync handler appending name to a traceEvent.
func recordingHandler(name string) Handler {
	return func(_ context.Context, evt Event) error {
		evt.(*traceEvent).add(name)
		return nil
	}
}

func adding(n int) Handler {
	return func(_ context.Context, evt Event) error {
		evt.(*valueEvent).N += n
		return nil
	}
}

func multiplying(n int) Handler {
	return func(_ context.Context, evt Event) error {
		evt.(*valueEvent).N *= n
		return nil
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// syncBuffer is a goroutine-safe log sink.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func captureLogger() (*slog.Logger, *syncBuffer) {
	buf := &syncBuffer{}
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})), buf
}

func newTestBus(t *testing.T, tt *testTypes, opts ...Option) *Bus {
	t.Helper()
	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	b, err := New(tt.h, opts...)
	require.NoError(t, err)
	return b
}

func mustRegister(t *testing.T, b *Bus, et *EventType, p Priority, h Handler, opts ...ListenerOption) *Listener {
	t.Helper()
	l, err := b.Register(et, p, h, opts...)
	require.NoError(t, err)
	return l
}
