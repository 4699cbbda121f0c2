package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// NoopMetrics is a MetricsRecorder that does nothing.
type NoopMetrics struct{}

var _ MetricsRecorder = NoopMetrics{}

// RecordFire does nothing.
func (NoopMetrics) RecordFire(_ context.Context, _, _ string, _ int, _ time.Duration) {}

// RecordListener does nothing.
func (NoopMetrics) RecordListener(_ context.Context, _, _ string, _ error) {}

// RecordResolve does nothing.
func (NoopMetrics) RecordResolve(_ context.Context, _ string, _ bool) {}

// RecordResumeMisuse does nothing.
func (NoopMetrics) RecordResumeMisuse(_ context.Context, _ string) {}

// NoopSpanManager is a SpanManager that does nothing.
type NoopSpanManager struct{}

var _ SpanManager = NoopSpanManager{}

var noopSpan = noop.Span{}

// StartFireSpan returns the context unchanged and a no-op span.
func (NoopSpanManager) StartFireSpan(ctx context.Context, _, _ string, _ int) (context.Context, trace.Span) {
	return ctx, noopSpan
}

// EndSpanWithError does nothing.
func (NoopSpanManager) EndSpanWithError(_ trace.Span, _ error) {}

// AddSpanEvent does nothing.
func (NoopSpanManager) AddSpanEvent(_ context.Context, _ string, _ ...attribute.KeyValue) {}
