// Package telemetry integrates the runtime with Clue logging and OpenTelemetry
// tracing/metrics. The interfaces are intentionally small so tests can supply
// lightweight stubs without pulling in the OTEL SDK.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Logger captures structured logging used throughout the runtime. Implementations
// typically delegate to Clue but the interface is intentionally small so tests can
// provide lightweight stubs.
type Logger interface {
	Debug(ctx context.Context, msg string, keyvals ...any)
	Info(ctx context.Context, msg string, keyvals ...any)
	Warn(ctx context.Context, msg string, keyvals ...any)
	Error(ctx context.Context, msg string, keyvals ...any)
}

// Metrics exposes counter and histogram helpers for runtime instrumentation.
type Metrics interface {
	IncCounter(name string, value float64, tags ...string)
	RecordTimer(name string, duration time.Duration, tags ...string)
	RecordGauge(name string, value float64, tags ...string)
}

// Tracer abstracts span creation so runtime code can remain agnostic of the
// underlying OpenTelemetry provider.
type Tracer interface {
	Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, Span)
	Span(ctx context.Context) Span
}

// Span represents an in-flight tracing span.
type Span interface {
	End(opts ...trace.SpanEndOption)
	AddEvent(name string, attrs ...any)
	SetStatus(code codes.Code, description string)
	RecordError(err error, opts ...trace.EventOption)
}
