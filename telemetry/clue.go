package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"goa.design/clue/log"
)

type (
	// clueLogger wraps goa.design/clue/log for runtime logging.
	clueLogger struct{}

	// clueMetrics wraps OTEL metrics for runtime instrumentation.
	clueMetrics struct {
		meter metric.Meter
	}

	// clueTracer wraps OTEL tracing for runtime tracing.
	clueTracer struct {
		tracer trace.Tracer
	}

	clueSpan struct {
		span trace.Span
	}
)

// NewClueLogger constructs a Logger that delegates to goa.design/clue/log.
// The logger reads formatting and debug settings from the context (set via
// log.Context and log.WithFormat/log.WithDebug).
func NewClueLogger() Logger { return clueLogger{} }

// NewClueMetrics constructs a Metrics recorder backed by the global OTEL
// MeterProvider. Configure the provider via clue.ConfigureOpenTelemetry
// before invoking runtime methods.
func NewClueMetrics() Metrics {
	return &clueMetrics{meter: otel.Meter("goa.design/harness")}
}

// NewClueTracer constructs a Tracer backed by the global OTEL TracerProvider.
func NewClueTracer() Tracer {
	return &clueTracer{tracer: otel.Tracer("goa.design/harness")}
}

func (clueLogger) Debug(ctx context.Context, msg string, keyvals ...any) {
	log.Debug(ctx, append([]log.Fielder{log.KV{K: "msg", V: msg}}, kvToFielders(keyvals)...)...)
}

func (clueLogger) Info(ctx context.Context, msg string, keyvals ...any) {
	log.Info(ctx, append([]log.Fielder{log.KV{K: "msg", V: msg}}, kvToFielders(keyvals)...)...)
}

func (clueLogger) Warn(ctx context.Context, msg string, keyvals ...any) {
	fielders := []log.Fielder{log.KV{K: "msg", V: msg}, log.KV{K: "severity", V: "warning"}}
	log.Warn(ctx, append(fielders, kvToFielders(keyvals)...)...)
}

func (clueLogger) Error(ctx context.Context, msg string, keyvals ...any) {
	log.Error(ctx, nil, append([]log.Fielder{log.KV{K: "msg", V: msg}}, kvToFielders(keyvals)...)...)
}

func (m *clueMetrics) IncCounter(name string, value float64, tags ...string) {
	counter, err := m.meter.Float64Counter(name)
	if err != nil {
		return
	}
	counter.Add(context.Background(), value, metric.WithAttributes(tagsToAttrs(tags)...))
}

func (m *clueMetrics) RecordTimer(name string, duration time.Duration, tags ...string) {
	histogram, err := m.meter.Float64Histogram(name)
	if err != nil {
		return
	}
	histogram.Record(context.Background(), duration.Seconds(), metric.WithAttributes(tagsToAttrs(tags)...))
}

func (m *clueMetrics) RecordGauge(name string, value float64, tags ...string) {
	// OTEL has no synchronous gauge instrument; approximate with a histogram.
	histogram, err := m.meter.Float64Histogram(name + "_gauge")
	if err != nil {
		return
	}
	histogram.Record(context.Background(), value, metric.WithAttributes(tagsToAttrs(tags)...))
}

func (t *clueTracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, Span) {
	newCtx, span := t.tracer.Start(ctx, name, opts...)
	return newCtx, &clueSpan{span: span}
}

func (t *clueTracer) Span(ctx context.Context) Span {
	return &clueSpan{span: trace.SpanFromContext(ctx)}
}

func (s *clueSpan) End(opts ...trace.SpanEndOption) { s.span.End(opts...) }

func (s *clueSpan) AddEvent(name string, attrs ...any) {
	s.span.AddEvent(name, trace.WithAttributes(kvToAttrs(attrs)...))
}

func (s *clueSpan) SetStatus(code codes.Code, description string) {
	s.span.SetStatus(code, description)
}

func (s *clueSpan) RecordError(err error, opts ...trace.EventOption) {
	s.span.RecordError(err, opts...)
}

func kvToFielders(keyvals []any) []log.Fielder {
	var fielders []log.Fielder
	for i := 0; i < len(keyvals); i += 2 {
		k, ok := keyvals[i].(string)
		if !ok {
			continue
		}
		var v any
		if i+1 < len(keyvals) {
			v = keyvals[i+1]
		}
		fielders = append(fielders, log.KV{K: k, V: v})
	}
	return fielders
}

func tagsToAttrs(tags []string) []attribute.KeyValue {
	var attrs []attribute.KeyValue
	for i := 0; i < len(tags); i += 2 {
		v := ""
		if i+1 < len(tags) {
			v = tags[i+1]
		}
		attrs = append(attrs, attribute.String(tags[i], v))
	}
	return attrs
}

func kvToAttrs(keyvals []any) []attribute.KeyValue {
	var attrs []attribute.KeyValue
	for i := 0; i < len(keyvals); i += 2 {
		k, _ := keyvals[i].(string)
		var v any
		if i+1 < len(keyvals) {
			v = keyvals[i+1]
		}
		switch val := v.(type) {
		case string:
			attrs = append(attrs, attribute.String(k, val))
		case int:
			attrs = append(attrs, attribute.Int(k, val))
		case int64:
			attrs = append(attrs, attribute.Int64(k, val))
		case float64:
			attrs = append(attrs, attribute.Float64(k, val))
		case bool:
			attrs = append(attrs, attribute.Bool(k, val))
		default:
			attrs = append(attrs, attribute.String(k, ""))
		}
	}
	return attrs
}
