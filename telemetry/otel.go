package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// otelBundle wires Logger/Metrics/Tracer onto an OpenTelemetry SDK. Logging
// is intentionally minimal (otel's own log bridge is still young relative to
// its trace/metric APIs): log lines are recorded as span events on the
// active span when one is present, and dropped otherwise.
type otelBundle struct {
	tracer trace.Tracer
	meter  metric.Meter

	counters map[string]metric.Int64Counter
	hists    map[string]metric.Float64Histogram
}

// NewOtel returns a Logger+Metrics+Tracer bundle backed by the given
// OpenTelemetry tracer and meter. Pass the same tracer/meter used elsewhere
// in the process so spans and instruments share a provider.
func NewOtel(tracer trace.Tracer, meter metric.Meter) (Logger, Metrics, Tracer) {
	b := &otelBundle{
		tracer:   tracer,
		meter:    meter,
		counters: make(map[string]metric.Int64Counter),
		hists:    make(map[string]metric.Float64Histogram),
	}
	return b, b, b
}

func kvAttrs(kv []any) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		attrs = append(attrs, attribute.String(key, toString(kv[i+1])))
	}
	return attrs
}

func mapAttrs(labels map[string]string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(labels))
	for k, v := range labels {
		attrs = append(attrs, attribute.String(k, v))
	}
	return attrs
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case error:
		return t.Error()
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprintf("%v", t)
	}
}

func (b *otelBundle) log(ctx context.Context, level, msg string, kv ...any) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	attrs := append([]attribute.KeyValue{attribute.String("level", level)}, kvAttrs(kv)...)
	span.AddEvent(msg, trace.WithAttributes(attrs...))
}

func (b *otelBundle) Debug(ctx context.Context, msg string, kv ...any) {
	b.log(ctx, "debug", msg, kv...)
}
func (b *otelBundle) Info(ctx context.Context, msg string, kv ...any) {
	b.log(ctx, "info", msg, kv...)
}
func (b *otelBundle) Warn(ctx context.Context, msg string, kv ...any) {
	b.log(ctx, "warn", msg, kv...)
}
func (b *otelBundle) Error(ctx context.Context, msg string, kv ...any) {
	b.log(ctx, "error", msg, kv...)
}

func (b *otelBundle) IncCounter(ctx context.Context, name string, labels map[string]string) {
	c, ok := b.counters[name]
	if !ok {
		var err error
		c, err = b.meter.Int64Counter(name)
		if err != nil {
			return
		}
		b.counters[name] = c
	}
	c.Add(ctx, 1, metric.WithAttributes(mapAttrs(labels)...))
}

func (b *otelBundle) ObserveDuration(ctx context.Context, name string, labels map[string]string, seconds float64) {
	h, ok := b.hists[name]
	if !ok {
		var err error
		h, err = b.meter.Float64Histogram(name)
		if err != nil {
			return
		}
		b.hists[name] = h
	}
	h.Record(ctx, seconds, metric.WithAttributes(mapAttrs(labels)...))
}

func (b *otelBundle) StartSpan(ctx context.Context, name string) (context.Context, func()) {
	spanCtx, span := b.tracer.Start(ctx, name)
	return spanCtx, func() { span.End() }
}
