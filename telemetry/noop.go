package telemetry

import "context"

type (
	// NoopLogger discards every log line. It is the default for tests and for
	// callers that have not wired a backend.
	NoopLogger struct{}
	// NoopMetrics discards every recorded measurement.
	NoopMetrics struct{}
	// NoopTracer opens spans that do nothing and cost nothing.
	NoopTracer struct{}
)

func (NoopLogger) Debug(context.Context, string, ...any) {}
func (NoopLogger) Info(context.Context, string, ...any)  {}
func (NoopLogger) Warn(context.Context, string, ...any)  {}
func (NoopLogger) Error(context.Context, string, ...any) {}

func (NoopMetrics) IncCounter(context.Context, string, map[string]string)                 {}
func (NoopMetrics) ObserveDuration(context.Context, string, map[string]string, float64) {}

func (NoopTracer) StartSpan(ctx context.Context, _ string) (context.Context, func()) {
	return ctx, func() {}
}
