// Package telemetry defines the logging, metrics, and tracing seams used
// throughout the runtime. Components depend on the interfaces here rather
// than on a concrete backend so tests can run against no-op implementations
// while production wiring plugs in an OpenTelemetry-backed implementation.
package telemetry

import "context"

type (
	// Logger emits structured, leveled log lines. Key-value pairs are passed
	// as an alternating slice (key, value, key, value, ...) in the style of
	// log/slog, without requiring callers to depend on slog directly.
	Logger interface {
		Debug(ctx context.Context, msg string, kv ...any)
		Info(ctx context.Context, msg string, kv ...any)
		Warn(ctx context.Context, msg string, kv ...any)
		Error(ctx context.Context, msg string, kv ...any)
	}

	// Metrics records counters and durations. In this module only
	// cmd/agentrun records to it (run-level counters); the loop, pipeline,
	// and verifier do not.
	Metrics interface {
		IncCounter(ctx context.Context, name string, labels map[string]string)
		ObserveDuration(ctx context.Context, name string, labels map[string]string, seconds float64)
	}

	// Tracer opens spans around loop iterations, LLM calls, tool calls, and
	// worker/orchestrator executions (middleware hooks get no span of their
	// own) so production deployments can wire a real tracer while tests use
	// NoopTracer.
	Tracer interface {
		StartSpan(ctx context.Context, name string) (context.Context, func())
	}
)
