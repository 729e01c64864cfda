// Package observability wires the otel SDK and the otelslog bridge for the
// demo harness (cmd): a tracer provider for the refresh-trigger
// interceptor's otelgrpc stats handler to report spans against, and a
// slog.Handler that forwards structured log records through the same otel
// pipeline so logs and traces share exporters in a real deployment.
package observability

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"go.opentelemetry.io/otel/sdk/resource"
)

// Shutdown releases provider resources on process exit.
type Shutdown func(context.Context) error

// NewTracerProvider builds an SDK tracer provider tagged with serviceName,
// registers it as the global provider (so otelgrpc's stats handler picks
// it up without explicit wiring), and returns a shutdown func.
func NewTracerProvider(serviceName string) (*sdktrace.TracerProvider, Shutdown, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(semconv.ServiceName(serviceName)),
	)
	if err != nil {
		return nil, nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)

	return tp, tp.Shutdown, nil
}

// NewLogger builds a *slog.Logger that forwards records through the
// otelslog bridge under the given instrumentation scope name, with
// fallback text output also available via slog's multi-handler
// composition at the call site if desired.
func NewLogger(scopeName string) *slog.Logger {
	return slog.New(otelslog.NewHandler(scopeName))
}
