// Package tracing wires OpenTelemetry tracing for the aggregation pipeline.
// Each pipeline stage runs under its own span so stage durations show up in
// traces alongside the metrics.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// tracer is the global tracer instance for the aggregator.
var tracer = otel.Tracer("today-feed")

// Init installs a tracer provider and returns its shutdown function. Without
// an exporter configured the spans stay in-process; the provider still gives
// stage spans real span contexts for log correlation.
func Init() func(context.Context) error {
	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	tracer = otel.Tracer("today-feed")
	return tp.Shutdown
}

// GetTracer returns the global tracer for creating spans.
func GetTracer() trace.Tracer {
	return tracer
}

// StartStage opens a span for a named pipeline stage.
//
//	ctx, span := tracing.StartStage(ctx, "download-feeds")
//	defer span.End()
func StartStage(ctx context.Context, stage string) (context.Context, trace.Span) {
	return tracer.Start(ctx, stage)
}
