package rtelemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// StartSpan starts a span named spanName under the tracer tracerName. When
// tracing is disabled the global TracerProvider is otel's no-op
// implementation, so this is always safe to call unconditionally from the
// request-handling and persistence-flush call sites it instruments.
func StartSpan(ctx context.Context, tracerName, spanName string) (context.Context, oteltrace.Span) {
	return otel.Tracer(tracerName).Start(ctx, spanName)
}
