package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "magi"

// StartDecisionSpan starts the span covering one full council run.
func StartDecisionSpan(ctx context.Context, traceID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "decision",
		trace.WithAttributes(
			attribute.String("decision.trace_id", traceID),
		),
	)
}

