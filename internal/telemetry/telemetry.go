// Package telemetry emits the producer-kind tracing spans spec.md §6
// requires around a successful scheduler upsert. No call site in the
// retrieval pack creates spans directly (see DESIGN.md), so this follows
// otel's documented public API rather than a specific example.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/jobrepeat/scheduler/internal/scheduler"

// StartProducerSpan starts a producer-kind span named "add <queue>.<jobName>"
// and returns it alongside the derived context. Callers must always call
// the returned end func, typically via defer.
func StartProducerSpan(ctx context.Context, queue, jobName string) (context.Context, trace.Span) {
	tracer := otel.Tracer(instrumentationName)
	return tracer.Start(ctx, "add "+queue+"."+jobName, trace.WithSpanKind(trace.SpanKindProducer))
}

// SetUpsertAttributes stamps the two attributes spec.md §6 names on a
// successful upsert.
func SetUpsertAttributes(span trace.Span, schedulerID, jobID string) {
	span.SetAttributes(
		attribute.String("scheduler.id", schedulerID),
		attribute.String("job.id", jobID),
	)
}
