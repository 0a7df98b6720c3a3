package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "hexswarm"

// StartSubmitSpan starts a span covering a whole task submission.
func StartSubmitSpan(ctx context.Context, agent, taskType string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "task.submit",
		trace.WithAttributes(
			attribute.String("agent.name", agent),
			attribute.String("task.type", taskType),
		),
	)
}

// StartExecuteSpan starts a span for the executor call of one task.
func StartExecuteSpan(ctx context.Context, taskID, executor string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "task.execute",
		trace.WithAttributes(
			attribute.String("task.id", taskID),
			attribute.String("executor", executor),
		),
	)
}

// StartTransitionSpan starts a span for a persisted status transition. The
// caller adds task.status once the resulting status is known.
func StartTransitionSpan(ctx context.Context, taskID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "task.transition",
		trace.WithAttributes(attribute.String("task.id", taskID)),
	)
}
