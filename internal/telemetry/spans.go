package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "sanjeevni"

// StartHandleSpan starts a span for one handled user message.
func StartHandleSpan(ctx context.Context, conversationID string, maxDepth int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "agent.handle",
		trace.WithAttributes(
			attribute.String("conversation.id", conversationID),
			attribute.Int("agent.max_depth", maxDepth),
		),
	)
}

// StartCompleteSpan starts a span for a model call.
func StartCompleteSpan(ctx context.Context, provider, model string, depth int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "llm.complete",
		trace.WithAttributes(
			attribute.String("llm.provider", provider),
			attribute.String("llm.model", model),
			attribute.Int("agent.depth", depth),
		),
	)
}

// StartToolSpan starts a span for a tool execution.
func StartToolSpan(ctx context.Context, tool string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "tool.execute",
		trace.WithAttributes(attribute.String("tool.name", tool)),
	)
}
