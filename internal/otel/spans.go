package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Standard attribute keys for substrate spans.
var (
	AttrAgentID    = attribute.Key("hive.agent.id")
	AttrTaskID     = attribute.Key("hive.task.id")
	AttrStreamID   = attribute.Key("hive.stream.id")
	AttrPriority   = attribute.Key("hive.priority")
	AttrAgentKind  = attribute.Key("hive.agent.kind")
)

// StartSpan is a convenience wrapper that starts an internal span with common attributes.
func StartSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartConsumerSpan starts a span for one CoordinationBus event handled by
// the dispatcher loop.
func StartConsumerSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindConsumer),
	)
}

// StartProducerSpan starts a span for one streamed chunk broadcast.
func StartProducerSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindProducer),
	)
}
