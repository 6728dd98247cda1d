package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span attribute keys recorded along the answer pipeline.
const (
	KeyLang       = attribute.Key("handbook.lang")
	KeyProgram    = attribute.Key("handbook.program")
	KeyNamespaces = attribute.Key("handbook.namespaces")
	KeyTopK       = attribute.Key("handbook.top_k")
	KeyMatches    = attribute.Key("handbook.matches")
	KeySources    = attribute.Key("handbook.sources")
	KeyCacheHit   = attribute.Key("handbook.cache_hit")
)

// Start opens a span on the globally registered tracer named tracerName.
func Start(ctx context.Context, tracerName, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, spanName, trace.WithAttributes(attrs...))
}

// Annotate sets attrs on the span carried by ctx, if any.
func Annotate(ctx context.Context, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).SetAttributes(attrs...)
}

// Fail records err on the current span and flags the span as errored.
// A nil err leaves the span untouched.
func Fail(ctx context.Context, err error) {
	if err == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// TraceID returns the hex trace id of the span in ctx, or "" outside a trace.
func TraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}
