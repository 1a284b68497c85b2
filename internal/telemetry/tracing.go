package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// NewTracerProvider builds an in-process tracer provider for pipeline
// and outbox spans. No wire exporter is configured (the config surface
// has no collector endpoint); spans still carry timing through
// in-process span processors an embedder may attach, and the provider
// gives every component a single place to hang one later.
func NewTracerProvider(serviceName, version string) *sdktrace.TracerProvider {
	res := sdkresource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion(version),
	)
	return sdktrace.NewTracerProvider(sdktrace.WithResource(res))
}

// StartSpan opens a span from tracer, tolerating a nil tracer so
// callers don't need to branch on whether tracing is wired.
func StartSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}
