// Package telemetry configures tracing and metrics for the movie ratings client.
//
// Custom span attributes use the `movieratings.` prefix.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/jrsteele09/movie-ratings"

// Tracer returns the package-level tracer.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// InitTraceProvider installs an OTLP gRPC exporting trace provider.
// If endpoint is empty, tracing stays on the noop provider.
// The returned shutdown function flushes pending spans.
func InitTraceProvider(ctx context.Context, endpoint, serviceName string) (func(context.Context) error, error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithHost(),
		resource.WithAttributes(semconv.ServiceNameKey.String(serviceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// StartBackendSpan creates a client span for a call to the hosted backend.
func StartBackendSpan(ctx context.Context, service, operation string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, service+"."+operation,
		trace.WithAttributes(
			attribute.String("movieratings.backend.service", service),
			attribute.String("movieratings.backend.operation", operation),
		),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

// StartResolveSpan creates the span of one role resolution.
func StartResolveSpan(ctx context.Context, identityID string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "auth.resolve_role",
		trace.WithAttributes(attribute.String("movieratings.identity_id", identityID)),
	)
}

// EndSpan records err on span, if any, and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
