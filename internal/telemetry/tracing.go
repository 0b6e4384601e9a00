// Package telemetry configures OpenTelemetry tracing for the Unraid MCP
// server.
//
// Spans cover the two outbound paths: GraphQL HTTP requests and the
// WebSocket subscription lifecycle. Custom span attributes use the
// `unraid_mcp.` prefix.
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

const tracerName = "github.com/nkissick-del/unraid-mcp"

// Tracer returns the package-level tracer.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// InitTraceProvider initialises the OTel trace provider with an OTLP gRPC
// exporter. If endpoint is empty, tracing is disabled (noop provider is
// used). Returns a shutdown function that must be called on application
// exit.
func InitTraceProvider(ctx context.Context, endpoint string, version string) (func(context.Context) error, error) {
	if endpoint == "" {
		// No-op: tracing disabled
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(), // TLS configurable via env (OTEL_EXPORTER_OTLP_INSECURE)
	)
	if err != nil {
		return nil, fmt.Errorf("create OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithHost(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String("unraid-mcp"),
			semconv.ServiceVersionKey.String(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}

// --- Span helpers ---

// StartQuerySpan creates a span for one GraphQL HTTP request.
func StartQuerySpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "graphql.query",
		trace.WithAttributes(
			attribute.String("unraid_mcp.operation", operation),
		),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

// EndQuerySpan ends the query span, recording the error if the request
// failed.
func EndQuerySpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// StartToolSpan creates a span for one MCP tool invocation.
func StartToolSpan(ctx context.Context, tool string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "mcp.tool_call",
		trace.WithAttributes(
			attribute.String("unraid_mcp.tool", tool),
		),
		trace.WithSpanKind(trace.SpanKindServer),
	)
}

// EndToolSpan ends the tool span, recording the error if the call failed.
func EndToolSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// StartStreamSpan creates a span covering the lifetime of one log stream.
func StartStreamSpan(ctx context.Context, path string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "subscribe.log_stream",
		trace.WithAttributes(
			attribute.String("unraid_mcp.log_path", path),
		),
	)
}

// EndStreamSpan ends the stream span with delivery counts.
func EndStreamSpan(span trace.Span, events uint64, dropped uint64, reason string) {
	span.SetAttributes(
		attribute.Int64("unraid_mcp.events", int64(events)),
		attribute.Int64("unraid_mcp.dropped", int64(dropped)),
		attribute.String("unraid_mcp.end_reason", reason),
	)
	span.End()
}
