// Package telemetry wires OpenTelemetry tracing for the modulekitd binary.
package telemetry

import (
	"context"
	"encoding/hex"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// LogSpanExporter writes finished spans to a slog logger at debug level,
// and at warn level for spans that ended with an error status.
type LogSpanExporter struct {
	logger *slog.Logger
}

var _ sdktrace.SpanExporter = (*LogSpanExporter)(nil)

// NewLogSpanExporter creates an exporter. logger may be nil.
func NewLogSpanExporter(logger *slog.Logger) *LogSpanExporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSpanExporter{logger: logger.With("component", "tracing")}
}

// ExportSpans logs each span. It never fails: losing a trace line must not
// affect the caller.
func (e *LogSpanExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	for _, span := range spans {
		sc := span.SpanContext()
		traceID := sc.TraceID()
		spanID := sc.SpanID()

		args := []any{
			"span", span.Name(),
			"trace_id", hex.EncodeToString(traceID[:]),
			"span_id", hex.EncodeToString(spanID[:]),
			"duration", span.EndTime().Sub(span.StartTime()),
		}
		args = append(args, attributeArgs(span.Attributes())...)

		level := slog.LevelDebug
		if span.Status().Code == codes.Error {
			level = slog.LevelWarn
			args = append(args, "status", span.Status().Description)
		}
		e.logger.Log(ctx, level, "span finished", args...)
	}
	return nil
}

// Shutdown is a no-op; the exporter holds no resources.
func (e *LogSpanExporter) Shutdown(ctx context.Context) error {
	return nil
}

func attributeArgs(attrs []attribute.KeyValue) []any {
	args := make([]any, 0, len(attrs)*2)
	for _, attr := range attrs {
		args = append(args, string(attr.Key), attr.Value.Emit())
	}
	return args
}

// NewTracerProvider returns a provider that exports spans synchronously to
// logger, tagged with serviceName.
func NewTracerProvider(serviceName string, logger *slog.Logger) *sdktrace.TracerProvider {
	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(attribute.String("service.name", serviceName)),
	)
	if err != nil {
		if logger != nil {
			logger.Warn("failed to create resource, using default", "error", err)
		}
		res = resource.Default()
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(NewLogSpanExporter(logger))),
		sdktrace.WithResource(res),
	)
}
