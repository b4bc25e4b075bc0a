package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope name for the VoxSense tracer.
const tracerName = "github.com/voxsense/voxsense"

// StartSpan starts a span on the globally registered tracer provider and
// returns the updated context and span. The caller must call span.End().
//
// Pipeline stages name their spans "pipeline.<stage>" so a single request
// trace reads as transcribe → classify → generate under the HTTP root span.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name, opts...)
}

// Tracer returns the package-level [trace.Tracer] for VoxSense.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// CorrelationID returns the trace ID of the active span in ctx, or the empty
// string when there is none. It doubles as the value of the X-Correlation-ID
// response header so clients can quote it in bug reports.
func CorrelationID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns an [slog.Logger] carrying trace_id and span_id attributes
// from the active span in ctx, so every log line inside a request can be
// joined back to its trace. Without an active span the default logger is
// returned unchanged.
func Logger(ctx context.Context) *slog.Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return slog.Default()
	}
	return slog.Default().With(
		slog.String("trace_id", sc.TraceID().String()),
		slog.String("span_id", sc.SpanID().String()),
	)
}
