package observe

import (
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// statusRecorder wraps [http.ResponseWriter] to capture the status code and
// response size written by the downstream handler.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	bytes      int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(p []byte) (int, error) {
	n, err := r.ResponseWriter.Write(p)
	r.bytes += n
	return n, err
}

// Middleware wraps an [http.Handler] with the full per-request observability
// chain: W3C trace context extraction, a server span, the X-Correlation-ID
// response header, in-flight and duration metrics, completion logging, and
// panic recovery (a panicking handler yields a 500, never a dead worker).
//
// Metric path attributes use the matched route pattern, not the raw URL, so
// label cardinality stays bounded no matter what clients request.
func Middleware(m *Metrics) func(http.Handler) http.Handler {
	prop := propagation.TraceContext{}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ctx := prop.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			ctx, span := StartSpan(ctx, "HTTP "+r.Method+" "+r.URL.Path,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					semconv.HTTPRequestMethodKey.String(r.Method),
					semconv.URLPath(r.URL.Path),
				),
			)
			defer span.End()

			if cid := CorrelationID(ctx); cid != "" {
				w.Header().Set("X-Correlation-ID", cid)
			}
			prop.Inject(ctx, propagation.HeaderCarrier(w.Header()))

			r = r.WithContext(ctx)
			rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			m.ActiveRequests.Add(ctx, 1)
			defer func() {
				m.ActiveRequests.Add(ctx, -1)

				if p := recover(); p != nil {
					rec.statusCode = http.StatusInternalServerError
					http.Error(w, "internal server error", http.StatusInternalServerError)
					Logger(ctx).Error("handler panicked",
						"panic", p,
						"path", r.URL.Path,
						"stack", string(debug.Stack()),
					)
				}

				// Prefer the matched pattern for the metric label; fall back
				// to the raw path for unmatched routes.
				path := r.Pattern
				if path == "" {
					path = r.URL.Path
				}
				duration := time.Since(start)
				m.HTTPRequestDuration.Record(ctx, duration.Seconds(),
					metric.WithAttributes(
						attribute.String("method", r.Method),
						attribute.String("path", path),
					),
				)
				span.SetAttributes(semconv.HTTPResponseStatusCode(rec.statusCode))

				Logger(ctx).LogAttrs(ctx, slog.LevelInfo, "request completed",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.Int("status", rec.statusCode),
					slog.Int("bytes", rec.bytes),
					slog.Duration("duration", duration),
				)
			}()

			next.ServeHTTP(rec, r)
		})
	}
}
