package observe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// collect reads all metrics from the manual reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// metricNames flattens the collected scope metrics into a name set.
func metricNames(rm metricdata.ResourceMetrics) map[string]bool {
	names := make(map[string]bool)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			names[m.Name] = true
		}
	}
	return names
}

func TestNewMetrics_InstrumentsRecord(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	ctx := context.Background()
	m.RecordPipelineRun(ctx, "done")
	m.RecordEmotionPrediction(ctx, "happy")
	m.RecordProviderRequest(ctx, "cohere", "responder", "ok")
	m.RecordProviderError(ctx, "whisper", "stt")
	m.STTDuration.Record(ctx, 0.42)
	m.PipelineDuration.Record(ctx, 1.2)

	names := metricNames(collect(t, reader))
	for _, want := range []string{
		"voxsense.pipeline.runs",
		"voxsense.emotion.predictions",
		"voxsense.provider.requests",
		"voxsense.provider.errors",
		"voxsense.stt.duration",
		"voxsense.pipeline.duration",
	} {
		if !names[want] {
			t.Errorf("metric %q not collected; got %v", want, names)
		}
	}
}

func TestDefaultMetrics_SameInstance(t *testing.T) {
	if DefaultMetrics() != DefaultMetrics() {
		t.Error("DefaultMetrics should return the same pointer")
	}
}

func TestCorrelationID_NoSpan(t *testing.T) {
	if got := CorrelationID(context.Background()); got != "" {
		t.Errorf("CorrelationID = %q, want empty without a span", got)
	}
}

func TestLogger_NoSpan(t *testing.T) {
	if Logger(context.Background()) == nil {
		t.Error("Logger must never return nil")
	}
}

func TestMiddleware(t *testing.T) {
	// Use a real SDK tracer so spans get valid trace IDs.
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider())
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	var sawTraceID string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawTraceID = CorrelationID(r.Context())
		w.WriteHeader(http.StatusTeapot)
	})

	rec := httptest.NewRecorder()
	Middleware(m)(inner).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/predict", nil))

	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d, want 418 passed through", rec.Code)
	}
	if sawTraceID == "" {
		t.Error("handler context should carry an active span")
	}
	if got := rec.Header().Get("X-Correlation-ID"); got != sawTraceID {
		t.Errorf("X-Correlation-ID = %q, want trace ID %q", got, sawTraceID)
	}

	names := metricNames(collect(t, reader))
	if !names["voxsense.http.request.duration"] {
		t.Errorf("request duration not recorded; got %v", names)
	}
	if !names["voxsense.active_requests"] {
		t.Errorf("active requests gauge not recorded; got %v", names)
	}
}
