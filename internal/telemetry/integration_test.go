package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

const incomingTraceID = "4bf92f3577b34da6a3ce929d0e0e4736"

// Not parallel: installs the global tracer provider and propagator.
func TestMiddleware_RecordsUploadSpans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	r := mux.NewRouter()
	r.Use(Middleware())
	r.HandleFunc("/voicenotes/{filename}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	cases := []struct {
		name        string
		traceparent string
	}{
		{name: "new trace"},
		{name: "joins caller trace", traceparent: "00-" + incomingTraceID + "-00f067aa0ba902b7-01"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			exporter.Reset()

			req := httptest.NewRequest(http.MethodGet, "/voicenotes/voicenote_1_deadbeef.webm", nil)
			if tc.traceparent != "" {
				req.Header.Set("traceparent", tc.traceparent)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusNotFound, rec.Code)

			require.NoError(t, tp.ForceFlush(context.Background()))
			spans := exporter.GetSpans()
			require.Len(t, spans, 1)

			span := spans[0]
			assert.Contains(t, span.Name, "/voicenotes/{filename}", "span is named after the route template")
			assert.True(t, span.SpanContext.TraceID().IsValid())
			if tc.traceparent != "" {
				assert.Equal(t, incomingTraceID, span.SpanContext.TraceID().String())
			}
		})
	}
}
