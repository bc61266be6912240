package serverapp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"

	"ispyb-graphql/internal/config"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestWrapHTTPHandlerNamesRootSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithSpanProcessor(recorder),
	)
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(previous)
		_ = tp.Shutdown(context.Background())
	})

	cfg := &config.Config{Telemetry: config.TelemetryConfig{Enabled: true}}
	h := wrapHTTPHandler(cfg, testLogger(), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNoContent)
	}

	var names []string
	for _, span := range recorder.Ended() {
		names = append(names, span.Name())
	}
	if !slices.Contains(names, "GET /health") {
		t.Fatalf("recorded spans %v, want one named GET /health", names)
	}
}

func TestSpanRouteBoundsCardinality(t *testing.T) {
	cases := map[string]string{
		"/":          "/",
		"/health":    "/health",
		"/metrics":   "/metrics",
		"/users/123": "/*",
		"":           "/*",
	}
	for input, want := range cases {
		if got := spanRoute(input); got != want {
			t.Errorf("spanRoute(%q) = %q, want %q", input, got, want)
		}
	}
}
