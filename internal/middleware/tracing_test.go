package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func setupTracing(t *testing.T) (*tracetest.SpanRecorder, func(http.Handler) http.Handler) {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	return recorder, Tracing("marketplace-api", otelhttp.WithTracerProvider(tp))
}

func TestTracing_NamesSpanAfterRoutePattern(t *testing.T) {
	recorder, mw := setupTracing(t)

	r := chi.NewRouter()
	r.Use(mw)
	r.Post("/api/v1/admin/payouts/{id}/review", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/admin/payouts/123/review", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "POST /api/v1/admin/payouts/{id}/review", spans[0].Name())
}

func TestTracing_UnroutedKeepsPath(t *testing.T) {
	recorder, mw := setupTracing(t)

	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusTeapot, w.Code)
	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "GET /health", spans[0].Name())
}

func TestTracing_PreservesResponse(t *testing.T) {
	_, mw := setupTracing(t)

	for _, status := range []int{http.StatusCreated, http.StatusConflict, http.StatusInternalServerError} {
		h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
			w.Write([]byte("ok"))
		}))
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
		assert.Equal(t, status, w.Code)
		assert.Equal(t, "ok", w.Body.String())
	}
}
