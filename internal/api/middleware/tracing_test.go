// SPDX-License-Identifier: MIT

package middleware

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/ManuGH/booksync/internal/telemetry"
)

// recordSpans installs an in-memory tracer provider for the test.
func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prevTP, prevProp := otel.GetTracerProvider(), otel.GetTextMapPropagator()
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() {
		_ = tp.Shutdown(t.Context())
		otel.SetTracerProvider(prevTP)
		otel.SetTextMapPropagator(prevProp)
	})
	return rec
}

func tracedRouter(status int) http.Handler {
	r := chi.NewRouter()
	r.Use(RequestID, Tracing("booksync-test"))
	h := func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(status) }
	r.Get("/healthz", h)
	r.Get("/readyz", h)
	r.Get("/metrics", h)
	r.Get("/ws", h)
	r.Get("/bookings/{id}", h)
	return r
}

func spanAttrs(s sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	out := make(map[attribute.Key]attribute.Value)
	for _, kv := range s.Attributes() {
		out[kv.Key] = kv.Value
	}
	return out
}

func TestTracing_SkipsHealthAndMetricsEndpoints(t *testing.T) {
	rec := recordSpans(t)
	h := tracedRouter(http.StatusOK)

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, w.Code, path)
	}
	assert.Empty(t, rec.Ended())
}

func TestTracing_SpanNamedAfterRoutePattern(t *testing.T) {
	rec := recordSpans(t)
	h := tracedRouter(http.StatusOK)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/bookings/bk-42", nil))

	spans := rec.Ended()
	require.Len(t, spans, 1)
	s := spans[0]
	assert.Equal(t, "GET /bookings/{id}", s.Name())
	assert.Equal(t, trace.SpanKindServer, s.SpanKind())
	assert.Equal(t, codes.Ok, s.Status().Code)

	attrs := spanAttrs(s)
	assert.Equal(t, "/bookings/{id}", attrs[telemetry.HTTPRouteKey].AsString())
	assert.Equal(t, "/bookings/bk-42", attrs[telemetry.HTTPURLKey].AsString())
	assert.Equal(t, int64(http.StatusOK), attrs[telemetry.HTTPStatusCodeKey].AsInt64())
}

func TestTracing_RedactsQueryValues(t *testing.T) {
	rec := recordSpans(t)
	h := tracedRouter(http.StatusOK)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ws?token=eyJhbGciOi.secret", nil))

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "/ws?", spanAttrs(spans[0])[telemetry.HTTPURLKey].AsString())
	for _, kv := range spans[0].Attributes() {
		assert.NotContains(t, kv.Value.Emit(), "secret", "attribute %s", kv.Key)
	}
}

func TestTracing_RecordsRequestID(t *testing.T) {
	rec := recordSpans(t)
	h := tracedRouter(http.StatusOK)

	req := httptest.NewRequest(http.MethodGet, "/bookings/bk-1", nil)
	req.Header.Set(HeaderRequestID, "req-abc")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "req-abc", spanAttrs(spans[0])["http.request_id"].AsString())
}

func TestTracing_StatusMapping(t *testing.T) {
	tests := []struct {
		status int
		want   codes.Code
	}{
		{http.StatusOK, codes.Ok},
		{http.StatusConflict, codes.Ok},
		{http.StatusBadGateway, codes.Error},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			rec := recordSpans(t)
			w := httptest.NewRecorder()
			tracedRouter(tt.status).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/bookings/bk-1", nil))

			spans := rec.Ended()
			require.Len(t, spans, 1)
			assert.Equal(t, tt.want, spans[0].Status().Code)
		})
	}
}

func TestTracing_ContinuesUpstreamTrace(t *testing.T) {
	rec := recordSpans(t)
	h := tracedRouter(http.StatusOK)

	req := httptest.NewRequest(http.MethodGet, "/bookings/bk-1", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	h.ServeHTTP(httptest.NewRecorder(), req)

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", spans[0].SpanContext().TraceID().String())
	assert.Equal(t, "00f067aa0ba902b7", spans[0].Parent().SpanID().String())
}

type hijackableRecorder struct {
	*httptest.ResponseRecorder
}

func (hijackableRecorder) Flush() {}

func (hijackableRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return nil, nil, errors.New("not implemented")
}

// Websocket upgrades need Hijacker through the wrapper.
func TestTracing_PreservesHijackAndFlush(t *testing.T) {
	recordSpans(t)

	var flusher, hijacker bool
	h := Tracing("booksync-test")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, flusher = w.(http.Flusher)
		_, hijacker = w.(http.Hijacker)
		w.WriteHeader(http.StatusOK)
	}))

	w := hijackableRecorder{ResponseRecorder: httptest.NewRecorder()}
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ws", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, flusher, "http.Flusher")
	assert.True(t, hijacker, "http.Hijacker")
}
