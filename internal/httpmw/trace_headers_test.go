package httpmw

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel/trace"
)

func spanCtxRequest(flags trace.TraceFlags) *http.Request {
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10},
		SpanID:     trace.SpanID{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08},
		TraceFlags: flags,
	})
	r := httptest.NewRequest(http.MethodPost, "/api/login", nil)
	return r.WithContext(trace.ContextWithSpanContext(r.Context(), sc))
}

func TestTraceID_Sampled(t *testing.T) {
	h := TraceID("")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, spanCtxRequest(trace.FlagsSampled))
	if got, want := w.Header().Get(DefaultTraceIDHeader), "0102030405060708090a0b0c0d0e0f10"; got != want {
		t.Fatalf("%s = %q, want %q", DefaultTraceIDHeader, got, want)
	}
}

func TestTraceID_UnsampledOrMissing(t *testing.T) {
	h := TraceID("X-Req-Trace")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, spanCtxRequest(0))
	if got := w.Header().Get("X-Req-Trace"); got != "" {
		t.Fatalf("unsampled span set header %q", got)
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/login", nil))
	if got := w.Header().Get("X-Req-Trace"); got != "" {
		t.Fatalf("no span set header %q", got)
	}
}
