package httpmw

import (
	"net/http"

	"go.opentelemetry.io/otel/trace"
)

// DefaultTraceIDHeader carries the trace id back to the client.
const DefaultTraceIDHeader = "X-Trace-Id"

// TraceID echoes the active trace id on the response so a client reporting
// a failed or throttled login can be matched to its trace and log lines.
// Unsampled and missing spans set nothing.
func TraceID(header string) func(http.Handler) http.Handler {
	if header == "" {
		header = DefaultTraceIDHeader
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if sc := trace.SpanContextFromContext(r.Context()); sc.IsValid() && sc.IsSampled() {
				w.Header().Set(header, sc.TraceID().String())
			}
			next.ServeHTTP(w, r)
		})
	}
}
