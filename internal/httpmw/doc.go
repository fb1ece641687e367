// Package httpmw provides HTTP middleware for the public listener.
//
// httpserver.NewHandler composes them outermost first: security headers,
// recover, request ID, client IP, OTEL tracing, trace id header, metrics,
// structured logging, then the chi router. The submission throttle wraps
// individual routes inside the router and reads the client IP stored here.
//
// The access log records method, route, status and timing. Form fields,
// user-agent and query strings stay out of it.
package httpmw
