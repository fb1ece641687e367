package log

import "context"

type ctxKey struct{}

// WithContext attaches l to ctx. httpmw.WithLogger stores the request-scoped
// logger (request_id, client_ip, route) here. A nil l leaves ctx unchanged.
func WithContext(ctx context.Context, l Logger) context.Context {
	if l == nil {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the Logger attached to ctx, or Nop.
func FromContext(ctx context.Context) Logger {
	return FromContextOr(ctx, Nop())
}

// FromContextOr returns the Logger attached to ctx, or fallback when there
// is none. Handlers use it to prefer request-scoped fields over their own
// component logger.
func FromContextOr(ctx context.Context, fallback Logger) Logger {
	if l, ok := ctx.Value(ctxKey{}).(Logger); ok {
		return l
	}
	return fallback
}
