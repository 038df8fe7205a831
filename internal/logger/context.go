package logger

import (
	"context"
	"log/slog"
)

// ctxKey is unexported so no other package can collide with or overwrite the
// logger stored in a context.
type ctxKey struct{}

// WithContext stores a request-scoped logger in the context. The HTTP
// middleware is the usual writer; handlers read it back via FromContext.
func WithContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// FromContext returns the logger carried by the context, or slog.Default()
// when none was stored. Callers can always log through the result without a
// nil check.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}
