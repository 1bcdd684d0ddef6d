package oasql

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
)

// Middleware wraps an http.Handler.
type Middleware func(next http.Handler) http.Handler

// Recovery returns middleware that turns a panic into a 500 problem detail
// naming the request id. The panic value and stack are logged to logger, or
// slog.Default when nil. http.ErrAbortHandler is passed through.
func Recovery(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				attrs := []slog.Attr{
					slog.Any("panic", rec),
					slog.String("stack", string(debug.Stack())),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("request_id", GetRequestID(r)),
				}
				if op := operationFrom(r.Context()); op != "" {
					attrs = append(attrs, slog.String("operation", op))
				}
				logger.LogAttrs(r.Context(), slog.LevelError, "panic recovered", attrs...)
				writeErrorResponse(w, r, fmt.Errorf("panic: %v", rec))
			}()
			next.ServeHTTP(w, r)
		})
	}
}
