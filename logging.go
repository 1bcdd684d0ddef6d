package oasql

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

type accessKey struct{}

// accessEntry collects what the access log reports about one request.
// The router fills in the operation once the request is matched.
type accessEntry struct {
	http.ResponseWriter
	status    int
	size      int
	operation string
}

func (e *accessEntry) WriteHeader(code int) {
	e.status = code
	e.ResponseWriter.WriteHeader(code)
}

func (e *accessEntry) Write(b []byte) (int, error) {
	n, err := e.ResponseWriter.Write(b)
	e.size += n
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (e *accessEntry) Unwrap() http.ResponseWriter {
	return e.ResponseWriter
}

func (e *accessEntry) level() slog.Level {
	if e.status >= http.StatusInternalServerError {
		return slog.LevelWarn
	}
	return slog.LevelInfo
}

// noteOperation records the matched operation on the access log entry.
func noteOperation(ctx context.Context, id string) {
	if e, ok := ctx.Value(accessKey{}).(*accessEntry); ok {
		e.operation = id
	}
}

// operationFrom returns the operation noted for the request, or "".
func operationFrom(ctx context.Context) string {
	if e, ok := ctx.Value(accessKey{}).(*accessEntry); ok {
		return e.operation
	}
	return ""
}

// Logger returns middleware that writes one access log line per request:
// method, path, status, latency, size, remote address, and when known the
// operation id and request id. Server errors are logged at warn level.
func Logger(logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			entry := &accessEntry{ResponseWriter: w, status: http.StatusOK}
			r = r.WithContext(context.WithValue(r.Context(), accessKey{}, entry))

			next.ServeHTTP(entry, r)

			attrs := make([]slog.Attr, 0, 8)
			attrs = append(attrs,
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", entry.status),
				slog.Duration("latency", time.Since(start)),
				slog.Int("size", entry.size),
				slog.String("remote", r.RemoteAddr),
			)
			if entry.operation != "" {
				attrs = append(attrs, slog.String("operation", entry.operation))
			}
			if id := GetRequestID(r); id != "" {
				attrs = append(attrs, slog.String("request_id", id))
			}
			logger.LogAttrs(r.Context(), entry.level(), "request", attrs...)
		})
	}
}
