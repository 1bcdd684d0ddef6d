package oasql

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// RequestIDConfig configures the RequestID middleware.
type RequestIDConfig struct {
	Header    string        // default: "X-Request-ID"
	Generator func() string // default: random UUID
	MaxLength int           // longer incoming ids are replaced; default: 128
}

// RequestID returns middleware that tags every request with an id. A client
// supplied id is kept when it is printable ASCII and not longer than
// MaxLength; otherwise a new one is generated. The id is echoed in the
// response header and appears in logs and in 5xx problem details.
func RequestID(cfg ...RequestIDConfig) Middleware {
	c := RequestIDConfig{
		Header:    "X-Request-ID",
		Generator: uuid.NewString,
		MaxLength: 128,
	}
	if len(cfg) > 0 {
		if cfg[0].Header != "" {
			c.Header = cfg[0].Header
		}
		if cfg[0].Generator != nil {
			c.Generator = cfg[0].Generator
		}
		if cfg[0].MaxLength > 0 {
			c.MaxLength = cfg[0].MaxLength
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(c.Header)
			if !acceptableID(id, c.MaxLength) {
				id = c.Generator()
			}
			w.Header().Set(c.Header, id)
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
		})
	}
}

func acceptableID(id string, maxLen int) bool {
	if id == "" || len(id) > maxLen {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < 0x21 || id[i] > 0x7e {
			return false
		}
	}
	return true
}
