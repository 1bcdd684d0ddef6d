package oasql

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/bjaus/oasql/pool"
)

// HealthChecker is the database side of the health endpoint. *pool.Pool
// implements it.
type HealthChecker interface {
	Ping(ctx context.Context) error
	Stats() pool.Stats
}

type health struct {
	Status string     `json:"status"`
	Error  string     `json:"error,omitempty"`
	Pool   pool.Stats `json:"pool"`
}

// ServeHealth registers a GET handler at the given path that pings the
// database. It answers 200 when the ping succeeds and 503 otherwise, with
// the pool counters in both cases. The ping error is logged, never sent.
func (r *Router) ServeHealth(pattern string, hc HealthChecker) {
	r.aux.HandleFunc("GET "+pattern, func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer cancel()

		h := health{Status: "ok"}
		status := http.StatusOK
		if err := hc.Ping(ctx); err != nil {
			h.Status = "unavailable"
			h.Error = "database unreachable"
			status = http.StatusServiceUnavailable
			r.logger.WarnContext(req.Context(), "health check failed",
				"error", err, "request_id", GetRequestID(req))
		}
		h.Pool = hc.Stats()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		//nolint:errcheck,errchkjson,gosec // best-effort after WriteHeader
		json.NewEncoder(w).Encode(h)
	})
}
