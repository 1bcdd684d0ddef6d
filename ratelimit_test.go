package oasql_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bjaus/oasql"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func hit(h http.Handler, remote string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/users", nil)
	req.RemoteAddr = remote
	for k, vs := range header {
		req.Header[k] = vs
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimit(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		rate        float64
		burst       int
		numReqs     int
		wantOK      int
		wantLimited int
		retryAfter  string
	}{
		"requests within rate succeed": {
			rate:    100,
			burst:   10,
			numReqs: 5,
			wantOK:  5,
		},
		"requests exceeding rate get 429": {
			rate:        1,
			burst:       1,
			numReqs:     5,
			wantOK:      1,
			wantLimited: 4,
			retryAfter:  "1",
		},
		"burst defaults to rate": {
			rate:        3,
			numReqs:     5,
			wantOK:      3,
			wantLimited: 2,
			retryAfter:  "1",
		},
		"slow rate waits longer": {
			rate:        0.1,
			numReqs:     2,
			wantOK:      1,
			wantLimited: 1,
			retryAfter:  "10",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			h := oasql.RateLimit(oasql.RateLimitConfig{Rate: tc.rate, Burst: tc.burst})(okHandler)

			var ok, limited int
			for range tc.numReqs {
				rec := hit(h, "10.0.0.1:5000", nil)
				switch rec.Code {
				case http.StatusOK:
					ok++
				case http.StatusTooManyRequests:
					limited++
					assert.Equal(t, tc.retryAfter, rec.Header().Get("Retry-After"))
				}
			}

			assert.Equal(t, tc.wantOK, ok, "expected OK responses")
			assert.Equal(t, tc.wantLimited, limited, "expected rate-limited responses")
		})
	}
}

func TestRateLimit_problemResponse(t *testing.T) {
	t.Parallel()

	h := oasql.RateLimit(oasql.RateLimitConfig{Rate: 1, Burst: 1})(okHandler)
	hit(h, "10.0.0.1:5000", nil)
	rec := hit(h, "10.0.0.1:5001", nil)

	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	var pd oasql.ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pd))
	assert.Equal(t, http.StatusTooManyRequests, pd.Status)
	assert.Equal(t, "rate limit exceeded", pd.Detail)
	assert.Equal(t, "/users", pd.Instance)
}

func TestRateLimit_custom_key_func(t *testing.T) {
	t.Parallel()

	h := oasql.RateLimit(oasql.RateLimitConfig{
		Rate:  1,
		Burst: 1,
		KeyFunc: func(r *http.Request) string {
			return r.Header.Get("X-User-ID")
		},
	})(okHandler)

	userA := http.Header{"X-User-Id": {"user-a"}}
	assert.Equal(t, http.StatusOK, hit(h, "10.0.0.1:1", userA).Code)
	assert.Equal(t, http.StatusTooManyRequests, hit(h, "10.0.0.2:1", userA).Code)
	assert.Equal(t, http.StatusOK, hit(h, "10.0.0.1:1", http.Header{"X-User-Id": {"user-b"}}).Code)
}

func TestRateLimit_default_key_ignores_port(t *testing.T) {
	t.Parallel()

	h := oasql.RateLimit(oasql.RateLimitConfig{Rate: 1, Burst: 1})(okHandler)

	assert.Equal(t, http.StatusOK, hit(h, "10.0.0.1:1000", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, hit(h, "10.0.0.1:2000", nil).Code)
	assert.Equal(t, http.StatusOK, hit(h, "10.0.0.2:1000", nil).Code)
	assert.Equal(t, http.StatusOK, hit(h, "10.0.0.3", nil).Code, "address without a port")
}

func TestRateLimit_cleanup_expired_limiters(t *testing.T) {
	t.Parallel()

	h := oasql.RateLimit(oasql.RateLimitConfig{
		Rate:            0.001,
		Burst:           1,
		CleanupInterval: time.Millisecond,
		MaxIdle:         time.Millisecond,
	})(okHandler)

	assert.Equal(t, http.StatusOK, hit(h, "10.0.0.1:1", nil).Code)
	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, http.StatusOK, hit(h, "10.0.0.1:1", nil).Code, "idle limiter was pruned")
}

func TestRateLimit_custom_on_limit(t *testing.T) {
	t.Parallel()

	h := oasql.RateLimit(oasql.RateLimitConfig{
		Rate:  1,
		Burst: 1,
		OnLimit: func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		},
	})(okHandler)

	assert.Equal(t, http.StatusOK, hit(h, "10.0.0.1:1", nil).Code)
	assert.Equal(t, http.StatusServiceUnavailable, hit(h, "10.0.0.1:1", nil).Code)
}
