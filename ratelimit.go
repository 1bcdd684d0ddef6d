package oasql

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig configures the RateLimit middleware.
type RateLimitConfig struct {
	Rate            float64                                      // tokens per second per key
	Burst           int                                          // bucket size; defaults to Rate, at least 1
	KeyFunc         func(r *http.Request) string                 // default: client IP without port
	OnLimit         func(w http.ResponseWriter, r *http.Request) // default: 429 problem detail
	CleanupInterval time.Duration                                // default: 1m
	MaxIdle         time.Duration                                // default: 5m
}

// RateLimit returns middleware that gives every key its own token bucket.
// Rejected requests carry a Retry-After header with the whole seconds until
// the next token.
func RateLimit(cfg RateLimitConfig) Middleware {
	key := cfg.KeyFunc
	if key == nil {
		key = clientIP
	}
	onLimit := cfg.OnLimit
	if onLimit == nil {
		onLimit = func(w http.ResponseWriter, r *http.Request) {
			writeErrorResponse(w, r, Error(http.StatusTooManyRequests, "rate limit exceeded"))
		}
	}

	buckets := &bucketSet{
		limit:   rate.Limit(cfg.Rate),
		burst:   cfg.Burst,
		every:   orDefault(cfg.CleanupInterval, time.Minute),
		maxIdle: orDefault(cfg.MaxIdle, 5*time.Minute),
		byKey:   make(map[string]*bucket),
	}
	if buckets.burst <= 0 {
		buckets.burst = max(1, int(cfg.Rate))
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if wait, ok := buckets.take(key(r), time.Now()); !ok {
				w.Header().Set("Retry-After", wait)
				onLimit(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// bucketSet holds one limiter per key and prunes idle ones lazily.
type bucketSet struct {
	limit   rate.Limit
	burst   int
	every   time.Duration
	maxIdle time.Duration

	mu     sync.Mutex
	byKey  map[string]*bucket
	pruned time.Time
}

// take spends a token for key. When none is available it returns false and
// the Retry-After value.
func (s *bucketSet) take(key string, now time.Time) (string, bool) {
	lim := s.get(key, now)

	res := lim.ReserveN(now, 1)
	if !res.OK() {
		return "1", false
	}
	delay := res.DelayFrom(now)
	if delay <= 0 {
		return "", true
	}
	res.CancelAt(now)
	secs := max(1, int(math.Ceil(delay.Seconds())))
	return strconv.Itoa(secs), false
}

func (s *bucketSet) get(key string, now time.Time) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	if now.Sub(s.pruned) >= s.every {
		for k, b := range s.byKey {
			if now.Sub(b.lastSeen) > s.maxIdle {
				delete(s.byKey, k)
			}
		}
		s.pruned = now
	}

	b, ok := s.byKey[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(s.limit, s.burst)}
		s.byKey[key] = b
	}
	b.lastSeen = now
	return b.limiter
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
