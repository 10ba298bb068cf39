package http

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/artpar/costboard/adapters/metrics"
	"github.com/artpar/costboard/domain/ratelimit"
	"github.com/artpar/costboard/ports"
)

// RateLimiter decides whether a caller may make another request.
type RateLimiter interface {
	Allow(key string, now time.Time) ratelimit.Decision
}

// NewRateLimitMiddleware limits requests per caller. Callers are keyed by
// API key when one is presented, otherwise by remote address.
func NewRateLimitMiddleware(limiter RateLimiter, clock ports.Clock, m *metrics.Collector) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			now := clock.Now()
			d := limiter.Allow(callerKey(r), now)

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))

			if !d.Allowed {
				m.RequestLimited()
				retry := int(math.Ceil(d.RetryAfter(now).Seconds()))
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests, retry later")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func callerKey(r *http.Request) string {
	if key := extractAPIKey(r); key != "" {
		return "key:" + key
	}
	return "addr:" + r.RemoteAddr
}
