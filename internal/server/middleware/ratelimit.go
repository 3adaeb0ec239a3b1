package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/dmitrijs2005/fitcoach/internal/logging"
	"github.com/dmitrijs2005/fitcoach/internal/server/observability"
	"github.com/dmitrijs2005/fitcoach/internal/server/ratelimit"
)

// RateLimit applies limiter per client IP. Limiter errors let the request
// through; a rejected request gets 429 immediately with Retry-After.
func RateLimit(limiter ratelimit.Limiter, log logging.Logger, metrics *observability.Metrics) func(http.Handler) http.Handler {
	policy := limiter.Policy()
	log = log.With("module", "rate_limit", "policy", policy.Name)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			ip := ClientIP(r)

			d, err := limiter.Allow(ctx, ip)
			if err != nil {
				log.Warn(ctx, "rate limiter unavailable, allowing request", "error", err)
				metrics.RateLimitError(policy.Name)
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))

			if !d.Allowed {
				retry := d.RetryAfter(time.Now())
				h.Set("Retry-After", strconv.Itoa(int(retry/time.Second)))
				log.Info(ctx, "rate limit exceeded", "client_ip", ip)
				metrics.RateLimited(policy.Name)
				writeError(w, http.StatusTooManyRequests, msgTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
