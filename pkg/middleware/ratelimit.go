package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/pariksha-io/pariksha/pkg/audit"
	"github.com/pariksha-io/pariksha/pkg/httputil"
	"github.com/pariksha-io/pariksha/pkg/observability"
	"github.com/pariksha-io/pariksha/pkg/storage"
)

const loginRateLimitPrefix = "ratelimit:login:"

// Decision is the outcome of a rate limit check
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// LoginRateLimiter throttles login attempts per client IP with a Redis
// fixed window, so the limit holds across instances. It fails open: when
// Redis is down or not configured, logins proceed and the error is logged.
// Locking out every user because the cache is unreachable would be a worse
// failure than admitting a brute-force window.
type LoginRateLimiter struct {
	redis   *storage.RedisClient
	limit   int
	window  time.Duration
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewLoginRateLimiter creates a login rate limiter. redis may be nil, in
// which case every check allows.
func NewLoginRateLimiter(redis *storage.RedisClient, limit int, window time.Duration, logger *observability.Logger, metrics *observability.Metrics) *LoginRateLimiter {
	if limit <= 0 {
		limit = 10
	}
	if window <= 0 {
		window = time.Minute
	}
	return &LoginRateLimiter{
		redis:   redis,
		limit:   limit,
		window:  window,
		logger:  logger,
		metrics: metrics,
	}
}

// Allow checks and consumes one attempt for the given IP
func (l *LoginRateLimiter) Allow(ctx context.Context, ip string) Decision {
	if l.redis == nil {
		return Decision{Allowed: true, Remaining: l.limit}
	}

	key := loginRateLimitPrefix + ip
	count, err := l.redis.Incr(ctx, key)
	if err != nil {
		l.logger.WithError(err).Warn("rate limit check failed, allowing request")
		return Decision{Allowed: true, Remaining: l.limit}
	}

	// First attempt in the window starts the clock. A key left without a
	// TTL (crash between Incr and Expire) would count forever, so re-arm
	// when the TTL is missing.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.window); err != nil {
			l.logger.WithError(err).Warn("failed to set rate limit window")
		}
	} else if ttl, err := l.redis.TTL(ctx, key); err == nil && ttl < 0 {
		if err := l.redis.Expire(ctx, key, l.window); err != nil {
			l.logger.WithError(err).Warn("failed to set rate limit window")
		}
	}

	if count > int64(l.limit) {
		retryAfter := l.window
		if ttl, err := l.redis.TTL(ctx, key); err == nil && ttl > 0 {
			retryAfter = ttl
		}
		return Decision{Allowed: false, RetryAfter: retryAfter}
	}

	remaining := l.limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Allowed: true, Remaining: remaining}
}

// Handler wraps a handler (the login endpoint) with the rate limit
func (l *LoginRateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		decision := l.Allow(r.Context(), audit.ClientIP(r))

		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", l.limit))
		if !decision.Allowed {
			if l.metrics != nil {
				l.metrics.RateLimitedTotal.WithLabelValues(RoutePattern(r)).Inc()
			}
			retryAfter := int(decision.RetryAfter.Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
			w.Header().Set("X-RateLimit-Remaining", "0")
			httputil.WriteTooManyRequests(w, "too many login attempts, try again later")
			return
		}

		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", decision.Remaining))
		next.ServeHTTP(w, r)
	})
}
