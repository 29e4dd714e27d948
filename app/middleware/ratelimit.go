// Package middleware holds HTTP middleware shared across route groups.
package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/mkravets/contacts-api/internal/api"
)

// RateLimit describes a token bucket: Requests per Window, with Burst tokens
// available immediately.
type RateLimit struct {
	Requests int
	Window   time.Duration
	Burst    int
}

// AuthLimit guards credential endpoints against brute force.
var AuthLimit = RateLimit{Requests: 5, Window: time.Minute, Burst: 5}

// DefaultLimit covers the authenticated API surface.
var DefaultLimit = RateLimit{Requests: 60, Window: time.Minute, Burst: 60}

type ipLimiter struct {
	limiters    sync.Map // map[string]*rate.Limiter
	rate        rate.Limit
	burst       int
	mu          sync.Mutex
	lastCleanup time.Time
}

func (l *ipLimiter) get(key string) *rate.Limiter {
	if limiter, ok := l.limiters.Load(key); ok {
		return limiter.(*rate.Limiter)
	}
	limiter := rate.NewLimiter(l.rate, l.burst)
	actual, _ := l.limiters.LoadOrStore(key, limiter)
	l.maybeCleanup()
	return actual.(*rate.Limiter)
}

// maybeCleanup drops idle buckets so ephemeral client IPs do not accumulate
// forever. A limiter holding its full burst has not been touched recently.
func (l *ipLimiter) maybeCleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if time.Since(l.lastCleanup) < 5*time.Minute {
		return
	}
	l.lastCleanup = time.Now()

	l.limiters.Range(func(key, value any) bool {
		if value.(*rate.Limiter).Tokens() >= float64(l.burst) {
			l.limiters.Delete(key)
		}
		return true
	})
}

func clientIP(r *http.Request) string {
	// chi's RealIP middleware has already folded X-Forwarded-For / X-Real-IP
	// into RemoteAddr by the time we run.
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// RateLimitByIP limits each client IP to cfg.Requests per cfg.Window and
// answers 429 with a Retry-After header once the bucket is empty.
func RateLimitByIP(cfg RateLimit, logger *slog.Logger) func(http.Handler) http.Handler {
	l := &ipLimiter{
		rate:        rate.Limit(float64(cfg.Requests) / cfg.Window.Seconds()),
		burst:       cfg.Burst,
		lastCleanup: time.Now(),
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := clientIP(r)
			limiter := l.get(key)

			if !limiter.Allow() {
				reservation := limiter.Reserve()
				delay := reservation.Delay()
				reservation.Cancel()

				retryAfter := int(delay.Seconds())
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))

				logger.WarnContext(r.Context(), "rate limit exceeded",
					slog.String("ip", key),
					slog.String("path", r.URL.Path),
					slog.Int("retry_after", retryAfter),
				)

				api.ErrorResponse(w, r, http.StatusTooManyRequests, "Too many requests. Please try again later.")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
