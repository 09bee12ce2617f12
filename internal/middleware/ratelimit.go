package middleware

import (
	"net/http"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter keys one *rate.Limiter per caller identity, created lazily
// on first use — the same per-key limiter-map idiom the kernel's own
// permission.Store uses for per-plugin network rate limiting.
type RateLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex
	rate     rate.Limit
	burst    int
}

// NewRateLimiter returns a RateLimiter admitting r requests/sec with the
// given burst, per key.
func NewRateLimiter(r rate.Limit, b int) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     r,
		burst:    b,
	}
}

// GetLimiter returns (creating if absent) the limiter for key.
func (rl *RateLimiter) GetLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if limiter, exists := rl.limiters[key]; exists {
		return limiter
	}

	limiter := rate.NewLimiter(rl.rate, rl.burst)
	rl.limiters[key] = limiter
	return limiter
}

// RateLimitMiddleware rejects requests beyond rl's budget for the key
// keyFunc derives from each request.
func RateLimitMiddleware(rl *RateLimiter, keyFunc func(r *http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFunc(r)
			limiter := rl.GetLimiter(key)

			if !limiter.Allow() {
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// IPBasedKey derives a rate-limit key from the caller's IP, preferring
// X-Forwarded-For when present.
func IPBasedKey(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return forwarded
	}
	return r.RemoteAddr
}

// SubjectBasedKey derives a rate-limit key from the authenticated bearer
// subject, falling back to IP for unauthenticated requests.
func SubjectBasedKey(r *http.Request) string {
	if subject, ok := SubjectFromContext(r.Context()); ok {
		return subject
	}
	return IPBasedKey(r)
}

// DefaultRateLimiter admits 10 req/s with a burst of 20 per key.
var DefaultRateLimiter = NewRateLimiter(rate.Limit(10), 20)
