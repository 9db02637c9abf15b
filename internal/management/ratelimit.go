package management

import (
	"encoding/json"
	"net"
	"net/http"
	"sync"

	"golang.org/x/time/rate"
)

// perClientLimiter is a token-bucket rate limiter keyed by client IP,
// ported from internal/api/middleware/rate_limit.go's RateLimiter and
// narrowed to the one thing the management mutation surface needs:
// per-client request throttling, not the teacher's broader per-route
// auth/compression/CORS stack.
type perClientLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func newPerClientLimiter(requestsPerMinute, burst int) *perClientLimiter {
	return &perClientLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(float64(requestsPerMinute) / 60.0),
		burst:    burst,
	}
}

func (l *perClientLimiter) allow(clientID string) bool {
	l.mu.Lock()
	limiter, ok := l.limiters[clientID]
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters[clientID] = limiter
	}
	l.mu.Unlock()
	return limiter.Allow()
}

// RateLimitMiddleware throttles requests per client IP, returning 429 when
// a client exceeds requestsPerMinute. Intended for mounting on the
// management mutation subrouter only — the dynamic data endpoints have no
// such throttle.
func RateLimitMiddleware(requestsPerMinute, burst int) func(http.Handler) http.Handler {
	limiter := newPerClientLimiter(requestsPerMinute, burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientID := clientIP(r)
			if !limiter.allow(clientID) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "rate limit exceeded"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
