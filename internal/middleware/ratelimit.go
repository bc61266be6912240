package middleware

import (
	"io"
	"net/http"

	"golang.org/x/time/rate"
)

// RateLimitConfig bounds request throughput with one shared token bucket.
type RateLimitConfig struct {
	Enabled bool

	// RPS is the sustained refill rate; Burst is the bucket depth.
	RPS   float64
	Burst int
}

// RateLimitMiddleware applies one token bucket to everything passing through
// the handler. The budget is shared across clients; per-client fairness is
// the federation router's concern.
func RateLimitMiddleware(cfg RateLimitConfig) func(http.Handler) http.Handler {
	if !cfg.Enabled || cfg.RPS <= 0 || cfg.Burst <= 0 {
		return passthrough
	}

	bucket := rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if bucket.Allow() {
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("Content-Type", "application/json")
			h.Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = io.WriteString(w, `{"error":"rate limit exceeded"}`)
		})
	}
}
