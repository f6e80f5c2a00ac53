// Package ratelimit provides a single process-wide token-bucket limiter for
// HTTP middleware; objstored applies it to every route of its REST shell.
package ratelimit

import (
	"net/http"
	"sync"

	"golang.org/x/time/rate"
)

// Config tunes a Limiter.
type Config struct {
	RequestsPerSecond float64
	Burst             int
}

// DefaultConfig matches the teacher's ambient default: generous enough not to
// throttle normal traffic, tight enough to blunt a runaway client.
func DefaultConfig() Config {
	return Config{RequestsPerSecond: 100, Burst: 200}
}

// Limiter wraps golang.org/x/time/rate with safe defaults.
type Limiter struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	config  Config
}

// New builds a Limiter, filling in defaults for non-positive fields.
func New(cfg Config) *Limiter {
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 100
	}
	if cfg.Burst <= 0 {
		cfg.Burst = int(cfg.RequestsPerSecond * 2)
	}
	return &Limiter{limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst), config: cfg}
}

// Allow reports whether a request may proceed right now.
func (l *Limiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.limiter.Allow()
}

// Middleware rejects requests beyond the configured rate with 429.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow() {
			w.Header().Set("Retry-After", "1")
			http.Error(w, `{"error":"rate limit exceeded"}`, http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
