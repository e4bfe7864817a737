package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mohammedemad618/amir-sub000/pkg/errors"
	"github.com/mohammedemad618/amir-sub000/pkg/logger"
	"github.com/mohammedemad618/amir-sub000/pkg/metrics"
)

// ErrorWriter renders an error response
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

// TokenBucket implements the token bucket algorithm
type TokenBucket struct {
	capacity   float64
	tokens     float64
	refillRate float64 // tokens per second
	lastRefill time.Time
	mu         sync.Mutex
}

// NewTokenBucket creates a full bucket
func NewTokenBucket(capacity int, refillRate float64) *TokenBucket {
	return &TokenBucket{
		capacity:   float64(capacity),
		tokens:     float64(capacity),
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

// Allow takes one token if available
func (tb *TokenBucket) Allow() bool {
	return tb.allowAt(time.Now())
}

func (tb *TokenBucket) allowAt(now time.Time) bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	elapsed := now.Sub(tb.lastRefill).Seconds()
	if elapsed > 0 {
		tb.tokens = min(tb.capacity, tb.tokens+elapsed*tb.refillRate)
		tb.lastRefill = now
	}

	if tb.tokens >= 1 {
		tb.tokens--
		return true
	}
	return false
}

// RateLimiter keeps one token bucket per key
type RateLimiter struct {
	limiters   map[string]*TokenBucket
	mu         sync.Mutex
	capacity   int
	refillRate float64
	logger     *zap.Logger

	cleanupInterval time.Duration
	idleTimeout     time.Duration
	lastAccess      map[string]time.Time
	done            chan struct{}
	closeOnce       sync.Once
}

// NewRateLimiter allows requests per duration per key, with bursts up to requests
func NewRateLimiter(requests int, duration time.Duration, log *zap.Logger) *RateLimiter {
	rl := &RateLimiter{
		limiters:        make(map[string]*TokenBucket),
		lastAccess:      make(map[string]time.Time),
		capacity:        requests,
		refillRate:      float64(requests) / duration.Seconds(),
		logger:          logger.OrNop(log),
		cleanupInterval: 5 * time.Minute,
		idleTimeout:     10 * time.Minute,
		done:            make(chan struct{}),
	}

	go rl.cleanupRoutine()

	return rl
}

// GetLimiter returns the bucket for key, creating it on first use
func (rl *RateLimiter) GetLimiter(key string) *TokenBucket {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	limiter, exists := rl.limiters[key]
	if !exists {
		limiter = NewTokenBucket(rl.capacity, rl.refillRate)
		rl.limiters[key] = limiter
	}

	rl.lastAccess[key] = time.Now()
	return limiter
}

// Allow reports whether a request for key may proceed
func (rl *RateLimiter) Allow(key string) bool {
	return rl.GetLimiter(key).Allow()
}

func (rl *RateLimiter) cleanupRoutine() {
	ticker := time.NewTicker(rl.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup(time.Now())
		case <-rl.done:
			return
		}
	}
}

// cleanup drops buckets idle for longer than idleTimeout
func (rl *RateLimiter) cleanup(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := now.Add(-rl.idleTimeout)
	var cleaned int

	for key, lastAccessed := range rl.lastAccess {
		if lastAccessed.Before(cutoff) {
			delete(rl.limiters, key)
			delete(rl.lastAccess, key)
			cleaned++
		}
	}

	if cleaned > 0 {
		rl.logger.Debug("Cleaned up rate limiters",
			zap.Int("cleaned_count", cleaned),
			zap.Int("remaining_count", len(rl.limiters)))
	}
}

// Close stops the cleanup routine
func (rl *RateLimiter) Close() {
	rl.closeOnce.Do(func() { close(rl.done) })
}

// HTTPRateLimitMiddleware limits requests per client IP
func HTTPRateLimitMiddleware(limiter *RateLimiter, writeErr ErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := ClientIP(r)

			if !limiter.Allow(key) {
				metrics.RecordRateLimited("http")
				limiter.logger.Warn("Rate limit exceeded",
					zap.String("ip", key),
					zap.String("user_agent", r.UserAgent()))

				w.Header().Set("Retry-After", "1")
				writeErr(w, r, errors.ErrRateLimited)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP extracts the client address, preferring proxy headers
func ClientIP(r *http.Request) string {
	headers := []string{
		"CF-Connecting-IP",
		"X-Forwarded-For",
		"X-Real-IP",
	}

	for _, header := range headers {
		ip := r.Header.Get(header)
		if ip == "" {
			continue
		}
		// X-Forwarded-For may hold a chain; the first hop is the client
		if header == "X-Forwarded-For" {
			ip, _, _ = strings.Cut(ip, ",")
		}
		if ip = strings.TrimSpace(ip); ip != "" {
			return ip
		}
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
