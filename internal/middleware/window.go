package middleware

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mohammedemad618/amir-sub000/pkg/errors"
	"github.com/mohammedemad618/amir-sub000/pkg/logger"
	"github.com/mohammedemad618/amir-sub000/pkg/metrics"
)

// WindowStore counts hits per key in fixed windows. Implementations backed by a
// shared cache make the limit hold across instances.
type WindowStore interface {
	// Incr records one hit for key and returns the count in the current window
	// and the window's reset time
	Incr(ctx context.Context, key string, window time.Duration, now time.Time) (int, time.Time, error)
}

type windowEntry struct {
	count   int
	resetAt time.Time
}

// MemoryWindowStore keeps counters in process memory. Counters reset on
// restart and are not shared between instances.
type MemoryWindowStore struct {
	mu        sync.Mutex
	entries   map[string]*windowEntry
	done      chan struct{}
	closeOnce sync.Once
}

var _ WindowStore = (*MemoryWindowStore)(nil)

// NewMemoryWindowStore creates a store that sweeps expired windows every interval
func NewMemoryWindowStore(sweepInterval time.Duration) *MemoryWindowStore {
	s := &MemoryWindowStore{
		entries: make(map[string]*windowEntry),
		done:    make(chan struct{}),
	}
	if sweepInterval > 0 {
		go s.sweepRoutine(sweepInterval)
	}
	return s
}

func (s *MemoryWindowStore) Incr(_ context.Context, key string, window time.Duration, now time.Time) (int, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || !now.Before(e.resetAt) {
		e = &windowEntry{resetAt: now.Add(window)}
		s.entries[key] = e
	}
	e.count++
	return e.count, e.resetAt, nil
}

func (s *MemoryWindowStore) sweepRoutine(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep(time.Now())
		case <-s.done:
			return
		}
	}
}

func (s *MemoryWindowStore) sweep(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, e := range s.entries {
		if !now.Before(e.resetAt) {
			delete(s.entries, key)
		}
	}
}

// Len returns the number of tracked keys
func (s *MemoryWindowStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Close stops the sweeper
func (s *MemoryWindowStore) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// Decision is the outcome of a limiter check
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// FixedWindowLimiter caps hits per key within a fixed window
type FixedWindowLimiter struct {
	name   string
	store  WindowStore
	limit  int
	window time.Duration
	now    func() time.Time
	logger *zap.Logger
}

// NewFixedWindowLimiter allows limit hits per window per key
func NewFixedWindowLimiter(name string, store WindowStore, limit int, window time.Duration, log *zap.Logger) *FixedWindowLimiter {
	return &FixedWindowLimiter{
		name:   name,
		store:  store,
		limit:  limit,
		window: window,
		now:    time.Now,
		logger: logger.OrNop(log),
	}
}

// Allow records a hit for key
func (l *FixedWindowLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	now := l.now()
	count, resetAt, err := l.store.Incr(ctx, l.name+":"+key, l.window, now)
	if err != nil {
		return Decision{}, err
	}

	d := Decision{
		Allowed:   count <= l.limit,
		Limit:     l.limit,
		Remaining: max(l.limit-count, 0),
	}
	if !d.Allowed {
		d.RetryAfter = resetAt.Sub(now)
	}
	return d, nil
}

// Middleware rejects callers over the limit with 429 and Retry-After.
// A failing store lets the request through.
func (l *FixedWindowLimiter) Middleware(writeErr ErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ClientIP(r)

			d, err := l.Allow(r.Context(), ip)
			if err != nil {
				l.logger.Error("Rate limit store failed", zap.String("limiter", l.name), zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))

			if !d.Allowed {
				retry := int(math.Ceil(d.RetryAfter.Seconds()))
				if retry < 1 {
					retry = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retry))

				metrics.RecordRateLimited(l.name)
				l.logger.Warn("Rate limit exceeded",
					zap.String("limiter", l.name),
					zap.String("ip", ip),
					zap.String("path", r.URL.Path))

				writeErr(w, r, errors.ErrRateLimited)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
