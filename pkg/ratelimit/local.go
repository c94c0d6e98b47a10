package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// LocalLimiter keeps a token bucket per key in process memory. The bucket
// holds limit tokens and refills at limit per window, which approximates the
// fixed window used by RedisLimiter.
type LocalLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    int
	window   time.Duration
	every    rate.Limit
	now      func() time.Time
}

// NewLocalLimiter creates an in-memory limiter. Call Cleanup periodically (or
// run StartCleanup) to evict idle keys.
func NewLocalLimiter(limit int, window time.Duration) *LocalLimiter {
	return &LocalLimiter{
		visitors: make(map[string]*visitor),
		limit:    limit,
		window:   window,
		every:    rate.Limit(float64(limit) / window.Seconds()),
		now:      time.Now,
	}
}

// Allow implements Limiter. It never returns an error.
func (l *LocalLimiter) Allow(_ context.Context, key string) (Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.every, l.limit)}
		l.visitors[key] = v
	}
	v.lastSeen = now

	allowed := v.limiter.AllowN(now, 1)
	tokens := v.limiter.TokensAt(now)

	res := Result{
		Allowed:   allowed,
		Limit:     l.limit,
		Remaining: int(math.Max(0, math.Floor(tokens))),
	}
	if missing := float64(l.limit) - tokens; missing > 0 && l.every > 0 {
		res.ResetAfter = time.Duration(missing / float64(l.every) * float64(time.Second))
	}
	return res, nil
}

// Cleanup evicts keys idle for longer than one window.
func (l *LocalLimiter) Cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for key, v := range l.visitors {
		if now.Sub(v.lastSeen) > l.window {
			delete(l.visitors, key)
		}
	}
}

// StartCleanup runs Cleanup every window until ctx is cancelled.
func (l *LocalLimiter) StartCleanup(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(l.window)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.Cleanup()
			}
		}
	}()
}

func (l *LocalLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.visitors)
}
