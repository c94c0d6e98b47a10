// Package ratelimit implements per-key request limiting backed by Redis with
// an in-process fallback guarded by a circuit breaker.
package ratelimit

import (
	"context"
	"time"
)

// Result describes the state of a key's window after a request was counted.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAfter time.Duration
}

// Limiter counts a request against key and reports whether it is allowed.
type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

func newResult(limit int, count int64, resetAfter time.Duration) Result {
	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:    count <= int64(limit),
		Limit:      limit,
		Remaining:  remaining,
		ResetAfter: resetAfter,
	}
}
