package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/henriquegoncalvesdev/credipesca/pkg/ratelimit"
)

type fakeLimiter struct {
	res  ratelimit.Result
	err  error
	keys []string
}

func (f *fakeLimiter) Allow(_ context.Context, key string) (ratelimit.Result, error) {
	f.keys = append(f.keys, key)
	return f.res, f.err
}

func serveRateLimited(lim ratelimit.Limiter, path string) *httptest.ResponseRecorder {
	h := RateLimit(RateLimitConfig{
		Limiter:   lim,
		Window:    15 * time.Minute,
		SkipPaths: []string{"/health/live"},
	}, discardLogger())(okHandler())

	req := httptest.NewRequest(http.MethodPost, path, nil)
	req.RemoteAddr = "203.0.113.9:5555"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimit_Allowed_SetsHeaders(t *testing.T) {
	lim := &fakeLimiter{res: ratelimit.Result{Allowed: true, Limit: 100, Remaining: 99, ResetAfter: 899 * time.Second}}

	rec := serveRateLimited(lim, "/api/auth/login")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "100", rec.Header().Get("RateLimit-Limit"))
	assert.Equal(t, "99", rec.Header().Get("RateLimit-Remaining"))
	assert.Equal(t, "899", rec.Header().Get("RateLimit-Reset"))
	assert.Equal(t, []string{"203.0.113.9"}, lim.keys)
}

func TestRateLimit_Denied(t *testing.T) {
	lim := &fakeLimiter{res: ratelimit.Result{Allowed: false, Limit: 100, ResetAfter: 90 * time.Second}}

	rec := serveRateLimited(lim, "/api/auth/login")

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "90", rec.Header().Get("Retry-After"))
	resp := decodeEnvelope(t, rec)
	assert.False(t, resp.Success)
	assert.Equal(t, "Muitas requisições. Tente novamente em 15 minutos.", resp.Error.Message)
	assert.Equal(t, "Too many requests. Try again in 15 minutes.", resp.Error.MessageEN)
}

func TestRateLimit_LimiterErrorFailsOpen(t *testing.T) {
	lim := &fakeLimiter{err: errors.New("redis down")}

	rec := serveRateLimited(lim, "/api/auth/login")

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimit_SkipPaths(t *testing.T) {
	lim := &fakeLimiter{res: ratelimit.Result{Allowed: false}}

	rec := serveRateLimited(lim, "/health/live")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, lim.keys)
}

func TestTooManyRequests_RoundsWindowUp(t *testing.T) {
	err := TooManyRequests(90 * time.Second)
	assert.Equal(t, "Too many requests. Try again in 2 minutes.", err.MessageEN)
	assert.Equal(t, http.StatusTooManyRequests, err.Status)
}
