package ratelimit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// scriptHook answers script commands in-process so no Redis server is needed.
type scriptHook struct {
	reply []interface{}
	err   error
	keys  []string
}

func (h *scriptHook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return nil, errors.New("dial disabled in tests")
	}
}

func (h *scriptHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		args := cmd.Args()
		if len(args) > 3 {
			if k, ok := args[3].(string); ok {
				h.keys = append(h.keys, k)
			}
		}
		c, ok := cmd.(*redis.Cmd)
		if !ok {
			return errors.New("unexpected command type")
		}
		if h.err != nil {
			c.SetErr(h.err)
			return h.err
		}
		c.SetVal(h.reply)
		return nil
	}
}

func (h *scriptHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func newHookedClient(h *scriptHook) *redis.Client {
	c := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0", MaxRetries: -1})
	c.AddHook(h)
	return c
}

// --- RedisLimiter ---

func TestRedisLimiter_UnderLimit(t *testing.T) {
	hook := &scriptHook{reply: []interface{}{int64(3), int64(600_000)}}
	client := newHookedClient(hook)
	defer client.Close()

	l := NewRedisLimiter(client, "rl:", 100, 15*time.Minute)
	res, err := l.Allow(context.Background(), "203.0.113.9")

	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 100, res.Limit)
	assert.Equal(t, 97, res.Remaining)
	assert.Equal(t, 10*time.Minute, res.ResetAfter)
	assert.Contains(t, hook.keys, "rl:203.0.113.9")
}

func TestRedisLimiter_OverLimit(t *testing.T) {
	hook := &scriptHook{reply: []interface{}{int64(101), int64(1_000)}}
	client := newHookedClient(hook)
	defer client.Close()

	l := NewRedisLimiter(client, "rl:", 100, 15*time.Minute)
	res, err := l.Allow(context.Background(), "ip")

	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.Equal(t, time.Second, res.ResetAfter)
}

func TestRedisLimiter_MissingTTLFallsBackToWindow(t *testing.T) {
	hook := &scriptHook{reply: []interface{}{int64(1), int64(-1)}}
	client := newHookedClient(hook)
	defer client.Close()

	l := NewRedisLimiter(client, "rl:", 100, 15*time.Minute)
	res, err := l.Allow(context.Background(), "ip")

	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, res.ResetAfter)
}

func TestRedisLimiter_Error(t *testing.T) {
	hook := &scriptHook{err: errors.New("connection refused")}
	client := newHookedClient(hook)
	defer client.Close()

	l := NewRedisLimiter(client, "rl:", 100, 15*time.Minute)
	_, err := l.Allow(context.Background(), "ip")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis fixed window")
}

// --- LocalLimiter ---

func TestLocalLimiter_AllowsUpToLimitThenDenies(t *testing.T) {
	l := NewLocalLimiter(3, time.Minute)
	fixed := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return fixed }

	for i := 0; i < 3; i++ {
		res, err := l.Allow(context.Background(), "a")
		require.NoError(t, err)
		assert.True(t, res.Allowed, "request %d", i+1)
	}

	res, _ := l.Allow(context.Background(), "a")
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.Greater(t, res.ResetAfter, time.Duration(0))

	other, _ := l.Allow(context.Background(), "b")
	assert.True(t, other.Allowed, "keys are limited independently")
}

func TestLocalLimiter_Refills(t *testing.T) {
	l := NewLocalLimiter(2, time.Minute)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	l.Allow(context.Background(), "a") //nolint:errcheck
	l.Allow(context.Background(), "a") //nolint:errcheck
	res, _ := l.Allow(context.Background(), "a")
	require.False(t, res.Allowed)

	now = now.Add(time.Minute)
	res, _ = l.Allow(context.Background(), "a")
	assert.True(t, res.Allowed)
}

func TestLocalLimiter_Cleanup(t *testing.T) {
	l := NewLocalLimiter(5, time.Minute)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	l.Allow(context.Background(), "stale") //nolint:errcheck
	now = now.Add(2 * time.Minute)
	l.Allow(context.Background(), "fresh") //nolint:errcheck

	l.Cleanup()
	assert.Equal(t, 1, l.size())
}

// --- ResilientLimiter ---

type stubLimiter struct {
	res   Result
	err   error
	calls int
}

func (s *stubLimiter) Allow(context.Context, string) (Result, error) {
	s.calls++
	return s.res, s.err
}

func TestResilientLimiter_UsesPrimaryWhenHealthy(t *testing.T) {
	primary := &stubLimiter{res: Result{Allowed: true, Limit: 100, Remaining: 99}}
	fallback := &stubLimiter{}

	l := NewResilientLimiter(primary, fallback, DefaultBreakerConfig("test-healthy"), discardLogger())
	res, err := l.Allow(context.Background(), "ip")

	require.NoError(t, err)
	assert.Equal(t, 99, res.Remaining)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 0, fallback.calls)
}

func TestResilientLimiter_FallsBackOnError(t *testing.T) {
	primary := &stubLimiter{err: errors.New("redis down")}
	fallback := &stubLimiter{res: Result{Allowed: true, Limit: 100, Remaining: 42}}

	l := NewResilientLimiter(primary, fallback, DefaultBreakerConfig("test-fallback"), discardLogger())
	res, err := l.Allow(context.Background(), "ip")

	require.NoError(t, err)
	assert.Equal(t, 42, res.Remaining)
	assert.Equal(t, 1, fallback.calls)
}

func TestResilientLimiter_OpensAndSkipsPrimary(t *testing.T) {
	primary := &stubLimiter{err: errors.New("redis down")}
	fallback := &stubLimiter{res: Result{Allowed: true}}

	cfg := DefaultBreakerConfig("test-open")
	cfg.MinRequests = 2
	l := NewResilientLimiter(primary, fallback, cfg, discardLogger())

	for i := 0; i < 2; i++ {
		_, err := l.Allow(context.Background(), "ip")
		require.NoError(t, err)
	}
	require.Equal(t, gobreaker.StateOpen, l.State())

	_, err := l.Allow(context.Background(), "ip")
	require.NoError(t, err)
	assert.Equal(t, 2, primary.calls, "primary must not be called while the breaker is open")
	assert.Equal(t, 3, fallback.calls)
}

func TestResilientLimiter_UnreachableRedis(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	l := NewResilientLimiter(
		NewRedisLimiter(client, "rl:", 100, 15*time.Minute),
		NewLocalLimiter(100, 15*time.Minute),
		DefaultBreakerConfig("test-unreachable"),
		discardLogger(),
	)

	res, err := l.Allow(context.Background(), "ip")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 100, res.Limit)
}
