package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker/v2"
)

var (
	breakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ratelimit_breaker_state",
			Help: "State of the rate limiter circuit breaker (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	fallbackTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratelimit_fallback_total",
			Help: "Requests decided by the in-process limiter because the primary was unavailable",
		},
		[]string{"name"},
	)
)

// BreakerConfig configures the circuit breaker around the primary limiter.
type BreakerConfig struct {
	Name         string
	MaxRequests  uint32
	Interval     time.Duration
	Timeout      time.Duration
	FailureRatio float64
	MinRequests  uint32
}

// DefaultBreakerConfig returns defaults suited to a Redis round trip per request.
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:         name,
		MaxRequests:  1,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		FailureRatio: 0.5,
		MinRequests:  5,
	}
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// ResilientLimiter consults primary through a circuit breaker and falls back
// to the in-process limiter when primary fails or the breaker is open, so an
// outage of the shared store never blocks traffic.
type ResilientLimiter struct {
	primary  Limiter
	fallback Limiter
	breaker  *gobreaker.CircuitBreaker[Result]
	logger   *slog.Logger
	name     string
}

// NewResilientLimiter wraps primary with a breaker and a fallback limiter.
func NewResilientLimiter(primary, fallback Limiter, cfg BreakerConfig, logger *slog.Logger) *ResilientLimiter {
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("rate limiter breaker state change",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
			breakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	}

	breakerState.WithLabelValues(cfg.Name).Set(0)

	return &ResilientLimiter{
		primary:  primary,
		fallback: fallback,
		breaker:  gobreaker.NewCircuitBreaker[Result](settings),
		logger:   logger,
		name:     cfg.Name,
	}
}

// Allow implements Limiter. It only returns an error when the fallback does.
func (l *ResilientLimiter) Allow(ctx context.Context, key string) (Result, error) {
	res, err := l.breaker.Execute(func() (Result, error) {
		return l.primary.Allow(ctx, key)
	})
	if err == nil {
		return res, nil
	}

	fallbackTotal.WithLabelValues(l.name).Inc()
	l.logger.DebugContext(ctx, "rate limiter using fallback",
		slog.String("breaker", l.name),
		slog.String("error", err.Error()),
	)
	return l.fallback.Allow(ctx, key)
}

// State reports the current breaker state.
func (l *ResilientLimiter) State() gobreaker.State {
	return l.breaker.State()
}
