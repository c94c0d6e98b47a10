package middleware

import (
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	apperrors "github.com/henriquegoncalvesdev/credipesca/pkg/errors"
	"github.com/henriquegoncalvesdev/credipesca/pkg/httputil"
	"github.com/henriquegoncalvesdev/credipesca/pkg/ratelimit"
)

// RateLimitConfig configures the RateLimit middleware.
type RateLimitConfig struct {
	Limiter ratelimit.Limiter
	// Window is only used to phrase the 429 message.
	Window time.Duration
	// SkipPaths are exempt from limiting (health probes, metrics scrapes).
	SkipPaths []string
}

// TooManyRequests builds the 429 error for a limiting window.
func TooManyRequests(window time.Duration) *apperrors.AppError {
	minutes := int(math.Ceil(window.Minutes()))
	if minutes < 1 {
		minutes = 1
	}
	return apperrors.TooManyRequests(
		fmt.Sprintf("Muitas requisições. Tente novamente em %d minutos.", minutes),
		fmt.Sprintf("Too many requests. Try again in %d minutes.", minutes),
	)
}

// RateLimit limits requests per client IP. Limiter errors fail open.
func RateLimit(cfg RateLimitConfig, l *slog.Logger) func(http.Handler) http.Handler {
	skip := make(map[string]struct{}, len(cfg.SkipPaths))
	for _, p := range cfg.SkipPaths {
		skip[p] = struct{}{}
	}
	limited := TooManyRequests(cfg.Window)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := skip[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			ip := ClientIP(r)
			res, err := cfg.Limiter.Allow(r.Context(), ip)
			if err != nil {
				requestLogger(r, l).WarnContext(r.Context(), "rate limiter unavailable, allowing request",
					slog.String("ip", ip),
					slog.String("error", err.Error()),
				)
				next.ServeHTTP(w, r)
				return
			}

			reset := strconv.Itoa(int(math.Ceil(res.ResetAfter.Seconds())))
			w.Header().Set("RateLimit-Limit", strconv.Itoa(res.Limit))
			w.Header().Set("RateLimit-Remaining", strconv.Itoa(res.Remaining))
			w.Header().Set("RateLimit-Reset", reset)

			if !res.Allowed {
				requestLogger(r, l).WarnContext(r.Context(), "rate limit exceeded",
					slog.String("ip", ip),
					slog.String("path", r.URL.Path),
				)
				w.Header().Set("Retry-After", reset)
				httputil.WriteError(w, r, limited, l)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
