package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	apperrors "github.com/henriquegoncalvesdev/credipesca/pkg/errors"
	"github.com/henriquegoncalvesdev/credipesca/pkg/health"
	"github.com/henriquegoncalvesdev/credipesca/pkg/httputil"
	"github.com/henriquegoncalvesdev/credipesca/pkg/middleware"
	"github.com/henriquegoncalvesdev/credipesca/pkg/ratelimit"
	"github.com/henriquegoncalvesdev/credipesca/services/auth/internal/domain"
	"github.com/henriquegoncalvesdev/credipesca/services/auth/internal/service"
)

const serviceName = "auth"

// RouterConfig carries the dependencies of the HTTP surface.
type RouterConfig struct {
	Service *service.AuthService
	Health  *health.Handler
	Logger  *slog.Logger

	CORSOrigins []string

	// RateLimiter is applied per client IP when non-nil.
	RateLimiter     ratelimit.Limiter
	RateLimitWindow time.Duration

	// TrustProxyHeaders takes the client IP from X-Forwarded-For or
	// X-Real-IP. Only enable it behind a proxy that overwrites those headers.
	TrustProxyHeaders bool

	InternalCIDRs []string
	EnablePprof   bool
}

// NewRouter creates a chi router with all auth service routes registered.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	r := chi.NewRouter()

	probePaths := []string{"/health", "/health/live", "/health/ready", "/metrics"}

	// Global middleware
	if cfg.TrustProxyHeaders {
		r.Use(chimw.RealIP)
	}
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.Tracing(serviceName, probePaths...))
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.PrometheusMetrics(serviceName))
	r.Use(middleware.CORS(middleware.DefaultCORSConfig(cfg.CORSOrigins...)))
	if cfg.RateLimiter != nil {
		r.Use(middleware.RateLimit(middleware.RateLimitConfig{
			Limiter:   cfg.RateLimiter,
			Window:    cfg.RateLimitWindow,
			SkipPaths: probePaths,
		}, logger))
	}

	r.NotFound(notFound)
	r.MethodNotAllowed(methodNotAllowed)

	// Health check endpoints
	r.Get("/health", cfg.Health.LivenessHandler())
	r.Get("/health/live", cfg.Health.LivenessHandler())
	r.Get("/health/ready", cfg.Health.ReadinessHandler())

	middleware.RegisterInternal(r, cfg.InternalCIDRs, logger, promhttp.Handler(), cfg.EnablePprof)

	gate := middleware.Auth(Authenticator(cfg.Service), logger)
	authHandler := NewAuthHandler(cfg.Service, logger)
	userHandler := NewUserHandler(cfg.Service, logger)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.NoStore)
		r.Use(chimw.RequestSize(maxBodyBytes))
		r.Use(ContentTypeJSON)

		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)
			r.Post("/refresh", authHandler.Refresh)
			r.Post("/logout", authHandler.Logout)
			r.Post("/forgot-password", authHandler.ForgotPassword)
			r.Post("/reset-password", authHandler.ResetPassword)

			r.Group(func(r chi.Router) {
				r.Use(gate)
				r.Post("/change-password", authHandler.ChangePassword)
				r.Get("/me", authHandler.Me)
			})
		})

		r.Route("/users", func(r chi.Router) {
			r.Use(gate)

			r.With(middleware.RequireRole(domain.RoleManager, domain.RoleAdmin)).Get("/", userHandler.List)
			r.With(middleware.RequireRole(domain.RoleManager, domain.RoleAdmin)).Get("/{id}", userHandler.Get)
			r.With(middleware.RequireRole(domain.RoleAdmin)).Patch("/{id}/status", userHandler.SetStatus)
		})
	})

	return r
}

func notFound(w http.ResponseWriter, r *http.Request) {
	httputil.WriteError(w, r,
		apperrors.NotFound("Rota não encontrada", "Route not found"),
		nil)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	httputil.WriteError(w, r,
		apperrors.New("METHOD_NOT_ALLOWED", http.StatusMethodNotAllowed, "Método não permitido", "Method not allowed", apperrors.ErrInvalidInput),
		nil)
}
