package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/henriquegoncalvesdev/credipesca/pkg/database"
	"github.com/henriquegoncalvesdev/credipesca/pkg/health"
	pkgkafka "github.com/henriquegoncalvesdev/credipesca/pkg/kafka"
	"github.com/henriquegoncalvesdev/credipesca/pkg/logger"
	"github.com/henriquegoncalvesdev/credipesca/pkg/ratelimit"
	"github.com/henriquegoncalvesdev/credipesca/pkg/tracing"
	"github.com/henriquegoncalvesdev/credipesca/services/auth/internal/auth"
	"github.com/henriquegoncalvesdev/credipesca/services/auth/internal/config"
	"github.com/henriquegoncalvesdev/credipesca/services/auth/internal/event"
	handler "github.com/henriquegoncalvesdev/credipesca/services/auth/internal/handler/http"
	"github.com/henriquegoncalvesdev/credipesca/services/auth/internal/repository/postgres"
	"github.com/henriquegoncalvesdev/credipesca/services/auth/internal/service"
	"github.com/henriquegoncalvesdev/credipesca/services/auth/migrations"
)

// ServiceName identifies the auth service in logs, metrics and traces.
const ServiceName = "auth"

// App wires together all dependencies and runs the auth service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	redis          *redis.Client
	producer       *pkgkafka.Producer
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
	stopCleanup    context.CancelFunc
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, log *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := tracing.InitTracer(ctx, cfg.Tracing(ServiceName))
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	// Steps below register their release funcs so a later failure unwinds
	// everything already built, newest first.
	var undo teardown
	fail := func(err error) (*App, error) {
		undo.run()
		return nil, err
	}
	undo.add(func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer flushCancel()
		_ = tracerShutdown(flushCtx)
	})

	// Initialize PostgreSQL connection pool.
	pool, err := database.NewPostgresPool(ctx, cfg.Postgres(), log)
	if err != nil {
		return fail(fmt.Errorf("connect to postgres: %w", err))
	}
	undo.add(pool.Close)
	log.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)
	if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, pool, ServiceName); err != nil {
		log.Warn("pool metrics not registered", logger.Err(err))
	}

	if cfg.MigrateOnStartup {
		if err := database.RunMigrations(ctx, pool, migrations.FS, log); err != nil {
			return fail(fmt.Errorf("run migrations: %w", err))
		}
		log.Info("database migrations completed")
	}

	if threshold := cfg.SlowQueryDuration(); threshold > 0 {
		database.SetSlowQueryLogging(threshold, log)
	}

	// Redis backs rate limiting only; the service starts without it.
	redisClient, err := database.NewRedisClient(ctx, cfg.Redis(), log)
	if err != nil {
		log.Warn("redis unavailable, rate limiting falls back to in-process limits",
			slog.String("addr", cfg.Redis().Addr()),
			logger.Err(err),
		)
	}
	undo.add(func() { _ = redisClient.Close() })

	cleanupCtx, stopCleanup := context.WithCancel(context.Background())
	undo.add(stopCleanup)
	var limiter ratelimit.Limiter
	if cfg.RateLimitEnabled {
		local := ratelimit.NewLocalLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow)
		local.StartCleanup(cleanupCtx)
		limiter = ratelimit.NewResilientLimiter(
			ratelimit.NewRedisLimiter(redisClient, "credipesca:ratelimit:"+ServiceName, cfg.RateLimitRequests, cfg.RateLimitWindow),
			local,
			ratelimit.DefaultBreakerConfig("redis-ratelimit"),
			log,
		)
	}

	// Initialize Kafka producer.
	producer := pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), log)
	undo.add(func() { _ = producer.Close() })
	log.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))

	// Build the dependency graph.
	hasher := auth.NewBcryptHasher(auth.WithCost(cfg.BcryptCost))
	codec, err := auth.NewTokenCodec(auth.TokenConfig{
		AccessSecret:  cfg.JWTAccessSecret,
		RefreshSecret: cfg.JWTRefreshSecret,
		Issuer:        cfg.JWTIssuer,
		AccessTTL:     cfg.AccessTTL(),
		RefreshTTL:    cfg.RefreshTTL(),
		ResetTTL:      cfg.ResetTTL(),
	})
	if err != nil {
		return fail(fmt.Errorf("build token codec: %w", err))
	}

	userRepo := postgres.NewUserRepository(pool)
	eventProducer := event.NewProducer(producer, cfg.FrontendURL, log)
	authService, err := service.NewAuthService(userRepo, hasher, codec, eventProducer, log)
	if err != nil {
		return fail(fmt.Errorf("build auth service: %w", err))
	}

	// Health checks.
	healthHandler := health.NewHandler(ServiceName)
	healthHandler.RegisterCritical("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthHandler.RegisterNonCritical("redis", func(ctx context.Context) error {
		return redisClient.Ping(ctx).Err()
	})
	healthHandler.RegisterNonCritical("kafka", func(ctx context.Context) error {
		return producer.Ping(ctx)
	})

	// HTTP router.
	router := handler.NewRouter(handler.RouterConfig{
		Service:           authService,
		Health:            healthHandler,
		Logger:            log,
		CORSOrigins:       cfg.CORSAllowedOrigins,
		RateLimiter:       limiter,
		RateLimitWindow:   cfg.RateLimitWindow,
		TrustProxyHeaders: cfg.TrustProxyHeaders,
		InternalCIDRs:     cfg.InternalCIDRs,
		EnablePprof:       cfg.EnablePprof,
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		cfg:            cfg,
		logger:         log,
		pool:           pool,
		redis:          redisClient,
		producer:       producer,
		httpServer:     httpServer,
		tracerShutdown: tracerShutdown,
		stopCleanup:    stopCleanup,
	}, nil
}

// Run starts the HTTP server and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		_ = a.Shutdown()
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components in the correct order:
// 1. HTTP server (drain in-flight requests)
// 2. Tracer (flush pending spans from drained requests)
// 3. Kafka producer
// 4. Redis client and limiter cleanup
// 5. PostgreSQL pool
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", logger.Err(err))
		errs = append(errs, err)
	}

	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", logger.Err(err))
			errs = append(errs, err)
		}
	}

	if err := a.producer.Close(); err != nil {
		a.logger.Error("kafka producer close error", logger.Err(err))
		errs = append(errs, err)
	}

	a.stopCleanup()
	if err := a.redis.Close(); err != nil {
		a.logger.Error("redis close error", logger.Err(err))
		errs = append(errs, err)
	}

	a.pool.Close()

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

// teardown holds release funcs and runs them in reverse registration order.
type teardown []func()

func (t *teardown) add(fn func()) {
	*t = append(*t, fn)
}

func (t *teardown) run() {
	for i := len(*t) - 1; i >= 0; i-- {
		(*t)[i]()
	}
	*t = nil
}
