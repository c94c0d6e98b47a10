package config

import (
	"errors"
	"fmt"
	"time"

	pkgconfig "github.com/henriquegoncalvesdev/credipesca/pkg/config"
	"github.com/henriquegoncalvesdev/credipesca/pkg/database"
	"github.com/henriquegoncalvesdev/credipesca/pkg/tracing"
)

const (
	devAccessSecret  = "change-this-access-secret"
	devRefreshSecret = "change-this-refresh-secret"

	minSecretLength = 32
	minBcryptCost   = 12
	maxBcryptCost   = 31
)

// Config holds all configuration for the auth service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort int `env:"AUTH_HTTP_PORT" envDefault:"3001"`

	// PostgreSQL
	PostgresHost       string        `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort       int           `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser       string        `env:"POSTGRES_USER" envDefault:"credipesca"`
	PostgresPass       string        `env:"POSTGRES_PASSWORD" envDefault:"credipesca_secret"`
	PostgresDB         string        `env:"AUTH_DB_NAME" envDefault:"credipesca_auth"`
	PostgresSSL        string        `env:"POSTGRES_SSL_MODE" envDefault:"disable"`
	DBMaxConns         int32         `env:"DB_MAX_CONNS" envDefault:"25"`
	DBMinConns         int32         `env:"DB_MIN_CONNS" envDefault:"5"`
	DBMaxConnLifetime  time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"1h"`
	DBMaxConnIdleTime  time.Duration `env:"DB_MAX_CONN_IDLE_TIME" envDefault:"30m"`
	SlowQueryThreshold int           `env:"SLOW_QUERY_THRESHOLD_MS" envDefault:"200"`
	MigrateOnStartup   bool          `env:"AUTH_MIGRATE_ON_STARTUP" envDefault:"true"`

	// Redis
	RedisHost     string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// Kafka
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// JWT
	JWTAccessSecret  string `env:"JWT_ACCESS_SECRET" envDefault:"change-this-access-secret"`
	JWTRefreshSecret string `env:"JWT_REFRESH_SECRET" envDefault:"change-this-refresh-secret"`
	JWTAccessExpiry  string `env:"JWT_ACCESS_TOKEN_EXPIRY" envDefault:"15m"`
	JWTRefreshExpiry string `env:"JWT_REFRESH_TOKEN_EXPIRY" envDefault:"168h"`
	JWTResetExpiry   string `env:"JWT_RESET_TOKEN_EXPIRY" envDefault:"1h"`
	JWTIssuer        string `env:"JWT_ISSUER" envDefault:"credipesca-auth"`

	BcryptCost int `env:"BCRYPT_COST" envDefault:"12"`

	// Rate limiting
	RateLimitEnabled  bool          `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	RateLimitRequests int           `env:"RATE_LIMIT_REQUESTS" envDefault:"100"`
	RateLimitWindow   time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"15m"`

	// Take client IPs from X-Forwarded-For / X-Real-IP. Set only behind a
	// load balancer that overwrites those headers.
	TrustProxyHeaders bool `env:"TRUST_PROXY_HEADERS" envDefault:"false"`

	// CORS
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"http://localhost:3000" envSeparator:","`

	// Base URL of the web app, used to build password reset links.
	FrontendURL string `env:"FRONTEND_URL" envDefault:"http://localhost:3000"`

	// Internal endpoints (/metrics, /debug/pprof)
	InternalCIDRs []string `env:"INTERNAL_ALLOWED_CIDRS" envDefault:"127.0.0.0/8,::1/128,10.0.0.0/8,172.16.0.0/12,192.168.0.0/16" envSeparator:","`
	EnablePprof   bool     `env:"ENABLE_PPROF" envDefault:"false"`

	// Tracing
	OTelEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTelEndpoint   string  `env:"OTEL_ENDPOINT" envDefault:"localhost:4318"`
	OTelSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load auth config: %w", err)
	}
	return cfg, nil
}

// Validate runs the cross-field checks. It is called by pkgconfig.Load.
func (c *Config) Validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}

	if c.JWTAccessSecret == c.JWTRefreshSecret {
		return errors.New("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ")
	}

	// Outside development both secrets must be set explicitly and be strong.
	if c.Environment != "development" {
		if err := checkSecret("JWT_ACCESS_SECRET", c.JWTAccessSecret, devAccessSecret, c.Environment); err != nil {
			return err
		}
		if err := checkSecret("JWT_REFRESH_SECRET", c.JWTRefreshSecret, devRefreshSecret, c.Environment); err != nil {
			return err
		}
	}

	if c.BcryptCost < minBcryptCost || c.BcryptCost > maxBcryptCost {
		return fmt.Errorf("BCRYPT_COST must be between %d and %d, got %d", minBcryptCost, maxBcryptCost, c.BcryptCost)
	}

	for name, raw := range map[string]string{
		"JWT_ACCESS_TOKEN_EXPIRY":  c.JWTAccessExpiry,
		"JWT_REFRESH_TOKEN_EXPIRY": c.JWTRefreshExpiry,
		"JWT_RESET_TOKEN_EXPIRY":   c.JWTResetExpiry,
	} {
		if _, err := parsePositive(name, raw); err != nil {
			return err
		}
	}

	if c.RateLimitEnabled && (c.RateLimitRequests < 1 || c.RateLimitWindow <= 0) {
		return fmt.Errorf("invalid rate limit: %d requests per %s", c.RateLimitRequests, c.RateLimitWindow)
	}

	if c.OTelSampleRate < 0 || c.OTelSampleRate > 1 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0 and 1, got %v", c.OTelSampleRate)
	}

	return nil
}

func checkSecret(name, value, devDefault, environment string) error {
	if value == devDefault {
		return fmt.Errorf("%s must be explicitly set via environment variable in %q mode", name, environment)
	}
	if len(value) < minSecretLength {
		return fmt.Errorf("%s must be at least %d characters long, got %d", name, minSecretLength, len(value))
	}
	return nil
}

func parsePositive(name, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, raw, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", name, raw)
	}
	return d, nil
}

// AccessTTL returns the parsed access token lifetime. Validate guarantees it parses.
func (c *Config) AccessTTL() time.Duration {
	d, _ := parsePositive("JWT_ACCESS_TOKEN_EXPIRY", c.JWTAccessExpiry)
	return d
}

// RefreshTTL returns the parsed refresh token lifetime.
func (c *Config) RefreshTTL() time.Duration {
	d, _ := parsePositive("JWT_REFRESH_TOKEN_EXPIRY", c.JWTRefreshExpiry)
	return d
}

// ResetTTL returns the parsed reset token lifetime.
func (c *Config) ResetTTL() time.Duration {
	d, _ := parsePositive("JWT_RESET_TOKEN_EXPIRY", c.JWTResetExpiry)
	return d
}

// Postgres returns the connection pool settings.
func (c *Config) Postgres() *database.PostgresConfig {
	return &database.PostgresConfig{
		Host:            c.PostgresHost,
		Port:            c.PostgresPort,
		User:            c.PostgresUser,
		Password:        c.PostgresPass,
		DBName:          c.PostgresDB,
		SSLMode:         c.PostgresSSL,
		MaxConns:        c.DBMaxConns,
		MinConns:        c.DBMinConns,
		MaxConnLifetime: c.DBMaxConnLifetime,
		MaxConnIdleTime: c.DBMaxConnIdleTime,
	}
}

// Redis returns the Redis client settings on top of the package defaults.
func (c *Config) Redis() database.RedisConfig {
	rc := database.DefaultRedisConfig()
	rc.Host = c.RedisHost
	rc.Port = c.RedisPort
	rc.Password = c.RedisPassword
	rc.DB = c.RedisDB
	return rc
}

// Tracing returns the OpenTelemetry settings for serviceName.
func (c *Config) Tracing(serviceName string) tracing.Config {
	tc := tracing.DefaultConfig(serviceName)
	tc.Environment = c.Environment
	tc.Enabled = c.OTelEnabled
	tc.OTLPEndpoint = c.OTelEndpoint
	tc.SampleRate = c.OTelSampleRate
	return tc
}

// SlowQueryDuration returns SLOW_QUERY_THRESHOLD_MS as a duration. Zero disables it.
func (c *Config) SlowQueryDuration() time.Duration {
	return time.Duration(c.SlowQueryThreshold) * time.Millisecond
}
