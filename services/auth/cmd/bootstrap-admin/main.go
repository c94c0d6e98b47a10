// Command bootstrap-admin creates the first ADMIN account. Self-registration
// only ever yields USER accounts, so operators run this once per environment.
//
// It reads the service configuration plus ADMIN_NAME, ADMIN_EMAIL and
// ADMIN_PASSWORD from the environment. An existing account with the same
// email is left untouched.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	pkgconfig "github.com/henriquegoncalvesdev/credipesca/pkg/config"
	"github.com/henriquegoncalvesdev/credipesca/pkg/database"
	"github.com/henriquegoncalvesdev/credipesca/pkg/logger"
	"github.com/henriquegoncalvesdev/credipesca/pkg/validator"
	"github.com/henriquegoncalvesdev/credipesca/services/auth/internal/auth"
	"github.com/henriquegoncalvesdev/credipesca/services/auth/internal/config"
	"github.com/henriquegoncalvesdev/credipesca/services/auth/internal/domain"
	"github.com/henriquegoncalvesdev/credipesca/services/auth/internal/repository/postgres"
	"github.com/henriquegoncalvesdev/credipesca/services/auth/migrations"
)

type adminConfig struct {
	Name     string `env:"ADMIN_NAME" envDefault:"Administrador" validate:"required,min=2,max=100"`
	Email    string `env:"ADMIN_EMAIL,required" validate:"required,email"`
	Password string `env:"ADMIN_PASSWORD,required" validate:"required,min=6,max=72,strongpassword"`
}

func main() {
	if err := run(); err != nil {
		slog.Error("bootstrap failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	var admin adminConfig
	if err := pkgconfig.Load(&admin); err != nil {
		return fmt.Errorf("load admin config: %w", err)
	}
	if err := validator.Validate(admin); err != nil {
		return fmt.Errorf("invalid admin config: %w", err)
	}

	log := logger.New("auth-bootstrap", cfg.LogLevel)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres(), log)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer pool.Close()

	if err := database.RunMigrations(ctx, pool, migrations.FS, log); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	users := postgres.NewUserRepository(pool)
	email := domain.NormalizeEmail(admin.Email)

	existing, err := users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		log.Info("account already exists, nothing to do",
			slog.String("user_id", existing.ID),
			slog.String("role", existing.Role),
		)
		return nil
	case !errors.Is(err, domain.ErrUserNotFound):
		return fmt.Errorf("look up admin: %w", err)
	}

	hash, err := auth.NewBcryptHasher(auth.WithCost(cfg.BcryptCost)).Hash(admin.Password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	now := time.Now().UTC()
	user := &domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		Name:         admin.Name,
		Role:         domain.RoleAdmin,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := users.Create(ctx, user); err != nil {
		return fmt.Errorf("create admin: %w", err)
	}

	log.Info("admin account created", slog.String("user_id", user.ID))
	return nil
}
