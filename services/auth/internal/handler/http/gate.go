package http

import (
	"context"

	"github.com/henriquegoncalvesdev/credipesca/pkg/middleware"
	"github.com/henriquegoncalvesdev/credipesca/services/auth/internal/domain"
)

// userAuthenticator resolves an access token to the active user behind it.
type userAuthenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*domain.User, error)
}

// Authenticator adapts the auth service to the shared Auth middleware.
func Authenticator(svc userAuthenticator) middleware.Authenticator {
	return func(ctx context.Context, token string) (*middleware.Identity, error) {
		user, err := svc.Authenticate(ctx, token)
		if err != nil {
			return nil, err
		}
		return &middleware.Identity{
			ID:    user.ID,
			Email: user.Email,
			Name:  user.Name,
			Role:  user.Role,
		}, nil
	}
}
