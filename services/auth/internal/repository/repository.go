package repository

import (
	"context"

	"github.com/henriquegoncalvesdev/credipesca/services/auth/internal/domain"
)

// UserDirectory is the persistent store of user records. Lookups that find
// nothing return domain.ErrUserNotFound; a duplicate email on Create returns
// domain.ErrEmailTaken. Email uniqueness is enforced by the store.
type UserDirectory interface {
	// GetByID retrieves a user by their unique identifier.
	GetByID(ctx context.Context, id string) (*domain.User, error)

	// GetByEmail retrieves a user by their normalized email address.
	GetByEmail(ctx context.Context, email string) (*domain.User, error)

	// Create inserts a new user.
	Create(ctx context.Context, user *domain.User) error

	// UpdatePassword replaces the stored password hash.
	UpdatePassword(ctx context.Context, id, passwordHash string) error

	// SetActive toggles the active flag and returns the updated user.
	SetActive(ctx context.Context, id string, active bool) (*domain.User, error)

	// List returns one page of users, newest first, and the total count.
	List(ctx context.Context, offset, limit int) ([]domain.User, int, error)
}
