package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/henriquegoncalvesdev/credipesca/pkg/pagination"
	"github.com/henriquegoncalvesdev/credipesca/services/auth/internal/domain"
	"github.com/henriquegoncalvesdev/credipesca/services/auth/internal/event"
)

// GetUser returns a single user by id.
func (s *AuthService) GetUser(ctx context.Context, id string) (*domain.User, error) {
	return s.getUser(ctx, id)
}

// ListUsers returns one page of users, newest first.
func (s *AuthService) ListUsers(ctx context.Context, params pagination.Params) (pagination.Result[domain.UserView], error) {
	users, total, err := s.users.List(ctx, params.Offset, params.PerPage)
	if err != nil {
		return pagination.Result[domain.UserView]{}, fmt.Errorf("list users: %w", err)
	}

	views := make([]domain.UserView, 0, len(users))
	for i := range users {
		views = append(views, users[i].View())
	}
	return pagination.NewResult(views, total, params), nil
}

// SetUserActive activates or deactivates a user on behalf of actorID. An
// actor cannot deactivate their own account.
func (s *AuthService) SetUserActive(ctx context.Context, actorID, id string, active bool) (user *domain.User, err error) {
	defer func() { observe(opSetUserActive, err) }()

	if actorID == id && !active {
		return nil, domain.SelfDeactivation()
	}

	user, err = s.users.SetActive(ctx, id, active)
	if err != nil {
		return nil, s.lookupError(err)
	}

	if perr := s.events.PublishUserStatusChanged(ctx, user, actorID); perr != nil {
		s.logPublishFailure(ctx, event.TypeUserStatusChanged, user.ID, perr)
	}

	s.logger.InfoContext(ctx, "user status changed",
		slog.String("user_id", user.ID),
		slog.Bool("active", user.IsActive),
		slog.String("changed_by", actorID),
	)
	return user, nil
}
