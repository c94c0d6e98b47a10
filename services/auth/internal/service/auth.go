package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/henriquegoncalvesdev/credipesca/pkg/logger"
	"github.com/henriquegoncalvesdev/credipesca/services/auth/internal/auth"
	"github.com/henriquegoncalvesdev/credipesca/services/auth/internal/domain"
	"github.com/henriquegoncalvesdev/credipesca/services/auth/internal/event"
	"github.com/henriquegoncalvesdev/credipesca/services/auth/internal/repository"
)

// dummyPassword is hashed once at startup so that logins for unknown
// accounts spend the same bcrypt effort as real ones.
const dummyPassword = "credipesca-timing-equalizer"

var errUserInactive = errors.New("user inactive")

// PasswordHasher hashes and verifies passwords.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, digest string) bool
}

// EventPublisher publishes user domain events. Failures are logged by the
// service and never change the outcome of an operation.
type EventPublisher interface {
	PublishUserRegistered(ctx context.Context, user *domain.User) error
	PublishPasswordResetRequested(ctx context.Context, user *domain.User, token string, expiresAt time.Time) error
	PublishPasswordChanged(ctx context.Context, user *domain.User, method string) error
	PublishUserStatusChanged(ctx context.Context, user *domain.User, changedBy string) error
}

// AuthService implements registration, login, token rotation and password
// management on top of a UserDirectory. It holds no mutable state and is
// safe for concurrent use.
type AuthService struct {
	users     repository.UserDirectory
	hasher    PasswordHasher
	tokens    *auth.TokenCodec
	events    EventPublisher
	logger    *slog.Logger
	dummyHash string
	now       func() time.Time
}

// NewAuthService creates a new auth service.
func NewAuthService(
	users repository.UserDirectory,
	hasher PasswordHasher,
	tokens *auth.TokenCodec,
	events EventPublisher,
	logger *slog.Logger,
) (*AuthService, error) {
	dummyHash, err := hasher.Hash(dummyPassword)
	if err != nil {
		return nil, fmt.Errorf("prepare dummy hash: %w", err)
	}

	return &AuthService{
		users:     users,
		hasher:    hasher,
		tokens:    tokens,
		events:    events,
		logger:    logger,
		dummyHash: dummyHash,
		now:       time.Now,
	}, nil
}

// RegisterInput holds the parameters for registering a new user.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

// LoginInput holds the parameters for user login.
type LoginInput struct {
	Email    string
	Password string
}

// AuthResult is returned by Register and Login.
type AuthResult struct {
	User   domain.UserView  `json:"user"`
	Tokens domain.TokenPair `json:"tokens"`
}

// Register creates a USER account and returns it with a fresh token pair.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (res *AuthResult, err error) {
	defer func() { observe(opRegister, err) }()

	email := domain.NormalizeEmail(in.Email)

	_, err = s.users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		return nil, domain.EmailTaken()
	case !errors.Is(err, domain.ErrUserNotFound):
		return nil, fmt.Errorf("check existing email: %w", err)
	}

	hash, err := s.hash(in.Password)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	user := &domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		Name:         in.Name,
		Role:         domain.RoleUser,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err = s.users.Create(ctx, user); err != nil {
		// A concurrent registration won the unique constraint.
		if errors.Is(err, domain.ErrEmailTaken) {
			return nil, domain.EmailTaken()
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	tokens, err := s.tokens.IssuePair(user.ID)
	if err != nil {
		return nil, fmt.Errorf("issue tokens: %w", err)
	}

	if perr := s.events.PublishUserRegistered(ctx, user); perr != nil {
		s.logPublishFailure(ctx, event.TypeUserRegistered, user.ID, perr)
	}

	s.logger.InfoContext(ctx, "user registered", slog.String("user_id", user.ID))

	return &AuthResult{User: user.View(), Tokens: tokens}, nil
}

// Login verifies credentials. An unknown email, an inactive account and a
// wrong password all yield the same InvalidCredentials error after the same
// hashing effort.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (res *AuthResult, err error) {
	defer func() { observe(opLogin, err) }()

	user, err := s.users.GetByEmail(ctx, domain.NormalizeEmail(in.Email))
	if err != nil {
		if !errors.Is(err, domain.ErrUserNotFound) {
			return nil, fmt.Errorf("get user by email: %w", err)
		}
		s.hasher.Verify(in.Password, s.dummyHash)
		return nil, domain.InvalidCredentials()
	}

	passwordOK := s.hasher.Verify(in.Password, user.PasswordHash)
	if !passwordOK || !user.IsActive {
		s.logger.InfoContext(ctx, "login rejected",
			slog.String("user_id", user.ID),
			slog.Bool("active", user.IsActive),
		)
		return nil, domain.InvalidCredentials()
	}

	tokens, err := s.tokens.IssuePair(user.ID)
	if err != nil {
		return nil, fmt.Errorf("issue tokens: %w", err)
	}

	s.logger.InfoContext(ctx, "user logged in", slog.String("user_id", user.ID))

	return &AuthResult{User: user.View(), Tokens: tokens}, nil
}

// RefreshTokens exchanges a refresh token for a new pair. The presented token
// stays valid until it expires.
func (s *AuthService) RefreshTokens(ctx context.Context, refreshToken string) (pair domain.TokenPair, err error) {
	defer func() { observe(opRefresh, err) }()

	claims, err := s.tokens.Verify(refreshToken, auth.PurposeRefresh)
	if err != nil {
		return domain.TokenPair{}, domain.InvalidToken(err)
	}

	user, err := s.users.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return domain.TokenPair{}, domain.InvalidToken(err)
		}
		return domain.TokenPair{}, fmt.Errorf("get user for refresh: %w", err)
	}
	if !user.IsActive {
		return domain.TokenPair{}, domain.InvalidToken(errUserInactive)
	}

	pair, err = s.tokens.IssuePair(user.ID)
	if err != nil {
		return domain.TokenPair{}, fmt.Errorf("issue tokens: %w", err)
	}

	s.logger.InfoContext(ctx, "tokens refreshed", slog.String("user_id", user.ID))
	return pair, nil
}

// Logout acknowledges a logout. Tokens are stateless and remain valid until
// they expire.
func (s *AuthService) Logout(ctx context.Context) error {
	observe(opLogout, nil)
	s.logger.DebugContext(ctx, "logout acknowledged")
	return nil
}

// ForgotPassword issues a reset token and hands it to the mailer when the
// email belongs to an active account. The caller-visible result is the same
// for known and unknown emails.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) (err error) {
	defer func() { observe(opForgotPassword, err) }()

	user, err := s.users.GetByEmail(ctx, domain.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			s.logger.DebugContext(ctx, "password reset requested for unknown email")
			return nil
		}
		return fmt.Errorf("get user by email: %w", err)
	}
	if !user.IsActive {
		s.logger.InfoContext(ctx, "password reset requested for inactive user", slog.String("user_id", user.ID))
		return nil
	}

	token, expiresAt, err := s.tokens.Issue(user.ID, auth.PurposeReset, s.tokens.TTL(auth.PurposeReset))
	if err != nil {
		return fmt.Errorf("issue reset token: %w", err)
	}

	if perr := s.events.PublishPasswordResetRequested(ctx, user, token, expiresAt); perr != nil {
		s.logPublishFailure(ctx, event.TypeUserPasswordResetRequested, user.ID, perr)
	}

	s.logger.InfoContext(ctx, "password reset requested", slog.String("user_id", user.ID))
	return nil
}

// ResetPassword sets a new password for the subject of a reset token.
func (s *AuthService) ResetPassword(ctx context.Context, resetToken, newPassword string) (err error) {
	defer func() { observe(opResetPassword, err) }()

	claims, err := s.tokens.Verify(resetToken, auth.PurposeReset)
	if err != nil {
		return domain.InvalidOrExpiredToken(err)
	}

	user, err := s.getUser(ctx, claims.Subject)
	if err != nil {
		return err
	}

	if err = s.setPassword(ctx, user, newPassword); err != nil {
		return err
	}

	if perr := s.events.PublishPasswordChanged(ctx, user, event.MethodReset); perr != nil {
		s.logPublishFailure(ctx, event.TypeUserPasswordChanged, user.ID, perr)
	}

	s.logger.InfoContext(ctx, "password reset", slog.String("user_id", user.ID))
	return nil
}

// ChangePassword replaces the password of an authenticated user after
// checking the current one.
func (s *AuthService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) (err error) {
	defer func() { observe(opChangePassword, err) }()

	user, err := s.getUser(ctx, userID)
	if err != nil {
		return err
	}

	if !s.hasher.Verify(currentPassword, user.PasswordHash) {
		return domain.InvalidCurrentPassword()
	}

	if err = s.setPassword(ctx, user, newPassword); err != nil {
		return err
	}

	if perr := s.events.PublishPasswordChanged(ctx, user, event.MethodChange); perr != nil {
		s.logPublishFailure(ctx, event.TypeUserPasswordChanged, user.ID, perr)
	}

	s.logger.InfoContext(ctx, "password changed", slog.String("user_id", user.ID))
	return nil
}

// Authenticate resolves an access token to the active user it belongs to.
// The user is re-read on every call so deactivation and role changes take
// effect immediately. Every failure is Unauthenticated except store errors.
func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (*domain.User, error) {
	claims, err := s.tokens.Verify(accessToken, auth.PurposeAccess)
	if err != nil {
		return nil, domain.Unauthenticated(err)
	}

	user, err := s.users.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.Unauthenticated(err)
		}
		return nil, fmt.Errorf("get user for authentication: %w", err)
	}
	if !user.IsActive {
		return nil, domain.Unauthenticated(errUserInactive)
	}

	return user, nil
}

func (s *AuthService) getUser(ctx context.Context, id string) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, s.lookupError(err)
	}
	return user, nil
}

func (s *AuthService) lookupError(err error) error {
	if errors.Is(err, domain.ErrUserNotFound) {
		return domain.UserNotFound()
	}
	return fmt.Errorf("user directory: %w", err)
}

func (s *AuthService) setPassword(ctx context.Context, user *domain.User, plaintext string) error {
	hash, err := s.hash(plaintext)
	if err != nil {
		return err
	}

	if err := s.users.UpdatePassword(ctx, user.ID, hash); err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return domain.UserNotFound()
		}
		return fmt.Errorf("update password: %w", err)
	}
	user.PasswordHash = hash
	return nil
}

func (s *AuthService) hash(plaintext string) (string, error) {
	hash, err := s.hasher.Hash(plaintext)
	if err != nil {
		if errors.Is(err, domain.ErrPasswordTooLong) {
			return "", domain.PasswordTooLong()
		}
		return "", fmt.Errorf("hash password: %w", err)
	}
	return hash, nil
}

func (s *AuthService) logPublishFailure(ctx context.Context, eventType, userID string, err error) {
	s.logger.ErrorContext(ctx, "failed to publish event",
		slog.String("event_type", eventType),
		slog.String("user_id", userID),
		logger.Err(err),
	)
}
