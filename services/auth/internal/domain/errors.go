package domain

import (
	"errors"
	"fmt"
	"net/http"

	apperrors "github.com/henriquegoncalvesdev/credipesca/pkg/errors"
)

// Sentinel errors for the auth domain. Stores return ErrUserNotFound and
// ErrEmailTaken; the service turns every kind into a bilingual AppError.
var (
	ErrEmailTaken             = errors.New("email already taken")
	ErrInvalidCredentials     = errors.New("invalid credentials")
	ErrInvalidToken           = errors.New("invalid token")
	ErrInvalidOrExpiredToken  = errors.New("invalid or expired token")
	ErrInvalidCurrentPassword = errors.New("invalid current password")
	ErrUserNotFound           = errors.New("user not found")
	ErrUnauthenticated        = errors.New("unauthenticated")
	ErrPasswordTooLong        = errors.New("password too long")
	ErrSelfDeactivation       = errors.New("cannot deactivate own account")
	ErrUnknownRole            = errors.New("unknown role")
)

// EmailTaken is returned when registering an address already in the directory.
func EmailTaken() *apperrors.AppError {
	return apperrors.New("EMAIL_TAKEN", http.StatusBadRequest,
		"Email já está em uso", "Email is already in use", ErrEmailTaken)
}

// InvalidCredentials covers an unknown email, an inactive account and a wrong
// password alike.
func InvalidCredentials() *apperrors.AppError {
	return apperrors.New("INVALID_CREDENTIALS", http.StatusUnauthorized,
		"Email ou senha inválidos", "Invalid email or password", ErrInvalidCredentials)
}

// InvalidToken is returned for any refresh token that fails verification.
func InvalidToken(reason error) *apperrors.AppError {
	return apperrors.New("INVALID_TOKEN", http.StatusUnauthorized,
		"Token inválido", "Invalid token", wrap(ErrInvalidToken, reason))
}

// InvalidOrExpiredToken is returned for any reset token that fails verification.
func InvalidOrExpiredToken(reason error) *apperrors.AppError {
	return apperrors.New("INVALID_OR_EXPIRED_TOKEN", http.StatusBadRequest,
		"Token inválido ou expirado", "Invalid or expired token", wrap(ErrInvalidOrExpiredToken, reason))
}

// InvalidCurrentPassword is returned when a password change quotes the wrong
// current password.
func InvalidCurrentPassword() *apperrors.AppError {
	return apperrors.New("INVALID_CURRENT_PASSWORD", http.StatusBadRequest,
		"Senha atual incorreta", "Current password is incorrect", ErrInvalidCurrentPassword)
}

// UserNotFound is returned when a referenced user does not exist.
func UserNotFound() *apperrors.AppError {
	return apperrors.New("USER_NOT_FOUND", http.StatusNotFound,
		"Usuário não encontrado", "User not found", ErrUserNotFound)
}

// Unauthenticated is returned when an access token cannot be resolved to an
// active user. The reason is kept for logs only.
func Unauthenticated(reason error) *apperrors.AppError {
	e := apperrors.Unauthenticated("Token de acesso inválido ou ausente", "Invalid or missing access token")
	e.Err = wrap(ErrUnauthenticated, reason)
	return e
}

// PasswordTooLong is returned when a password exceeds the hash input limit.
func PasswordTooLong() *apperrors.AppError {
	return apperrors.New("PASSWORD_TOO_LONG", http.StatusBadRequest,
		"Senha muito longa", "Password is too long", ErrPasswordTooLong)
}

// SelfDeactivation is returned when an administrator tries to deactivate
// their own account.
func SelfDeactivation() *apperrors.AppError {
	return apperrors.New("SELF_DEACTIVATION", http.StatusBadRequest,
		"Não é possível desativar a própria conta", "You cannot deactivate your own account",
		ErrSelfDeactivation)
}

func wrap(kind, reason error) error {
	if reason == nil {
		return kind
	}
	return fmt.Errorf("%w: %w", kind, reason)
}
