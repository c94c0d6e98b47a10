package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Standard sentinel errors for common cases.
var (
	ErrNotFound      = errors.New("resource not found")
	ErrAlreadyExists = errors.New("resource already exists")
	ErrInvalidInput  = errors.New("invalid input")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrForbidden     = errors.New("forbidden")
	ErrInternal      = errors.New("internal error")
	ErrTooManyReqs   = errors.New("too many requests")
)

// AppError represents a structured application error with HTTP status mapping.
// Message is the Portuguese text shown to end users; MessageEN is its English
// counterpart. Both are safe to expose to clients.
type AppError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	MessageEN string `json:"message_en"`
	Status    int    `json:"-"`
	Err       error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.MessageEN, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.MessageEN)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates an AppError wrapping the given sentinel.
func New(code string, status int, message, messageEN string, err error) *AppError {
	return &AppError{
		Code:      code,
		Message:   message,
		MessageEN: messageEN,
		Status:    status,
		Err:       err,
	}
}

// NotFound creates a 404 error.
func NotFound(message, messageEN string) *AppError {
	return New("NOT_FOUND", http.StatusNotFound, message, messageEN, ErrNotFound)
}

// InvalidParameter creates a 400 error for a malformed path or query parameter.
func InvalidParameter(message, messageEN string) *AppError {
	return New("INVALID_PARAMETER", http.StatusBadRequest, message, messageEN, ErrInvalidInput)
}

// Unauthenticated creates a 401 error for a missing or unusable credential.
func Unauthenticated(message, messageEN string) *AppError {
	return New("UNAUTHENTICATED", http.StatusUnauthorized, message, messageEN, ErrUnauthorized)
}

// Forbidden creates a 403 error.
func Forbidden(message, messageEN string) *AppError {
	return New("FORBIDDEN", http.StatusForbidden, message, messageEN, ErrForbidden)
}

// TooManyRequests creates a 429 error.
func TooManyRequests(message, messageEN string) *AppError {
	return New("TOO_MANY_REQUESTS", http.StatusTooManyRequests, message, messageEN, ErrTooManyReqs)
}

// Internal creates a 500 error. The wrapped error is never exposed to clients.
func Internal(err error) *AppError {
	return &AppError{
		Code:      "INTERNAL_ERROR",
		Message:   "Erro interno do servidor",
		MessageEN: "Internal server error",
		Status:    http.StatusInternalServerError,
		Err:       err,
	}
}

// HTTPStatus returns the HTTP status code for the given error.
func HTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrTooManyReqs):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
