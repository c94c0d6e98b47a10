package httputil

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	apperrors "github.com/henriquegoncalvesdev/credipesca/pkg/errors"
	"github.com/henriquegoncalvesdev/credipesca/pkg/logger"
	"github.com/henriquegoncalvesdev/credipesca/pkg/validator"
)

// Response is the JSON envelope returned by every endpoint.
type Response struct {
	Success   bool           `json:"success"`
	Data      any            `json:"data,omitempty"`
	Message   string         `json:"message,omitempty"`
	MessageEN string         `json:"message_en,omitempty"`
	Error     *ErrorResponse `json:"error,omitempty"`
}

// ErrorResponse carries the bilingual error description.
type ErrorResponse struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	MessageEN string            `json:"message_en"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	// Headers are already sent; nothing meaningful can be done if encoding fails.
	_ = json.NewEncoder(w).Encode(v)
}

// WriteData writes a successful envelope carrying data.
func WriteData(w http.ResponseWriter, status int, data any) {
	WriteJSON(w, status, Response{Success: true, Data: data})
}

// WriteMessage writes a successful envelope carrying only a bilingual message.
func WriteMessage(w http.ResponseWriter, status int, message, messageEN string) {
	WriteJSON(w, status, Response{Success: true, Message: message, MessageEN: messageEN})
}

// WriteError writes a failure envelope for err. AppErrors are rendered with
// their own code, status and messages. Anything else becomes a generic
// internal error and is logged; its text never reaches the client.
// The request-scoped logger from context is preferred over fallback.
func WriteError(w http.ResponseWriter, r *http.Request, err error, fallback *slog.Logger) {
	l := logger.FromContext(r.Context())
	if l == slog.Default() && fallback != nil {
		l = fallback
	}

	requestID := logger.CorrelationIDFromContext(r.Context())

	var valErr *validator.ValidationError
	if errors.As(err, &valErr) || errors.Is(err, validator.ErrMalformedBody) {
		WriteValidationError(w, r, err)
		return
	}

	appErr, ok := asAppError(err)
	if !ok || appErr.Status >= http.StatusInternalServerError {
		l.ErrorContext(r.Context(), "internal error",
			logger.Err(err),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)
		if !ok {
			appErr = apperrors.Internal(err)
		}
	}

	WriteJSON(w, appErr.Status, Response{
		Error: &ErrorResponse{
			Code:      appErr.Code,
			Message:   appErr.Message,
			MessageEN: appErr.MessageEN,
			RequestID: requestID,
		},
	})
}

func asAppError(err error) (*apperrors.AppError, bool) {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// WriteValidationError writes a 400 VALIDATION_ERROR envelope, listing
// field-level failures when err is a *validator.ValidationError.
func WriteValidationError(w http.ResponseWriter, r *http.Request, err error) {
	body := &ErrorResponse{
		Code:      "VALIDATION_ERROR",
		Message:   "Dados de entrada inválidos",
		MessageEN: "Invalid input data",
		RequestID: logger.CorrelationIDFromContext(r.Context()),
	}

	var valErr *validator.ValidationError
	if errors.As(err, &valErr) {
		body.Fields = valErr.Fields()
	}

	WriteJSON(w, http.StatusBadRequest, Response{Error: body})
}

// ParseUUID validates that param is a UUID. On failure it writes a 400
// INVALID_PARAMETER envelope and returns false so the caller can return early.
func ParseUUID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(param)
	if err != nil {
		WriteError(w, r, apperrors.InvalidParameter("Identificador inválido: "+param, "Invalid identifier: "+param), nil)
		return uuid.Nil, false
	}
	return id, true
}
