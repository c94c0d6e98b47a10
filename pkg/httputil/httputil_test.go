package httputil

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/henriquegoncalvesdev/credipesca/pkg/errors"
	"github.com/henriquegoncalvesdev/credipesca/pkg/logger"
	"github.com/henriquegoncalvesdev/credipesca/pkg/validator"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

// --- WriteJSON ---

func TestWriteJSON_SetsContentType(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusOK, Response{Success: true})

	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json"))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWriteJSON_StatusCodes(t *testing.T) {
	codes := []int{http.StatusOK, http.StatusCreated, http.StatusNotFound, http.StatusTeapot}
	for _, code := range codes {
		rec := httptest.NewRecorder()
		WriteJSON(rec, code, Response{})
		assert.Equal(t, code, rec.Code)
	}
}

// --- success envelopes ---

func TestWriteData(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteData(rec, http.StatusCreated, map[string]string{"key": "value"})

	assert.Equal(t, http.StatusCreated, rec.Code)
	resp := decode(t, rec)
	assert.True(t, resp.Success)
	assert.Equal(t, map[string]any{"key": "value"}, resp.Data)
	assert.Nil(t, resp.Error)
}

func TestWriteMessage(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteMessage(rec, http.StatusOK, "Logout realizado com sucesso", "Logged out successfully")

	var raw map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&raw))
	assert.Equal(t, true, raw["success"])
	assert.Equal(t, "Logout realizado com sucesso", raw["message"])
	assert.Equal(t, "Logged out successfully", raw["message_en"])
	_, hasData := raw["data"]
	assert.False(t, hasData)
	_, hasError := raw["error"]
	assert.False(t, hasError)
}

func TestResponse_FailureAlwaysSerializesSuccessFalse(t *testing.T) {
	data, err := json.Marshal(Response{Error: &ErrorResponse{Code: "X", Message: "m", MessageEN: "m"}})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"success":false`)
}

// --- WriteError ---

func TestWriteError_AppError(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)

	WriteError(rec, req, apperrors.Forbidden("Permissão insuficiente", "Insufficient permissions"), testLogger())

	assert.Equal(t, http.StatusForbidden, rec.Code)
	resp := decode(t, rec)
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "FORBIDDEN", resp.Error.Code)
	assert.Equal(t, "Permissão insuficiente", resp.Error.Message)
	assert.Equal(t, "Insufficient permissions", resp.Error.MessageEN)
}

func TestWriteError_WrappedAppError(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)

	err := fmt.Errorf("handler: %w", apperrors.NotFound("Usuário não encontrado", "User not found"))
	WriteError(rec, req, err, testLogger())

	assert.Equal(t, http.StatusNotFound, rec.Code)
	resp := decode(t, rec)
	assert.Equal(t, "User not found", resp.Error.MessageEN)
}

func TestWriteError_UnknownError_Returns500WithoutLeaking(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)

	WriteError(rec, req, fmt.Errorf("dial tcp 10.0.0.5:5432: connection refused"), testLogger())

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := rec.Body.String()
	assert.NotContains(t, body, "10.0.0.5")
	assert.Contains(t, body, "Erro interno do servidor")
	assert.Contains(t, body, "Internal server error")
}

func TestWriteError_ValidationErrorDelegates(t *testing.T) {
	type input struct {
		Email string `json:"email" validate:"required,email"`
	}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/test", nil)

	WriteError(rec, req, validator.Validate(input{}), testLogger())

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decode(t, rec)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
	assert.Equal(t, "is required", resp.Error.Fields["email"])
}

func TestWriteError_UsesContextLogger(t *testing.T) {
	var buf strings.Builder
	l := slog.New(slog.NewJSONHandler(&buf, nil))
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	req = req.WithContext(logger.NewContext(req.Context(), l))

	WriteError(rec, req, fmt.Errorf("boom"), testLogger())

	assert.Contains(t, buf.String(), "internal error")
	assert.Contains(t, buf.String(), "/boom")
}

// --- WriteValidationError ---

func TestWriteValidationError_MalformedBody(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/test", nil)

	WriteValidationError(rec, req, fmt.Errorf("decode: %w", validator.ErrMalformedBody))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decode(t, rec)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
	assert.Equal(t, "Dados de entrada inválidos", resp.Error.Message)
	assert.Equal(t, "Invalid input data", resp.Error.MessageEN)
	assert.Empty(t, resp.Error.Fields)
}

// --- ParseUUID ---

func TestParseUUID_ValidUUID(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	id, ok := ParseUUID(rec, req, "550E8400-E29B-41D4-A716-446655440000")
	assert.True(t, ok)
	assert.Equal(t, "550e8400-e29b-41d4-a716-446655440000", id.String())
}

func TestParseUUID_Invalid_Returns400(t *testing.T) {
	for _, param := range []string{"", "abc", "not-a-uuid-at-all"} {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		_, ok := ParseUUID(rec, req, param)

		assert.False(t, ok)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		resp := decode(t, rec)
		assert.Equal(t, "INVALID_PARAMETER", resp.Error.Code)
		assert.Equal(t, "Invalid identifier: "+param, resp.Error.MessageEN)
	}
}

// --- request_id ---

func TestWriteError_IncludesRequestID(t *testing.T) {
	rec := httptest.NewRecorder()
	ctx := logger.WithCorrelationID(context.Background(), "corr-123")
	req := httptest.NewRequest(http.MethodGet, "/test", nil).WithContext(ctx)

	WriteError(rec, req, apperrors.NotFound("Rota não encontrada", "Route not found"), testLogger())

	resp := decode(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "corr-123", resp.Error.RequestID)
}

func TestWriteError_NoCorrelationID_OmitsRequestID(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)

	WriteError(rec, req, apperrors.NotFound("Rota não encontrada", "Route not found"), testLogger())

	var raw map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&raw))

	var errObj map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw["error"], &errObj))
	_, hasRequestID := errObj["request_id"]
	assert.False(t, hasRequestID, "request_id should be omitted when correlation_id is not in context")
}
