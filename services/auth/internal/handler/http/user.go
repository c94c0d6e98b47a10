package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/henriquegoncalvesdev/credipesca/pkg/httputil"
	"github.com/henriquegoncalvesdev/credipesca/pkg/middleware"
	"github.com/henriquegoncalvesdev/credipesca/pkg/pagination"
	"github.com/henriquegoncalvesdev/credipesca/pkg/validator"
	"github.com/henriquegoncalvesdev/credipesca/services/auth/internal/service"
)

// UserHandler serves the user administration endpoints.
type UserHandler struct {
	service *service.AuthService
	logger  *slog.Logger
}

// NewUserHandler creates a new user HTTP handler.
func NewUserHandler(svc *service.AuthService, logger *slog.Logger) *UserHandler {
	return &UserHandler{service: svc, logger: logger}
}

// SetStatusRequest is the JSON request body for activating or deactivating a user.
type SetStatusRequest struct {
	IsActive *bool `json:"isActive" validate:"required"`
}

// List handles GET /api/users
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.ListUsers(r.Context(), pagination.FromRequest(r))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, result)
}

// Get handles GET /api/users/{id}
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	user, err := h.service.GetUser(r.Context(), id.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, user.View())
}

// SetStatus handles PATCH /api/users/{id}/status
func (h *UserHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	var req SetStatusRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	actorID := middleware.UserIDFromContext(r.Context())
	user, err := h.service.SetUserActive(r.Context(), actorID, id.String(), *req.IsActive)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	writeSuccess(w, http.StatusOK, user.View(),
		"Status do usuário atualizado com sucesso", "User status updated successfully")
}
