package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/edssentials/edssentials-api/internal/auth"
	"github.com/edssentials/edssentials-api/internal/handler/dto"
	"github.com/edssentials/edssentials-api/internal/model"
)

// UserAdminService is the subset of service.AuthService used by the admin user endpoints.
type UserAdminService interface {
	ListUsers(ctx context.Context) ([]*model.User, error)
	SetActive(ctx context.Context, id string, active bool) (*model.User, error)
}

// UserHandler serves the admin-only /api/users endpoints.
type UserHandler struct {
	svc    UserAdminService
	logger *slog.Logger
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(svc UserAdminService, logger *slog.Logger) *UserHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserHandler{svc: svc, logger: logger}
}

// List returns every user without credential material.
// GET /api/users
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.svc.ListUsers(r.Context())
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.ToUserList(users))
}

// SetActive enables or disables an account.
// PATCH /api/users/{id}/active
func (h *UserHandler) SetActive(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, CodeValidation, "user id is required")
		return
	}

	var req dto.SetActiveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidJSON, err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		writeValidationError(w, err)
		return
	}

	user, err := h.svc.SetActive(r.Context(), id, *req.IsActive)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	h.logger.Info("account status changed",
		"user_id", user.ID,
		"is_active", user.IsActive,
		"by", auth.UserIDFromContext(r.Context()),
	)
	writeJSON(w, http.StatusOK, user.ToResponse())
}
