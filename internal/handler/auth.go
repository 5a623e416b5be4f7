package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/edssentials/edssentials-api/internal/auth"
	"github.com/edssentials/edssentials-api/internal/cache"
	"github.com/edssentials/edssentials-api/internal/handler/dto"
	"github.com/edssentials/edssentials-api/internal/metrics"
	"github.com/edssentials/edssentials-api/internal/middleware"
	"github.com/edssentials/edssentials-api/internal/model"
	"github.com/edssentials/edssentials-api/internal/service"
)

// invalidLoginMessage is the only message a failed login ever returns.
const invalidLoginMessage = "Invalid email or password"

// retryAfterSeconds is advertised when the user store is unavailable.
const retryAfterSeconds = 5

// AccountService is the subset of service.AuthService used by the auth handlers.
type AccountService interface {
	Login(ctx context.Context, email, password string) (*service.LoginResult, error)
	Register(ctx context.Context, input service.RegisterInput) (*model.User, error)
	GetUser(ctx context.Context, id string) (*model.User, error)
}

// AccountLimiter throttles login attempts per account.
type AccountLimiter interface {
	CheckAccountLoginRateLimit(ctx context.Context, email string, perMinute, burst int) (*cache.RateLimitResult, error)
}

// AccountThrottle configures per-account login throttling.
// A nil Limiter or non-positive PerMinute disables it.
type AccountThrottle struct {
	Limiter   AccountLimiter
	Metrics   metrics.Recorder
	PerMinute int
	Burst     int
}

// AuthHandler serves the /api/auth endpoints.
type AuthHandler struct {
	svc      AccountService
	throttle AccountThrottle
	logger   *slog.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(svc AccountService, throttle AccountThrottle, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{svc: svc, throttle: throttle, logger: logger}
}

// Login exchanges credentials for a bearer token.
// POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req dto.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidJSON, err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		writeValidationError(w, err)
		return
	}

	if !h.allowAccount(w, r, req.Email) {
		return
	}

	result, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.handleLoginError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.LoginResponse{
		Token:     result.Token,
		TokenType: "Bearer",
		ExpiresAt: result.ExpiresAt,
		User:      result.User.ToResponse(),
	})
}

func (h *AuthHandler) allowAccount(w http.ResponseWriter, r *http.Request, email string) bool {
	t := h.throttle
	if t.Limiter == nil || t.PerMinute <= 0 {
		return true
	}

	res, err := t.Limiter.CheckAccountLoginRateLimit(r.Context(), model.NormalizeEmail(email), t.PerMinute, t.Burst)
	if err != nil {
		h.logger.Warn("account rate limit check failed", "error", err)
	}
	if res == nil || res.Allowed {
		return true
	}

	if t.Metrics != nil {
		t.Metrics.IncLoginFailed(metrics.ReasonRateLimited)
	}
	h.logger.Warn("account login rate limit exceeded", "request_id", middleware.GetRequestID(r.Context()))
	middleware.WriteRateLimited(w, res.RetryAfter)
	return false
}

func (h *AuthHandler) handleLoginError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrAccountDisabled):
		writeError(w, http.StatusUnauthorized, CodeUnauthorized, invalidLoginMessage)
	case auth.IsRetryable(err):
		h.logger.Warn("login unavailable", "request_id", middleware.GetRequestID(r.Context()), "error", err)
		writeUnavailable(w)
	default:
		h.logger.Error("login failed", "request_id", middleware.GetRequestID(r.Context()), "error", err)
		writeError(w, http.StatusInternalServerError, CodeInternal, "Internal server error")
	}
}

// Register creates a standard account.
// POST /api/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req dto.RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidJSON, err.Error())
		return
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		writeValidationError(w, err)
		return
	}

	user, err := h.svc.Register(r.Context(), service.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, user.ToResponse())
}

// Me returns the profile of the authenticated user.
// GET /api/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claim := auth.ClaimFromContext(r.Context())
	if claim == nil {
		writeError(w, http.StatusUnauthorized, CodeUnauthorized, "Authentication required")
		return
	}

	user, err := h.svc.GetUser(r.Context(), claim.UserID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user.ToResponse())
}

func (h *AuthHandler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	handleServiceError(w, r, h.logger, err)
}

// handleServiceError maps service errors to HTTP responses.
func handleServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, service.ErrEmailTaken):
		writeError(w, http.StatusConflict, CodeEmailExists, "Email is already registered")
	case errors.Is(err, service.ErrUserNotFound):
		writeError(w, http.StatusNotFound, CodeUserNotFound, "User not found")
	case errors.Is(err, service.ErrInvalidEmail), errors.Is(err, service.ErrPasswordTooShort):
		writeError(w, http.StatusBadRequest, CodeValidation, err.Error())
	case auth.IsRetryable(err):
		logger.Warn("store unavailable", "request_id", middleware.GetRequestID(r.Context()), "error", err)
		writeUnavailable(w)
	default:
		logger.Error("request failed", "request_id", middleware.GetRequestID(r.Context()), "error", err)
		writeError(w, http.StatusInternalServerError, CodeInternal, "Internal server error")
	}
}

func writeUnavailable(w http.ResponseWriter) {
	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
	writeError(w, http.StatusServiceUnavailable, CodeServiceUnavailable, "Service temporarily unavailable, please retry")
}
