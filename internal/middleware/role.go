package middleware

import (
	"log/slog"
	"net/http"

	"github.com/edssentials/edssentials-api/internal/auth"
	"github.com/edssentials/edssentials-api/internal/metrics"
	"github.com/edssentials/edssentials-api/internal/model"
)

// RoleConfig holds configuration for role checks.
type RoleConfig struct {
	Logger  *slog.Logger
	Metrics metrics.Recorder
}

// RequireRole returns middleware that lets a request through only when its
// claim satisfies required. Must be applied after Authenticate.
func RequireRole(cfg RoleConfig, required model.Role) func(http.Handler) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	recorder := cfg.Metrics
	if recorder == nil {
		recorder = metrics.NewNoop()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claim := auth.ClaimFromContext(r.Context())
			if claim == nil {
				writeUnauthorized(w, "UNAUTHORIZED", "Authentication required", "")
				return
			}

			if !auth.Authorize(claim, required) {
				recorder.IncAuthorizationDenied()
				logger.Warn("authorization denied",
					slog.String("user_id", claim.UserID),
					slog.String("role", string(claim.Role)),
					slog.String("required", string(required)),
					slog.String("endpoint", r.Method+" "+r.URL.Path),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				writeError(w, http.StatusForbidden, "FORBIDDEN", "Insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin is a convenience middleware for admin-only routes.
func RequireAdmin(cfg RoleConfig) func(http.Handler) http.Handler {
	return RequireRole(cfg, model.RoleAdmin)
}
