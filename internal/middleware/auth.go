package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/edssentials/edssentials-api/internal/auth"
	"github.com/edssentials/edssentials-api/internal/metrics"
	"github.com/edssentials/edssentials-api/internal/model"
)

// TokenVerifier verifies bearer tokens. *auth.TokenManager implements it.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*model.IdentityClaim, error)
}

// AuthConfig holds configuration for the auth middleware.
type AuthConfig struct {
	Logger   *slog.Logger
	Verifier TokenVerifier
	Metrics  metrics.Recorder
}

// Authenticate returns a middleware that verifies the bearer token and
// stores its claim in the request context.
//
// Expired tokens answer 401 TOKEN_EXPIRED so clients know to log in again;
// any other token failure answers 401 INVALID_TOKEN.
func Authenticate(cfg AuthConfig) func(http.Handler) http.Handler {
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
			token, ok := bearerToken(r)
			if !ok {
				logAuthFailure(logger, r, "missing_token")
				writeUnauthorized(w, "UNAUTHORIZED", "Authentication required", "")
				return
			}

			claim, err := cfg.Verifier.Verify(r.Context(), token)
			switch {
			case err == nil:
			case errors.Is(err, auth.ErrTokenExpired):
				recorder.IncTokenRejected(metrics.ReasonTokenExpired)
				logAuthFailure(logger, r, "token_expired")
				writeUnauthorized(w, "TOKEN_EXPIRED", "Token expired, please log in again", "token expired")
				return
			case errors.Is(err, auth.ErrTokenInvalidSignature):
				recorder.IncTokenRejected(metrics.ReasonTokenSignature)
				logAuthFailure(logger, r, "invalid_signature")
				writeUnauthorized(w, "INVALID_TOKEN", "Invalid token, please log in again", "invalid token")
				return
			case errors.Is(err, auth.ErrTokenMalformed):
				recorder.IncTokenRejected(metrics.ReasonTokenMalformed)
				logAuthFailure(logger, r, "malformed_token")
				writeUnauthorized(w, "INVALID_TOKEN", "Invalid token, please log in again", "invalid token")
				return
			default:
				logger.Error("token verification failed",
					slog.String("error", err.Error()),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				w.Header().Set("Retry-After", "1")
				writeError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Service temporarily unavailable")
				return
			}

			setLogIdentity(r.Context(), claim)
			ctx := auth.ContextWithClaim(r.Context(), claim)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken extracts the token from "Authorization: Bearer <token>".
// The scheme is matched case-insensitively.
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func logAuthFailure(logger *slog.Logger, r *http.Request, reason string) {
	logger.Warn("authentication failed",
		slog.String("reason", reason),
		slog.String("ip", r.RemoteAddr),
		slog.String("endpoint", r.Method+" "+r.URL.Path),
		slog.String("request_id", GetRequestID(r.Context())),
	)
}

// writeUnauthorized writes a 401 with a Bearer challenge.
func writeUnauthorized(w http.ResponseWriter, code, message, description string) {
	challenge := `Bearer realm="edssentials"`
	if description != "" {
		challenge += `, error="invalid_token", error_description="` + description + `"`
	}
	w.Header().Set("WWW-Authenticate", challenge)
	writeError(w, http.StatusUnauthorized, code, message)
}
