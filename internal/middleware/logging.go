package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/edssentials/edssentials-api/internal/model"
)

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func wrapResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, status: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}
	rw.status = code
	rw.wroteHeader = true
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

// requestIdentity is filled by Authenticate so the outer Logger can report
// who made the request.
type requestIdentity struct {
	userID string
	role   model.Role
}

const identityKey contextKey = "request_identity"

// setLogIdentity records the authenticated caller for the access log.
func setLogIdentity(ctx context.Context, claim *model.IdentityClaim) {
	if id, ok := ctx.Value(identityKey).(*requestIdentity); ok && claim != nil {
		id.userID = claim.UserID
		id.role = claim.Role
	}
}

// Logger returns a middleware that logs HTTP requests.
// Headers and bodies are never logged, so tokens and passwords stay out of logs.
func Logger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			identity := &requestIdentity{}
			r = r.WithContext(context.WithValue(r.Context(), identityKey, identity))

			wrapped := wrapResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			duration := time.Since(start)

			attrs := []slog.Attr{
				slog.String("request_id", GetRequestID(r.Context())),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status_code", wrapped.status),
				slog.Float64("duration_ms", float64(duration.Microseconds())/1000),
				slog.String("remote_addr", r.RemoteAddr),
				slog.String("user_agent", r.UserAgent()),
			}

			if traceID := GetTraceID(r.Context()); traceID != "" {
				attrs = append(attrs, slog.String("trace_id", traceID))
			}
			if identity.userID != "" {
				attrs = append(attrs,
					slog.String("user_id", identity.userID),
					slog.String("role", string(identity.role)),
				)
			}

			level := slog.LevelInfo
			if wrapped.status >= 500 {
				level = slog.LevelError
			} else if wrapped.status >= 400 {
				level = slog.LevelWarn
			}

			logger.LogAttrs(r.Context(), level, "http request", attrs...)
		})
	}
}
