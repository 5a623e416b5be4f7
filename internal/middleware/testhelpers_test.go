package middleware

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/edssentials/edssentials-api/internal/auth"
	"github.com/edssentials/edssentials-api/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubVerifier maps raw tokens to claims or errors.
type stubVerifier struct {
	claims map[string]*model.IdentityClaim
	errs   map[string]error
}

func (v *stubVerifier) Verify(_ context.Context, token string) (*model.IdentityClaim, error) {
	if err, ok := v.errs[token]; ok {
		return nil, err
	}
	if claim, ok := v.claims[token]; ok {
		return claim, nil
	}
	return nil, auth.ErrTokenMalformed
}

// claimEcho writes the authenticated user ID.
var claimEcho = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	_, _ = w.Write([]byte(auth.UserIDFromContext(r.Context())))
})
