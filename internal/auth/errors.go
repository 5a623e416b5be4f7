package auth

import (
	"context"
	"errors"
)

// Authentication outcomes. Callers at the HTTP boundary must collapse
// ErrInvalidCredentials and ErrAccountDisabled into one unauthorized response.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountDisabled    = errors.New("account disabled")
)

// Token verification outcomes.
var (
	ErrTokenExpired          = errors.New("token expired")
	ErrTokenMalformed        = errors.New("token malformed")
	ErrTokenInvalidSignature = errors.New("token signature invalid")
)

// Infrastructure failures. These are retryable and never mean the
// credentials were wrong.
var (
	ErrStoreUnavailable = errors.New("user store unavailable")
	ErrTimeout          = errors.New("operation timed out")
)

// IsRetryable reports whether err is an infrastructure failure the caller may retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable) || errors.Is(err, ErrTimeout)
}

// IsTokenError reports whether err is one of the token verification outcomes.
func IsTokenError(err error) bool {
	return errors.Is(err, ErrTokenExpired) ||
		errors.Is(err, ErrTokenMalformed) ||
		errors.Is(err, ErrTokenInvalidSignature)
}

// ContextError converts a context failure into ErrTimeout.
// Returns nil when ctx is still live.
func ContextError(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return errors.Join(ErrTimeout, err)
	}
	return nil
}
