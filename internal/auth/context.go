package auth

import (
	"context"

	"github.com/edssentials/edssentials-api/internal/model"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// claimContextKey is the context key for storing the verified IdentityClaim.
	claimContextKey contextKey = "identity_claim"
)

// ContextWithClaim adds a verified claim to the context.
func ContextWithClaim(ctx context.Context, claim *model.IdentityClaim) context.Context {
	return context.WithValue(ctx, claimContextKey, claim)
}

// ClaimFromContext retrieves the claim from the context.
// Returns nil if not present.
func ClaimFromContext(ctx context.Context) *model.IdentityClaim {
	claim, ok := ctx.Value(claimContextKey).(*model.IdentityClaim)
	if !ok {
		return nil
	}
	return claim
}

// MustClaimFromContext retrieves the claim from the context.
// Panics if not present (use only when auth middleware has run).
func MustClaimFromContext(ctx context.Context) *model.IdentityClaim {
	claim := ClaimFromContext(ctx)
	if claim == nil {
		panic("identity claim not found - ensure auth middleware is applied")
	}
	return claim
}

// UserIDFromContext is a convenience function to get user ID from context.
// Returns empty string if not authenticated.
func UserIDFromContext(ctx context.Context) string {
	claim := ClaimFromContext(ctx)
	if claim == nil {
		return ""
	}
	return claim.UserID
}
