package model

import "time"

// IdentityClaim is the verified identity carried by a token.
// It is never persisted.
type IdentityClaim struct {
	UserID    string
	Role      Role
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Expired reports whether the claim is no longer valid at now.
func (c *IdentityClaim) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}
