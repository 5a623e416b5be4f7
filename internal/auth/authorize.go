package auth

import "github.com/edssentials/edssentials-api/internal/model"

// Authorize reports whether claim grants the required role.
// Admin satisfies every requirement; standard satisfies only standard.
func Authorize(claim *model.IdentityClaim, required model.Role) bool {
	if claim == nil {
		return false
	}
	return RoleSatisfies(claim.Role, required)
}

// RoleSatisfies compares two roles without a claim.
func RoleSatisfies(have, required model.Role) bool {
	if !have.IsValid() || !required.IsValid() {
		return false
	}
	if have == model.RoleAdmin {
		return true
	}
	return have == required
}
