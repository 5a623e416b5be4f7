// Package dto provides Data Transfer Objects for API requests and responses.
package dto

import (
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"

	"github.com/edssentials/edssentials-api/internal/model"
)

// Field limits for account requests.
const (
	MinPasswordLength = 8
	MaxPasswordLength = 128
	MaxEmailLength    = 254
	MaxNameLength     = 100
)

// LoginRequest represents the request body for POST /api/auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate checks that both credentials are present. Password rules are not
// applied here so a failed login never reveals them.
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, validation.Length(3, MaxEmailLength)),
		validation.Field(&r.Password, validation.Required, validation.Length(1, MaxPasswordLength)),
	)
}

// RegisterRequest represents the request body for POST /api/auth/register.
type RegisterRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// Normalize trims the free-text fields.
func (r *RegisterRequest) Normalize() {
	r.Email = strings.TrimSpace(r.Email)
	r.FirstName = strings.TrimSpace(r.FirstName)
	r.LastName = strings.TrimSpace(r.LastName)
}

// Validate checks the registration payload.
func (r RegisterRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, validation.Length(3, MaxEmailLength), is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(MinPasswordLength, MaxPasswordLength)),
		validation.Field(&r.FirstName, validation.Length(0, MaxNameLength)),
		validation.Field(&r.LastName, validation.Length(0, MaxNameLength)),
	)
}

// SetActiveRequest represents the request body for PATCH /api/users/{id}/active.
type SetActiveRequest struct {
	IsActive *bool `json:"is_active"`
}

// Validate requires is_active to be present.
func (r SetActiveRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.IsActive, validation.NotNil),
	)
}

// LoginResponse is returned by a successful login.
type LoginResponse struct {
	Token     string             `json:"token"`
	TokenType string             `json:"token_type"`
	ExpiresAt time.Time          `json:"expires_at"`
	User      model.UserResponse `json:"user"`
}

// UserListResponse lists users for administrators.
type UserListResponse struct {
	Data  []model.UserResponse `json:"data"`
	Total int                  `json:"total"`
}

// ToUserList converts users to their public form.
func ToUserList(users []*model.User) UserListResponse {
	data := make([]model.UserResponse, 0, len(users))
	for _, u := range users {
		data = append(data, u.ToResponse())
	}
	return UserListResponse{Data: data, Total: len(data)}
}

// ErrorResponse is the error envelope of every API error.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody carries a machine-readable code and a human message.
// Details holds per-field validation messages when present.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}
