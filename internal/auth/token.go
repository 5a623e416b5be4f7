package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/edssentials/edssentials-api/internal/model"
)

// TokenConfig configures a TokenManager. It is read once at startup;
// changing Secret invalidates every token issued with the old one.
type TokenConfig struct {
	Secret []byte
	TTL    time.Duration
	Issuer string
	// Now overrides the clock, for tests. Defaults to time.Now.
	Now func() time.Time
}

// TokenManager issues and verifies signed, time-bounded tokens.
// It is immutable after construction and safe for concurrent use.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
	parser *jwt.Parser
}

// tokenClaims is the JWT payload.
type tokenClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// NewTokenManager creates a TokenManager from cfg.
func NewTokenManager(cfg TokenConfig) (*TokenManager, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("token secret is required")
	}
	if cfg.TTL <= 0 {
		return nil, errors.New("token TTL must be positive")
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	secret := make([]byte, len(cfg.Secret))
	copy(secret, cfg.Secret)

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(now),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}

	return &TokenManager{
		secret: secret,
		ttl:    cfg.TTL,
		issuer: cfg.Issuer,
		now:    now,
		parser: jwt.NewParser(opts...),
	}, nil
}

// TTL returns the configured token lifetime.
func (m *TokenManager) TTL() time.Duration {
	return m.ttl
}

// NewClaim builds a claim for userID that expires TTL from now.
// Times are truncated to whole seconds, the precision a token carries.
func (m *TokenManager) NewClaim(userID string, role model.Role) *model.IdentityClaim {
	issuedAt := m.now().Truncate(time.Second)
	return &model.IdentityClaim{
		UserID:    userID,
		Role:      role,
		IssuedAt:  issuedAt,
		ExpiresAt: issuedAt.Add(m.ttl),
	}
}

// Issue signs claim into a token.
func (m *TokenManager) Issue(claim *model.IdentityClaim) (string, error) {
	if claim == nil || claim.UserID == "" {
		return "", errors.New("claim must carry a user ID")
	}
	if !claim.Role.IsValid() {
		return "", fmt.Errorf("invalid role %q", claim.Role)
	}

	payload := tokenClaims{
		Role: string(claim.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   claim.UserID,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(claim.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(claim.ExpiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, payload).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks the token signature and expiry and returns its claim.
// Returns ErrTokenExpired, ErrTokenInvalidSignature or ErrTokenMalformed,
// or ErrTimeout when ctx is already done.
func (m *TokenManager) Verify(ctx context.Context, token string) (*model.IdentityClaim, error) {
	if err := ContextError(ctx); err != nil {
		return nil, err
	}
	if token == "" {
		return nil, ErrTokenMalformed
	}

	var payload tokenClaims
	_, err := m.parser.ParseWithClaims(token, &payload, func(*jwt.Token) (any, error) {
		return m.secret, nil
	})
	if err != nil {
		return nil, classifyTokenError(err)
	}

	role, ok := model.ParseRole(payload.Role)
	if !ok || payload.Subject == "" || payload.ExpiresAt == nil {
		return nil, ErrTokenMalformed
	}

	claim := &model.IdentityClaim{
		UserID:    payload.Subject,
		Role:      role,
		ExpiresAt: payload.ExpiresAt.Time,
	}
	if payload.IssuedAt != nil {
		claim.IssuedAt = payload.IssuedAt.Time
	}

	// jwt accepts now == exp; a claim is only valid strictly before expiry.
	if claim.Expired(m.now()) {
		return nil, ErrTokenExpired
	}

	return claim, nil
}

func classifyTokenError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrTokenInvalidSignature
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	default:
		return ErrTokenMalformed
	}
}
