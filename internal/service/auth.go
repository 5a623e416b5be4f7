// Package service provides business logic for the application.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"

	"github.com/edssentials/edssentials-api/internal/auth"
	"github.com/edssentials/edssentials-api/internal/metrics"
	"github.com/edssentials/edssentials-api/internal/model"
	"github.com/edssentials/edssentials-api/internal/repository"
)

// MinPasswordLength is the shortest password accepted at registration.
const MinPasswordLength = 8

// DefaultStoreTimeout bounds a single store round-trip when none is configured.
const DefaultStoreTimeout = 5 * time.Second

// dummyPassword is hashed once so unknown emails cost the same as wrong passwords.
const dummyPassword = "edssentials-timing-equalizer"

// Service errors.
var (
	ErrInvalidEmail     = errors.New("invalid email address")
	ErrPasswordTooShort = fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	ErrEmailTaken       = errors.New("email already registered")
	ErrUserNotFound     = errors.New("user not found")
)

// UserStore is the part of the user store the services depend on.
type UserStore interface {
	FindUserByEmail(ctx context.Context, email string) (*model.User, error)
	FindUserByID(ctx context.Context, id string) (*model.User, error)
	InsertUser(ctx context.Context, user *model.User) error
	UpdateUserActive(ctx context.Context, id string, active bool) error
	UpdateUserLastLogin(ctx context.Context, id string, at time.Time) error
	UpdateUserPassword(ctx context.Context, id, passwordHash string) error
	ListUsers(ctx context.Context) ([]*model.User, error)
}

// PasswordHasher hashes and checks passwords. *auth.Hasher implements it.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Check(password, encodedHash string) (bool, error)
	NeedsRehash(encodedHash string) bool
}

// TokenIssuer builds and signs claims. *auth.TokenManager implements it.
type TokenIssuer interface {
	NewClaim(userID string, role model.Role) *model.IdentityClaim
	Issue(claim *model.IdentityClaim) (string, error)
}

// AuthOptions configures an AuthService.
type AuthOptions struct {
	// StoreTimeout bounds each store round-trip. Zero means DefaultStoreTimeout.
	StoreTimeout time.Duration
	Metrics      metrics.Recorder
	Logger       *slog.Logger
}

// AuthService authenticates users and manages accounts.
type AuthService struct {
	store   UserStore
	hasher  PasswordHasher
	tokens  TokenIssuer
	timeout time.Duration
	metrics metrics.Recorder
	logger  *slog.Logger

	dummyOnce sync.Once
	dummyHash string

	// background tracks best-effort writes started after a login.
	// closed is set by Wait; later logins skip the writes.
	bgMu       sync.Mutex
	closed     bool
	background sync.WaitGroup
}

// NewAuthService creates a new AuthService.
func NewAuthService(store UserStore, hasher PasswordHasher, tokens TokenIssuer, opts AuthOptions) *AuthService {
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = DefaultStoreTimeout
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewNoop()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &AuthService{
		store:   store,
		hasher:  hasher,
		tokens:  tokens,
		timeout: opts.StoreTimeout,
		metrics: opts.Metrics,
		logger:  opts.Logger,
	}
}

// LoginResult is returned by a successful Login.
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	User      *model.User
}

// Authenticate checks email and password and returns a fresh claim.
//
// Unknown email and wrong password both return auth.ErrInvalidCredentials;
// an inactive account returns auth.ErrAccountDisabled. Store failures return
// auth.ErrTimeout or auth.ErrStoreUnavailable.
func (s *AuthService) Authenticate(ctx context.Context, email, password string) (*model.IdentityClaim, error) {
	user, err := s.authenticate(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return s.tokens.NewClaim(user.ID, user.Role), nil
}

// Login authenticates and issues a signed token.
func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	user, err := s.authenticate(ctx, email, password)
	if err != nil {
		return nil, err
	}

	claim := s.tokens.NewClaim(user.ID, user.Role)
	token, err := s.tokens.Issue(claim)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	s.metrics.IncTokenIssued()

	return &LoginResult{Token: token, ExpiresAt: claim.ExpiresAt, User: user}, nil
}

func (s *AuthService) authenticate(ctx context.Context, email, password string) (*model.User, error) {
	email = model.NormalizeEmail(email)

	user, err := s.findByEmail(ctx, email)
	if errors.Is(err, repository.ErrUserNotFound) {
		s.checkPassword(password, s.dummy())
		s.loginFailed(metrics.ReasonInvalidCredentials)
		return nil, auth.ErrInvalidCredentials
	}
	if err != nil {
		s.loginFailed(metrics.ReasonUnavailable)
		s.logger.Warn("login lookup failed", "error", err)
		return nil, err
	}

	// The hash is checked even for disabled accounts so both paths cost the same.
	ok, checkErr := s.checkPassword(password, user.PasswordHash)
	if checkErr != nil {
		s.logger.Error("stored password hash is unreadable", "user_id", user.ID, "error", checkErr)
	}

	if !user.IsActive {
		s.loginFailed(metrics.ReasonAccountDisabled)
		s.logger.Info("login refused for disabled account", "user_id", user.ID)
		return nil, auth.ErrAccountDisabled
	}

	if !ok {
		s.loginFailed(metrics.ReasonInvalidCredentials)
		return nil, auth.ErrInvalidCredentials
	}

	if err := auth.ContextError(ctx); err != nil {
		s.loginFailed(metrics.ReasonUnavailable)
		return nil, err
	}

	s.metrics.IncLoginSucceeded()
	s.afterLogin(ctx, user, password)

	return user, nil
}

// afterLogin records the login time and upgrades legacy hashes without
// holding up the response. Failures are logged and otherwise ignored.
func (s *AuthService) afterLogin(ctx context.Context, user *model.User, password string) {
	now := time.Now().UTC()
	rehash := s.hasher.NeedsRehash(user.PasswordHash)
	user.LastLoginAt = &now

	s.bgMu.Lock()
	if s.closed {
		s.bgMu.Unlock()
		s.logger.Warn("skipping last login update during shutdown", "user_id", user.ID)
		return
	}
	s.background.Add(1)
	s.bgMu.Unlock()

	go func() {
		defer s.background.Done()

		bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()

		if err := s.store.UpdateUserLastLogin(bg, user.ID, now); err != nil {
			s.logger.Warn("failed to record last login", "user_id", user.ID, "error", err)
		}

		if !rehash {
			return
		}
		hash, err := s.hasher.Hash(password)
		if err != nil {
			s.logger.Warn("failed to rehash password", "user_id", user.ID, "error", err)
			return
		}
		if err := s.store.UpdateUserPassword(bg, user.ID, hash); err != nil {
			s.logger.Warn("failed to store upgraded password hash", "user_id", user.ID, "error", err)
			return
		}
		s.logger.Info("upgraded password hash", "user_id", user.ID)
	}()
}

// Wait stops new background writes and blocks until those already started
// by Login have finished. Logins after Wait still succeed without them.
func (s *AuthService) Wait() {
	s.bgMu.Lock()
	s.closed = true
	s.bgMu.Unlock()
	s.background.Wait()
}

// RegisterInput defines input for creating a standard account.
type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// Register creates an active standard account.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*model.User, error) {
	email := model.NormalizeEmail(input.Email)
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if err := ValidatePassword(input.Password); err != nil {
		return nil, err
	}

	hash, err := s.hashPassword(ctx, input.Password)
	if err != nil {
		return nil, err
	}

	user := &model.User{
		Email:        email,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(input.FirstName),
		LastName:     strings.TrimSpace(input.LastName),
		Role:         model.RoleStandard,
		IsActive:     true,
	}

	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.store.InsertUser(opCtx, user); err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return nil, ErrEmailTaken
		}
		return nil, classifyStoreError(opCtx, "insert user", err)
	}

	s.metrics.IncUserRegistered()
	s.logger.Info("user registered", "user_id", user.ID)

	return user, nil
}

// GetUser returns the user with id.
func (s *AuthService) GetUser(ctx context.Context, id string) (*model.User, error) {
	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	user, err := s.store.FindUserByID(opCtx, id)
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, classifyStoreError(opCtx, "find user", err)
	}
	return user, nil
}

// ListUsers returns every user, newest first.
func (s *AuthService) ListUsers(ctx context.Context) ([]*model.User, error) {
	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	users, err := s.store.ListUsers(opCtx)
	if err != nil {
		return nil, classifyStoreError(opCtx, "list users", err)
	}
	return users, nil
}

// SetActive enables or disables an account and returns the updated record.
func (s *AuthService) SetActive(ctx context.Context, id string, active bool) (*model.User, error) {
	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.store.UpdateUserActive(opCtx, id, active); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, classifyStoreError(opCtx, "update user active flag", err)
	}

	s.logger.Info("user active flag changed", "user_id", id, "is_active", active)

	user, err := s.store.FindUserByID(opCtx, id)
	if err != nil {
		return nil, classifyStoreError(opCtx, "find user", err)
	}
	return user, nil
}

func (s *AuthService) findByEmail(ctx context.Context, email string) (*model.User, error) {
	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	user, err := s.store.FindUserByEmail(opCtx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, err
		}
		return nil, classifyStoreError(opCtx, "find user by email", err)
	}
	return user, nil
}

func (s *AuthService) hashPassword(ctx context.Context, password string) (string, error) {
	start := time.Now()
	hash, err := s.hasher.Hash(password)
	s.metrics.ObserveHashDuration(time.Since(start))
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	if err := auth.ContextError(ctx); err != nil {
		return "", err
	}
	return hash, nil
}

func (s *AuthService) checkPassword(password, encodedHash string) (bool, error) {
	start := time.Now()
	ok, err := s.hasher.Check(password, encodedHash)
	s.metrics.ObserveHashDuration(time.Since(start))
	return ok, err
}

func (s *AuthService) dummy() string {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash(dummyPassword)
		if err != nil {
			s.logger.Error("failed to prepare dummy hash", "error", err)
			return
		}
		s.dummyHash = hash
	})
	return s.dummyHash
}

func (s *AuthService) loginFailed(reason string) {
	s.metrics.IncLoginFailed(reason)
}

// classifyStoreError reports a store failure as a timeout or an outage.
func classifyStoreError(ctx context.Context, op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || ctx.Err() != nil {
		return fmt.Errorf("%s: %w: %w", op, auth.ErrTimeout, err)
	}
	return fmt.Errorf("%s: %w: %w", op, auth.ErrStoreUnavailable, err)
}

// ValidateEmail rejects addresses that cannot be a login key. It applies
// the same rule as request validation at the HTTP boundary.
func ValidateEmail(email string) error {
	if err := validation.Validate(email, validation.Required, is.Email); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEmail, err)
	}
	return nil
}

// ValidatePassword enforces the minimum password length.
func ValidatePassword(password string) error {
	if len([]rune(password)) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	return nil
}
