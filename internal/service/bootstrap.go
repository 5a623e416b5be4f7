package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/edssentials/edssentials-api/internal/metrics"
	"github.com/edssentials/edssentials-api/internal/model"
	"github.com/edssentials/edssentials-api/internal/repository"
)

// Default profile of the bootstrapped administrator.
const (
	DefaultAdminFirstName = "Admin"
	DefaultAdminLastName  = "User"
)

// BootstrapStore is the part of the user store bootstrap needs.
type BootstrapStore interface {
	FindUserByEmail(ctx context.Context, email string) (*model.User, error)
	InsertUser(ctx context.Context, user *model.User) error
}

// BootstrapResult reports the outcome of EnsureAdminExists.
type BootstrapResult struct {
	// Created is true only for the run that inserted the record.
	Created bool
	User    *model.User
}

// IsActiveAdmin reports whether the account found or created is an active admin.
// An existing account with the bootstrap email counts as success even when it is not.
func (r *BootstrapResult) IsActiveAdmin() bool {
	return r.User != nil && r.User.Role == model.RoleAdmin && r.User.IsActive
}

// Bootstrapper creates the default administrator.
type Bootstrapper struct {
	store   BootstrapStore
	hasher  PasswordHasher
	timeout time.Duration
	metrics metrics.Recorder
	logger  *slog.Logger
}

// NewBootstrapper creates a Bootstrapper. Options follow NewAuthService.
func NewBootstrapper(store BootstrapStore, hasher PasswordHasher, opts AuthOptions) *Bootstrapper {
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = DefaultStoreTimeout
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewNoop()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Bootstrapper{
		store:   store,
		hasher:  hasher,
		timeout: opts.StoreTimeout,
		metrics: opts.Metrics,
		logger:  opts.Logger,
	}
}

// EnsureAdminExists creates an active admin with email and password unless
// a user with that email already exists. Repeated and concurrent runs leave
// exactly one record.
func (b *Bootstrapper) EnsureAdminExists(ctx context.Context, email, password string) (*BootstrapResult, error) {
	email = model.NormalizeEmail(email)
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}

	existing, err := b.find(ctx, email)
	if err == nil {
		b.logger.Info("admin bootstrap skipped, user exists", "user_id", existing.ID)
		return &BootstrapResult{Created: false, User: existing}, nil
	}
	if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, err
	}

	if err := ValidatePassword(password); err != nil {
		return nil, fmt.Errorf("admin password: %w", err)
	}

	start := time.Now()
	hash, err := b.hasher.Hash(password)
	b.metrics.ObserveHashDuration(time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("hash admin password: %w", err)
	}

	user := &model.User{
		Email:        email,
		PasswordHash: hash,
		FirstName:    DefaultAdminFirstName,
		LastName:     DefaultAdminLastName,
		Role:         model.RoleAdmin,
		IsActive:     true,
	}

	opCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	err = b.store.InsertUser(opCtx, user)
	switch {
	case err == nil:
		b.metrics.IncAdminBootstrapped()
		b.logger.Info("admin user created", "user_id", user.ID)
		return &BootstrapResult{Created: true, User: user}, nil
	case errors.Is(err, repository.ErrEmailExists):
		// Another run inserted the record between our lookup and insert.
		winner, findErr := b.find(ctx, email)
		if findErr != nil {
			return nil, findErr
		}
		return &BootstrapResult{Created: false, User: winner}, nil
	default:
		return nil, classifyStoreError(opCtx, "insert admin", err)
	}
}

func (b *Bootstrapper) find(ctx context.Context, email string) (*model.User, error) {
	opCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	user, err := b.store.FindUserByEmail(opCtx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, err
		}
		return nil, classifyStoreError(opCtx, "find user by email", err)
	}
	return user, nil
}
