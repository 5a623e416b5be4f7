package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/edssentials/edssentials-api/internal/model"
	"github.com/edssentials/edssentials-api/internal/retry"
)

// Common errors for user store operations.
var (
	ErrUserNotFound = errors.New("user not found")
	// ErrEmailExists is the duplicate-key failure on the unique email index.
	ErrEmailExists = errors.New("email already exists")
	// ErrInvalidRecord indicates a record failed validation at the store boundary.
	ErrInvalidRecord = errors.New("invalid user record")
)

// UserStore is the persistent collection of user records.
type UserStore interface {
	FindUserByEmail(ctx context.Context, email string) (*model.User, error)
	FindUserByID(ctx context.Context, id string) (*model.User, error)
	InsertUser(ctx context.Context, user *model.User) error
	UpdateUserActive(ctx context.Context, id string, active bool) error
	UpdateUserLastLogin(ctx context.Context, id string, at time.Time) error
	UpdateUserPassword(ctx context.Context, id, passwordHash string) error
	ListUsers(ctx context.Context) ([]*model.User, error)
	Ping(ctx context.Context) error
	Name() string
	Close(ctx context.Context) error
}

var (
	_ UserStore = (*Repository)(nil)
	_ UserStore = (*MongoStore)(nil)
)

// Driver names accepted by Open.
const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

// Options configures Open.
type Options struct {
	Driver      string
	DatabaseURL string
	// MongoDatabase is the database holding the users collection.
	MongoDatabase string
}

// Open connects to the store selected by opts.Driver.
func Open(ctx context.Context, opts Options) (UserStore, error) {
	switch opts.Driver {
	case DriverPostgres:
		return New(ctx, opts.DatabaseURL)
	case DriverMongo:
		return NewMongo(ctx, opts.DatabaseURL, opts.MongoDatabase)
	default:
		return nil, fmt.Errorf("unsupported store driver %q: %w", opts.Driver, retry.ErrPermanent)
	}
}

// prepareInsert validates user and fills the store-assigned fields.
func prepareInsert(user *model.User) error {
	if user == nil {
		return fmt.Errorf("%w: nil user", ErrInvalidRecord)
	}

	user.Email = model.NormalizeEmail(user.Email)
	if user.Email == "" || !strings.Contains(user.Email, "@") {
		return fmt.Errorf("%w: email is required", ErrInvalidRecord)
	}
	if user.PasswordHash == "" {
		return fmt.Errorf("%w: password hash is required", ErrInvalidRecord)
	}
	if !user.Role.IsValid() {
		return fmt.Errorf("%w: unknown role %q", ErrInvalidRecord, user.Role)
	}

	if user.ID == "" {
		user.ID = ulid.Make().String()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	return nil
}

// decodeRole validates a stored role string.
func decodeRole(raw string) (model.Role, error) {
	role, ok := model.ParseRole(raw)
	if !ok {
		return "", fmt.Errorf("%w: unknown role %q", ErrInvalidRecord, raw)
	}
	return role, nil
}
