// Package config provides application configuration management.
// Configuration is loaded from environment variables following 12-factor principles.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// MinSecretLength is the shortest JWT signing secret accepted (256 bits for HS256).
const MinSecretLength = 32

// Store drivers selected from the DATABASE_URL scheme.
const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

var (
	// ErrSecretTooShort indicates JWT_SECRET is below MinSecretLength.
	ErrSecretTooShort = fmt.Errorf("JWT_SECRET must be at least %d bytes", MinSecretLength)
	// ErrInvalidTokenTTL indicates TOKEN_TTL is not positive.
	ErrInvalidTokenTTL = errors.New("TOKEN_TTL must be positive")
	// ErrInvalidStoreTimeout indicates STORE_TIMEOUT is not positive.
	ErrInvalidStoreTimeout = errors.New("STORE_TIMEOUT must be positive")
	// ErrUnsupportedDatabase indicates DATABASE_URL has an unknown scheme.
	ErrUnsupportedDatabase = errors.New("DATABASE_URL must start with postgres://, postgresql://, mongodb:// or mongodb+srv://")
)

// Config holds all application configuration.
// All fields are populated from environment variables.
type Config struct {
	// Application settings
	AppEnv  string `env:"APP_ENV" envDefault:"development"`
	AppPort int    `env:"APP_PORT" envDefault:"5000"`

	// User record store (PostgreSQL or MongoDB, picked by scheme)
	DatabaseURL  string        `env:"DATABASE_URL,required"`
	MongoDBName  string        `env:"MONGODB_DATABASE" envDefault:"edssentials"`
	StoreTimeout time.Duration `env:"STORE_TIMEOUT" envDefault:"5s"`
	// ConnectAttempts bounds startup connection attempts to the store and cache.
	ConnectAttempts int `env:"CONNECT_ATTEMPTS" envDefault:"5"`

	// Cache (Redis). Empty disables login throttling.
	RedisURL string `env:"REDIS_URL" envDefault:""`

	// Token signing
	JWTSecret string        `env:"JWT_SECRET,required,unset"`
	JWTIssuer string        `env:"JWT_ISSUER" envDefault:"edssentials-api"`
	TokenTTL  time.Duration `env:"TOKEN_TTL" envDefault:"24h"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Server timeouts
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Login throttling per client IP
	LoginRateLimitEnabled bool `env:"LOGIN_RATE_LIMIT_ENABLED" envDefault:"true"`
	LoginRateLimitRPS     int  `env:"LOGIN_RATE_LIMIT_RPS" envDefault:"1"`
	LoginRateLimitBurst   int  `env:"LOGIN_RATE_LIMIT_BURST" envDefault:"10"`

	// Login throttling per account. Zero disables it.
	AccountRateLimitPerMinute int `env:"LOGIN_ACCOUNT_RATE_LIMIT_PER_MINUTE" envDefault:"5"`
	AccountRateLimitBurst     int `env:"LOGIN_ACCOUNT_RATE_LIMIT_BURST" envDefault:"10"`

	// CORS configuration
	// Comma-separated list of allowed origins (e.g., "https://example.com,https://app.example.com")
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:"http://localhost:3000"`

	// Request body size limit in bytes (default 10MB)
	MaxRequestBodySize int64 `env:"MAX_REQUEST_BODY_SIZE" envDefault:"10485760"`
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// StoreDriver reports which user store DATABASE_URL points at.
func (c *Config) StoreDriver() (string, error) {
	return DriverFor(c.DatabaseURL)
}

// GetCORSAllowedOrigins parses the comma-separated origins string into a slice.
func (c *Config) GetCORSAllowedOrigins() []string {
	if c.CORSAllowedOrigins == "" {
		return nil
	}

	origins := strings.Split(c.CORSAllowedOrigins, ",")
	result := make([]string, 0, len(origins))

	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

// Validate checks cross-field constraints env tags cannot express.
func (c *Config) Validate() error {
	if len(c.JWTSecret) < MinSecretLength {
		return ErrSecretTooShort
	}
	if c.TokenTTL <= 0 {
		return ErrInvalidTokenTTL
	}
	if c.StoreTimeout <= 0 {
		return ErrInvalidStoreTimeout
	}
	if _, err := c.StoreDriver(); err != nil {
		return err
	}
	return nil
}

// Load parses environment variables and returns a validated Config.
// Returns an error if required variables are missing.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// BootstrapConfig holds configuration for the operator commands
// (create-admin, list-users). They never sign tokens, so JWT_SECRET is not needed.
type BootstrapConfig struct {
	DatabaseURL   string        `env:"DATABASE_URL,required"`
	MongoDBName   string        `env:"MONGODB_DATABASE" envDefault:"edssentials"`
	StoreTimeout  time.Duration `env:"STORE_TIMEOUT" envDefault:"10s"`
	AdminEmail    string        `env:"ADMIN_EMAIL" envDefault:"admin@edssentials.com"`
	AdminPassword string        `env:"ADMIN_PASSWORD,unset"`
}

// LoadBootstrap parses environment variables for the operator commands.
func LoadBootstrap() (*BootstrapConfig, error) {
	cfg := &BootstrapConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if _, err := DriverFor(cfg.DatabaseURL); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// DriverFor maps a connection string to a store driver name.
func DriverFor(databaseURL string) (string, error) {
	lower := strings.ToLower(databaseURL)
	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return DriverPostgres, nil
	case strings.HasPrefix(lower, "mongodb://"), strings.HasPrefix(lower, "mongodb+srv://"):
		return DriverMongo, nil
	default:
		return "", ErrUnsupportedDatabase
	}
}
