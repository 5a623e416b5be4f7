// Package main is the entrypoint for the Edssentials API server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"regexp"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/edssentials/edssentials-api/internal/auth"
	"github.com/edssentials/edssentials-api/internal/cache"
	"github.com/edssentials/edssentials-api/internal/config"
	"github.com/edssentials/edssentials-api/internal/handler"
	"github.com/edssentials/edssentials-api/internal/metrics"
	"github.com/edssentials/edssentials-api/internal/middleware"
	"github.com/edssentials/edssentials-api/internal/repository"
	"github.com/edssentials/edssentials-api/internal/retry"
	"github.com/edssentials/edssentials-api/internal/server"
	"github.com/edssentials/edssentials-api/internal/service"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := initLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	driver, err := cfg.StoreDriver()
	if err != nil {
		return err
	}

	// Initialize user store
	var store repository.UserStore
	err = retry.Do(ctx, cfg.ConnectAttempts, func(ctx context.Context) error {
		s, err := repository.Open(ctx, repository.Options{
			Driver:        driver,
			DatabaseURL:   cfg.DatabaseURL,
			MongoDatabase: cfg.MongoDBName,
		})
		if err != nil {
			return err
		}
		store = s
		return nil
	}, retryLogger(logger, "user store", cfg.DatabaseURL))
	if err != nil {
		logger.Error(
			"failed to connect to user store",
			slog.String("driver", driver),
			slog.String("error", sanitizeError(err, cfg.DatabaseURL)),
			slog.String("database_url", redactURL(cfg.DatabaseURL)),
		)
		return fmt.Errorf("connect user store: %w", err)
	}
	logger.Info("connected to user store", "driver", store.Name())

	// Initialize cache. Login throttling is disabled without it.
	var cacheClient *cache.Cache
	if cfg.RedisURL != "" {
		err = retry.Do(ctx, cfg.ConnectAttempts, func(ctx context.Context) error {
			c, err := cache.New(ctx, cfg.RedisURL)
			if err != nil {
				return err
			}
			cacheClient = c
			return nil
		}, retryLogger(logger, "redis", cfg.RedisURL))
		if err != nil {
			logger.Error(
				"failed to connect to Redis",
				slog.String("error", sanitizeError(err, cfg.RedisURL)),
				slog.String("redis_url", redactURL(cfg.RedisURL)),
			)
			_ = store.Close(context.WithoutCancel(ctx))
			return fmt.Errorf("connect redis: %w", err)
		}
		logger.Info("connected to Redis")
	} else {
		logger.Warn("REDIS_URL not set, login throttling disabled")
	}

	tokens, err := auth.NewTokenManager(auth.TokenConfig{
		Secret: []byte(cfg.JWTSecret),
		TTL:    cfg.TokenTTL,
		Issuer: cfg.JWTIssuer,
	})
	if err != nil {
		return fmt.Errorf("token manager: %w", err)
	}

	// Initialize services
	metricsRecorder := metrics.NewInMemory()
	authService := service.NewAuthService(store, auth.DefaultHasher, tokens, service.AuthOptions{
		StoreTimeout: cfg.StoreTimeout,
		Metrics:      metricsRecorder,
		Logger:       logger,
	})

	deps := routerDeps{
		cfg:     cfg,
		logger:  logger,
		tokens:  tokens,
		metrics: metricsRecorder,
		service: authService,
		checks:  []handler.HealthChecker{store},
	}
	if cacheClient != nil {
		deps.limiter = cacheClient
		deps.checks = append(deps.checks, cacheClient)
	}

	srv := server.New(setupRouter(deps), server.Options{
		Port:            cfg.AppPort,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
		Logger:          logger,
	})

	// LIFO: background login writes finish before the store closes.
	srv.OnShutdown(store.Name(), store.Close)
	if cacheClient != nil {
		srv.OnShutdown(cacheClient.Name(), cacheClient.Close)
	}
	srv.OnShutdown("login-writes", func(context.Context) error {
		authService.Wait()
		return nil
	})

	logger.Info("starting server",
		"port", cfg.AppPort,
		"env", cfg.AppEnv,
		"store", store.Name(),
	)

	return srv.Run(ctx)
}

// retryLogger reports a failed connection attempt without leaking credentials.
func retryLogger(logger *slog.Logger, dependency, connURL string) func(int, time.Duration, error) {
	return func(attempt int, delay time.Duration, err error) {
		logger.Warn("dependency not reachable, retrying",
			"dependency", dependency,
			"attempt", attempt,
			"delay", delay,
			"error", sanitizeError(err, connURL),
		)
	}
}

// initLogger initializes the slog logger based on configuration.
func initLogger(cfg *config.Config) *slog.Logger {
	var h slog.Handler

	level := parseLogLevel(cfg.LogLevel)

	opts := &slog.HandlerOptions{
		Level: level,
	}

	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(h)
	slog.SetDefault(logger)

	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// routerDeps carries everything setupRouter wires into handlers.
type routerDeps struct {
	cfg     *config.Config
	logger  *slog.Logger
	tokens  middleware.TokenVerifier
	metrics *metrics.InMemoryRecorder
	service *service.AuthService
	// limiter is nil when Redis is not configured.
	limiter *cache.Cache
	checks  []handler.HealthChecker
}

// setupRouter configures the chi router with all routes and middleware.
func setupRouter(d routerDeps) *chi.Mux {
	cfg, logger := d.cfg, d.logger

	h := handler.New()
	healthHandler := handler.NewHealthHandler(d.checks...)
	metricsHandler := handler.NewMetricsHandler(d.metrics)
	userHandler := handler.NewUserHandler(d.service, logger)

	throttle := handler.AccountThrottle{
		Metrics:   d.metrics,
		PerMinute: cfg.AccountRateLimitPerMinute,
		Burst:     cfg.AccountRateLimitBurst,
	}
	rateLimitCfg := middleware.RateLimitConfig{
		Logger:  logger,
		Metrics: d.metrics,
		Enabled: cfg.LoginRateLimitEnabled,
		RPS:     float64(cfg.LoginRateLimitRPS),
		Burst:   cfg.LoginRateLimitBurst,
	}
	if d.limiter != nil {
		throttle.Limiter = d.limiter
		rateLimitCfg.Limiter = d.limiter
	}
	authHandler := handler.NewAuthHandler(d.service, throttle, logger)

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = cfg.GetCORSAllowedOrigins()

	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.Security(middleware.SecurityConfig{IsDevelopment: cfg.IsDevelopment()}))
	r.Use(middleware.CORS(corsCfg))
	r.Use(middleware.MaxBodySize(cfg.MaxRequestBodySize))

	// Health endpoints (no auth required)
	r.Get("/healthz", healthHandler.Healthz)
	r.Get("/readyz", healthHandler.Readyz)
	r.Get("/metrics", metricsHandler.Metrics)

	// Root info endpoint
	r.Get("/", h.Root)

	authCfg := middleware.AuthConfig{
		Logger:   logger,
		Verifier: d.tokens,
		Metrics:  d.metrics,
	}
	roleCfg := middleware.RoleConfig{
		Logger:  logger,
		Metrics: d.metrics,
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.APIHealth)

		r.Route("/auth", func(r chi.Router) {
			r.With(middleware.RateLimitLogin(rateLimitCfg)).Post("/login", authHandler.Login)
			r.Post("/register", authHandler.Register)
			r.With(middleware.Authenticate(authCfg)).Get("/me", authHandler.Me)
		})

		// User administration (admin role only)
		r.Route("/users", func(r chi.Router) {
			r.Use(middleware.Authenticate(authCfg))
			r.Use(middleware.RequireAdmin(roleCfg))
			r.Get("/", userHandler.List)
			r.Patch("/{id}/active", userHandler.SetActive)
		})
	})

	// 404 and 405 handlers
	r.NotFound(h.NotFound)
	r.MethodNotAllowed(h.MethodNotAllowed)

	return r
}

var passwordPattern = regexp.MustCompile(`(?i)password=[^\s]+`)

func redactURL(raw string) string {
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "[redacted]"
	}

	if parsed.User != nil {
		username := parsed.User.Username()
		if username == "" {
			parsed.User = url.User("redacted")
		} else {
			parsed.User = url.User(username)
		}
	}

	return parsed.String()
}

func sanitizeError(err error, secrets ...string) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		redacted := redactURL(secret)
		if redacted == "" {
			redacted = "[redacted]"
		}
		msg = strings.ReplaceAll(msg, secret, redacted)
	}

	return passwordPattern.ReplaceAllString(msg, "password=redacted")
}
