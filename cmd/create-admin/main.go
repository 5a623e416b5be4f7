// Command create-admin ensures the default administrator account exists.
// Running it again is a no-op once the account is there.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/edssentials/edssentials-api/internal/auth"
	"github.com/edssentials/edssentials-api/internal/config"
	"github.com/edssentials/edssentials-api/internal/model"
	"github.com/edssentials/edssentials-api/internal/repository"
	"github.com/edssentials/edssentials-api/internal/service"
)

type output struct {
	Created bool               `json:"created"`
	User    model.UserResponse `json:"user"`
	// Password is echoed only for the run that created the account.
	Password string `json:"password,omitempty"`
	Warning  string `json:"warning,omitempty"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		if auth.IsRetryable(err) {
			fmt.Fprintln(os.Stderr, "the user store is unavailable; retry later")
		}
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadBootstrap()
	if err != nil {
		return err
	}

	var (
		email    = flag.String("email", cfg.AdminEmail, "Administrator email (ADMIN_EMAIL)")
		password = flag.String("password", cfg.AdminPassword, "Administrator password, required when the account is created (ADMIN_PASSWORD)")
		format   = flag.String("format", "plain", "Output format: plain or json")
	)
	flag.Parse()

	outFormat := strings.ToLower(*format)
	if outFormat != "plain" && outFormat != "json" {
		return errors.New("invalid format; use plain or json")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, 2*cfg.StoreTimeout+10*time.Second)
	defer cancel()

	driver, _ := config.DriverFor(cfg.DatabaseURL)
	store, err := repository.Open(ctx, repository.Options{
		Driver:        driver,
		DatabaseURL:   cfg.DatabaseURL,
		MongoDatabase: cfg.MongoDBName,
	})
	if err != nil {
		return fmt.Errorf("connect user store: %w", err)
	}
	defer store.Close(context.WithoutCancel(ctx))

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	bootstrapper := service.NewBootstrapper(store, auth.DefaultHasher, service.AuthOptions{
		StoreTimeout: cfg.StoreTimeout,
		Logger:       logger,
	})

	result, err := bootstrapper.EnsureAdminExists(ctx, *email, *password)
	if err != nil {
		return fmt.Errorf("create admin: %w", err)
	}

	return report(os.Stdout, outFormat, result, *password)
}

// report writes the bootstrap outcome. The password is printed only when
// this run created the account.
func report(w io.Writer, format string, result *service.BootstrapResult, password string) error {
	out := output{
		Created: result.Created,
		User:    result.User.ToResponse(),
	}
	if result.Created {
		out.Password = password
	}
	if !result.IsActiveAdmin() {
		out.Warning = fmt.Sprintf("account %s exists but is not an active admin (role=%s, active=%t)",
			result.User.Email, result.User.Role, result.User.IsActive)
	}

	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	if out.Created {
		fmt.Fprintln(w, "Admin user created")
		fmt.Fprintf(w, "  Email:    %s\n", out.User.Email)
		fmt.Fprintf(w, "  Password: %s\n", out.Password)
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Change the password after the first login.")
		return nil
	}

	fmt.Fprintln(w, "Admin user already exists")
	fmt.Fprintf(w, "  Email: %s\n", out.User.Email)
	fmt.Fprintf(w, "  Name:  %s\n", result.User.FullName())
	fmt.Fprintf(w, "  Role:  %s\n", out.User.Role)
	if out.Warning != "" {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "WARNING:", out.Warning)
	}
	return nil
}
