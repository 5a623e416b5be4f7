// Command list-users prints every account in the user store.
// Password hashes are never printed.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/edssentials/edssentials-api/internal/config"
	"github.com/edssentials/edssentials-api/internal/handler/dto"
	"github.com/edssentials/edssentials-api/internal/model"
	"github.com/edssentials/edssentials-api/internal/repository"
)

const ruleWidth = 80

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadBootstrap()
	if err != nil {
		return err
	}

	format := flag.String("format", "plain", "Output format: plain or json")
	flag.Parse()

	outFormat := strings.ToLower(*format)
	if outFormat != "plain" && outFormat != "json" {
		return errors.New("invalid format; use plain or json")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cfg.StoreTimeout+10*time.Second)
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

	listCtx, listCancel := context.WithTimeout(ctx, cfg.StoreTimeout)
	defer listCancel()

	users, err := store.ListUsers(listCtx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}

	return printUsers(os.Stdout, outFormat, users)
}

func printUsers(w io.Writer, format string, users []*model.User) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(dto.ToUserList(users))
	}

	rule := strings.Repeat("=", ruleWidth)

	fmt.Fprintln(w, "TOTAL USERS:", len(users))
	fmt.Fprintln(w, rule)

	if len(users) == 0 {
		fmt.Fprintln(w, "No users found. Register a user or run create-admin first.")
	}

	for i, u := range users {
		fmt.Fprintf(w, "\nUser %d:\n", i+1)
		fmt.Fprintf(w, "   ID:      %s\n", u.ID)
		fmt.Fprintf(w, "   Name:    %s\n", u.FullName())
		fmt.Fprintf(w, "   Email:   %s\n", u.Email)
		fmt.Fprintf(w, "   Role:    %s\n", u.Role)
		fmt.Fprintf(w, "   Active:  %t\n", u.IsActive)
		fmt.Fprintf(w, "   Created: %s\n", u.CreatedAt.Format(time.RFC3339))
		if u.LastLoginAt != nil {
			fmt.Fprintf(w, "   Last login: %s\n", u.LastLoginAt.Format(time.RFC3339))
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, rule)
	return nil
}
