//go:build integration

package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/edssentials/edssentials-api/internal/model"
	"github.com/edssentials/edssentials-api/internal/testutil"
)

func TestIntegrationPostgresUserStore(t *testing.T) {
	ctx := context.Background()
	dbURL := testutil.RequireEnv(t, "DATABASE_URL")

	repo, err := New(ctx, dbURL)
	if err != nil {
		t.Fatalf("connect postgres: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close(ctx) })

	unlock, err := testutil.AcquireDBLock(ctx, repo.Pool())
	if err != nil {
		t.Fatalf("acquire db lock: %v", err)
	}
	t.Cleanup(func() { _ = unlock() })

	if err := testutil.ResetUsersSchema(ctx, repo.Pool()); err != nil {
		t.Fatalf("reset users schema: %v", err)
	}

	runUserStoreSuite(t, repo)
}

func TestIntegrationMongoUserStore(t *testing.T) {
	ctx := context.Background()
	uri := testutil.RequireEnv(t, "MONGODB_URL")

	database := "edssentials_test_" + time.Now().UTC().Format("20060102150405")
	store, err := NewMongo(ctx, uri, database)
	if err != nil {
		t.Fatalf("connect mongo: %v", err)
	}
	t.Cleanup(func() {
		_ = store.client.Database(database).Drop(ctx)
		_ = store.Close(ctx)
	})

	runUserStoreSuite(t, store)
}

func runUserStoreSuite(t *testing.T, store UserStore) {
	ctx := context.Background()

	user := &model.User{
		Email:        "A@X.com",
		PasswordHash: "$argon2id$hash",
		FirstName:    "Ada",
		LastName:     "X",
		Role:         model.RoleStandard,
		IsActive:     true,
	}
	if err := store.InsertUser(ctx, user); err != nil {
		t.Fatalf("insert user: %v", err)
	}

	byEmail, err := store.FindUserByEmail(ctx, "a@X.COM")
	if err != nil {
		t.Fatalf("find by email: %v", err)
	}
	if byEmail.ID != user.ID || byEmail.Email != "a@x.com" || byEmail.Role != model.RoleStandard {
		t.Errorf("unexpected user: %+v", byEmail)
	}

	byID, err := store.FindUserByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("find by id: %v", err)
	}
	if byID.PasswordHash != "$argon2id$hash" {
		t.Errorf("password hash not stored")
	}

	dup := &model.User{Email: "a@x.COM", PasswordHash: "h", Role: model.RoleAdmin}
	if err := store.InsertUser(ctx, dup); !errors.Is(err, ErrEmailExists) {
		t.Fatalf("expected ErrEmailExists, got %v", err)
	}

	if _, err := store.FindUserByEmail(ctx, "missing@x.com"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}

	if err := store.UpdateUserActive(ctx, user.ID, false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	got, err := store.FindUserByEmail(ctx, "a@x.com")
	if err != nil {
		t.Fatalf("find after deactivate: %v", err)
	}
	if got.IsActive {
		t.Error("expected user to be inactive")
	}

	if err := store.UpdateUserActive(ctx, "does-not-exist", true); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	if err := store.UpdateUserLastLogin(ctx, user.ID, now); err != nil {
		t.Fatalf("update last login: %v", err)
	}
	if err := store.UpdateUserPassword(ctx, user.ID, "$argon2id$new"); err != nil {
		t.Fatalf("update password: %v", err)
	}
	got, err = store.FindUserByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("find after updates: %v", err)
	}
	if got.LastLoginAt == nil || !got.LastLoginAt.Equal(now) {
		t.Errorf("LastLoginAt = %v, want %v", got.LastLoginAt, now)
	}
	if got.PasswordHash != "$argon2id$new" {
		t.Errorf("password hash not updated")
	}

	// Concurrent inserts of one email: exactly one wins.
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.InsertUser(ctx, &model.User{Email: "race@x.com", PasswordHash: "h", Role: model.RoleAdmin, IsActive: true})
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			} else if !errors.Is(err, ErrEmailExists) {
				t.Errorf("unexpected insert error: %v", err)
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Errorf("expected exactly one insert to win, got %d", wins)
	}

	users, err := store.ListUsers(ctx)
	if err != nil {
		t.Fatalf("list users: %v", err)
	}
	if len(users) != 2 {
		t.Errorf("expected 2 users, got %d", len(users))
	}
}
