package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/edssentials/edssentials-api/internal/auth"
	"github.com/edssentials/edssentials-api/internal/metrics"
	"github.com/edssentials/edssentials-api/internal/model"
)

func newTestAuthService(t *testing.T, store *memoryStore) (*AuthService, *metrics.InMemoryRecorder) {
	t.Helper()
	rec := metrics.NewInMemory()
	svc := NewAuthService(store, testHasher(), testTokens(t), AuthOptions{Metrics: rec})
	t.Cleanup(svc.Wait)
	return svc, rec
}

func TestAuthenticate_CaseInsensitiveEmail(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	seeded := seedUser(t, store, "a@x.com", "secret123", model.RoleStandard, true)
	svc, _ := newTestAuthService(t, store)

	claim, err := svc.Authenticate(context.Background(), "A@X.com", "secret123")
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if claim.UserID != seeded.ID {
		t.Errorf("UserID = %q, want %q", claim.UserID, seeded.ID)
	}
	if claim.Role != model.RoleStandard {
		t.Errorf("Role = %q, want standard", claim.Role)
	}
	if auth.Authorize(claim, model.RoleAdmin) {
		t.Error("standard claim must not satisfy admin")
	}
	if !auth.Authorize(claim, model.RoleStandard) {
		t.Error("standard claim must satisfy standard")
	}
}

func TestAuthenticate_NoEnumeration(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	seedUser(t, store, "known@x.com", "secret123", model.RoleStandard, true)
	svc, rec := newTestAuthService(t, store)
	ctx := context.Background()

	_, wrongPassword := svc.Authenticate(ctx, "known@x.com", "not-the-password")
	_, unknownEmail := svc.Authenticate(ctx, "nobody@x.com", "secret123")

	if !errors.Is(wrongPassword, auth.ErrInvalidCredentials) {
		t.Fatalf("wrong password: got %v", wrongPassword)
	}
	if !errors.Is(unknownEmail, auth.ErrInvalidCredentials) {
		t.Fatalf("unknown email: got %v", unknownEmail)
	}
	if wrongPassword.Error() != unknownEmail.Error() {
		t.Errorf("error text differs: %q vs %q", wrongPassword, unknownEmail)
	}

	snap := rec.Snapshot()
	if snap.LoginsInvalidCredentials != 2 {
		t.Errorf("LoginsInvalidCredentials = %d, want 2", snap.LoginsInvalidCredentials)
	}
	// Both paths run one hash check.
	if snap.HashDurationCount != 2 {
		t.Errorf("HashDurationCount = %d, want 2", snap.HashDurationCount)
	}
}

func TestAuthenticate_DisabledAccount(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	user := seedUser(t, store, "a@x.com", "secret123", model.RoleStandard, true)
	svc, _ := newTestAuthService(t, store)
	ctx := context.Background()

	if _, err := svc.Authenticate(ctx, "a@x.com", "secret123"); err != nil {
		t.Fatalf("expected success before deactivation, got %v", err)
	}

	if _, err := svc.SetActive(ctx, user.ID, false); err != nil {
		t.Fatalf("SetActive failed: %v", err)
	}

	_, err := svc.Authenticate(ctx, "a@x.com", "secret123")
	if !errors.Is(err, auth.ErrAccountDisabled) {
		t.Fatalf("expected ErrAccountDisabled, got %v", err)
	}
}

func TestAuthenticate_StoreFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		storeErr error
		want     error
	}{
		{"outage", errors.New("connection refused"), auth.ErrStoreUnavailable},
		{"deadline", context.DeadlineExceeded, auth.ErrTimeout},
	}

	for _, tt := range tests {

		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			store := newMemoryStore()
			store.err = tt.storeErr
			svc, rec := newTestAuthService(t, store)

			_, err := svc.Authenticate(context.Background(), "a@x.com", "secret123")
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if errors.Is(err, auth.ErrInvalidCredentials) {
				t.Error("infrastructure failure must not look like bad credentials")
			}
			if !auth.IsRetryable(err) {
				t.Error("expected retryable error")
			}
			if rec.Snapshot().LoginsUnavailable != 1 {
				t.Error("expected unavailable login metric")
			}
		})
	}
}

func TestLogin_IssuesVerifiableToken(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	seeded := seedUser(t, store, "admin@edssentials.com", "admin123", model.RoleAdmin, true)
	tokens := testTokens(t)
	svc := NewAuthService(store, testHasher(), tokens, AuthOptions{})

	result, err := svc.Login(context.Background(), "Admin@Edssentials.com", "admin123")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	svc.Wait()

	claim, err := tokens.Verify(context.Background(), result.Token)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if claim.UserID != seeded.ID || claim.Role != model.RoleAdmin {
		t.Errorf("unexpected claim: %+v", claim)
	}
	if !claim.ExpiresAt.Equal(result.ExpiresAt) {
		t.Errorf("ExpiresAt = %v, want %v", claim.ExpiresAt, result.ExpiresAt)
	}
	if result.User.LastLoginAt == nil {
		t.Error("expected LastLoginAt on returned user")
	}

	stored := store.get("admin@edssentials.com")
	if stored.LastLoginAt == nil {
		t.Error("expected last login to be recorded")
	}
}

func TestLogin_UpgradesLegacyHash(t *testing.T) {
	t.Parallel()

	legacy, err := bcrypt.GenerateFromPassword([]byte("admin123"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt failed: %v", err)
	}

	store := newMemoryStore()
	if err := store.InsertUser(context.Background(), &model.User{
		Email:        "admin@edssentials.com",
		PasswordHash: string(legacy),
		Role:         model.RoleAdmin,
		IsActive:     true,
	}); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	svc, _ := newTestAuthService(t, store)
	if _, err := svc.Login(context.Background(), "admin@edssentials.com", "admin123"); err != nil {
		t.Fatalf("Login with legacy hash failed: %v", err)
	}
	svc.Wait()

	stored := store.get("admin@edssentials.com")
	if !strings.HasPrefix(stored.PasswordHash, "$argon2id$") {
		t.Fatalf("expected upgraded hash, got %q", stored.PasswordHash)
	}
	if _, err := svc.Login(context.Background(), "admin@edssentials.com", "admin123"); err != nil {
		t.Fatalf("Login after upgrade failed: %v", err)
	}
}

func TestRegister(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	svc, rec := newTestAuthService(t, store)
	ctx := context.Background()

	user, err := svc.Register(ctx, RegisterInput{
		Email:     " New@X.com ",
		Password:  "longenough",
		FirstName: " Ada ",
		LastName:  "Lovelace",
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if user.Email != "new@x.com" || user.Role != model.RoleStandard || !user.IsActive {
		t.Errorf("unexpected user: %+v", user)
	}
	if user.FirstName != "Ada" {
		t.Errorf("FirstName = %q, want trimmed", user.FirstName)
	}
	if user.PasswordHash == "longenough" {
		t.Error("password stored in plaintext")
	}
	if rec.Snapshot().UsersRegistered != 1 {
		t.Error("expected registration metric")
	}

	if _, err := svc.Register(ctx, RegisterInput{Email: "NEW@x.com", Password: "longenough"}); !errors.Is(err, ErrEmailTaken) {
		t.Errorf("expected ErrEmailTaken, got %v", err)
	}

	if _, err := svc.Authenticate(ctx, "new@x.com", "longenough"); err != nil {
		t.Errorf("registered user cannot log in: %v", err)
	}
}

func TestRegister_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input RegisterInput
		want  error
	}{
		{"missing at", RegisterInput{Email: "nobody", Password: "longenough"}, ErrInvalidEmail},
		{"empty local part", RegisterInput{Email: "@x.com", Password: "longenough"}, ErrInvalidEmail},
		{"short password", RegisterInput{Email: "a@x.com", Password: "short"}, ErrPasswordTooShort},
	}

	for _, tt := range tests {

		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			store := newMemoryStore()
			svc, _ := newTestAuthService(t, store)
			if _, err := svc.Register(context.Background(), tt.input); !errors.Is(err, tt.want) {
				t.Errorf("Register() = %v, want %v", err, tt.want)
			}
			if store.count() != 0 {
				t.Error("invalid input must not be stored")
			}
		})
	}
}

func TestUserManagement(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	a := seedUser(t, store, "a@x.com", "secret123", model.RoleStandard, true)
	seedUser(t, store, "b@x.com", "secret123", model.RoleAdmin, true)
	svc, _ := newTestAuthService(t, store)
	ctx := context.Background()

	users, err := svc.ListUsers(ctx)
	if err != nil {
		t.Fatalf("ListUsers failed: %v", err)
	}
	if len(users) != 2 {
		t.Errorf("expected 2 users, got %d", len(users))
	}

	got, err := svc.GetUser(ctx, a.ID)
	if err != nil || got.Email != "a@x.com" {
		t.Fatalf("GetUser = %+v, %v", got, err)
	}

	if _, err := svc.GetUser(ctx, "missing"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
	if _, err := svc.SetActive(ctx, "missing", false); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}

	updated, err := svc.SetActive(ctx, a.ID, false)
	if err != nil {
		t.Fatalf("SetActive failed: %v", err)
	}
	if updated.IsActive {
		t.Error("expected user to be inactive")
	}
}

func TestValidateEmail(t *testing.T) {
	t.Parallel()

	tests := []struct {
		email string
		valid bool
	}{
		{"a@x.com", true},
		{"admin@edssentials.com", true},
		{"", false},
		{"nobody", false},
		{"@@x", false},
		{"x@.", false},
		{"<script>@x", false},
		{"a b@x.com", false},
	}

	for _, tt := range tests {

		tt := tt
		err := ValidateEmail(tt.email)
		if tt.valid && err != nil {
			t.Errorf("ValidateEmail(%q) = %v, want nil", tt.email, err)
		}
		if !tt.valid && !errors.Is(err, ErrInvalidEmail) {
			t.Errorf("ValidateEmail(%q) = %v, want ErrInvalidEmail", tt.email, err)
		}
	}
}

func TestWait_StopsBackgroundWrites(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	seedUser(t, store, "a@x.com", "secret123", model.RoleStandard, true)
	svc := NewAuthService(store, testHasher(), testTokens(t), AuthOptions{})

	// Logins racing with shutdown must neither panic nor be refused.
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Login(context.Background(), "a@x.com", "secret123"); err != nil {
				t.Errorf("Login failed: %v", err)
			}
		}()
	}
	svc.Wait()
	wg.Wait()
	svc.Wait()

	seedUser(t, store, "b@x.com", "secret123", model.RoleStandard, true)
	result, err := svc.Login(context.Background(), "b@x.com", "secret123")
	if err != nil {
		t.Fatalf("Login after Wait failed: %v", err)
	}
	if result.User.LastLoginAt == nil {
		t.Error("expected LastLoginAt on returned user")
	}
	if store.get("b@x.com").LastLoginAt != nil {
		t.Error("no background write expected after Wait")
	}
}
