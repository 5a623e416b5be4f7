package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/edssentials/edssentials-api/internal/auth"
	"github.com/edssentials/edssentials-api/internal/model"
	"github.com/edssentials/edssentials-api/internal/repository"
)

// memoryStore is an in-memory UserStore with a unique email index.
type memoryStore struct {
	mu      sync.Mutex
	byEmail map[string]*model.User
	nextID  int

	// err, when set, is returned by every call.
	err error
	// inserts counts successful inserts.
	inserts int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{byEmail: make(map[string]*model.User)}
}

func (s *memoryStore) FindUserByEmail(ctx context.Context, email string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	u, ok := s.byEmail[model.NormalizeEmail(email)]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *memoryStore) FindUserByID(ctx context.Context, id string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	u := s.byIDLocked(id)
	if u == nil {
		return nil, repository.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *memoryStore) InsertUser(ctx context.Context, user *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	user.Email = model.NormalizeEmail(user.Email)
	if _, exists := s.byEmail[user.Email]; exists {
		return repository.ErrEmailExists
	}
	s.nextID++
	if user.ID == "" {
		user.ID = fmt.Sprintf("user-%d", s.nextID)
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	cp := *user
	s.byEmail[user.Email] = &cp
	s.inserts++
	return nil
}

func (s *memoryStore) UpdateUserActive(ctx context.Context, id string, active bool) error {
	return s.update(id, func(u *model.User) { u.IsActive = active })
}

func (s *memoryStore) UpdateUserLastLogin(ctx context.Context, id string, at time.Time) error {
	return s.update(id, func(u *model.User) { u.LastLoginAt = &at })
}

func (s *memoryStore) UpdateUserPassword(ctx context.Context, id, passwordHash string) error {
	return s.update(id, func(u *model.User) { u.PasswordHash = passwordHash })
}

func (s *memoryStore) ListUsers(ctx context.Context) ([]*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	users := make([]*model.User, 0, len(s.byEmail))
	for _, u := range s.byEmail {
		cp := *u
		users = append(users, &cp)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (s *memoryStore) update(id string, fn func(*model.User)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	u := s.byIDLocked(id)
	if u == nil {
		return repository.ErrUserNotFound
	}
	fn(u)
	return nil
}

func (s *memoryStore) byIDLocked(id string) *model.User {
	for _, u := range s.byEmail {
		if u.ID == id {
			return u
		}
	}
	return nil
}

func (s *memoryStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byEmail)
}

func (s *memoryStore) get(email string) *model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byEmail[email]
	if !ok {
		return nil
	}
	cp := *u
	return &cp
}

// testHasher keeps Argon2id cheap enough for unit tests.
func testHasher() *auth.Hasher {
	return auth.NewHasher(auth.Argon2Params{Time: 1, Memory: 8 * 1024, Threads: 1, KeyLen: 32, SaltLen: 16})
}

func testTokens(t *testing.T) *auth.TokenManager {
	t.Helper()
	tm, err := auth.NewTokenManager(auth.TokenConfig{
		Secret: []byte("0123456789abcdef0123456789abcdef"),
		TTL:    time.Hour,
		Issuer: "edssentials-api",
	})
	if err != nil {
		t.Fatalf("NewTokenManager failed: %v", err)
	}
	return tm
}

// seedUser inserts a user with a hashed password.
func seedUser(t *testing.T, store *memoryStore, email, password string, role model.Role, active bool) *model.User {
	t.Helper()
	hash, err := testHasher().Hash(password)
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	user := &model.User{Email: email, PasswordHash: hash, Role: role, IsActive: active}
	if err := store.InsertUser(context.Background(), user); err != nil {
		t.Fatalf("seed insert failed: %v", err)
	}
	return user
}
