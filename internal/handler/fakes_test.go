package handler

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/localmart/identity/internal/config"
	"github.com/localmart/identity/internal/model"
	"github.com/localmart/identity/internal/repository"
	"github.com/localmart/identity/internal/token"
)

// memStore is an in-memory credential store implementing UserStore,
// IdentityStore and SellerStore for handler tests.
type memStore struct {
	mu         sync.Mutex
	users      map[string]model.User // keyed by id
	identities map[string]string     // "provider|providerID" -> userID
	sellers    map[string]bool       // userID -> has profile
}

func newMemStore() *memStore {
	return &memStore{
		users:      map[string]model.User{},
		identities: map[string]string{},
		sellers:    map[string]bool{},
	}
}

func (s *memStore) insert(nu repository.NewUser) (model.User, error) {
	email := strings.ToLower(strings.TrimSpace(nu.Email))
	for _, u := range s.users {
		if email != "" && u.Email == email {
			return model.User{}, repository.ErrEmailExists
		}
		if nu.Phone != "" && u.Phone == nu.Phone {
			return model.User{}, repository.ErrPhoneExists
		}
	}
	now := time.Now().UTC()
	u := model.User{
		ID:           uuid.NewString(),
		Email:        email,
		Phone:        nu.Phone,
		PasswordHash: nu.PasswordHash,
		DisplayName:  nu.DisplayName,
		CreatedAt:    now,
		LastSignInAt: now,
	}
	s.users[u.ID] = u
	return u, nil
}

func (s *memStore) Create(_ context.Context, nu repository.NewUser) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insert(nu)
}

func (s *memStore) CreateWithIdentity(_ context.Context, nu repository.NewUser, provider, providerID string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, err := s.insert(nu)
	if err != nil {
		return model.User{}, err
	}
	s.identities[provider+"|"+providerID] = u.ID
	return u, nil
}

func (s *memStore) GetByID(_ context.Context, id string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		return u, nil
	}
	return model.User{}, repository.ErrNotFound
}

func (s *memStore) GetByEmail(_ context.Context, email string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range s.users {
		if u.Email != "" && u.Email == email {
			return u, nil
		}
	}
	return model.User{}, repository.ErrNotFound
}

func (s *memStore) GetByPhone(_ context.Context, phone string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Phone != "" && u.Phone == phone {
			return u, nil
		}
	}
	return model.User{}, repository.ErrNotFound
}

func (s *memStore) TouchLastSignIn(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.LastSignInAt = time.Now().UTC()
	s.users[id] = u
	return nil
}

func (s *memStore) UpdatePhone(_ context.Context, id, phone string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.Phone = phone
	u.LastSignInAt = time.Now().UTC()
	s.users[id] = u
	return nil
}

func (s *memStore) Upsert(_ context.Context, provider, providerID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := provider + "|" + providerID
	if _, exists := s.identities[key]; !exists {
		s.identities[key] = userID
	}
	return nil
}

func (s *memStore) GetUserID(_ context.Context, provider, providerID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.identities[provider+"|"+providerID]; ok {
		return id, nil
	}
	return "", repository.ErrNotFound
}

func (s *memStore) ExistsForUser(_ context.Context, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sellers[userID], nil
}

func (s *memStore) userCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}

func (s *memStore) identityCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.identities)
}

// seedUser inserts a user directly, bypassing flow validation.
func (s *memStore) seedUser(t *testing.T, nu repository.NewUser) model.User {
	t.Helper()
	u, err := s.Create(context.Background(), nu)
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return u
}

func testConfig() config.Config {
	return config.Config{
		Env:            "test",
		Port:           "0",
		FrontendURL:    "http://localhost:5173",
		GoogleClientID: "client-123.apps.example",
		SessionTTL:     time.Hour,
		BcryptCost:     bcrypt.MinCost,
	}
}

func newTestCodec(t *testing.T) *token.Codec {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return token.New(key, &key.PublicKey, time.Hour)
}
