package authcore

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/heliosuite/authcore/password"
)

type fakeCredentialStore struct {
	mu      sync.Mutex
	users   map[string]*UserRecord
	byEmail map[string]string

	lockoutCalls int
}

func newFakeCredentialStore() *fakeCredentialStore {
	return &fakeCredentialStore{
		users:   make(map[string]*UserRecord),
		byEmail: make(map[string]string),
	}
}

func (s *fakeCredentialStore) add(user UserRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := user
	s.users[user.ID] = &cp
	s.byEmail[user.Email] = user.ID
}

func (s *fakeCredentialStore) get(userID string) UserRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	return *s.users[userID]
}

func (s *fakeCredentialStore) FindByEmail(_ context.Context, email string) (UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byEmail[email]
	if !ok {
		return UserRecord{}, ErrUserNotFound
	}
	return *s.users[id], nil
}

func (s *fakeCredentialStore) FindByID(_ context.Context, userID string) (UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return UserRecord{}, ErrUserNotFound
	}
	return *user, nil
}

func (s *fakeCredentialStore) UpdateLockout(_ context.Context, userID string, failedAttempts int, lockedUntil *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	user.FailedAttempts = failedAttempts
	user.LockedUntil = lockedUntil
	s.lockoutCalls++
	return nil
}

func (s *fakeCredentialStore) UpdateTOTP(_ context.Context, userID string, secret []byte, enabled bool, backupCodes [][32]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	user.TOTPSecret = secret
	user.TOTPEnabled = enabled
	user.BackupCodes = backupCodes
	if secret == nil {
		user.TOTPLastUsed = 0
	}
	return nil
}

func (s *fakeCredentialStore) UpdateTOTPLastUsed(_ context.Context, userID string, counter int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	if counter > user.TOTPLastUsed {
		user.TOTPLastUsed = counter
	}
	return nil
}

func (s *fakeCredentialStore) ConsumeBackupCode(_ context.Context, userID string, codeHash [32]byte) (bool, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return false, 0, ErrUserNotFound
	}
	for i, h := range user.BackupCodes {
		if h == codeHash {
			user.BackupCodes = append(user.BackupCodes[:i], user.BackupCodes[i+1:]...)
			return true, len(user.BackupCodes), nil
		}
	}
	return false, 0, nil
}

func (s *fakeCredentialStore) UpdatePasswordHash(_ context.Context, userID string, newHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	user.PasswordHash = newHash
	return nil
}

func testConfig(t *testing.T) Config {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate signing key: %v", err)
	}

	cfg := DefaultConfig()
	cfg.Token.PrivateKey = priv
	cfg.OAuth.Providers = []string{"github", "google"}

	// Floor-level Argon2 parameters keep the suite fast.
	cfg.Password.Memory = 8192
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	return cfg
}

func newTestEngine(t *testing.T, cfg Config) (*Engine, *fakeCredentialStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	creds := newFakeCredentialStore()
	engine, err := New().
		WithConfig(cfg).
		WithRedis(client).
		WithCredentialStore(creds).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return engine, creds, mr
}

func hashPassword(t *testing.T, cfg Config, pass string) string {
	t.Helper()

	hasher, err := password.NewHasher(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		t.Fatalf("NewHasher failed: %v", err)
	}
	hash, err := hasher.Hash(pass)
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	return hash
}

func seedUser(t *testing.T, creds *fakeCredentialStore, cfg Config, id, email, pass string) {
	t.Helper()

	creds.add(UserRecord{
		ID:           id,
		Email:        email,
		PasswordHash: hashPassword(t, cfg, pass),
		Status:       AccountActive,
	})
}

// enableTOTP walks a seeded user through setup and confirmation, returning
// the secret and the one-time backup codes. Confirmation uses the previous
// time step's code (accepted under the default skew) so the current step
// stays unspent for the test body.
func enableTOTP(t *testing.T, engine *Engine, userID string) (string, []string) {
	t.Helper()

	setup, err := engine.BeginTOTPSetup(context.Background(), userID)
	if err != nil {
		t.Fatalf("BeginTOTPSetup failed: %v", err)
	}

	period := time.Duration(engine.config.TOTP.Period) * time.Second
	code, err := engine.totp.CodeAt(setup.Secret, time.Now().Add(-period))
	if err != nil {
		t.Fatalf("CodeAt failed: %v", err)
	}
	if err := engine.ConfirmTOTPSetup(context.Background(), userID, code); err != nil {
		t.Fatalf("ConfirmTOTPSetup failed: %v", err)
	}
	return setup.Secret, setup.BackupCodes
}

func currentCode(t *testing.T, engine *Engine, secret string) string {
	t.Helper()

	code, err := engine.totp.CodeAt(secret, time.Now())
	if err != nil {
		t.Fatalf("CodeAt failed: %v", err)
	}
	return code
}
