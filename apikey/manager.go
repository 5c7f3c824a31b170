package apikey

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/heliosuite/authcore/internal"
)

var (
	// ErrNotFound is returned when no key matches the given identifier or
	// raw value. Verification failures for revoked, expired and unknown
	// keys are deliberately indistinguishable.
	ErrNotFound = errors.New("api key not found")

	// ErrInvalidKey is returned when the presented raw key is structurally
	// malformed and was never minted by this manager.
	ErrInvalidKey = errors.New("malformed api key")
)

// Config controls key shape. KeyPrefix is the fixed human-readable marker
// ("ak_"), SecretBytes the entropy of the random body, PrefixLength the
// number of leading characters of the raw key kept for display and lookup.
type Config struct {
	KeyPrefix    string
	SecretBytes  int
	PrefixLength int
}

// Minted is the one-time result of creating a key. RawKey is shown to the
// caller exactly once and is not recoverable afterwards.
type Minted struct {
	RawKey string
	Record *Record
}

// Manager mints, verifies and retires API keys on top of a Store.
type Manager struct {
	store  Store
	config Config
	now    func() time.Time
}

func NewManager(store Store, cfg Config) (*Manager, error) {
	if store == nil {
		return nil, errors.New("apikey store required")
	}
	if cfg.KeyPrefix == "" {
		return nil, errors.New("key prefix required")
	}
	if cfg.SecretBytes < 16 {
		return nil, errors.New("secret must be at least 16 bytes")
	}
	if cfg.PrefixLength < len(cfg.KeyPrefix)+4 {
		return nil, errors.New("prefix length too short to be distinguishing")
	}
	return &Manager{store: store, config: cfg, now: time.Now}, nil
}

// Create mints a new key for the user. expiresAt may be nil for a
// non-expiring key.
func (m *Manager) Create(ctx context.Context, userID, name string, expiresAt *time.Time) (*Minted, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, errors.New("empty user id")
	}

	body, err := internal.NewOpaqueSecret(m.config.SecretBytes)
	if err != nil {
		return nil, fmt.Errorf("mint key material: %w", err)
	}
	raw := m.config.KeyPrefix + body

	now := m.now().UTC()
	rec := &Record{
		ID:        uuid.New(),
		UserID:    userID,
		Name:      strings.TrimSpace(name),
		Hash:      sha256.Sum256([]byte(raw)),
		Prefix:    raw[:m.config.PrefixLength],
		Active:    true,
		ExpiresAt: expiresAt,
		CreatedAt: now,
	}
	if err := m.store.Insert(ctx, rec); err != nil {
		return nil, fmt.Errorf("persist key record: %w", err)
	}

	return &Minted{RawKey: raw, Record: rec}, nil
}

// Verify resolves a presented raw key to its record. The lookup is narrowed
// by display prefix, then settled by constant-time hash comparison. Revoked
// and expired keys fail exactly like unknown ones.
func (m *Manager) Verify(ctx context.Context, rawKey string) (*Record, error) {
	if !strings.HasPrefix(rawKey, m.config.KeyPrefix) || len(rawKey) < m.config.PrefixLength {
		return nil, ErrInvalidKey
	}

	candidates, err := m.store.FindByPrefix(ctx, rawKey[:m.config.PrefixLength])
	if err != nil {
		return nil, fmt.Errorf("prefix lookup: %w", err)
	}

	hash := sha256.Sum256([]byte(rawKey))
	var match *Record
	for _, rec := range candidates {
		if subtle.ConstantTimeCompare(hash[:], rec.Hash[:]) == 1 {
			match = rec
			break
		}
	}
	if match == nil {
		return nil, ErrNotFound
	}

	now := m.now().UTC()
	if !match.Active || match.Expired(now) {
		return nil, ErrNotFound
	}

	if err := m.store.UpdateLastUsed(ctx, match.ID, now); err != nil {
		return nil, fmt.Errorf("record key use: %w", err)
	}
	match.LastUsedAt = &now
	return match, nil
}

// Revoke deactivates a key while keeping its record for audit history.
func (m *Manager) Revoke(ctx context.Context, id uuid.UUID) error {
	found, err := m.store.SetActive(ctx, id, false)
	if err != nil {
		return fmt.Errorf("revoke key: %w", err)
	}
	if !found {
		return ErrNotFound
	}
	return nil
}

// Delete removes the record entirely.
func (m *Manager) Delete(ctx context.Context, id uuid.UUID) error {
	found, err := m.store.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("delete key: %w", err)
	}
	if !found {
		return ErrNotFound
	}
	return nil
}

// List returns all keys belonging to the user, active or not.
func (m *Manager) List(ctx context.Context, userID string) ([]*Record, error) {
	return m.store.ListByUser(ctx, userID)
}

// CleanupExpired deactivates every key whose expiry has passed and reports
// how many were touched. Intended to run from a periodic job.
func (m *Manager) CleanupExpired(ctx context.Context) (int64, error) {
	return m.store.DeactivateExpired(ctx, m.now().UTC())
}
