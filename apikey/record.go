package apikey

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Record is the stored shape of an API key. The raw key material is never
// persisted; Hash is the SHA-256 of the full raw key and Prefix its first
// few characters, kept for display and lookup narrowing.
type Record struct {
	ID         uuid.UUID
	UserID     string
	Name       string
	Hash       [32]byte
	Prefix     string
	Active     bool
	LastUsedAt *time.Time
	ExpiresAt  *time.Time
	CreatedAt  time.Time
}

// Expired reports whether the record carries an expiry in the past.
func (r *Record) Expired(now time.Time) bool {
	return r.ExpiresAt != nil && now.After(*r.ExpiresAt)
}

// Store is the durable backend for key records. FindByPrefix returns every
// record sharing a display prefix; prefixes are not unique and callers must
// disambiguate by hash.
type Store interface {
	Insert(ctx context.Context, rec *Record) error
	FindByID(ctx context.Context, id uuid.UUID) (*Record, error)
	FindByPrefix(ctx context.Context, prefix string) ([]*Record, error)
	ListByUser(ctx context.Context, userID string) ([]*Record, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) (bool, error)
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
	UpdateLastUsed(ctx context.Context, id uuid.UUID, at time.Time) error
	DeactivateExpired(ctx context.Context, now time.Time) (int64, error)
}
