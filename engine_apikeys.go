package authcore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/heliosuite/authcore/apikey"
)

// APIKeyResult is the one-time response of [Engine.CreateAPIKey]. RawKey is
// never recoverable after this response is dropped.
type APIKeyResult struct {
	ID        uuid.UUID
	RawKey    string
	Prefix    string
	Name      string
	ExpiresAt *time.Time
	CreatedAt time.Time
}

// APIKeyInfo is the listable, secret-free view of a key.
type APIKeyInfo struct {
	ID         uuid.UUID
	Name       string
	Prefix     string
	Active     bool
	LastUsedAt *time.Time
	ExpiresAt  *time.Time
	CreatedAt  time.Time
}

// CreateAPIKey mints a new opaque bearer credential for the user.
func (e *Engine) CreateAPIKey(ctx context.Context, userID, name string, expiresAt *time.Time) (*APIKeyResult, error) {
	if e.apiKeys == nil {
		return nil, ErrEngineNotReady
	}
	if _, err := e.loadUser(ctx, userID); err != nil {
		return nil, err
	}

	minted, err := e.apiKeys.Create(ctx, userID, name, expiresAt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	e.metricInc(MetricAPIKeyCreated)
	e.emitAudit(ctx, auditEventAPIKeyCreated, SeverityInfo, true, userID, "", nil, func() map[string]string {
		return map[string]string{
			"key_id":     minted.Record.ID.String(),
			"key_prefix": minted.Record.Prefix,
		}
	})
	return &APIKeyResult{
		ID:        minted.Record.ID,
		RawKey:    minted.RawKey,
		Prefix:    minted.Record.Prefix,
		Name:      minted.Record.Name,
		ExpiresAt: minted.Record.ExpiresAt,
		CreatedAt: minted.Record.CreatedAt,
	}, nil
}

// VerifyAPIKey resolves a presented raw key to its owner. Revoked, expired,
// and unknown keys fail identically with ErrKeyNotFound.
func (e *Engine) VerifyAPIKey(ctx context.Context, rawKey string) (*AuthResult, error) {
	if e.apiKeys == nil {
		return nil, ErrEngineNotReady
	}

	rec, err := e.apiKeys.Verify(ctx, rawKey)
	if errors.Is(err, apikey.ErrNotFound) || errors.Is(err, apikey.ErrInvalidKey) {
		e.metricInc(MetricAPIKeyRejected)
		e.emitAudit(ctx, auditEventAPIKeyRejected, SeverityInfo, false, "", "", ErrKeyNotFound, nil)
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	e.metricInc(MetricAPIKeyVerified)
	return &AuthResult{UserID: rec.UserID}, nil
}

// RevokeAPIKey deactivates a key while retaining its record. Ownership is
// enforced: a key belonging to another user is reported as not found.
func (e *Engine) RevokeAPIKey(ctx context.Context, userID string, keyID uuid.UUID) error {
	if err := e.authorizeKeyOwner(ctx, userID, keyID); err != nil {
		return err
	}
	if err := e.apiKeys.Revoke(ctx, keyID); err != nil {
		return e.mapKeyError(err)
	}

	e.metricInc(MetricAPIKeyRevoked)
	e.emitAudit(ctx, auditEventAPIKeyRevoked, SeverityInfo, true, userID, "", nil, func() map[string]string {
		return map[string]string{"key_id": keyID.String()}
	})
	return nil
}

// DeleteAPIKey permanently removes a key record. Irreversible.
func (e *Engine) DeleteAPIKey(ctx context.Context, userID string, keyID uuid.UUID) error {
	if err := e.authorizeKeyOwner(ctx, userID, keyID); err != nil {
		return err
	}
	if err := e.apiKeys.Delete(ctx, keyID); err != nil {
		return e.mapKeyError(err)
	}

	e.emitAudit(ctx, auditEventAPIKeyDeleted, SeverityInfo, true, userID, "", nil, func() map[string]string {
		return map[string]string{"key_id": keyID.String()}
	})
	return nil
}

// ListAPIKeys returns every key the user owns, without secret material.
func (e *Engine) ListAPIKeys(ctx context.Context, userID string) ([]APIKeyInfo, error) {
	if e.apiKeys == nil {
		return nil, ErrEngineNotReady
	}

	recs, err := e.apiKeys.List(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	out := make([]APIKeyInfo, 0, len(recs))
	for _, rec := range recs {
		out = append(out, APIKeyInfo{
			ID:         rec.ID,
			Name:       rec.Name,
			Prefix:     rec.Prefix,
			Active:     rec.Active,
			LastUsedAt: rec.LastUsedAt,
			ExpiresAt:  rec.ExpiresAt,
			CreatedAt:  rec.CreatedAt,
		})
	}
	return out, nil
}

// CleanupExpiredAPIKeys deactivates keys whose expiry has passed. Intended
// for a periodic job owned by the host.
func (e *Engine) CleanupExpiredAPIKeys(ctx context.Context) (int64, error) {
	if e.apiKeys == nil {
		return 0, ErrEngineNotReady
	}

	n, err := e.apiKeys.CleanupExpired(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return n, nil
}

func (e *Engine) authorizeKeyOwner(ctx context.Context, userID string, keyID uuid.UUID) error {
	if e.apiKeys == nil {
		return ErrEngineNotReady
	}

	recs, err := e.apiKeys.List(ctx, userID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	for _, rec := range recs {
		if rec.ID == keyID {
			return nil
		}
	}
	return ErrKeyNotFound
}

func (e *Engine) mapKeyError(err error) error {
	if errors.Is(err, apikey.ErrNotFound) {
		return ErrKeyNotFound
	}
	return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
}
