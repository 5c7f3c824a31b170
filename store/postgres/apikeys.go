package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/heliosuite/authcore/apikey"
)

// APIKeyStore is the Postgres implementation of [apikey.Store].
type APIKeyStore struct {
	store *Store
}

var apiKeyColumns = []string{
	"id", "user_id", "name", "key_hash", "key_prefix", "active",
	"last_used_at", "expires_at", "created_at",
}

func (a *APIKeyStore) Insert(ctx context.Context, rec *apikey.Record) error {
	sqlStr, args, err := a.store.sb.
		Insert("auth_api_keys").
		Columns(apiKeyColumns...).
		Values(rec.ID, rec.UserID, rec.Name, rec.Hash[:], rec.Prefix,
			rec.Active, rec.LastUsedAt, rec.ExpiresAt, rec.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	if _, err := a.store.pool.Exec(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("insert api key: %w", err)
	}
	return nil
}

func (a *APIKeyStore) FindByID(ctx context.Context, id uuid.UUID) (*apikey.Record, error) {
	recs, err := a.query(ctx, squirrel.Eq{"id": id})
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, apikey.ErrNotFound
	}
	return recs[0], nil
}

func (a *APIKeyStore) FindByPrefix(ctx context.Context, prefix string) ([]*apikey.Record, error) {
	return a.query(ctx, squirrel.Eq{"key_prefix": prefix})
}

func (a *APIKeyStore) ListByUser(ctx context.Context, userID string) ([]*apikey.Record, error) {
	return a.query(ctx, squirrel.Eq{"user_id": userID})
}

func (a *APIKeyStore) query(ctx context.Context, where squirrel.Eq) ([]*apikey.Record, error) {
	sqlStr, args, err := a.store.sb.
		Select(apiKeyColumns...).
		From("auth_api_keys").
		Where(where).
		OrderBy("created_at").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := a.store.pool.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("query api keys: %w", err)
	}
	defer rows.Close()

	var out []*apikey.Record
	for rows.Next() {
		rec, err := scanAPIKey(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanAPIKey(row pgx.Row) (*apikey.Record, error) {
	var (
		rec  apikey.Record
		hash []byte
	)
	err := row.Scan(&rec.ID, &rec.UserID, &rec.Name, &hash, &rec.Prefix,
		&rec.Active, &rec.LastUsedAt, &rec.ExpiresAt, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apikey.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan api key: %w", err)
	}
	if len(hash) != 32 {
		return nil, fmt.Errorf("key hash has %d bytes", len(hash))
	}
	copy(rec.Hash[:], hash)
	return &rec, nil
}

func (a *APIKeyStore) SetActive(ctx context.Context, id uuid.UUID, active bool) (bool, error) {
	sqlStr, args, err := a.store.sb.
		Update("auth_api_keys").
		Set("active", active).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build query: %w", err)
	}

	tag, err := a.store.pool.Exec(ctx, sqlStr, args...)
	if err != nil {
		return false, fmt.Errorf("update api key: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (a *APIKeyStore) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	sqlStr, args, err := a.store.sb.
		Delete("auth_api_keys").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build query: %w", err)
	}

	tag, err := a.store.pool.Exec(ctx, sqlStr, args...)
	if err != nil {
		return false, fmt.Errorf("delete api key: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (a *APIKeyStore) UpdateLastUsed(ctx context.Context, id uuid.UUID, at time.Time) error {
	sqlStr, args, err := a.store.sb.
		Update("auth_api_keys").
		Set("last_used_at", at).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	if _, err := a.store.pool.Exec(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("update last used: %w", err)
	}
	return nil
}

func (a *APIKeyStore) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	sqlStr, args, err := a.store.sb.
		Update("auth_api_keys").
		Set("active", false).
		Where(squirrel.Eq{"active": true}).
		Where(squirrel.Lt{"expires_at": now}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build query: %w", err)
	}

	tag, err := a.store.pool.Exec(ctx, sqlStr, args...)
	if err != nil {
		return 0, fmt.Errorf("deactivate expired: %w", err)
	}
	return tag.RowsAffected(), nil
}
