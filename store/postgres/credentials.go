package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/heliosuite/authcore"
)

// CredentialStore is the Postgres implementation of
// [authcore.CredentialStore]. Backup-code hashes live in their own table so
// single-use consumption is one atomic DELETE.
type CredentialStore struct {
	store *Store
}

var userColumns = []string{
	"id", "email", "password_hash", "failed_attempts", "locked_until",
	"totp_secret", "totp_enabled", "totp_last_used", "superuser", "status",
}

func (c *CredentialStore) FindByEmail(ctx context.Context, email string) (authcore.UserRecord, error) {
	return c.findOne(ctx, squirrel.Eq{"email": email})
}

func (c *CredentialStore) FindByID(ctx context.Context, userID string) (authcore.UserRecord, error) {
	return c.findOne(ctx, squirrel.Eq{"id": userID})
}

func (c *CredentialStore) findOne(ctx context.Context, where squirrel.Eq) (authcore.UserRecord, error) {
	sqlStr, args, err := c.store.sb.
		Select(userColumns...).
		From("auth_users").
		Where(where).
		ToSql()
	if err != nil {
		return authcore.UserRecord{}, fmt.Errorf("build query: %w", err)
	}

	var (
		rec    authcore.UserRecord
		status int16
	)
	err = c.store.pool.QueryRow(ctx, sqlStr, args...).Scan(
		&rec.ID, &rec.Email, &rec.PasswordHash, &rec.FailedAttempts,
		&rec.LockedUntil, &rec.TOTPSecret, &rec.TOTPEnabled,
		&rec.TOTPLastUsed, &rec.Superuser, &status,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return authcore.UserRecord{}, authcore.ErrUserNotFound
	}
	if err != nil {
		return authcore.UserRecord{}, fmt.Errorf("query user: %w", err)
	}
	rec.Status = authcore.AccountStatus(status)

	rec.BackupCodes, err = c.backupCodes(ctx, rec.ID)
	if err != nil {
		return authcore.UserRecord{}, err
	}
	return rec, nil
}

func (c *CredentialStore) backupCodes(ctx context.Context, userID string) ([][32]byte, error) {
	sqlStr, args, err := c.store.sb.
		Select("code_hash").
		From("auth_backup_codes").
		Where(squirrel.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := c.store.pool.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("query backup codes: %w", err)
	}
	defer rows.Close()

	var out [][32]byte
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan backup code: %w", err)
		}
		if len(raw) != 32 {
			return nil, fmt.Errorf("backup code hash has %d bytes", len(raw))
		}
		var h [32]byte
		copy(h[:], raw)
		out = append(out, h)
	}
	return out, rows.Err()
}

func (c *CredentialStore) UpdateLockout(ctx context.Context, userID string, failedAttempts int, lockedUntil *time.Time) error {
	sqlStr, args, err := c.store.sb.
		Update("auth_users").
		Set("failed_attempts", failedAttempts).
		Set("locked_until", lockedUntil).
		Where(squirrel.Eq{"id": userID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	tag, err := c.store.pool.Exec(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("update lockout: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return authcore.ErrUserNotFound
	}
	return nil
}

func (c *CredentialStore) UpdateTOTP(ctx context.Context, userID string, secret []byte, enabled bool, backupCodes [][32]byte) error {
	tx, err := c.store.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	update := c.store.sb.
		Update("auth_users").
		Set("totp_secret", secret).
		Set("totp_enabled", enabled).
		Where(squirrel.Eq{"id": userID})
	if secret == nil {
		update = update.Set("totp_last_used", 0)
	}
	sqlStr, args, err := update.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	tag, err := tx.Exec(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("update totp: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return authcore.ErrUserNotFound
	}

	sqlStr, args, err = c.store.sb.
		Delete("auth_backup_codes").
		Where(squirrel.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	if _, err := tx.Exec(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("clear backup codes: %w", err)
	}

	if len(backupCodes) > 0 {
		insert := c.store.sb.
			Insert("auth_backup_codes").
			Columns("user_id", "code_hash")
		for _, h := range backupCodes {
			insert = insert.Values(userID, h[:])
		}
		sqlStr, args, err = insert.ToSql()
		if err != nil {
			return fmt.Errorf("build query: %w", err)
		}
		if _, err := tx.Exec(ctx, sqlStr, args...); err != nil {
			return fmt.Errorf("insert backup codes: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func (c *CredentialStore) UpdateTOTPLastUsed(ctx context.Context, userID string, counter int64) error {
	// GREATEST keeps the stored counter monotonic under concurrent logins.
	sqlStr, args, err := c.store.sb.
		Update("auth_users").
		Set("totp_last_used", squirrel.Expr("GREATEST(totp_last_used, ?)", counter)).
		Where(squirrel.Eq{"id": userID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	tag, err := c.store.pool.Exec(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("update totp counter: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return authcore.ErrUserNotFound
	}
	return nil
}

func (c *CredentialStore) ConsumeBackupCode(ctx context.Context, userID string, codeHash [32]byte) (bool, int, error) {
	tx, err := c.store.pool.Begin(ctx)
	if err != nil {
		return false, 0, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	sqlStr, args, err := c.store.sb.
		Delete("auth_backup_codes").
		Where(squirrel.Eq{"user_id": userID, "code_hash": codeHash[:]}).
		ToSql()
	if err != nil {
		return false, 0, fmt.Errorf("build query: %w", err)
	}
	tag, err := tx.Exec(ctx, sqlStr, args...)
	if err != nil {
		return false, 0, fmt.Errorf("consume backup code: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, 0, nil
	}

	sqlStr, args, err = c.store.sb.
		Select("COUNT(*)").
		From("auth_backup_codes").
		Where(squirrel.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return false, 0, fmt.Errorf("build query: %w", err)
	}
	var remaining int
	if err := tx.QueryRow(ctx, sqlStr, args...).Scan(&remaining); err != nil {
		return false, 0, fmt.Errorf("count backup codes: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, 0, fmt.Errorf("commit: %w", err)
	}
	return true, remaining, nil
}

func (c *CredentialStore) UpdatePasswordHash(ctx context.Context, userID string, newHash string) error {
	sqlStr, args, err := c.store.sb.
		Update("auth_users").
		Set("password_hash", newHash).
		Where(squirrel.Eq{"id": userID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	tag, err := c.store.pool.Exec(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("update password hash: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return authcore.ErrUserNotFound
	}
	return nil
}
