package authcore

import (
	"context"
	"io"
	"time"

	internalaudit "github.com/heliosuite/authcore/internal/audit"
	"github.com/heliosuite/authcore/session"
)

// AccountStatus represents the lifecycle state of a user account. Accounts
// are never deleted by this core; they are deactivated via AccountDisabled.
type AccountStatus uint8

const (
	AccountActive AccountStatus = iota
	AccountDisabled
)

// UserRecord is the credential record returned by [CredentialStore]. It
// carries the password hash (empty for OAuth-only accounts), the lockout
// counter and expiry, TOTP state, and the hashed backup-code set.
//
// A TOTPSecret with TOTPEnabled=false is a pending enrollment: the secret
// has been provisioned but not yet confirmed, and must not be accepted for
// login MFA.
type UserRecord struct {
	ID             string
	Email          string
	PasswordHash   string
	FailedAttempts int
	LockedUntil    *time.Time
	TOTPSecret     []byte
	TOTPEnabled    bool
	TOTPLastUsed   int64
	BackupCodes    [][32]byte
	Superuser      bool
	Status         AccountStatus
}

// Locked reports whether the account is inside an active lockout window.
func (u UserRecord) Locked(now time.Time) bool {
	return u.LockedUntil != nil && u.LockedUntil.After(now)
}

// CredentialStore is the persistence interface the host application must
// implement to integrate authcore with its user database. The engine only
// mutates lockout counters, TOTP state, and backup codes; account CRUD stays
// with the host.
//
// Implementations should return [ErrUserNotFound] for missing records and
// wrap backend failures in their own errors; the engine treats any lookup
// failure on the login path as invalid credentials.
type CredentialStore interface {
	FindByEmail(ctx context.Context, email string) (UserRecord, error)
	FindByID(ctx context.Context, userID string) (UserRecord, error)

	// UpdateLockout persists the failed-attempt counter and lockout expiry.
	// A nil lockedUntil clears the lockout. Concurrent failed logins may race
	// on the exact counter value; only monotonic threshold-crossing matters.
	UpdateLockout(ctx context.Context, userID string, failedAttempts int, lockedUntil *time.Time) error

	// UpdateTOTP replaces the TOTP secret, enabled flag, and backup-code
	// hashes in one call. A nil secret with enabled=false clears enrollment
	// and resets the last-used counter.
	UpdateTOTP(ctx context.Context, userID string, secret []byte, enabled bool, backupCodes [][32]byte) error

	// UpdateTOTPLastUsed persists the time-step counter of the most recently
	// accepted TOTP code. The engine never writes a counter lower than the
	// stored one.
	UpdateTOTPLastUsed(ctx context.Context, userID string, counter int64) error

	// ConsumeBackupCode atomically removes the matching hash from the user's
	// backup-code set, reporting how many codes remain afterwards. Returns
	// false when no code matched; a matched code must never verify twice.
	ConsumeBackupCode(ctx context.Context, userID string, codeHash [32]byte) (bool, int, error)

	UpdatePasswordHash(ctx context.Context, userID string, newHash string) error
}

// SessionInfo is what the engine hands to the [SessionRecorder] after a
// login reaches the established state. ClientIP and UserAgent come from the
// request context; recording them (hashed or raw) is the recorder's call.
type SessionInfo = session.Record

// SessionRecorder is the session/device-tracking collaborator. The engine
// calls Create exactly once per established session; Delete and
// DeleteAllForUser back logout and forced invalidation.
//
// [github.com/heliosuite/authcore/session.Store] is the shipped Redis
// implementation and is used by default when the Builder has a Redis client.
type SessionRecorder interface {
	Create(ctx context.Context, info SessionInfo) error
	// Exists backs refresh-token validation: a refresh against a deleted or
	// expired session must fail.
	Exists(ctx context.Context, sessionID string) (bool, error)
	Delete(ctx context.Context, sessionID string) (bool, error)
	DeleteAllForUser(ctx context.Context, userID string) error
}

// LoginResult is returned by [Engine.Login], [Engine.ConfirmLoginMFA], and
// [Engine.FinishOAuthLogin].
//
// Exactly one of two shapes is populated: tokens (AccessToken, RefreshToken,
// SessionID) when the session is established, or the MFA challenge
// (MFARequired, MFAToken, MFAPrompt) when a second factor is still owed.
// An MFA challenge response never carries access or refresh tokens.
type LoginResult struct {
	AccessToken  string
	RefreshToken string
	SessionID    string

	MFARequired bool
	MFAToken    string
	MFAPrompt   string
}

// AuthResult is returned by [Engine.ValidateAccess].
type AuthResult struct {
	UserID    string
	SessionID string
}

// TOTPSetup is returned by [Engine.BeginTOTPSetup]. Secret and BackupCodes
// are shown to the user exactly once; only hashes are persisted.
type TOTPSetup struct {
	Secret          string
	ProvisioningURI string
	QRCodePNG       []byte
	BackupCodes     []string
}

// SecurityReport is a read-only snapshot of the engine's active policy,
// returned by [Engine.SecurityReport].
type SecurityReport struct {
	SigningAlgorithm     string
	AccessTTL            time.Duration
	RefreshTTL           time.Duration
	MFAChallengeTTL      time.Duration
	LockoutThreshold     int
	LockoutDuration      time.Duration
	Argon2               PasswordConfigReport
	TOTPDigits           int
	TOTPSkew             int
	TOTPReplayProtection bool
	BackupCodeCount      int
	OAuthProviders       []string
	OAuthStateTTL        time.Duration
	APIKeyPrefixLength   int
	AuditEnabled         bool
}

// PasswordConfigReport contains the Argon2 parameters active in the engine.
type PasswordConfigReport struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// AuditEvent is a structured audit record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the engine's audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] that writes JSON-encoded events to an
// [io.Writer].
type JSONWriterSink = internalaudit.JSONWriterSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}
