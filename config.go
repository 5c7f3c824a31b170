package authcore

import (
	"errors"
	"strings"
	"time"
)

// Config carries every tunable of the engine, grouped by concern. Zero
// values are not usable directly; start from [DefaultConfig] and override.
type Config struct {
	Token    TokenConfig
	Session  SessionConfig
	Lockout  LockoutConfig
	Password PasswordConfig
	TOTP     TOTPConfig
	OAuth    OAuthConfig
	APIKey   APIKeyConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig configures the purpose-scoped token codec. SigningMethod is
// "ed25519" (default) or "hs256". Ed25519 needs PrivateKey for issuing and
// PublicKey for verifying; HS256 uses PrivateKey for both.
type TokenConfig struct {
	AccessTTL       time.Duration
	RefreshTTL      time.Duration
	MFAChallengeTTL time.Duration
	SigningMethod   string
	PrivateKey      []byte
	PublicKey       []byte
	Issuer          string
	Audience        string
	Leeway          time.Duration
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls the shipped Redis session recorder. Lifetime caps
// how long a session record outlives its creation; it should not be shorter
// than the refresh TTL or refreshes will outlive their sessions.
type SessionConfig struct {
	RedisPrefix string
	Lifetime    time.Duration
}

/*
====================================
LOCKOUT CONFIG
====================================
*/

// LockoutConfig drives the account-lockout policy: after MaxFailedAttempts
// consecutive password failures the account rejects all logins, correct
// password included, until Duration elapses. The counter resets only on a
// fully successful login.
type LockoutConfig struct {
	MaxFailedAttempts int
	Duration          time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds Argon2id parameters. Memory is in KB. When
// UpgradeOnLogin is set, hashes produced under weaker parameters are
// transparently recomputed on the next successful login.
type PasswordConfig struct {
	Memory         uint32
	Time           uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	UpgradeOnLogin bool
}

/*
====================================
TOTP CONFIG
====================================
*/

// TOTPConfig configures second-factor enrollment and verification. Skew is
// the accepted clock drift in whole periods on either side of now. With
// EnforceReplayProtection set, a code is accepted at most once: the matched
// time step is persisted and codes at or below it are rejected.
type TOTPConfig struct {
	Issuer                  string
	Digits                  int
	Period                  int
	Skew                    int
	BackupCodeCount         int
	BackupCodeLength        int
	EnforceReplayProtection bool
}

/*
====================================
OAUTH CONFIG
====================================
*/

// OAuthConfig lists the providers the state guard will issue states for and
// how long an unconsumed state survives in the cache.
type OAuthConfig struct {
	Providers   []string
	StateTTL    time.Duration
	RedisPrefix string
}

/*
====================================
API KEY CONFIG
====================================
*/

// APIKeyConfig controls opaque bearer credential generation. KeyPrefix is a
// short literal marker ("ak_") that makes leaked keys grep-able in logs and
// scanners; PrefixLength is how many leading characters of the raw key are
// retained as the display/lookup prefix.
type APIKeyConfig struct {
	KeyPrefix    string
	SecretBytes  int
	PrefixLength int
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig toggles the in-process atomic counters.
type MetricsConfig struct {
	Enabled bool
}

// DefaultConfig returns the baseline configuration: 10-minute access tokens,
// 30-day refresh tokens, 5-minute MFA challenges, lockout after 5 failures
// for 15 minutes, 6-digit single-use TOTP codes with one period of skew, ten
// backup codes, and 10-minute single-use OAuth states.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Token: TokenConfig{
			AccessTTL:       10 * time.Minute,
			RefreshTTL:      30 * 24 * time.Hour,
			MFAChallengeTTL: 5 * time.Minute,
			SigningMethod:   "ed25519",
			Issuer:          "authcore",
		},
		Session: SessionConfig{
			RedisPrefix: "as",
			Lifetime:    30 * 24 * time.Hour,
		},
		Lockout: LockoutConfig{
			MaxFailedAttempts: 5,
			Duration:          15 * time.Minute,
		},
		Password: PasswordConfig{
			Memory:      64 * 1024,
			Time:        2,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		TOTP: TOTPConfig{
			Issuer:                  "authcore",
			Digits:                  6,
			Period:                  30,
			Skew:                    1,
			BackupCodeCount:         10,
			BackupCodeLength:        10,
			EnforceReplayProtection: true,
		},
		OAuth: OAuthConfig{
			StateTTL:    10 * time.Minute,
			RedisPrefix: "aos",
		},
		APIKey: APIKeyConfig{
			KeyPrefix:    "ak_",
			SecretBytes:  32,
			PrefixLength: 12,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Validate checks cross-field consistency. Builder.Build calls it; exposed
// for callers that assemble Config from their own file or env layer.
func (c *Config) Validate() error {
	if c.Token.AccessTTL <= 0 {
		return errors.New("Token.AccessTTL must be positive")
	}
	if c.Token.RefreshTTL <= 0 {
		return errors.New("Token.RefreshTTL must be positive")
	}
	if c.Token.RefreshTTL < c.Token.AccessTTL {
		return errors.New("Token.RefreshTTL must not be shorter than AccessTTL")
	}
	if c.Token.MFAChallengeTTL <= 0 || c.Token.MFAChallengeTTL > 30*time.Minute {
		return errors.New("Token.MFAChallengeTTL must be in (0, 30m]")
	}
	switch strings.ToLower(c.Token.SigningMethod) {
	case "ed25519", "hs256":
	default:
		return errors.New("Token.SigningMethod must be ed25519 or hs256")
	}
	if c.Token.Leeway < 0 || c.Token.Leeway > 2*time.Minute {
		return errors.New("Token.Leeway must be in [0, 2m]")
	}
	if c.Session.Lifetime < c.Token.RefreshTTL {
		return errors.New("Session.Lifetime must not be shorter than Token.RefreshTTL")
	}
	if c.Lockout.MaxFailedAttempts < 1 {
		return errors.New("Lockout.MaxFailedAttempts must be >= 1")
	}
	if c.Lockout.Duration <= 0 {
		return errors.New("Lockout.Duration must be positive")
	}
	if c.TOTP.Digits != 6 && c.TOTP.Digits != 8 {
		return errors.New("TOTP.Digits must be 6 or 8")
	}
	if c.TOTP.Period < 15 || c.TOTP.Period > 120 {
		return errors.New("TOTP.Period must be in [15, 120] seconds")
	}
	if c.TOTP.Skew < 0 || c.TOTP.Skew > 2 {
		return errors.New("TOTP.Skew must be in [0, 2]")
	}
	if c.TOTP.BackupCodeCount < 1 || c.TOTP.BackupCodeCount > 32 {
		return errors.New("TOTP.BackupCodeCount must be in [1, 32]")
	}
	if c.TOTP.BackupCodeLength < 8 || c.TOTP.BackupCodeLength > 32 {
		return errors.New("TOTP.BackupCodeLength must be in [8, 32]")
	}
	if c.OAuth.StateTTL <= 0 || c.OAuth.StateTTL > time.Hour {
		return errors.New("OAuth.StateTTL must be in (0, 1h]")
	}
	for _, p := range c.OAuth.Providers {
		if strings.TrimSpace(p) == "" {
			return errors.New("OAuth.Providers must not contain empty names")
		}
	}
	if c.APIKey.SecretBytes < 24 {
		return errors.New("APIKey.SecretBytes must be >= 24")
	}
	if c.APIKey.PrefixLength < 8 || c.APIKey.PrefixLength > 20 {
		return errors.New("APIKey.PrefixLength must be in [8, 20]")
	}
	if c.APIKey.PrefixLength > len(c.APIKey.KeyPrefix)+c.APIKey.SecretBytes {
		return errors.New("APIKey.PrefixLength exceeds generated key length")
	}
	return nil
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Token.PrivateKey = cloneBytes(cfg.Token.PrivateKey)
	out.Token.PublicKey = cloneBytes(cfg.Token.PublicKey)
	if cfg.OAuth.Providers != nil {
		out.OAuth.Providers = append([]string(nil), cfg.OAuth.Providers...)
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
