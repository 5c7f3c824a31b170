package authcore

import "errors"

var (
	// ErrInvalidCredentials covers unknown email, wrong password, and
	// password logins against OAuth-only accounts. The branches are kept
	// indistinguishable to prevent account enumeration; audit events carry
	// the real reason server-side.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked is returned while a lockout window is active. Unlike
	// ErrInvalidCredentials it is surfaced explicitly: the account holder
	// benefits from knowing more than an attacker does.
	ErrAccountLocked = errors.New("account locked")
	// ErrAccountDisabled is returned for deactivated accounts.
	ErrAccountDisabled = errors.New("account disabled")
	// ErrUserNotFound is returned by CredentialStore implementations when no
	// record matches. The login path never propagates it to callers.
	ErrUserNotFound = errors.New("user not found")

	// ErrInvalidOrExpiredChallenge covers an MFA challenge token or OAuth
	// state value that failed signature, expiry, or lookup.
	ErrInvalidOrExpiredChallenge = errors.New("invalid or expired challenge")
	// ErrProviderMismatch means an OAuth state was replayed against a
	// different provider's callback. Flagged distinctly as a possible CSRF
	// attack and audited at alert severity.
	ErrProviderMismatch = errors.New("provider mismatch, possible csrf attack")
	// ErrInvalidMFACode means the supplied TOTP value or backup code did not
	// verify against the challenged account.
	ErrInvalidMFACode = errors.New("invalid mfa token or code")
	// ErrMFACodeReplayed means a TOTP code that already verified once was
	// presented again. Surfaced distinctly because a replayed-but-valid code
	// points at an intercepted channel, not a typo.
	ErrMFACodeReplayed = errors.New("mfa code already used")

	// ErrTOTPAlreadyEnabled rejects a setup attempt for an account that has
	// already confirmed TOTP.
	ErrTOTPAlreadyEnabled = errors.New("totp already enabled")
	// ErrTOTPNotEnabled rejects operations that require a confirmed TOTP
	// enrollment.
	ErrTOTPNotEnabled = errors.New("totp not enabled")
	// ErrTOTPSetupNotPending rejects a confirmation when no setup secret is
	// waiting to be confirmed.
	ErrTOTPSetupNotPending = errors.New("totp setup not pending")

	// ErrKeyNotFound covers API-key operations against missing keys and keys
	// owned by someone else. Both cases answer identically so existence is
	// never leaked.
	ErrKeyNotFound = errors.New("api key not found")

	ErrTokenInvalid       = errors.New("invalid token")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrUnknownProvider    = errors.New("unknown oauth provider")
	ErrSessionNotFound    = errors.New("session not found")
	ErrPasswordPolicy     = errors.New("password policy violation")
	ErrPasswordReuse      = errors.New("new password must be different from current password")
	ErrBackendUnavailable = errors.New("auth backend unavailable")
	ErrEngineNotReady     = errors.New("engine not initialized")

	// ErrSessionInvalidationFailed signals that a password change persisted
	// the new hash but could not end the user's existing sessions. The hash
	// update is not rolled back; callers should retry [Engine.LogoutAll].
	ErrSessionInvalidationFailed = errors.New("session invalidation failed")
)
