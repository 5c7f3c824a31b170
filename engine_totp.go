package authcore

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/heliosuite/authcore/internal"
)

// BeginTOTPSetup provisions a fresh TOTP secret and backup-code set for the
// user. The secret and the cleartext codes are returned exactly once and
// persisted only as pending state: TOTP stays disabled, and the pending
// secret is not accepted for login MFA, until [Engine.ConfirmTOTPSetup]
// proves the authenticator works.
//
// Calling setup again before confirmation replaces the pending secret and
// codes wholesale.
func (e *Engine) BeginTOTPSetup(ctx context.Context, userID string) (*TOTPSetup, error) {
	user, err := e.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.TOTPEnabled {
		return nil, ErrTOTPAlreadyEnabled
	}

	provision, err := e.totp.Generate(user.Email)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	display, hashes, err := e.mintBackupCodes(user.ID)
	if err != nil {
		return nil, err
	}

	if err := e.credentials.UpdateTOTP(ctx, user.ID, []byte(provision.Secret), false, hashes); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	e.emitAudit(ctx, auditEventTOTPSetupRequested, SeverityInfo, true, user.ID, "", nil, nil)
	return &TOTPSetup{
		Secret:          provision.Secret,
		ProvisioningURI: provision.URI,
		QRCodePNG:       provision.QRCodePNG,
		BackupCodes:     display,
	}, nil
}

// ConfirmTOTPSetup flips the enabled flag after the user proves possession
// of the provisioned secret with a live code. On failure the secret stays
// pending and unusable for login.
func (e *Engine) ConfirmTOTPSetup(ctx context.Context, userID, code string) error {
	user, err := e.loadUser(ctx, userID)
	if err != nil {
		return err
	}
	if user.TOTPEnabled {
		return ErrTOTPAlreadyEnabled
	}
	if len(user.TOTPSecret) == 0 {
		return ErrTOTPSetupNotPending
	}

	ok, counter := e.totp.ValidateCounter(code, string(user.TOTPSecret), e.now().UTC())
	if !ok {
		e.emitAudit(ctx, auditEventMFAFailure, SeverityInfo, false, user.ID, "", ErrInvalidMFACode, func() map[string]string {
			return map[string]string{"phase": "setup_confirmation"}
		})
		return ErrInvalidMFACode
	}

	if err := e.credentials.UpdateTOTP(ctx, user.ID, user.TOTPSecret, true, user.BackupCodes); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	// The confirmation code is spent too; it must not double as the next
	// login's second factor.
	if err := e.recordTOTPUse(ctx, user, counter); err != nil {
		return err
	}

	e.metricInc(MetricTOTPEnabled)
	e.emitAudit(ctx, auditEventTOTPEnabled, SeverityInfo, true, user.ID, "", nil, nil)
	return nil
}

// VerifyTOTP checks a second-factor value outside the login flow, for
// step-up confirmation of sensitive operations. Accepts a live TOTP code or
// an unused backup code; backup codes are consumed on match.
func (e *Engine) VerifyTOTP(ctx context.Context, userID, code string) error {
	user, err := e.loadUser(ctx, userID)
	if err != nil {
		return err
	}
	if !user.TOTPEnabled || len(user.TOTPSecret) == 0 {
		return ErrTOTPNotEnabled
	}

	if ok, counter := e.totp.ValidateCounter(code, string(user.TOTPSecret), e.now().UTC()); ok {
		return e.recordTOTPUse(ctx, user, counter)
	}

	matched, remaining, err := e.consumeBackupCode(ctx, user, code)
	if err != nil {
		return err
	}
	if matched {
		e.metricInc(MetricBackupCodeUsed)
		e.emitAudit(ctx, auditEventBackupCodeUsed, SeverityInfo, true, user.ID, "", nil, func() map[string]string {
			return map[string]string{"remaining": strconv.Itoa(remaining)}
		})
		return nil
	}

	e.metricInc(MetricBackupCodeFailed)
	e.emitAudit(ctx, auditEventBackupCodeFailed, SeverityInfo, false, user.ID, "", ErrInvalidMFACode, nil)
	return ErrInvalidMFACode
}

// DisableTOTP clears the secret, enabled flag, and backup codes. The
// current password is required so a hijacked session cannot silently
// downgrade the account's security.
func (e *Engine) DisableTOTP(ctx context.Context, userID, pass string) error {
	user, err := e.reauthenticate(ctx, userID, pass)
	if err != nil {
		return err
	}
	if !user.TOTPEnabled {
		return ErrTOTPNotEnabled
	}

	if err := e.credentials.UpdateTOTP(ctx, user.ID, nil, false, nil); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	e.metricInc(MetricTOTPDisabled)
	e.emitAudit(ctx, auditEventTOTPDisabled, SeverityInfo, true, user.ID, "", nil, nil)
	return nil
}

// RegenerateBackupCodes invalidates every previous backup code and issues a
// fresh set, atomically, after password re-confirmation.
func (e *Engine) RegenerateBackupCodes(ctx context.Context, userID, pass string) ([]string, error) {
	user, err := e.reauthenticate(ctx, userID, pass)
	if err != nil {
		return nil, err
	}
	if !user.TOTPEnabled {
		return nil, ErrTOTPNotEnabled
	}

	display, hashes, err := e.mintBackupCodes(user.ID)
	if err != nil {
		return nil, err
	}
	if err := e.credentials.UpdateTOTP(ctx, user.ID, user.TOTPSecret, true, hashes); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	e.metricInc(MetricBackupCodeRegenerated)
	e.emitAudit(ctx, auditEventBackupCodesGenerated, SeverityInfo, true, user.ID, "", nil, func() map[string]string {
		return map[string]string{"count": strconv.Itoa(len(display))}
	})
	return display, nil
}

// mintBackupCodes generates the configured number of codes, returning the
// grouped display forms and the owner-bound hashes to persist.
func (e *Engine) mintBackupCodes(userID string) ([]string, [][32]byte, error) {
	count := e.config.TOTP.BackupCodeCount
	display := make([]string, 0, count)
	hashes := make([][32]byte, 0, count)

	for i := 0; i < count; i++ {
		code, err := internal.NewBackupCode(e.config.TOTP.BackupCodeLength)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
		display = append(display, internal.FormatBackupCode(code))
		hashes = append(hashes, internal.BackupCodeHash(userID, code))
	}
	return display, hashes, nil
}

// loadUser fetches a record for an authenticated-user operation.
func (e *Engine) loadUser(ctx context.Context, userID string) (UserRecord, error) {
	user, err := e.credentials.FindByID(ctx, userID)
	if errors.Is(err, ErrUserNotFound) {
		return UserRecord{}, ErrUserNotFound
	}
	if err != nil {
		return UserRecord{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if user.Status == AccountDisabled {
		return UserRecord{}, ErrAccountDisabled
	}
	return user, nil
}

// reauthenticate verifies the current password before a security-sensitive
// mutation. OAuth-only accounts have no password and cannot pass.
func (e *Engine) reauthenticate(ctx context.Context, userID, pass string) (UserRecord, error) {
	user, err := e.loadUser(ctx, userID)
	if err != nil {
		return UserRecord{}, err
	}
	if user.PasswordHash == "" {
		return UserRecord{}, ErrInvalidCredentials
	}

	ok, err := e.hasher.Verify(pass, user.PasswordHash)
	if err != nil {
		return UserRecord{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if !ok {
		return UserRecord{}, ErrInvalidCredentials
	}
	return user, nil
}
