package authcore

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/heliosuite/authcore/internal"
	"github.com/heliosuite/authcore/token"
)

// ConfirmLoginMFA completes a login that [Engine.Login] left in the MFA
// phase. code is either a current TOTP value or an unused backup code;
// backup codes are consumed on match and never verify twice.
//
// The challenge token is self-contained: signature, purpose tag, and expiry
// are all that bind it to the earlier password phase.
func (e *Engine) ConfirmLoginMFA(ctx context.Context, mfaToken, code string) (*LoginResult, error) {
	claims, err := e.codec.Verify(mfaToken, token.PurposeMFAChallenge)
	if err != nil {
		e.metricInc(MetricMFAFailure)
		e.emitAudit(ctx, auditEventMFAFailure, SeverityInfo, false, "", "", ErrInvalidOrExpiredChallenge, nil)
		return nil, ErrInvalidOrExpiredChallenge
	}

	user, err := e.credentials.FindByID(ctx, claims.Subject)
	if errors.Is(err, ErrUserNotFound) {
		e.metricInc(MetricMFAFailure)
		e.emitAudit(ctx, auditEventMFAFailure, SeverityInfo, false, claims.Subject, "", ErrInvalidOrExpiredChallenge, nil)
		return nil, ErrInvalidOrExpiredChallenge
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	if user.Status == AccountDisabled {
		e.metricInc(MetricMFAFailure)
		e.emitAudit(ctx, auditEventMFAFailure, SeverityInfo, false, user.ID, "", ErrAccountDisabled, nil)
		return nil, ErrAccountDisabled
	}

	now := e.now().UTC()
	if user.Locked(now) {
		e.metricInc(MetricMFAFailure)
		e.emitAudit(ctx, auditEventMFAFailure, SeverityInfo, false, user.ID, "", ErrAccountLocked, nil)
		return nil, ErrAccountLocked
	}

	// TOTP disabled between phases invalidates outstanding challenges.
	if !user.TOTPEnabled || len(user.TOTPSecret) == 0 {
		e.metricInc(MetricMFAFailure)
		e.emitAudit(ctx, auditEventMFAFailure, SeverityInfo, false, user.ID, "", ErrInvalidOrExpiredChallenge, nil)
		return nil, ErrInvalidOrExpiredChallenge
	}

	usedBackup := false
	remaining := 0
	if ok, counter := e.totp.ValidateCounter(code, string(user.TOTPSecret), now); ok {
		if err := e.recordTOTPUse(ctx, user, counter); err != nil {
			e.metricInc(MetricMFAFailure)
			e.emitAudit(ctx, auditEventMFAFailure, SeverityInfo, false, user.ID, "", err, nil)
			return nil, err
		}
	} else {
		matched, left, err := e.consumeBackupCode(ctx, user, code)
		if err != nil {
			return nil, err
		}
		if !matched {
			e.metricInc(MetricMFAFailure)
			e.metricInc(MetricBackupCodeFailed)
			e.emitAudit(ctx, auditEventMFAFailure, SeverityInfo, false, user.ID, "", ErrInvalidMFACode, nil)
			return nil, ErrInvalidMFACode
		}
		usedBackup = true
		remaining = left
	}

	result, err := e.establishSession(ctx, user)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricMFASuccess)
	if usedBackup {
		e.metricInc(MetricBackupCodeUsed)
		e.emitAudit(ctx, auditEventBackupCodeUsed, SeverityInfo, true, user.ID, result.SessionID, nil, func() map[string]string {
			return map[string]string{"remaining": strconv.Itoa(remaining)}
		})
	}
	e.emitAudit(ctx, auditEventMFASuccess, SeverityInfo, true, user.ID, result.SessionID, nil, nil)
	return result, nil
}

// consumeBackupCode checks code against the user's backup-code set, removing
// it atomically on match. The remaining count comes from the store, so it is
// exact even under concurrent consumption.
func (e *Engine) consumeBackupCode(ctx context.Context, user UserRecord, code string) (bool, int, error) {
	canonical := internal.CanonicalizeBackupCode(code)
	if canonical == "" {
		return false, 0, nil
	}

	hash := internal.BackupCodeHash(user.ID, canonical)
	matched, remaining, err := e.credentials.ConsumeBackupCode(ctx, user.ID, hash)
	if err != nil {
		return false, 0, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return matched, remaining, nil
}

// recordTOTPUse enforces single use of a verified TOTP code. The matched
// time step must be strictly greater than the last accepted one; equal or
// lower means the code was already spent.
func (e *Engine) recordTOTPUse(ctx context.Context, user UserRecord, counter int64) error {
	if !e.config.TOTP.EnforceReplayProtection {
		return nil
	}
	if counter <= user.TOTPLastUsed {
		e.metricInc(MetricMFAReplayBlocked)
		return ErrMFACodeReplayed
	}
	if err := e.credentials.UpdateTOTPLastUsed(ctx, user.ID, counter); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}
