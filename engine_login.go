package authcore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/heliosuite/authcore/token"
)

// Login runs the password phase of the two-phase login protocol.
//
// For accounts without TOTP the returned result carries a full token pair.
// For TOTP-enabled accounts it carries only a short-lived MFA challenge
// token; the caller must complete the login through [Engine.ConfirmLoginMFA].
//
// Unknown email, wrong password, and password attempts against OAuth-only
// accounts all fail with ErrInvalidCredentials. Locked accounts fail with
// ErrAccountLocked regardless of password correctness.
func (e *Engine) Login(ctx context.Context, email, pass string) (*LoginResult, error) {
	user, err := e.findForLogin(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		// No credential row exists to count failures against.
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, SeverityInfo, false, "", "", ErrUserNotFound, func() map[string]string {
			return map[string]string{"email": email}
		})
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if user.Status == AccountDisabled {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, SeverityInfo, false, user.ID, "", ErrAccountDisabled, nil)
		return nil, ErrAccountDisabled
	}

	now := e.now().UTC()
	if user.Locked(now) {
		e.metricInc(MetricLoginLockout)
		e.emitAudit(ctx, auditEventLoginLockout, SeverityInfo, false, user.ID, "", ErrAccountLocked, nil)
		return nil, ErrAccountLocked
	}

	if user.PasswordHash == "" {
		// OAuth-only account; there is no password to guess, so the lockout
		// counter stays untouched.
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, SeverityInfo, false, user.ID, "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{"reason": "oauth_only_account"}
		})
		return nil, ErrInvalidCredentials
	}

	ok, err := e.hasher.Verify(pass, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if !ok {
		return nil, e.recordFailedPassword(ctx, user)
	}

	e.maybeUpgradeHash(ctx, user, pass)

	if user.TOTPEnabled {
		challenge, err := e.codec.Issue(user.ID, token.PurposeMFAChallenge, e.config.Token.MFAChallengeTTL)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}

		e.metricInc(MetricMFARequired)
		e.emitAudit(ctx, auditEventMFARequired, SeverityInfo, true, user.ID, "", nil, nil)
		return &LoginResult{
			MFARequired: true,
			MFAToken:    challenge,
			MFAPrompt:   "Enter the 6-digit code from your authenticator app, or a backup code.",
		}, nil
	}

	result, err := e.establishSession(ctx, user)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, SeverityInfo, true, user.ID, result.SessionID, nil, nil)
	return result, nil
}

// recordFailedPassword bumps the failure counter and arms the lockout once
// the threshold is crossed. Exact counts may race under concurrent attacks;
// only threshold-crossing matters.
func (e *Engine) recordFailedPassword(ctx context.Context, user UserRecord) error {
	attempts := user.FailedAttempts + 1

	if attempts >= e.config.Lockout.MaxFailedAttempts {
		until := e.now().UTC().Add(e.config.Lockout.Duration)
		if err := e.credentials.UpdateLockout(ctx, user.ID, attempts, &until); err != nil {
			return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}

		e.metricInc(MetricLoginLockout)
		e.emitAudit(ctx, auditEventLoginLockout, SeverityAlert, false, user.ID, "", ErrAccountLocked, func() map[string]string {
			return map[string]string{
				"failed_attempts": strconv.Itoa(attempts),
				"locked_until":    until.Format(time.RFC3339),
			}
		})
		return ErrAccountLocked
	}

	if err := e.credentials.UpdateLockout(ctx, user.ID, attempts, nil); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, auditEventLoginFailure, SeverityInfo, false, user.ID, "", ErrInvalidCredentials, func() map[string]string {
		return map[string]string{"failed_attempts": strconv.Itoa(attempts)}
	})
	return ErrInvalidCredentials
}

// maybeUpgradeHash recomputes the stored hash under the current Argon2
// parameters after a successful verification. Failures are swallowed; the
// old hash keeps working.
func (e *Engine) maybeUpgradeHash(ctx context.Context, user UserRecord, pass string) {
	if !e.config.Password.UpgradeOnLogin {
		return
	}
	needs, err := e.hasher.NeedsUpgrade(user.PasswordHash)
	if err != nil || !needs {
		return
	}
	newHash, err := e.hasher.Hash(pass)
	if err != nil {
		return
	}
	_ = e.credentials.UpdatePasswordHash(ctx, user.ID, newHash)
}
