package authcore

import (
	"context"
	"errors"
	"fmt"
)

const minPasswordLength = 8

// ChangePassword replaces the user's password after verifying the current
// one. Reusing the current password is rejected. All of the user's sessions
// are ended: whoever is holding a stolen session loses it the moment the
// owner rotates the password. Clients must log in again with the new
// password.
func (e *Engine) ChangePassword(ctx context.Context, userID, oldPass, newPass string) error {
	user, err := e.reauthenticate(ctx, userID, oldPass)
	if err != nil {
		e.metricInc(MetricPasswordChangeFailure)
		e.emitAudit(ctx, auditEventPasswordChangeFailure, SeverityInfo, false, userID, "", err, nil)
		return err
	}

	if len(newPass) < minPasswordLength {
		e.metricInc(MetricPasswordChangeFailure)
		e.emitAudit(ctx, auditEventPasswordChangeFailure, SeverityInfo, false, user.ID, "", ErrPasswordPolicy, nil)
		return ErrPasswordPolicy
	}
	if newPass == oldPass {
		e.metricInc(MetricPasswordChangeFailure)
		e.emitAudit(ctx, auditEventPasswordChangeFailure, SeverityInfo, false, user.ID, "", ErrPasswordReuse, nil)
		return ErrPasswordReuse
	}

	newHash, err := e.hasher.Hash(newPass)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if err := e.credentials.UpdatePasswordHash(ctx, user.ID, newHash); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	// The hash is updated at this point and stays updated even if session
	// invalidation fails; the new password must never silently revert.
	if err := e.sessions.DeleteAllForUser(ctx, user.ID); err != nil {
		e.emitAudit(ctx, auditEventPasswordChangeFailure, SeverityInfo, false, user.ID, "", ErrSessionInvalidationFailed, nil)
		return errors.Join(ErrSessionInvalidationFailed, err)
	}
	e.metricInc(MetricSessionInvalidated)

	e.metricInc(MetricPasswordChangeSuccess)
	e.emitAudit(ctx, auditEventPasswordChangeSuccess, SeverityInfo, true, user.ID, "", nil, nil)
	return nil
}
