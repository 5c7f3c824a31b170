package authcore

import (
	"context"
	"errors"
	"time"

	"github.com/heliosuite/authcore/internal/audit"
)

const (
	auditEventLoginSuccess          = "login_success"
	auditEventLoginFailure          = "login_failure"
	auditEventLoginLockout          = "login_lockout"
	auditEventMFARequired           = "mfa_required"
	auditEventMFASuccess            = "mfa_success"
	auditEventMFAFailure            = "mfa_failure"
	auditEventBackupCodeUsed        = "backup_code_used"
	auditEventBackupCodeFailed      = "backup_code_failed"
	auditEventBackupCodesGenerated  = "backup_codes_generated"
	auditEventTOTPSetupRequested    = "totp_setup_requested"
	auditEventTOTPEnabled           = "totp_enabled"
	auditEventTOTPDisabled          = "totp_disabled"
	auditEventOAuthStateIssued      = "oauth_state_issued"
	auditEventOAuthStateConsumed    = "oauth_state_consumed"
	auditEventOAuthStateRejected    = "oauth_state_rejected"
	auditEventOAuthLoginSuccess     = "oauth_login_success"
	auditEventAPIKeyCreated         = "api_key_created"
	auditEventAPIKeyRejected        = "api_key_rejected"
	auditEventAPIKeyRevoked         = "api_key_revoked"
	auditEventAPIKeyDeleted         = "api_key_deleted"
	auditEventRefreshSuccess        = "refresh_success"
	auditEventRefreshInvalid        = "refresh_invalid"
	auditEventLogoutSession         = "logout_session"
	auditEventLogoutAll             = "logout_all"
	auditEventPasswordChangeSuccess = "password_change_success"
	auditEventPasswordChangeFailure = "password_change_failure"
)

// AuditErrorCode is the stable machine-readable error label carried in
// [AuditEvent].Error.
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrAccountLocked      AuditErrorCode = "account_locked"
	auditErrAccountDisabled    AuditErrorCode = "account_disabled"
	auditErrUserNotFound       AuditErrorCode = "user_not_found"
	auditErrChallengeInvalid   AuditErrorCode = "challenge_invalid"
	auditErrProviderMismatch   AuditErrorCode = "provider_mismatch"
	auditErrMFAInvalid         AuditErrorCode = "mfa_invalid"
	auditErrMFAReplay          AuditErrorCode = "mfa_replay"
	auditErrTOTPState          AuditErrorCode = "totp_state"
	auditErrKeyNotFound        AuditErrorCode = "key_not_found"
	auditErrInvalidToken       AuditErrorCode = "invalid_token"
	auditErrUnauthorized       AuditErrorCode = "unauthorized"
	auditErrSessionNotFound    AuditErrorCode = "session_not_found"
	auditErrPasswordPolicy     AuditErrorCode = "password_policy"
	auditErrPasswordReuse      AuditErrorCode = "password_reuse"
	auditErrSessionInvalidate  AuditErrorCode = "session_invalidation_failed"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	severity string,
	success bool,
	userID string,
	sessionID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Severity:  severity,
		UserID:    userID,
		TenantID:  tenantIDFromContext(ctx),
		SessionID: sessionID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrAccountLocked):
		return auditErrAccountLocked
	case errors.Is(err, ErrAccountDisabled):
		return auditErrAccountDisabled
	case errors.Is(err, ErrUserNotFound):
		return auditErrUserNotFound
	case errors.Is(err, ErrInvalidOrExpiredChallenge):
		return auditErrChallengeInvalid
	case errors.Is(err, ErrProviderMismatch):
		return auditErrProviderMismatch
	case errors.Is(err, ErrInvalidMFACode):
		return auditErrMFAInvalid
	case errors.Is(err, ErrMFACodeReplayed):
		return auditErrMFAReplay
	case errors.Is(err, ErrTOTPAlreadyEnabled),
		errors.Is(err, ErrTOTPNotEnabled),
		errors.Is(err, ErrTOTPSetupNotPending):
		return auditErrTOTPState
	case errors.Is(err, ErrKeyNotFound):
		return auditErrKeyNotFound
	case errors.Is(err, ErrTokenInvalid):
		return auditErrInvalidToken
	case errors.Is(err, ErrUnauthorized):
		return auditErrUnauthorized
	case errors.Is(err, ErrSessionNotFound):
		return auditErrSessionNotFound
	case errors.Is(err, ErrPasswordPolicy):
		return auditErrPasswordPolicy
	case errors.Is(err, ErrPasswordReuse):
		return auditErrPasswordReuse
	case errors.Is(err, ErrSessionInvalidationFailed):
		return auditErrSessionInvalidate
	case errors.Is(err, ErrBackendUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil {
		return
	}
	e.metrics.Inc(id)
}

// SeverityInfo and SeverityAlert are the severities the engine attaches to
// audit events. Alert marks signals of active attack, such as an OAuth
// state presented for the wrong provider.
const (
	SeverityInfo  = audit.SeverityInfo
	SeverityAlert = audit.SeverityAlert
)
