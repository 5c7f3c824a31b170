package authcore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/heliosuite/authcore/apikey"
	"github.com/heliosuite/authcore/internal"
	"github.com/heliosuite/authcore/internal/audit"
	"github.com/heliosuite/authcore/internal/stores"
	"github.com/heliosuite/authcore/password"
	"github.com/heliosuite/authcore/token"
	"github.com/heliosuite/authcore/totp"
)

// Engine is the authentication core. Construct it through [New]; the zero
// value is not usable. All methods are safe for concurrent use.
type Engine struct {
	config      Config
	credentials CredentialStore
	sessions    SessionRecorder
	apiKeys     *apikey.Manager
	oauthStates *stores.OAuthStateStore
	codec       *token.Codec
	hasher      *password.Hasher
	totp        *totp.Engine
	audit       *audit.Dispatcher
	metrics     *Metrics
	now         func() time.Time
}

// Close drains and stops the audit dispatcher. The engine must not be used
// after Close.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were discarded because the
// dispatcher buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}
	return e.metrics.Snapshot()
}

// establishSession is the single success exit of every login flow. It mints
// the session, records it, resets the lockout counter, and issues the
// access/refresh pair. Superuser accounts get a shortened access TTL so a
// leaked high-privilege token ages out fast.
func (e *Engine) establishSession(ctx context.Context, user UserRecord) (*LoginResult, error) {
	sessionID, err := internal.NewSessionID()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	now := e.now().UTC()
	if err := e.sessions.Create(ctx, SessionInfo{
		SessionID: sessionID,
		UserID:    user.ID,
		ClientIP:  clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		CreatedAt: now,
		ExpiresAt: now.Add(e.config.Session.Lifetime),
	}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	if user.FailedAttempts > 0 || user.LockedUntil != nil {
		if err := e.credentials.UpdateLockout(ctx, user.ID, 0, nil); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
	}

	accessTTL := e.config.Token.AccessTTL
	if user.Superuser && accessTTL > 5*time.Minute {
		accessTTL = 5 * time.Minute
	}

	access, err := e.codec.IssueSession(user.ID, sessionID, token.PurposeAccess, accessTTL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	refresh, err := e.codec.IssueSession(user.ID, sessionID, token.PurposeRefresh, e.config.Token.RefreshTTL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	e.metricInc(MetricSessionCreated)
	return &LoginResult{
		AccessToken:  access,
		RefreshToken: refresh,
		SessionID:    sessionID,
	}, nil
}

// ValidateAccess verifies an access token and returns its subject and
// session. Purpose scoping means refresh tokens, MFA challenges, and any
// other token kind fail here regardless of signature validity.
func (e *Engine) ValidateAccess(ctx context.Context, accessToken string) (*AuthResult, error) {
	claims, err := e.codec.Verify(accessToken, token.PurposeAccess)
	if err != nil {
		return nil, ErrTokenInvalid
	}
	return &AuthResult{
		UserID:    claims.Subject,
		SessionID: claims.SessionID,
	}, nil
}

// Refresh exchanges a refresh token for a new access token. The session
// must still exist; a refresh against a logged-out session fails.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*LoginResult, error) {
	claims, err := e.codec.Verify(refreshToken, token.PurposeRefresh)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, SeverityInfo, false, "", "", ErrTokenInvalid, nil)
		return nil, ErrTokenInvalid
	}

	// The token is only half the proof; the recorded session is the other.
	// Logout deletes the record, killing every refresh token minted for it.
	alive, err := e.sessions.Exists(ctx, claims.SessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if !alive {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, SeverityInfo, false, claims.Subject, claims.SessionID, ErrSessionNotFound, nil)
		return nil, ErrSessionNotFound
	}

	user, err := e.credentials.FindByID(ctx, claims.Subject)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, SeverityInfo, false, claims.Subject, claims.SessionID, ErrTokenInvalid, nil)
		return nil, ErrTokenInvalid
	}
	if user.Status == AccountDisabled {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, SeverityInfo, false, user.ID, claims.SessionID, ErrAccountDisabled, nil)
		return nil, ErrAccountDisabled
	}

	accessTTL := e.config.Token.AccessTTL
	if user.Superuser && accessTTL > 5*time.Minute {
		accessTTL = 5 * time.Minute
	}
	access, err := e.codec.IssueSession(user.ID, claims.SessionID, token.PurposeAccess, accessTTL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, SeverityInfo, true, user.ID, claims.SessionID, nil, nil)
	return &LoginResult{
		AccessToken:  access,
		RefreshToken: refreshToken,
		SessionID:    claims.SessionID,
	}, nil
}

// Logout ends one session. Ending an already-ended session returns
// ErrSessionNotFound rather than succeeding silently.
func (e *Engine) Logout(ctx context.Context, userID, sessionID string) error {
	found, err := e.sessions.Delete(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if !found {
		return ErrSessionNotFound
	}

	e.metricInc(MetricLogout)
	e.metricInc(MetricSessionInvalidated)
	e.emitAudit(ctx, auditEventLogoutSession, SeverityInfo, true, userID, sessionID, nil, nil)
	return nil
}

// LogoutAll ends every session the user has.
func (e *Engine) LogoutAll(ctx context.Context, userID string) error {
	if err := e.sessions.DeleteAllForUser(ctx, userID); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	e.metricInc(MetricLogoutAll)
	e.emitAudit(ctx, auditEventLogoutAll, SeverityInfo, true, userID, "", nil, nil)
	return nil
}

// SecurityReport returns a read-only snapshot of the active policy, for
// operator dashboards and config review.
func (e *Engine) SecurityReport() SecurityReport {
	providers := append([]string(nil), e.config.OAuth.Providers...)
	return SecurityReport{
		SigningAlgorithm: e.codec.Algorithm(),
		AccessTTL:        e.config.Token.AccessTTL,
		RefreshTTL:       e.config.Token.RefreshTTL,
		MFAChallengeTTL:  e.config.Token.MFAChallengeTTL,
		LockoutThreshold: e.config.Lockout.MaxFailedAttempts,
		LockoutDuration:  e.config.Lockout.Duration,
		Argon2: PasswordConfigReport{
			Memory:      e.config.Password.Memory,
			Time:        e.config.Password.Time,
			Parallelism: e.config.Password.Parallelism,
			SaltLength:  e.config.Password.SaltLength,
			KeyLength:   e.config.Password.KeyLength,
		},
		TOTPDigits:           e.config.TOTP.Digits,
		TOTPSkew:             e.config.TOTP.Skew,
		TOTPReplayProtection: e.config.TOTP.EnforceReplayProtection,
		BackupCodeCount:      e.config.TOTP.BackupCodeCount,
		OAuthProviders:       providers,
		OAuthStateTTL:        e.config.OAuth.StateTTL,
		APIKeyPrefixLength:   e.config.APIKey.PrefixLength,
		AuditEnabled:         e.audit != nil,
	}
}

// findForLogin loads the credential record for a login attempt, mapping
// store errors into the uniform ErrInvalidCredentials.
func (e *Engine) findForLogin(ctx context.Context, email string) (UserRecord, error) {
	user, err := e.credentials.FindByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		return UserRecord{}, ErrUserNotFound
	}
	if err != nil {
		return UserRecord{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return user, nil
}
