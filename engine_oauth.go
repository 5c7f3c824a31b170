package authcore

import (
	"context"
	"errors"
	"fmt"

	"github.com/heliosuite/authcore/internal"
	"github.com/heliosuite/authcore/internal/stores"
)

// BeginOAuth issues a single-use CSRF state for the provider's
// authorization redirect. The state lives in the ephemeral cache for
// Config.OAuth.StateTTL and is bound to exactly this provider.
func (e *Engine) BeginOAuth(ctx context.Context, provider string) (string, error) {
	if e.oauthStates == nil {
		return "", ErrEngineNotReady
	}
	if !e.knownProvider(provider) {
		return "", ErrUnknownProvider
	}

	state, err := internal.NewStateToken()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if err := e.oauthStates.Save(ctx, state, provider, e.config.OAuth.StateTTL); err != nil {
		return "", fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	e.metricInc(MetricOAuthStateIssued)
	e.emitAudit(ctx, auditEventOAuthStateIssued, SeverityInfo, true, "", "", nil, func() map[string]string {
		return map[string]string{"provider": provider}
	})
	return state, nil
}

// ConsumeOAuthState validates and retires a state presented on a provider
// callback. The entry is removed from the cache before the provider
// comparison, so a state can never be tried twice even when validation
// fails; concurrent callbacks racing on the same state resolve to exactly
// one winner.
//
// A state that verifies but was issued for a different provider fails with
// ErrProviderMismatch and is audited at alert severity.
func (e *Engine) ConsumeOAuthState(ctx context.Context, provider, state string) error {
	if e.oauthStates == nil {
		return ErrEngineNotReady
	}

	storedProvider, err := e.oauthStates.Consume(ctx, state)
	if errors.Is(err, stores.ErrOAuthStateNotFound) {
		e.metricInc(MetricOAuthStateRejected)
		e.emitAudit(ctx, auditEventOAuthStateRejected, SeverityInfo, false, "", "", ErrInvalidOrExpiredChallenge, func() map[string]string {
			return map[string]string{"provider": provider}
		})
		return ErrInvalidOrExpiredChallenge
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	if storedProvider != provider {
		e.metricInc(MetricOAuthProviderMismatch)
		e.emitAudit(ctx, auditEventOAuthStateRejected, SeverityAlert, false, "", "", ErrProviderMismatch, func() map[string]string {
			return map[string]string{
				"presented_provider": provider,
				"issued_provider":    storedProvider,
			}
		})
		return ErrProviderMismatch
	}

	e.metricInc(MetricOAuthStateConsumed)
	e.emitAudit(ctx, auditEventOAuthStateConsumed, SeverityInfo, true, "", "", nil, func() map[string]string {
		return map[string]string{"provider": provider}
	})
	return nil
}

// FinishOAuthLogin establishes a session after a provider callback. It
// consumes the state, resolves the provider-asserted email to a local
// account, and goes straight to session establishment: the provider already
// authenticated the user, so no MFA challenge is issued here.
//
// Account provisioning stays with the host; an email with no local account
// fails with ErrUserNotFound.
func (e *Engine) FinishOAuthLogin(ctx context.Context, provider, state, email string) (*LoginResult, error) {
	if err := e.ConsumeOAuthState(ctx, provider, state); err != nil {
		return nil, err
	}

	user, err := e.findForLogin(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		e.emitAudit(ctx, auditEventLoginFailure, SeverityInfo, false, "", "", ErrUserNotFound, func() map[string]string {
			return map[string]string{"provider": provider, "email": email}
		})
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}

	if user.Status == AccountDisabled {
		e.emitAudit(ctx, auditEventLoginFailure, SeverityInfo, false, user.ID, "", ErrAccountDisabled, nil)
		return nil, ErrAccountDisabled
	}
	now := e.now().UTC()
	if user.Locked(now) {
		e.metricInc(MetricLoginLockout)
		e.emitAudit(ctx, auditEventLoginLockout, SeverityInfo, false, user.ID, "", ErrAccountLocked, nil)
		return nil, ErrAccountLocked
	}

	result, err := e.establishSession(ctx, user)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventOAuthLoginSuccess, SeverityInfo, true, user.ID, result.SessionID, nil, func() map[string]string {
		return map[string]string{"provider": provider}
	})
	return result, nil
}

func (e *Engine) knownProvider(provider string) bool {
	for _, p := range e.config.OAuth.Providers {
		if p == provider {
			return true
		}
	}
	return false
}
