package authcore

import (
	"context"
	"errors"
	"testing"
)

func TestLoginWithTOTPReturnsChallengeOnly(t *testing.T) {
	cfg := testConfig(t)
	engine, creds, _ := newTestEngine(t, cfg)
	seedUser(t, creds, cfg, "u1", "alice@example.com", "correct-password-123")
	enableTOTP(t, engine, "u1")

	result, err := engine.Login(context.Background(), "alice@example.com", "correct-password-123")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if !result.MFARequired || result.MFAToken == "" || result.MFAPrompt == "" {
		t.Fatalf("expected MFA challenge, got %+v", result)
	}
	if result.AccessToken != "" || result.RefreshToken != "" || result.SessionID != "" {
		t.Fatal("challenge response must not carry tokens or a session")
	}
}

func TestConfirmLoginMFAWithTOTPCode(t *testing.T) {
	cfg := testConfig(t)
	engine, creds, _ := newTestEngine(t, cfg)
	seedUser(t, creds, cfg, "u1", "alice@example.com", "correct-password-123")
	secret, _ := enableTOTP(t, engine, "u1")

	ctx := context.Background()
	challenge, err := engine.Login(ctx, "alice@example.com", "correct-password-123")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	result, err := engine.ConfirmLoginMFA(ctx, challenge.MFAToken, currentCode(t, engine, secret))
	if err != nil {
		t.Fatalf("ConfirmLoginMFA failed: %v", err)
	}
	if result.AccessToken == "" || result.RefreshToken == "" || result.SessionID == "" {
		t.Fatalf("expected full token pair after MFA, got %+v", result)
	}
}

func TestConfirmLoginMFARejectsWrongCode(t *testing.T) {
	cfg := testConfig(t)
	engine, creds, _ := newTestEngine(t, cfg)
	seedUser(t, creds, cfg, "u1", "alice@example.com", "correct-password-123")
	enableTOTP(t, engine, "u1")

	ctx := context.Background()
	challenge, err := engine.Login(ctx, "alice@example.com", "correct-password-123")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	if _, err := engine.ConfirmLoginMFA(ctx, challenge.MFAToken, "000000"); !errors.Is(err, ErrInvalidMFACode) {
		t.Fatalf("expected ErrInvalidMFACode, got %v", err)
	}
}

func TestConfirmLoginMFARejectsForgedChallenge(t *testing.T) {
	cfg := testConfig(t)
	engine, creds, _ := newTestEngine(t, cfg)
	seedUser(t, creds, cfg, "u1", "alice@example.com", "correct-password-123")
	secret, _ := enableTOTP(t, engine, "u1")

	ctx := context.Background()
	code := currentCode(t, engine, secret)

	if _, err := engine.ConfirmLoginMFA(ctx, "not-a-token", code); !errors.Is(err, ErrInvalidOrExpiredChallenge) {
		t.Fatalf("expected ErrInvalidOrExpiredChallenge, got %v", err)
	}
}

func TestAccessTokenIsNotAnMFAChallenge(t *testing.T) {
	cfg := testConfig(t)
	engine, creds, _ := newTestEngine(t, cfg)
	seedUser(t, creds, cfg, "u1", "alice@example.com", "correct-password-123")
	seedUser(t, creds, cfg, "u2", "bob@example.com", "correct-password-456")

	ctx := context.Background()
	login, err := engine.Login(ctx, "bob@example.com", "correct-password-456")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	// A validly signed access token must fail purpose verification.
	if _, err := engine.ConfirmLoginMFA(ctx, login.AccessToken, "000000"); !errors.Is(err, ErrInvalidOrExpiredChallenge) {
		t.Fatalf("expected purpose scoping to reject the access token, got %v", err)
	}
}

func TestBackupCodeCompletesMFAAndIsSingleUse(t *testing.T) {
	cfg := testConfig(t)
	engine, creds, _ := newTestEngine(t, cfg)
	seedUser(t, creds, cfg, "u1", "alice@example.com", "correct-password-123")
	_, backupCodes := enableTOTP(t, engine, "u1")

	ctx := context.Background()
	challenge, err := engine.Login(ctx, "alice@example.com", "correct-password-123")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	result, err := engine.ConfirmLoginMFA(ctx, challenge.MFAToken, backupCodes[0])
	if err != nil {
		t.Fatalf("ConfirmLoginMFA with backup code failed: %v", err)
	}
	if result.AccessToken == "" {
		t.Fatal("expected tokens after backup-code MFA")
	}
	if got := len(creds.get("u1").BackupCodes); got != cfg.TOTP.BackupCodeCount-1 {
		t.Fatalf("expected %d remaining codes, got %d", cfg.TOTP.BackupCodeCount-1, got)
	}

	// The same code never verifies twice.
	challenge2, err := engine.Login(ctx, "alice@example.com", "correct-password-123")
	if err != nil {
		t.Fatalf("second Login failed: %v", err)
	}
	if _, err := engine.ConfirmLoginMFA(ctx, challenge2.MFAToken, backupCodes[0]); !errors.Is(err, ErrInvalidMFACode) {
		t.Fatalf("expected reused backup code to fail, got %v", err)
	}
}

func TestTOTPCodeIsSingleUseAcrossLogins(t *testing.T) {
	cfg := testConfig(t)
	engine, creds, _ := newTestEngine(t, cfg)
	seedUser(t, creds, cfg, "u1", "alice@example.com", "correct-password-123")
	secret, _ := enableTOTP(t, engine, "u1")

	ctx := context.Background()
	challenge, err := engine.Login(ctx, "alice@example.com", "correct-password-123")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	code := currentCode(t, engine, secret)
	if _, err := engine.ConfirmLoginMFA(ctx, challenge.MFAToken, code); err != nil {
		t.Fatalf("ConfirmLoginMFA failed: %v", err)
	}

	// An intercepted code is worthless once its owner has spent it, even
	// while the skew window would still accept it.
	challenge2, err := engine.Login(ctx, "alice@example.com", "correct-password-123")
	if err != nil {
		t.Fatalf("second Login failed: %v", err)
	}
	if _, err := engine.ConfirmLoginMFA(ctx, challenge2.MFAToken, code); !errors.Is(err, ErrMFACodeReplayed) {
		t.Fatalf("expected ErrMFACodeReplayed, got %v", err)
	}
}

func TestSetupConfirmationCodeIsSpent(t *testing.T) {
	cfg := testConfig(t)
	engine, creds, _ := newTestEngine(t, cfg)
	seedUser(t, creds, cfg, "u1", "alice@example.com", "correct-password-123")

	ctx := context.Background()
	setup, err := engine.BeginTOTPSetup(ctx, "u1")
	if err != nil {
		t.Fatalf("BeginTOTPSetup failed: %v", err)
	}
	code := currentCode(t, engine, setup.Secret)
	if err := engine.ConfirmTOTPSetup(ctx, "u1", code); err != nil {
		t.Fatalf("ConfirmTOTPSetup failed: %v", err)
	}

	challenge, err := engine.Login(ctx, "alice@example.com", "correct-password-123")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if _, err := engine.ConfirmLoginMFA(ctx, challenge.MFAToken, code); !errors.Is(err, ErrMFACodeReplayed) {
		t.Fatalf("expected confirmation code to be spent, got %v", err)
	}
}

func TestLockoutCounterSurvivesUnfinishedMFALogin(t *testing.T) {
	cfg := testConfig(t)
	engine, creds, _ := newTestEngine(t, cfg)
	seedUser(t, creds, cfg, "u1", "alice@example.com", "correct-password-123")
	secret, _ := enableTOTP(t, engine, "u1")

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, err := engine.Login(ctx, "alice@example.com", "wrong-password-1"); err == nil {
			t.Fatal("expected failure")
		}
	}

	// The password phase alone is not a fully successful login; the counter
	// must hold until the MFA phase completes.
	challenge, err := engine.Login(ctx, "alice@example.com", "correct-password-123")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if got := creds.get("u1").FailedAttempts; got != 2 {
		t.Fatalf("expected counter to survive the password phase, got %d", got)
	}

	if _, err := engine.ConfirmLoginMFA(ctx, challenge.MFAToken, currentCode(t, engine, secret)); err != nil {
		t.Fatalf("ConfirmLoginMFA failed: %v", err)
	}
	if got := creds.get("u1").FailedAttempts; got != 0 {
		t.Fatalf("expected counter reset after full login, got %d", got)
	}
}
