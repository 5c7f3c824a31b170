package authcore

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestBeginTOTPSetupLeavesEnrollmentPending(t *testing.T) {
	cfg := testConfig(t)
	engine, creds, _ := newTestEngine(t, cfg)
	seedUser(t, creds, cfg, "u1", "alice@example.com", "correct-password-123")

	setup, err := engine.BeginTOTPSetup(context.Background(), "u1")
	if err != nil {
		t.Fatalf("BeginTOTPSetup failed: %v", err)
	}
	if setup.Secret == "" || !strings.HasPrefix(setup.ProvisioningURI, "otpauth://totp/") {
		t.Fatalf("incomplete provision %+v", setup)
	}
	if len(setup.QRCodePNG) == 0 {
		t.Fatal("expected QR code image")
	}
	if len(setup.BackupCodes) != cfg.TOTP.BackupCodeCount {
		t.Fatalf("expected %d backup codes, got %d", cfg.TOTP.BackupCodeCount, len(setup.BackupCodes))
	}
	for _, code := range setup.BackupCodes {
		if !strings.Contains(code, "-") {
			t.Fatalf("expected grouped display form, got %q", code)
		}
	}

	user := creds.get("u1")
	if user.TOTPEnabled {
		t.Fatal("TOTP must stay disabled until confirmed")
	}
	if len(user.TOTPSecret) == 0 || len(user.BackupCodes) != cfg.TOTP.BackupCodeCount {
		t.Fatal("expected pending secret and hashed codes to be persisted")
	}

	// A pending secret is not accepted for login MFA; the login must not
	// even issue a challenge.
	result, err := engine.Login(context.Background(), "alice@example.com", "correct-password-123")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if result.MFARequired {
		t.Fatal("pending enrollment must not gate login")
	}
}

func TestConfirmTOTPSetupWrongCodeKeepsSecretPending(t *testing.T) {
	cfg := testConfig(t)
	engine, creds, _ := newTestEngine(t, cfg)
	seedUser(t, creds, cfg, "u1", "alice@example.com", "correct-password-123")

	if _, err := engine.BeginTOTPSetup(context.Background(), "u1"); err != nil {
		t.Fatalf("BeginTOTPSetup failed: %v", err)
	}

	if err := engine.ConfirmTOTPSetup(context.Background(), "u1", "000000"); !errors.Is(err, ErrInvalidMFACode) {
		t.Fatalf("expected ErrInvalidMFACode, got %v", err)
	}

	user := creds.get("u1")
	if user.TOTPEnabled || len(user.TOTPSecret) == 0 {
		t.Fatalf("expected enrollment to stay pending, got %+v", user)
	}
}

func TestConfirmTOTPSetupRequiresPendingSecret(t *testing.T) {
	cfg := testConfig(t)
	engine, creds, _ := newTestEngine(t, cfg)
	seedUser(t, creds, cfg, "u1", "alice@example.com", "correct-password-123")

	if err := engine.ConfirmTOTPSetup(context.Background(), "u1", "123456"); !errors.Is(err, ErrTOTPSetupNotPending) {
		t.Fatalf("expected ErrTOTPSetupNotPending, got %v", err)
	}
}

func TestBeginTOTPSetupRejectsEnabledAccount(t *testing.T) {
	cfg := testConfig(t)
	engine, creds, _ := newTestEngine(t, cfg)
	seedUser(t, creds, cfg, "u1", "alice@example.com", "correct-password-123")
	enableTOTP(t, engine, "u1")

	if _, err := engine.BeginTOTPSetup(context.Background(), "u1"); !errors.Is(err, ErrTOTPAlreadyEnabled) {
		t.Fatalf("expected ErrTOTPAlreadyEnabled, got %v", err)
	}
}

func TestVerifyTOTPAcceptsCodeAndBackupCode(t *testing.T) {
	cfg := testConfig(t)
	engine, creds, _ := newTestEngine(t, cfg)
	seedUser(t, creds, cfg, "u1", "alice@example.com", "correct-password-123")
	secret, backupCodes := enableTOTP(t, engine, "u1")

	ctx := context.Background()
	if err := engine.VerifyTOTP(ctx, "u1", currentCode(t, engine, secret)); err != nil {
		t.Fatalf("VerifyTOTP with live code failed: %v", err)
	}

	// Backup codes verify case-insensitively and with or without grouping.
	lowered := strings.ToLower(strings.ReplaceAll(backupCodes[0], "-", ""))
	if err := engine.VerifyTOTP(ctx, "u1", lowered); err != nil {
		t.Fatalf("VerifyTOTP with backup code failed: %v", err)
	}
	if err := engine.VerifyTOTP(ctx, "u1", backupCodes[0]); !errors.Is(err, ErrInvalidMFACode) {
		t.Fatalf("expected consumed backup code to fail, got %v", err)
	}
}

func TestVerifyTOTPRejectsReplayedCode(t *testing.T) {
	cfg := testConfig(t)
	engine, creds, _ := newTestEngine(t, cfg)
	seedUser(t, creds, cfg, "u1", "alice@example.com", "correct-password-123")
	secret, _ := enableTOTP(t, engine, "u1")

	ctx := context.Background()
	code := currentCode(t, engine, secret)
	if err := engine.VerifyTOTP(ctx, "u1", code); err != nil {
		t.Fatalf("VerifyTOTP failed: %v", err)
	}
	if err := engine.VerifyTOTP(ctx, "u1", code); !errors.Is(err, ErrMFACodeReplayed) {
		t.Fatalf("expected ErrMFACodeReplayed, got %v", err)
	}

	// The next time step's code is fresh and verifies.
	period := time.Duration(cfg.TOTP.Period) * time.Second
	next, err := engine.totp.CodeAt(secret, time.Now().Add(period))
	if err != nil {
		t.Fatalf("CodeAt failed: %v", err)
	}
	if err := engine.VerifyTOTP(ctx, "u1", next); err != nil {
		t.Fatalf("VerifyTOTP with next-step code failed: %v", err)
	}
}

func TestVerifyTOTPReplayAllowedWhenProtectionDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.TOTP.EnforceReplayProtection = false
	engine, creds, _ := newTestEngine(t, cfg)
	seedUser(t, creds, cfg, "u1", "alice@example.com", "correct-password-123")
	secret, _ := enableTOTP(t, engine, "u1")

	ctx := context.Background()
	code := currentCode(t, engine, secret)
	if err := engine.VerifyTOTP(ctx, "u1", code); err != nil {
		t.Fatalf("first VerifyTOTP failed: %v", err)
	}
	if err := engine.VerifyTOTP(ctx, "u1", code); err != nil {
		t.Fatalf("second VerifyTOTP failed with protection off: %v", err)
	}
}

func TestDisableTOTPRequiresPassword(t *testing.T) {
	cfg := testConfig(t)
	engine, creds, _ := newTestEngine(t, cfg)
	seedUser(t, creds, cfg, "u1", "alice@example.com", "correct-password-123")
	enableTOTP(t, engine, "u1")

	ctx := context.Background()
	if err := engine.DisableTOTP(ctx, "u1", "wrong-password-1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if !creds.get("u1").TOTPEnabled {
		t.Fatal("failed re-auth must not disable TOTP")
	}

	if err := engine.DisableTOTP(ctx, "u1", "correct-password-123"); err != nil {
		t.Fatalf("DisableTOTP failed: %v", err)
	}
	user := creds.get("u1")
	if user.TOTPEnabled || len(user.TOTPSecret) != 0 || len(user.BackupCodes) != 0 {
		t.Fatalf("expected cleared TOTP state, got %+v", user)
	}
}

func TestRegenerateBackupCodesInvalidatesOldSet(t *testing.T) {
	cfg := testConfig(t)
	engine, creds, _ := newTestEngine(t, cfg)
	seedUser(t, creds, cfg, "u1", "alice@example.com", "correct-password-123")
	_, oldCodes := enableTOTP(t, engine, "u1")

	ctx := context.Background()
	newCodes, err := engine.RegenerateBackupCodes(ctx, "u1", "correct-password-123")
	if err != nil {
		t.Fatalf("RegenerateBackupCodes failed: %v", err)
	}
	if len(newCodes) != cfg.TOTP.BackupCodeCount {
		t.Fatalf("expected %d codes, got %d", cfg.TOTP.BackupCodeCount, len(newCodes))
	}

	if err := engine.VerifyTOTP(ctx, "u1", oldCodes[0]); !errors.Is(err, ErrInvalidMFACode) {
		t.Fatalf("expected old backup code to be invalid, got %v", err)
	}
	if err := engine.VerifyTOTP(ctx, "u1", newCodes[0]); err != nil {
		t.Fatalf("expected new backup code to verify, got %v", err)
	}
}
