package authcore

import (
	"context"
	"testing"
	"time"

	"github.com/heliosuite/authcore/token"
)

func TestSuperuserAccessTokenTTLIsCapped(t *testing.T) {
	cfg := testConfig(t)
	cfg.Token.AccessTTL = time.Hour
	engine, creds, _ := newTestEngine(t, cfg)

	creds.add(UserRecord{
		ID:           "root",
		Email:        "root@example.com",
		PasswordHash: hashPassword(t, cfg, "correct-password-123"),
		Superuser:    true,
		Status:       AccountActive,
	})
	seedUser(t, creds, cfg, "u1", "alice@example.com", "correct-password-123")

	ctx := context.Background()
	rootLogin, err := engine.Login(ctx, "root@example.com", "correct-password-123")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	userLogin, err := engine.Login(ctx, "alice@example.com", "correct-password-123")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	rootClaims, err := engine.codec.Verify(rootLogin.AccessToken, token.PurposeAccess)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	userClaims, err := engine.codec.Verify(userLogin.AccessToken, token.PurposeAccess)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}

	rootTTL := time.Until(rootClaims.ExpiresAt.Time)
	userTTL := time.Until(userClaims.ExpiresAt.Time)
	if rootTTL > 5*time.Minute+time.Second {
		t.Fatalf("superuser access TTL not capped: %v", rootTTL)
	}
	if userTTL < 50*time.Minute {
		t.Fatalf("regular access TTL unexpectedly short: %v", userTTL)
	}
}

func TestExpiredMFATokenRejected(t *testing.T) {
	cfg := testConfig(t)
	engine, creds, _ := newTestEngine(t, cfg)
	seedUser(t, creds, cfg, "u1", "alice@example.com", "correct-password-123")
	secret, _ := enableTOTP(t, engine, "u1")

	// Mint a challenge that is already expired.
	challenge, err := engine.codec.Issue("u1", token.PurposeMFAChallenge, -time.Minute)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	if _, err := engine.ConfirmLoginMFA(context.Background(), challenge, currentCode(t, engine, secret)); err == nil {
		t.Fatal("expected expired challenge to be rejected")
	}
}
