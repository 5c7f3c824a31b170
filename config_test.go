package authcore

import (
	"strings"
	"testing"
	"time"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		message string
	}{
		{"zero access ttl", func(c *Config) { c.Token.AccessTTL = 0 }, "AccessTTL"},
		{"refresh shorter than access", func(c *Config) { c.Token.RefreshTTL = time.Minute }, "RefreshTTL"},
		{"huge challenge ttl", func(c *Config) { c.Token.MFAChallengeTTL = time.Hour }, "MFAChallengeTTL"},
		{"bad signing method", func(c *Config) { c.Token.SigningMethod = "rs256" }, "SigningMethod"},
		{"zero lockout threshold", func(c *Config) { c.Lockout.MaxFailedAttempts = 0 }, "MaxFailedAttempts"},
		{"seven digit totp", func(c *Config) { c.TOTP.Digits = 7 }, "Digits"},
		{"excess skew", func(c *Config) { c.TOTP.Skew = 5 }, "Skew"},
		{"empty provider name", func(c *Config) { c.OAuth.Providers = []string{"github", " "} }, "Providers"},
		{"tiny key secret", func(c *Config) { c.APIKey.SecretBytes = 8 }, "SecretBytes"},
		{"day-long state ttl", func(c *Config) { c.OAuth.StateTTL = 24 * time.Hour }, "StateTTL"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.message) {
				t.Fatalf("expected error naming %s, got %v", tc.message, err)
			}
		})
	}
}

func TestBuilderRequiresCredentialStore(t *testing.T) {
	cfg := testConfig(t)

	if _, err := New().WithConfig(cfg).Build(); err == nil {
		t.Fatal("expected Build to fail without a credential store")
	}
}

func TestBuilderIsSingleUse(t *testing.T) {
	cfg := testConfig(t)
	b := New().WithConfig(cfg)

	if _, err := b.Build(); err == nil {
		t.Fatal("expected first Build to fail without dependencies")
	}
	if _, err := b.Build(); err == nil || !strings.Contains(err.Error(), "already used") {
		t.Fatalf("expected builder reuse error, got %v", err)
	}
}

func TestConfigCloneDetachesKeyMaterial(t *testing.T) {
	cfg := testConfig(t)
	cloned := cloneConfig(cfg)

	cfg.Token.PrivateKey[0] ^= 0xff
	if cloned.Token.PrivateKey[0] == cfg.Token.PrivateKey[0] {
		t.Fatal("expected cloned key material to be independent")
	}

	cfg.OAuth.Providers[0] = "changed"
	if cloned.OAuth.Providers[0] == "changed" {
		t.Fatal("expected cloned provider list to be independent")
	}
}
