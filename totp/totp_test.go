package totp

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func testEngine(t *testing.T) *Engine {
	t.Helper()

	e, err := NewEngine(Config{
		Issuer: "authcore-test",
		Digits: 6,
		Period: 30,
		Skew:   1,
	})
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	return e
}

func TestGenerateProducesCompleteProvision(t *testing.T) {
	e := testEngine(t)

	p, err := e.Generate("alice@example.com")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if p.Secret == "" {
		t.Fatal("expected non-empty secret")
	}
	if !strings.HasPrefix(p.URI, "otpauth://totp/") {
		t.Fatalf("unexpected provisioning URI: %q", p.URI)
	}
	if !strings.Contains(p.URI, "issuer=authcore-test") {
		t.Fatalf("expected issuer in URI, got %q", p.URI)
	}
	if !bytes.HasPrefix(p.QRCodePNG, []byte("\x89PNG")) {
		t.Fatal("expected QR code to be a PNG image")
	}
}

func TestValidateAcceptsCurrentAndSkewedCodes(t *testing.T) {
	e := testEngine(t)

	p, err := e.Generate("alice@example.com")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	now := time.Now()
	code, err := e.CodeAt(p.Secret, now)
	if err != nil {
		t.Fatalf("CodeAt failed: %v", err)
	}

	if !e.Validate(code, p.Secret, now) {
		t.Fatal("expected current code to validate")
	}
	if !e.Validate(code, p.Secret, now.Add(30*time.Second)) {
		t.Fatal("expected code to validate one period late within skew")
	}
	if e.Validate(code, p.Secret, now.Add(3*30*time.Second)) {
		t.Fatal("expected code to fail outside the skew window")
	}
}

func TestValidateCounterReportsMatchedStep(t *testing.T) {
	e := testEngine(t)

	p, err := e.Generate("alice@example.com")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	now := time.Now()
	base := now.Unix() / 30

	code, err := e.CodeAt(p.Secret, now)
	if err != nil {
		t.Fatalf("CodeAt failed: %v", err)
	}
	ok, counter := e.ValidateCounter(code, p.Secret, now)
	if !ok || counter != base {
		t.Fatalf("expected match at counter %d, got ok=%v counter=%d", base, ok, counter)
	}

	// Validated one period late, the same code maps to the same counter, so
	// replay tracking holds across the skew window.
	ok, counter = e.ValidateCounter(code, p.Secret, now.Add(30*time.Second))
	if !ok || counter != base {
		t.Fatalf("expected late match at counter %d, got ok=%v counter=%d", base, ok, counter)
	}

	next, err := e.CodeAt(p.Secret, now.Add(30*time.Second))
	if err != nil {
		t.Fatalf("CodeAt failed: %v", err)
	}
	ok, counter = e.ValidateCounter(next, p.Secret, now)
	if !ok || counter != base+1 {
		t.Fatalf("expected next-step match at counter %d, got ok=%v counter=%d", base+1, ok, counter)
	}
}

func TestValidateRejectsMalformedCodes(t *testing.T) {
	e := testEngine(t)

	p, err := e.Generate("alice@example.com")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	for _, code := range []string{"", "12345", "1234567", "abcdef"} {
		if e.Validate(code, p.Secret, time.Now()) {
			t.Fatalf("expected code %q to be rejected", code)
		}
	}
}

func TestNewEngineConfigValidation(t *testing.T) {
	cases := []Config{
		{Issuer: "", Digits: 6, Period: 30},
		{Issuer: "x", Digits: 7, Period: 30},
		{Issuer: "x", Digits: 6, Period: 5},
		{Issuer: "x", Digits: 6, Period: 30, Skew: 3},
	}
	for i, cfg := range cases {
		if _, err := NewEngine(cfg); err == nil {
			t.Fatalf("case %d: expected configuration error", i)
		}
	}
}
