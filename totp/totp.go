package totp

import (
	"bytes"
	"crypto/subtle"
	"errors"
	"image/png"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// Config controls provisioning and verification. Skew is the accepted
// clock drift in whole periods on either side of the current step.
type Config struct {
	Issuer string
	Digits int
	Period int
	Skew   int
}

// Provision is the result of generating a new enrollment. Secret is the
// base32 value for manual entry, URI the otpauth:// form, QRCodePNG a
// renderable PNG of that URI.
type Provision struct {
	Secret    string
	URI       string
	QRCodePNG []byte
}

// Engine generates secrets and validates codes. Immutable after
// construction and safe for concurrent use.
type Engine struct {
	config Config
}

func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Issuer == "" {
		return nil, errors.New("totp issuer required")
	}
	if cfg.Digits != 6 && cfg.Digits != 8 {
		return nil, errors.New("totp digits must be 6 or 8")
	}
	if cfg.Period < 15 || cfg.Period > 120 {
		return nil, errors.New("totp period must be in [15, 120] seconds")
	}
	if cfg.Skew < 0 || cfg.Skew > 2 {
		return nil, errors.New("totp skew must be in [0, 2]")
	}
	return &Engine{config: cfg}, nil
}

// Generate provisions a fresh secret for the given account label.
func (e *Engine) Generate(account string) (*Provision, error) {
	if strings.TrimSpace(account) == "" {
		return nil, errors.New("empty account label")
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      e.config.Issuer,
		AccountName: account,
		Period:      uint(e.config.Period),
		Digits:      e.digits(),
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, err
	}

	img, err := key.Image(256, 256)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}

	return &Provision{
		Secret:    key.Secret(),
		URI:       key.URL(),
		QRCodePNG: buf.Bytes(),
	}, nil
}

// Validate checks a code against the secret at the given instant, accepting
// the configured skew window.
func (e *Engine) Validate(code, secret string, at time.Time) bool {
	ok, _ := e.ValidateCounter(code, secret, at)
	return ok
}

// ValidateCounter is Validate plus the time-step counter the code matched
// at. The counter is what replay protection persists: a later code always
// maps to a strictly larger counter, so "counter <= last accepted" detects
// reuse across the whole skew window.
func (e *Engine) ValidateCounter(code, secret string, at time.Time) (bool, int64) {
	code = strings.TrimSpace(code)
	if len(code) != e.config.Digits {
		return false, 0
	}

	period := int64(e.config.Period)
	base := at.Unix() / period
	for offset := -e.config.Skew; offset <= e.config.Skew; offset++ {
		counter := base + int64(offset)
		if counter < 0 {
			continue
		}
		expected, err := totp.GenerateCodeCustom(secret, time.Unix(counter*period, 0), totp.ValidateOpts{
			Period:    uint(e.config.Period),
			Digits:    e.digits(),
			Algorithm: otp.AlgorithmSHA1,
		})
		if err != nil {
			return false, 0
		}
		if subtle.ConstantTimeCompare([]byte(code), []byte(expected)) == 1 {
			return true, counter
		}
	}
	return false, 0
}

// CodeAt computes the current code for a secret. Used by enrollment tests
// and by operators verifying a provisioned device; never on the login path.
func (e *Engine) CodeAt(secret string, at time.Time) (string, error) {
	return totp.GenerateCodeCustom(secret, at, totp.ValidateOpts{
		Period:    uint(e.config.Period),
		Skew:      uint(e.config.Skew),
		Digits:    e.digits(),
		Algorithm: otp.AlgorithmSHA1,
	})
}

func (e *Engine) digits() otp.Digits {
	if e.config.Digits == 8 {
		return otp.DigitsEight
	}
	return otp.DigitsSix
}
