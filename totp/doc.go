// Package totp wraps time-based one-time password provisioning and
// verification for authcore: secret generation, otpauth:// URIs, QR code
// rendering, and validation with bounded clock-skew tolerance.
package totp
