package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strings"
)

const (
	stateTokenBytes = 32
	sessionIDBytes  = 16
)

// Backup codes use an unambiguous alphabet: no 0/O, 1/I/L pairs, so codes
// survive being read over the phone or copied from paper.
const backupCodeAlphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"

// NewSessionID returns a 128-bit random identifier in compact base64url.
func NewSessionID() (string, error) {
	var raw [sessionIDBytes]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// NewStateToken returns a 256-bit random opaque token for OAuth CSRF state.
func NewStateToken() (string, error) {
	var raw [stateTokenBytes]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// NewOpaqueSecret returns n random bytes in base64url, used as the body of
// raw API keys.
func NewOpaqueSecret(n int) (string, error) {
	if n < 16 {
		return "", errors.New("opaque secret must be at least 16 bytes")
	}
	raw := make([]byte, n)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// NewBackupCode generates a random code of the given length over the
// restricted alphabet. Rejection sampling keeps the distribution uniform.
func NewBackupCode(length int) (string, error) {
	if length < 8 || length > 64 {
		return "", errors.New("invalid backup code length")
	}

	var b strings.Builder
	b.Grow(length)

	// Largest multiple of len(alphabet) below 256; bytes at or above it are
	// discarded to avoid modulo bias.
	limit := byte(256 / len(backupCodeAlphabet) * len(backupCodeAlphabet))
	buf := make([]byte, length*2)
	for b.Len() < length {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, v := range buf {
			if v >= limit {
				continue
			}
			b.WriteByte(backupCodeAlphabet[int(v)%len(backupCodeAlphabet)])
			if b.Len() == length {
				break
			}
		}
	}

	return b.String(), nil
}

// FormatBackupCode renders a code for display, grouped in blocks of five
// ("A1B2C-3D4E5"). Canonicalization strips the grouping back out.
func FormatBackupCode(code string) string {
	const group = 5
	if len(code) <= group {
		return code
	}

	var b strings.Builder
	for i, r := range code {
		if i > 0 && i%group == 0 {
			b.WriteByte('-')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// CanonicalizeBackupCode normalizes user input before hashing: uppercase,
// with separators and surrounding whitespace removed.
func CanonicalizeBackupCode(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	code = strings.ReplaceAll(code, "-", "")
	return strings.ReplaceAll(code, " ", "")
}

// BackupCodeHash binds the code to its owner so equal codes issued to
// different users never share a stored hash.
func BackupCodeHash(userID, canonicalCode string) [32]byte {
	return sha256.Sum256([]byte(userID + ":" + canonicalCode))
}

// HashBindingValue hashes request metadata (IP, user agent) for session
// records; raw values never reach the session store.
func HashBindingValue(value string) [32]byte {
	return sha256.Sum256([]byte(value))
}
