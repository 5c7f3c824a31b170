// Package token issues and verifies the signed, time-bound bearer tokens
// used across authcore: access and refresh tokens, MFA challenge tokens,
// and password-reset / email-verification tokens.
//
// Every token embeds a purpose claim, and verification always demands an
// expected purpose. A token can therefore never be replayed across contexts:
// an MFA challenge token presented as an access token fails verification
// exactly like a forged signature does.
package token
