// Package authcore implements the authentication and session-security core of
// a multi-tenant SaaS backend: the two-phase login state machine (password,
// then optional TOTP/backup-code MFA), account lockout, CSRF-safe OAuth state
// handling, API-key issuance and verification, and session establishment.
//
// The package is designed to be embedded by an HTTP layer that owns routing,
// request validation, and response shaping. Engine methods are safe to call
// from multiple goroutines after initialization through [Builder.Build].
//
// # Architecture boundaries
//
// authcore is the public surface. It exposes [Engine], [Builder], [Config],
// the [CredentialStore] and [SessionRecorder] collaborator interfaces, and
// value types (LoginResult, AuthResult, SecurityReport). Flow coordination,
// the OAuth state store, and audit dispatch live under internal/ and are
// never exported. Leaf packages token, password, totp, apikey, and session
// are reusable on their own.
//
// # What this package must NOT do
//
//   - Own database or cache connection lifecycles. Clients and stores are
//     injected through the Builder; connect/disconnect belongs to the
//     process entry point.
//   - Distinguish "user not found" from "wrong password" in anything it
//     returns to callers. The distinction survives only in audit events.
//   - Return or retain a raw API-key secret after creation, or accept an MFA
//     challenge token where an access token is expected. Token purposes are
//     enforced on every verification.
package authcore
