// Package stores contains Redis-backed ephemeral state used by the engine.
// Records here are short-lived and single-use; durable credential state
// lives behind the caller-supplied CredentialStore.
package stores
