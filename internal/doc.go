// Package internal holds shared primitives for the authcore engine: random
// identifier and secret generation plus the canonical hashing helpers used
// for backup codes and API keys. Nothing here is part of the public API.
package internal
