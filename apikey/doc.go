// Package apikey manages long-lived programmatic credentials. A key is
// minted once, shown to the caller a single time, and thereafter known to
// the system only as a SHA-256 digest plus a short display prefix used to
// narrow lookups.
//
// Storage is abstracted behind the Store interface so the manager can sit
// on top of any durable backend.
package apikey
