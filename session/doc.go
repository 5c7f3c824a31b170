// Package session provides the Redis-backed session recorder. Each
// established session is written as a hash keyed by session ID with a TTL
// matching the refresh window, and indexed in a per-user set so every
// session for a user can be invalidated in one call.
//
// Client IP and user agent are hashed before storage; the raw values never
// reach Redis.
package session
