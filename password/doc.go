// Package password provides Argon2id hashing with PHC-formatted output,
// constant-time verification, and parameter-upgrade detection for
// rehash-on-login.
package password
