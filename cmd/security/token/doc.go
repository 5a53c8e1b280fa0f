// Package token provides refresh-token primitives for authd.
//
// It is the single source of truth for refresh-token generation and hashing.
//
// Design goals:
// - Refresh secrets are random bytes, hex-encoded, shown to the client exactly once.
// - Only a one-way digest is stored: HMAC-SHA256(token, key) when a key is configured,
//   SHA-256(token) otherwise.
// - Stable 64-char hex output for storage and constant-time comparison.
//
// Keys are injected through NewHasher; this package never reads the environment at hash time.
// HMACKeyFromEnv exists for startup policy checks only.
package token
