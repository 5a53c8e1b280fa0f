// Package session implements authd's session lifecycle.
//
// It registers accounts, verifies credentials, issues short-lived access tokens
// (HS256 JWT by default, PASETO v4.local optionally) paired with opaque refresh
// secrets, and rotates refresh secrets under a row lock so each one is honored
// at most once.
//
// Refresh secrets are stored hashed (HMAC-SHA256 when a token HMAC key is
// configured; otherwise SHA-256). Every mutating operation runs inside a single
// Store transaction.
//
// Transport (HTTP) integration lives in package api.
package session
