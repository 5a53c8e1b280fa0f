// Package password hashes and verifies account credentials.
//
// New hashes are Argon2id in the PHC string form
// $argon2id$v=19$m=<KiB>,t=<iter>,p=<par>$<salt>$<key>. Verify also accepts
// bcrypt hashes ($2a$, $2b$, $2y$) carried over from older deployments, and
// NeedsRehash reports when a stored hash should be upgraded at next login.
//
// Stored hashes are untrusted input: Verify rejects encodings whose cost
// parameters fall outside fixed sanity bounds.
package password
