package app

import (
	"errors"

	"authd/cmd/security/token"
)

const minTokenHMACKeyBytes = 32

// RefreshHasher builds the refresh-secret digest from AUTH_TOKEN_HMAC_KEY and
// enforces the security policy.
//
// With AUTH_REQUIRE_TOKEN_HMAC=true a missing or short key fails startup.
// Otherwise a missing key selects plain SHA-256 and a short key is rejected.
func RefreshHasher(cfg Config, log Logger) (token.Hasher, error) {
	key, err := token.HMACKeyFromEnv(minTokenHMACKeyBytes)
	switch {
	case err == nil:
		h := token.NewHasher(key)
		if !h.HMAC() {
			return token.Hasher{}, errors.New("security policy: token hasher is not in HMAC mode")
		}
		return h, nil

	case errors.Is(err, token.ErrHMACKeyMissing):
		if cfg.RequireTokenHMAC {
			return token.Hasher{}, errors.New("security policy: AUTH_REQUIRE_TOKEN_HMAC=true but AUTH_TOKEN_HMAC_KEY is missing")
		}
		if log != nil {
			log.Warn("security.refresh_hash.sha256", "hint", "set AUTH_TOKEN_HMAC_KEY to key refresh digests")
		}
		return token.NewHasher(nil), nil

	case errors.Is(err, token.ErrHMACKeyTooShort):
		return token.Hasher{}, errors.New("security policy: AUTH_TOKEN_HMAC_KEY is too short (min 32 bytes)")

	default:
		return token.Hasher{}, err
	}
}
