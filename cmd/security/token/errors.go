package token

import "errors"

var (
	// ErrHMACKeyMissing means AUTH_TOKEN_HMAC_KEY is unset or blank.
	ErrHMACKeyMissing = errors.New("token: refresh HMAC key not configured")
	// ErrHMACKeyTooShort means the configured key is below the required length.
	ErrHMACKeyTooShort = errors.New("token: refresh HMAC key too short")
	// ErrInvalidLength rejects opaque secret sizes outside [32, 128] bytes.
	ErrInvalidLength = errors.New("token: secret length out of range")
)
