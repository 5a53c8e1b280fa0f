package session

import (
	"fmt"
	"time"

	"authd/cmd/identity"
)

// Subject is the identity an access token is issued for.
type Subject struct {
	AccountID string
	Email     string
	Role      identity.Role
}

// AccessClaims is the identity envelope carried by an access token.
type AccessClaims struct {
	Subject     string
	Email       string
	Role        string
	Roles       []string
	DefaultRole string
	IssuedAt    time.Time
	ExpiresAt   time.Time
	Issuer      string
	ID          string
}

// AccessTokenManager issues and verifies short-lived access tokens.
// Verify returns ErrInvalidToken for any bad, expired or foreign token.
type AccessTokenManager interface {
	Issue(sub Subject, now time.Time) (token string, exp time.Time, err error)
	Verify(token string, now time.Time) (AccessClaims, error)
}

// NewAccessTokenManager builds the codec selected by cfg.TokenFormat.
func NewAccessTokenManager(cfg Config) (AccessTokenManager, error) {
	switch cfg.TokenFormat {
	case TokenFormatJWT, "":
		return NewJWTManager(cfg)
	case TokenFormatPaseto:
		return NewPasetoV4LocalManager(cfg)
	default:
		return nil, fmt.Errorf("%w: unknown access token format %q", ErrConfig, cfg.TokenFormat)
	}
}

// validAt reports whether a token with the given time claims is usable at now.
// exp is exact: the token is dead from exp onwards. skew only lets iat and nbf
// sit slightly in the future of a lagging verifier clock.
func validAt(iat, nbf, exp, now time.Time, skew time.Duration) bool {
	if exp.IsZero() || !now.Before(exp) {
		return false
	}
	late := now.Add(skew)
	if !iat.IsZero() && late.Before(iat) {
		return false
	}
	if !nbf.IsZero() && late.Before(nbf) {
		return false
	}
	return true
}
