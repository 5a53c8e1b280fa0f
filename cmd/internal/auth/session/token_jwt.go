package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type jwtClaims struct {
	Email       string   `json:"email"`
	Role        string   `json:"role"`
	Roles       []string `json:"roles"`
	DefaultRole string   `json:"defaultRole"`
	jwt.RegisteredClaims
}

type jwtManager struct {
	issuer    string
	ttl       time.Duration
	clockSkew time.Duration
	key       []byte
}

// NewJWTManager builds an AccessTokenManager that signs HS256 JWTs.
//
// Verification pins the signing method and requires the configured issuer and an
// expiry. Expiry is exact; ClockSkew applies to iat and nbf only.
func NewJWTManager(cfg Config) (AccessTokenManager, error) {
	if len(cfg.SigningSecret) < minSigningSecretBytes || cfg.AccessTokenTTL <= 0 {
		return nil, ErrConfig
	}
	return &jwtManager{
		issuer:    cfg.Issuer,
		ttl:       cfg.AccessTokenTTL,
		clockSkew: cfg.ClockSkew,
		key:       []byte(cfg.SigningSecret),
	}, nil
}

func (m *jwtManager) Issue(sub Subject, now time.Time) (string, time.Time, error) {
	role := string(sub.Role)
	c := jwtClaims{
		Email:       sub.Email,
		Role:        role,
		Roles:       []string{role},
		DefaultRole: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub.AccountID,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(m.key)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, c.ExpiresAt.Time, nil
}

func (m *jwtManager) Verify(token string, now time.Time) (AccessClaims, error) {
	p := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)

	var c jwtClaims
	if _, err := p.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) { return m.key, nil }); err != nil {
		return AccessClaims{}, ErrInvalidToken
	}
	if c.Subject == "" || !validAt(numericTime(c.IssuedAt), numericTime(c.NotBefore), numericTime(c.ExpiresAt), now, m.clockSkew) {
		return AccessClaims{}, ErrInvalidToken
	}

	out := AccessClaims{
		Subject:     c.Subject,
		Email:       c.Email,
		Role:        c.Role,
		Roles:       c.Roles,
		DefaultRole: c.DefaultRole,
		Issuer:      c.Issuer,
		ID:          c.ID,
	}
	out.IssuedAt = numericTime(c.IssuedAt)
	out.ExpiresAt = numericTime(c.ExpiresAt)
	return out, nil
}

func numericTime(d *jwt.NumericDate) time.Time {
	if d == nil {
		return time.Time{}
	}
	return d.Time
}
