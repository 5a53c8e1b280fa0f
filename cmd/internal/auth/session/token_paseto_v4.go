package session

import (
	"crypto/sha256"
	"io"
	"time"

	paseto "aidanwoods.dev/go-paseto"
	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"
)

// pasetoKeyInfo binds the derived key to its purpose.
const pasetoKeyInfo = "authd access-token v4.local"

type pasetoV4LocalManager struct {
	issuer    string
	ttl       time.Duration
	clockSkew time.Duration

	key paseto.V4SymmetricKey
}

// NewPasetoV4LocalManager builds an AccessTokenManager based on PASETO v4.local.
//
// The 32-byte symmetric key is derived from the signing secret with HKDF-SHA256.
// Expiry is exact; ClockSkew applies to iat and nbf only.
func NewPasetoV4LocalManager(cfg Config) (AccessTokenManager, error) {
	if len(cfg.SigningSecret) < minSigningSecretBytes || cfg.AccessTokenTTL <= 0 {
		return nil, ErrConfig
	}

	raw := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(cfg.SigningSecret), nil, []byte(pasetoKeyInfo)), raw); err != nil {
		return nil, ErrConfig
	}
	key, err := paseto.V4SymmetricKeyFromBytes(raw)
	if err != nil {
		return nil, ErrConfig
	}

	return &pasetoV4LocalManager{
		issuer:    cfg.Issuer,
		ttl:       cfg.AccessTokenTTL,
		clockSkew: cfg.ClockSkew,
		key:       key,
	}, nil
}

func (m *pasetoV4LocalManager) Issue(sub Subject, now time.Time) (string, time.Time, error) {
	// PASETO time claims carry whole seconds.
	exp := now.Add(m.ttl).Truncate(time.Second)
	role := string(sub.Role)

	tok := paseto.NewToken()
	tok.SetIssuer(m.issuer)
	tok.SetSubject(sub.AccountID)
	tok.SetJti(uuid.NewString())
	tok.SetIssuedAt(now)
	tok.SetNotBefore(now) // Access tokens valid immediately.
	tok.SetExpiration(exp)

	if err := tok.Set("email", sub.Email); err != nil {
		return "", time.Time{}, err
	}
	if err := tok.Set("role", role); err != nil {
		return "", time.Time{}, err
	}
	if err := tok.Set("roles", []string{role}); err != nil {
		return "", time.Time{}, err
	}
	if err := tok.Set("defaultRole", role); err != nil {
		return "", time.Time{}, err
	}

	return tok.V4Encrypt(m.key, nil), exp, nil
}

func (m *pasetoV4LocalManager) Verify(token string, now time.Time) (AccessClaims, error) {
	p := paseto.NewParserWithoutExpiryCheck()
	p.AddRule(paseto.IssuedBy(m.issuer))
	p.AddRule(m.timeRule(now))

	parsed, err := p.ParseV4Local(m.key, token, nil)
	if err != nil {
		return AccessClaims{}, ErrInvalidToken
	}

	sub, err := parsed.GetSubject()
	if err != nil || sub == "" {
		return AccessClaims{}, ErrInvalidToken
	}

	out := AccessClaims{Subject: sub}
	out.Issuer, _ = parsed.GetIssuer()
	out.ID, _ = parsed.GetJti()
	out.IssuedAt, _ = parsed.GetIssuedAt()
	out.ExpiresAt, _ = parsed.GetExpiration()
	out.Email, _ = parsed.GetString("email")
	out.Role, _ = parsed.GetString("role")
	out.DefaultRole, _ = parsed.GetString("defaultRole")
	if err := parsed.Get("roles", &out.Roles); err != nil {
		return AccessClaims{}, ErrInvalidToken
	}
	return out, nil
}

// timeRule checks iat, nbf and exp against now. All three must be present.
func (m *pasetoV4LocalManager) timeRule(now time.Time) paseto.Rule {
	return func(tok paseto.Token) error {
		iat, err := tok.GetIssuedAt()
		if err != nil {
			return err
		}
		nbf, err := tok.GetNotBefore()
		if err != nil {
			return err
		}
		exp, err := tok.GetExpiration()
		if err != nil {
			return err
		}
		if !validAt(iat, nbf, exp, now, m.clockSkew) {
			return ErrInvalidToken
		}
		return nil
	}
}
