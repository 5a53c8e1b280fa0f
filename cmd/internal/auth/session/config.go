package session

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"authd/cmd/identity"
	"authd/cmd/security/token"
)

// TokenFormat selects the access-token codec.
type TokenFormat string

const (
	TokenFormatJWT    TokenFormat = "jwt"
	TokenFormatPaseto TokenFormat = "paseto"
)

// minSigningSecretBytes is the HS256 key floor (256 bits).
const minSigningSecretBytes = 32

// Config defines all runtime configuration for the session subsystem.
//
// It controls access-token TTL and format, refresh-token lifetime and entropy,
// clock skew tolerance, and the role set accepted at registration.
type Config struct {
	// Issuer is the value set in the "iss" claim of access tokens.
	Issuer string

	// SigningSecret signs HS256 access tokens and seeds the PASETO v4.local key.
	SigningSecret string

	// AccessTokenTTL defines the lifetime of access tokens.
	AccessTokenTTL time.Duration

	// RefreshTTLDays defines the lifetime of refresh tokens in whole days.
	RefreshTTLDays int

	// RefreshTokenBytes defines the number of random bytes in a refresh secret.
	RefreshTokenBytes int

	// ClockSkew is how far iat and nbf may lie ahead of the verifier clock.
	// Access-token expiry is never extended by it.
	ClockSkew time.Duration

	// DefaultRole is assigned when registration does not name a role.
	DefaultRole identity.Role

	// KnownRoles lists the roles accepted at registration.
	KnownRoles []identity.Role

	// ExtensionRole is the role that carries a PhotographerProfile.
	ExtensionRole identity.Role

	// TokenFormat selects the access-token codec.
	TokenFormat TokenFormat
}

// DefaultConfig returns defaults suitable for development. SigningSecret is left empty.
func DefaultConfig() Config {
	return Config{
		Issuer:            "authd",
		AccessTokenTTL:    15 * time.Minute,
		RefreshTTLDays:    7,
		RefreshTokenBytes: token.DefaultRefreshBytes,
		ClockSkew:         30 * time.Second,
		DefaultRole:       identity.RoleUser,
		KnownRoles:        []identity.Role{identity.RoleUser, identity.RolePhotographer, identity.RoleAdmin},
		ExtensionRole:     identity.RolePhotographer,
		TokenFormat:       TokenFormatJWT,
	}
}

// RefreshTTL returns the refresh-token lifetime as a duration.
func (c Config) RefreshTTL() time.Duration {
	return time.Duration(c.RefreshTTLDays) * 24 * time.Hour
}

// KnowsRole reports whether r is accepted at registration.
func (c Config) KnowsRole(r identity.Role) bool {
	return slices.Contains(c.KnownRoles, r)
}

// Validate checks invariants. Returns an error wrapping ErrConfig.
func (c Config) Validate() error {
	switch {
	case len(c.SigningSecret) < minSigningSecretBytes:
		return fmt.Errorf("%w: signing secret must be at least %d bytes", ErrConfig, minSigningSecretBytes)
	case strings.TrimSpace(c.Issuer) == "":
		return fmt.Errorf("%w: issuer is required", ErrConfig)
	case c.AccessTokenTTL <= 0:
		return fmt.Errorf("%w: access ttl must be positive", ErrConfig)
	case c.RefreshTTLDays <= 0:
		return fmt.Errorf("%w: refresh ttl days must be positive", ErrConfig)
	case c.RefreshTokenBytes < 32 || c.RefreshTokenBytes > 128:
		return fmt.Errorf("%w: refresh token bytes must be in [32, 128]", ErrConfig)
	case c.ClockSkew < 0:
		return fmt.Errorf("%w: clock skew must not be negative", ErrConfig)
	case !c.KnowsRole(c.DefaultRole):
		return fmt.Errorf("%w: default role %q is not a known role", ErrConfig, c.DefaultRole)
	case !c.KnowsRole(c.ExtensionRole):
		return fmt.Errorf("%w: extension role %q is not a known role", ErrConfig, c.ExtensionRole)
	case c.TokenFormat != TokenFormatJWT && c.TokenFormat != TokenFormatPaseto:
		return fmt.Errorf("%w: unknown access token format %q", ErrConfig, c.TokenFormat)
	}
	return nil
}

// LoadConfigFromEnv loads session configuration from environment variables.
//
// Required:
//   - AUTH_JWT_SECRET (or JWT_SECRET)
//
// Optional:
//   - AUTH_ISSUER
//   - AUTH_ACCESS_TTL (or JWT_EXPIRATION; Go duration, seconds, or "<n>d")
//   - AUTH_REFRESH_TTL_DAYS (or REFRESH_TOKEN_TTL_DAYS)
//   - AUTH_REFRESH_TOKEN_BYTES
//   - AUTH_CLOCK_SKEW
//   - AUTH_DEFAULT_ROLE (or DEFAULT_ROLE)
//   - AUTH_EXTENSION_ROLE
//   - AUTH_ACCESS_TOKEN_FORMAT (jwt | paseto)
//
// Returns an error wrapping ErrConfig if configuration is invalid.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	cfg.SigningSecret = envFirst("AUTH_JWT_SECRET", "JWT_SECRET")

	if v := envFirst("AUTH_ISSUER"); v != "" {
		cfg.Issuer = v
	}

	if v := envFirst("AUTH_ACCESS_TTL", "JWT_EXPIRATION"); v != "" {
		d, err := parseLooseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, fmt.Errorf("%w: invalid access ttl %q", ErrConfig, v)
		}
		cfg.AccessTokenTTL = d
	}

	if v := envFirst("AUTH_REFRESH_TTL_DAYS", "REFRESH_TOKEN_TTL_DAYS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("%w: invalid refresh ttl days %q", ErrConfig, v)
		}
		cfg.RefreshTTLDays = n
	}

	if v := envFirst("AUTH_REFRESH_TOKEN_BYTES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("%w: invalid refresh token bytes %q", ErrConfig, v)
		}
		cfg.RefreshTokenBytes = n
	}

	if v := envFirst("AUTH_CLOCK_SKEW"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return Config{}, fmt.Errorf("%w: invalid clock skew %q", ErrConfig, v)
		}
		cfg.ClockSkew = d
	}

	if v := envFirst("AUTH_EXTENSION_ROLE"); v != "" {
		cfg.ExtensionRole = identity.Role(strings.ToLower(v))
		if !cfg.KnowsRole(cfg.ExtensionRole) {
			cfg.KnownRoles = append(cfg.KnownRoles, cfg.ExtensionRole)
		}
	}

	if v := envFirst("AUTH_DEFAULT_ROLE", "DEFAULT_ROLE"); v != "" {
		cfg.DefaultRole = identity.Role(strings.ToLower(v))
	}

	if v := envFirst("AUTH_ACCESS_TOKEN_FORMAT"); v != "" {
		cfg.TokenFormat = TokenFormat(strings.ToLower(v))
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// envFirst returns the first non-blank value among keys.
func envFirst(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return ""
}

// parseLooseDuration accepts Go durations ("15m"), bare seconds ("900") and days ("7d").
func parseLooseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err == nil {
			return time.Duration(n) * 24 * time.Hour, nil
		}
	}
	return 0, fmt.Errorf("invalid duration %q", s)
}
