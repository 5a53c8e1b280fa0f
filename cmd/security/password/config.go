package password

import (
	"fmt"
	"math"
	"os"
	"runtime"
	"strconv"
	"strings"
)

// Argon2idParams is the Argon2id cost. MemoryKiB is passed to argon2.IDKey as is.
type Argon2idParams struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Policy bounds accepted passwords. Lengths count runes.
type Policy struct {
	MinLength      int
	MaxLength      int
	RejectVeryWeak bool
}

// Config holds the hashing cost and the password policy.
type Config struct {
	Params Argon2idParams
	Policy Policy
}

// DefaultConfig accepts any non-empty password up to 256 runes and hashes with
// 64 MiB, 3 passes and up to 4 lanes.
func DefaultConfig() Config {
	return Config{
		Params: Argon2idParams{
			MemoryKiB:   64 * 1024,
			Iterations:  3,
			Parallelism: uint8(min(max(runtime.NumCPU(), 1), 4)), // #nosec G115 -- in [1..4].
			SaltLength:  16,
			KeyLength:   32,
		},
		Policy: Policy{MinLength: 1, MaxLength: 256},
	}
}

type envSetter struct {
	key string
	set func(cfg *Config, raw string) error
}

func intSetter(lo, hi int, dst func(*Config) *int) func(*Config, string) error {
	return func(cfg *Config, raw string) error {
		n, err := atoiPositiveInt(raw, lo, hi)
		if err != nil {
			return err
		}
		*dst(cfg) = n
		return nil
	}
}

func u32Setter(lo, hi uint32, dst func(*Config) *uint32) func(*Config, string) error {
	return func(cfg *Config, raw string) error {
		u, err := atou32(raw, lo, hi)
		if err != nil {
			return err
		}
		*dst(cfg) = u
		return nil
	}
}

var envSetters = []envSetter{
	{"AUTH_PASSWORD_MIN_LEN", intSetter(1, 1024, func(c *Config) *int { return &c.Policy.MinLength })},
	{"AUTH_PASSWORD_MAX_LEN", intSetter(1, 4096, func(c *Config) *int { return &c.Policy.MaxLength })},
	{"AUTH_PASSWORD_REJECT_VERY_WEAK", func(c *Config, raw string) error {
		b, err := parseBool(raw)
		c.Policy.RejectVeryWeak = b
		return err
	}},
	{"AUTH_ARGON2_MEMORY_KIB", u32Setter(8*1024, 1024*1024, func(c *Config) *uint32 { return &c.Params.MemoryKiB })},
	{"AUTH_ARGON2_ITERATIONS", u32Setter(1, 20, func(c *Config) *uint32 { return &c.Params.Iterations })},
	{"AUTH_ARGON2_PARALLELISM", func(c *Config, raw string) error {
		u, err := atou32(raw, 1, 64)
		if err != nil {
			return err
		}
		c.Params.Parallelism, err = u32ToU8(u)
		return err
	}},
	{"AUTH_ARGON2_SALT_LEN", u32Setter(8, 64, func(c *Config) *uint32 { return &c.Params.SaltLength })},
	{"AUTH_ARGON2_KEY_LEN", u32Setter(16, 64, func(c *Config) *uint32 { return &c.Params.KeyLength })},
}

// FromEnv starts from DefaultConfig and applies every AUTH_PASSWORD_* and
// AUTH_ARGON2_* variable that is set. Out-of-range values are errors, not
// silently clamped.
func FromEnv() (Config, error) {
	cfg := DefaultConfig()
	for _, e := range envSetters {
		raw, ok := os.LookupEnv(e.key)
		if !ok {
			continue
		}
		if err := e.set(&cfg, raw); err != nil {
			return Config{}, fmt.Errorf("%s: %w", e.key, err)
		}
	}

	if cfg.Policy.MinLength > cfg.Policy.MaxLength {
		return Config{}, fmt.Errorf("password policy: min length %d exceeds max length %d",
			cfg.Policy.MinLength, cfg.Policy.MaxLength)
	}
	return cfg, nil
}

func atoiPositiveInt(s string, minVal, maxVal int) (int, error) {
	s = strings.TrimSpace(s)
	i64, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("not an integer")
	}

	i := int(i64)
	if i < minVal || i > maxVal {
		return 0, fmt.Errorf("out of range [%d..%d]", minVal, maxVal)
	}
	return i, nil
}

func atou32(s string, minVal, maxVal uint32) (uint32, error) {
	s = strings.TrimSpace(s)
	u64, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("not an unsigned integer")
	}

	u := uint32(u64)
	if u < minVal || u > maxVal {
		return 0, fmt.Errorf("out of range [%d..%d]", minVal, maxVal)
	}
	return u, nil
}

func u32ToU8(u uint32) (uint8, error) {
	if u > math.MaxUint8 {
		return 0, fmt.Errorf("out of range [0..%d]", math.MaxUint8)
	}
	return uint8(u), nil
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean")
	}
}
