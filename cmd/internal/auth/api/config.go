package api

import (
	"os"
	"strconv"
	"strings"
)

const defaultMaxBodyBytes = 1 << 20 // 1 MiB

// Config controls HTTP-level behavior of the auth endpoints.
type Config struct {
	// TrustProxy makes clientIP honor X-Forwarded-For / X-Real-IP.
	TrustProxy   bool
	MaxBodyBytes int64
}

// DefaultConfig returns the defaults used when no env overrides are present.
func DefaultConfig() Config {
	return Config{MaxBodyBytes: defaultMaxBodyBytes}
}

// LoadConfigFromEnv loads API config from environment variables with safe defaults.
func LoadConfigFromEnv() Config {
	return Config{
		TrustProxy:   envBool("AUTH_TRUST_PROXY", false),
		MaxBodyBytes: envInt64("AUTH_MAX_BODY_BYTES", defaultMaxBodyBytes),
	}
}

func (c Config) normalized() Config {
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = defaultMaxBodyBytes
	}
	return c
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt64(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
