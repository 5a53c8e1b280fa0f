package app

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"authd/migrations"
)

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	ShutdownTimeout   time.Duration

	DatabaseURL      string
	DBSchema         string
	DBMaxConns       int32
	DBMinConns       int32
	DBIdleTimeout    time.Duration
	DBConnectTimeout time.Duration

	// If true, /readyz returns 503 unless the DB is configured and reachable.
	ReadinessRequireDB bool

	// If true, AUTH_TOKEN_HMAC_KEY must be set (>= 32 bytes) and refresh digests are HMAC-SHA256.
	RequireTokenHMAC bool

	// AuditDB writes audit events to <schema>.audit_log.
	AuditDB bool
	// AMQPURL enables the audit event publisher when set.
	AMQPURL   string
	AMQPQueue string
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	addr := EnvString("AUTH_HTTP_ADDR", "")
	if addr == "" {
		if port := EnvString("PORT", ""); port != "" {
			addr = net.JoinHostPort("0.0.0.0", port)
		} else {
			addr = "0.0.0.0:8080"
		}
	}

	return Config{
		HTTPAddr:  addr,
		LogLevel:  EnvString("AUTH_LOG_LEVEL", "info"),
		LogFormat: EnvString("AUTH_LOG_FORMAT", "json"),

		ReadHeaderTimeout: EnvDuration("AUTH_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("AUTH_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("AUTH_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("AUTH_HTTP_IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    EnvInt("AUTH_HTTP_MAX_HEADER_BYTES", 1<<20),
		ShutdownTimeout:   EnvDuration("AUTH_SHUTDOWN_TIMEOUT", 10*time.Second),

		DatabaseURL:      EnvFirst("AUTH_DATABASE_URL", "DATABASE_URL"),
		DBSchema:         EnvString("AUTH_DB_SCHEMA", migrations.DefaultSchema),
		DBMaxConns:       EnvInt32First(10, "AUTH_DB_MAX_CONNS", "DB_POOL_MAX"),
		DBMinConns:       EnvInt32("AUTH_DB_MIN_CONNS", 0),
		DBIdleTimeout:    EnvDuration("AUTH_DB_IDLE_TIMEOUT", 30*time.Second),
		DBConnectTimeout: EnvDuration("AUTH_DB_CONNECT_TIMEOUT", 5*time.Second),

		ReadinessRequireDB: EnvBool("AUTH_READINESS_REQUIRE_DB", false),
		RequireTokenHMAC:   EnvBool("AUTH_REQUIRE_TOKEN_HMAC", false),

		AuditDB:   EnvBool("AUTH_AUDIT_DB", false),
		AMQPURL:   EnvString("AUTH_AMQP_URL", ""),
		AMQPQueue: EnvString("AUTH_AMQP_QUEUE", ""),
	}
}

// Validate rejects configurations the runtime cannot start with.
func (c Config) Validate() error {
	if strings.TrimSpace(c.HTTPAddr) == "" {
		return errors.New("config: empty http addr")
	}
	if c.DatabaseURL != "" {
		if err := ValidateDatabaseURL(c.DatabaseURL); err != nil {
			return err
		}
	}
	if c.AuditDB && c.DatabaseURL == "" {
		return errors.New("config: AUTH_AUDIT_DB=true requires a database url")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("config: AUTH_DB_MIN_CONNS (%d) exceeds max conns (%d)", c.DBMinConns, c.DBMaxConns)
	}
	return nil
}

var placeholderHosts = []string{"example.com", "db.example.com", "replace-with-host"}

// ValidateDatabaseURL checks that raw is a usable postgres URL and not a
// copied placeholder. Key/value DSNs are accepted as-is.
func ValidateDatabaseURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return errors.New("config: database url is empty")
	}
	if !strings.Contains(raw, "://") {
		return nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return errors.New("config: database url is not a valid URL")
	}
	switch u.Scheme {
	case "postgres", "postgresql":
	default:
		return fmt.Errorf("config: database url scheme %q is not postgres", u.Scheme)
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return errors.New("config: database url has no host")
	}
	for _, p := range placeholderHosts {
		if host == p {
			return fmt.Errorf("config: database url host %q is a placeholder", host)
		}
	}
	if strings.HasSuffix(host, ".example.com") {
		return fmt.Errorf("config: database url host %q is a placeholder", host)
	}
	return nil
}
