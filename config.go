package authtokens

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/authtokens/codec"
	"github.com/MrEthical07/authtokens/internal"
)

// Config is the full engine configuration. It is copied at Build time and
// never mutated afterwards.
type Config struct {
	Tokens  TokensConfig  `yaml:"tokens" envPrefix:"TOKENS_"`
	Refresh RefreshConfig `yaml:"refresh" envPrefix:"REFRESH_"`
	Storage StorageConfig `yaml:"storage" envPrefix:"STORAGE_"`
	Cookies CookiesConfig `yaml:"cookies" envPrefix:"COOKIES_"`
	Audit   AuditConfig   `yaml:"audit" envPrefix:"AUDIT_"`
	Metrics MetricsConfig `yaml:"metrics" envPrefix:"METRICS_"`
}

/*
====================================
TOKENS CONFIG
====================================
*/

// TokensConfig holds the secrets and lifetimes of the token triple.
type TokensConfig struct {
	SignSecret    string `yaml:"sign_secret" env:"SIGN_SECRET"`
	EncryptSecret string `yaml:"encrypt_secret" env:"ENCRYPT_SECRET"`
	Issuer        string `yaml:"issuer" env:"ISSUER"`
	// RandomBytesSize is the number of random bytes behind each CSRF token
	// and refresh opaque value.
	RandomBytesSize    int           `yaml:"random_bytes_size" env:"RANDOM_BYTES_SIZE"`
	AccessTokenMaxAge  time.Duration `yaml:"access_token_max_age" env:"ACCESS_TOKEN_MAX_AGE"`
	RefreshTokenMaxAge time.Duration `yaml:"refresh_token_max_age" env:"REFRESH_TOKEN_MAX_AGE"`
	// CSRFTokenMaxAge only bounds the CSRF cookie; the token itself lives as
	// long as the refresh session it is bound to.
	CSRFTokenMaxAge time.Duration `yaml:"csrf_token_max_age" env:"CSRF_TOKEN_MAX_AGE"`
}

/*
====================================
REFRESH CONFIG
====================================
*/

// RefreshConfig tunes rotation semantics and the optional refresh throttle.
type RefreshConfig struct {
	// RotateValue rotates the refresh opaque value on every refresh, so the
	// refresh token string changes too.
	RotateValue bool `yaml:"rotate_value" env:"ROTATE_VALUE"`
	// AtomicRotation makes verify-then-write a single compare-and-swap on
	// stores that support it. Without it concurrent refreshes of one
	// principal race and the last writer wins.
	AtomicRotation bool          `yaml:"atomic_rotation" env:"ATOMIC_ROTATION"`
	EnableThrottle bool          `yaml:"enable_throttle" env:"ENABLE_THROTTLE"`
	MaxAttempts    int           `yaml:"max_attempts" env:"MAX_ATTEMPTS"`
	Cooldown       time.Duration `yaml:"cooldown" env:"COOLDOWN"`
}

/*
====================================
STORAGE CONFIG
====================================
*/

// StorageBackend names a storage implementation.
type StorageBackend string

const (
	StorageMemory   StorageBackend = "memory"
	StorageRedis    StorageBackend = "redis"
	StoragePostgres StorageBackend = "postgres"
)

// StorageConfig selects and configures the refresh session store. Backends
// handed to the Builder directly (WithStore, WithRedis, WithPostgres) take
// precedence over the connection settings here.
type StorageConfig struct {
	Backend     StorageBackend `yaml:"backend" env:"BACKEND"`
	RedisPrefix string         `yaml:"redis_prefix" env:"REDIS_PREFIX"`
	Redis       RedisConfig    `yaml:"redis" envPrefix:"REDIS_"`
	Postgres    PostgresConfig `yaml:"postgres" envPrefix:"POSTGRES_"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" env:"ADDR"`
	Password string `yaml:"password" env:"PASSWORD"`
	DB       int    `yaml:"db" env:"DB"`
}

type PostgresConfig struct {
	DSN   string `yaml:"dsn" env:"DSN"`
	Table string `yaml:"table" env:"TABLE"`
}

/*
====================================
COOKIES CONFIG
====================================
*/

// CookiesConfig names the cookies the HTTP layer uses to carry each token.
type CookiesConfig struct {
	AccessName  string `yaml:"access_name" env:"ACCESS_NAME"`
	RefreshName string `yaml:"refresh_name" env:"REFRESH_NAME"`
	CSRFName    string `yaml:"csrf_name" env:"CSRF_NAME"`
	Domain      string `yaml:"domain" env:"DOMAIN"`
	Path        string `yaml:"path" env:"PATH"`
	Secure      bool   `yaml:"secure" env:"SECURE"`
	// SameSite is one of "strict", "lax" or "none".
	SameSite string `yaml:"same_site" env:"SAME_SITE"`
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

type AuditConfig struct {
	Enabled    bool `yaml:"enabled" env:"ENABLED"`
	BufferSize int  `yaml:"buffer_size" env:"BUFFER_SIZE"`
	DropIfFull bool `yaml:"drop_if_full" env:"DROP_IF_FULL"`
}

type MetricsConfig struct {
	Enabled                 bool `yaml:"enabled" env:"ENABLED"`
	EnableLatencyHistograms bool `yaml:"enable_latency_histograms" env:"ENABLE_LATENCY_HISTOGRAMS"`
}

// DefaultConfig returns the documented defaults. Secrets are left empty and
// must be supplied before Build.
func DefaultConfig() Config {
	return Config{
		Tokens: TokensConfig{
			RandomBytesSize:    64,
			AccessTokenMaxAge:  5 * time.Minute,
			RefreshTokenMaxAge: 7 * 24 * time.Hour,
			CSRFTokenMaxAge:    7 * 24 * time.Hour,
		},
		Refresh: RefreshConfig{
			MaxAttempts: 20,
			Cooldown:    time.Minute,
		},
		Storage: StorageConfig{
			Backend:     StorageMemory,
			RedisPrefix: "tokens",
			Postgres: PostgresConfig{
				Table: "refresh_sessions",
			},
		},
		Cookies: CookiesConfig{
			AccessName:  "ACCESS_TOKEN_NAME",
			RefreshName: "REFRESH_TOKEN_NAME",
			CSRFName:    "CSRF_TOKEN_NAME",
			Domain:      "localhost",
			Path:        "/",
			SameSite:    "strict",
		},
		Audit: AuditConfig{
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	return cfg
}

/*
====================================
VALIDATION
====================================
*/

// Validate rejects configurations the engine cannot run with. It reports the
// first problem found.
func (c *Config) Validate() error {
	// Tokens
	if len(c.Tokens.SignSecret) < codec.MinSecretSize {
		return fmt.Errorf("Tokens SignSecret must be at least %d bytes", codec.MinSecretSize)
	}
	if len(c.Tokens.EncryptSecret) < codec.MinSecretSize {
		return fmt.Errorf("Tokens EncryptSecret must be at least %d bytes", codec.MinSecretSize)
	}
	if c.Tokens.SignSecret == c.Tokens.EncryptSecret {
		return errors.New("Tokens SignSecret and EncryptSecret must differ")
	}
	if c.Tokens.RandomBytesSize < internal.MinTokenBytes || c.Tokens.RandomBytesSize > internal.MaxTokenBytes {
		return fmt.Errorf("Tokens RandomBytesSize must be between %d and %d", internal.MinTokenBytes, internal.MaxTokenBytes)
	}
	if c.Tokens.AccessTokenMaxAge <= 0 {
		return errors.New("Tokens AccessTokenMaxAge must be > 0")
	}
	if c.Tokens.RefreshTokenMaxAge <= 0 {
		return errors.New("Tokens RefreshTokenMaxAge must be > 0")
	}
	if c.Tokens.CSRFTokenMaxAge <= 0 {
		return errors.New("Tokens CSRFTokenMaxAge must be > 0")
	}
	if c.Tokens.AccessTokenMaxAge > c.Tokens.RefreshTokenMaxAge {
		return errors.New("Tokens AccessTokenMaxAge must not exceed RefreshTokenMaxAge")
	}

	// Refresh
	if c.Refresh.EnableThrottle {
		if c.Refresh.MaxAttempts <= 0 {
			return errors.New("Refresh MaxAttempts must be > 0 when EnableThrottle is true")
		}
		if c.Refresh.Cooldown <= 0 {
			return errors.New("Refresh Cooldown must be > 0 when EnableThrottle is true")
		}
	}

	// Storage
	switch c.Storage.Backend {
	case StorageMemory, StorageRedis, StoragePostgres:
		// valid
	default:
		return fmt.Errorf("Storage Backend %q is not supported", c.Storage.Backend)
	}
	if c.Storage.Backend == StorageRedis && strings.Contains(c.Storage.RedisPrefix, " ") {
		return errors.New("Storage RedisPrefix must not contain spaces")
	}

	// Cookies
	if c.Cookies.AccessName == "" || c.Cookies.RefreshName == "" || c.Cookies.CSRFName == "" {
		return errors.New("Cookies names must be non-empty")
	}
	if c.Cookies.AccessName == c.Cookies.RefreshName ||
		c.Cookies.AccessName == c.Cookies.CSRFName ||
		c.Cookies.RefreshName == c.Cookies.CSRFName {
		return errors.New("Cookies names must be distinct")
	}
	switch strings.ToLower(c.Cookies.SameSite) {
	case "", "strict", "lax":
		// valid
	case "none":
		if !c.Cookies.Secure {
			return errors.New("Cookies SameSite none requires Secure")
		}
	default:
		return fmt.Errorf("Cookies SameSite %q is not supported", c.Cookies.SameSite)
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when Enabled is true")
	}

	// Metrics
	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics EnableLatencyHistograms requires Enabled")
	}

	return nil
}
