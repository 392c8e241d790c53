// Package config loads service settings from GENACCESS_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	env "github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"genaccess.org/internal/auth"
)

// EnvPrefix is prepended to every variable name.
const EnvPrefix = "GENACCESS_"

// Revocation ledger backends.
const (
	RevocationMemory = "memory"
	RevocationRedis  = "redis"
)

type Config struct {
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`
	GRPCAddr string `env:"GRPC_ADDR" envDefault:":9090"`

	// PGDSN selects the Postgres store; empty runs on the in-memory store.
	PGDSN         string `env:"PG_DSN"`
	RunMigrations bool   `env:"RUN_MIGRATIONS" envDefault:"true"`

	Token      TokenConfig      `envPrefix:"JWT_"`
	Revocation RevocationConfig `envPrefix:"REVOCATION_"`
	Redis      RedisConfig      `envPrefix:"REDIS_"`
	HTTP       HTTPConfig       `envPrefix:"HTTP_"`
	Bootstrap  BootstrapConfig  `envPrefix:"BOOTSTRAP_ADMIN_"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// TokenConfig configures session token signing.
type TokenConfig struct {
	// Secret is base64 encoded and must decode to at least 32 bytes.
	Secret string        `env:"SECRET"`
	TTL    time.Duration `env:"TTL" envDefault:"24h"`
	Issuer string        `env:"ISSUER" envDefault:"genaccess"`
}

type RevocationConfig struct {
	Backend string `env:"BACKEND" envDefault:"memory"`
	Prefix  string `env:"PREFIX" envDefault:"genaccess:revoked:"`
}

type RedisConfig struct {
	Addr     string `env:"ADDR" envDefault:"localhost:6379"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB" envDefault:"0"`
}

type HTTPConfig struct {
	MaxBodyBytes int64 `env:"MAX_BODY_BYTES" envDefault:"1048576"`
	RateBurst    int   `env:"RATE_BURST" envDefault:"20"`
	RatePerSec   int   `env:"RATE_PER_SEC" envDefault:"10"`
}

// BootstrapConfig describes the super administrator created on first start.
type BootstrapConfig struct {
	Username  string `env:"USERNAME" envDefault:"admin"`
	Email     string `env:"EMAIL" envDefault:"admin@genaccess.local"`
	Password  string `env:"PASSWORD"`
	FirstName string `env:"FIRST_NAME" envDefault:"System"`
	LastName  string `env:"LAST_NAME" envDefault:"Administrator"`
}

// Load reads an optional .env file and parses the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return Config{}, fmt.Errorf("load .env file: %w", err)
		}
	}
	return Parse()
}

// Parse reads the configuration from the process environment only.
func Parse() (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	cfg.Sanitize()
	return cfg, nil
}

// Sanitize normalizes free-form values.
func (c *Config) Sanitize() {
	c.Revocation.Backend = strings.ToLower(strings.TrimSpace(c.Revocation.Backend))
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.PGDSN = strings.TrimSpace(c.PGDSN)
	if c.HTTP.MaxBodyBytes <= 0 {
		c.HTTP.MaxBodyBytes = 1 << 20
	}
	if c.HTTP.RateBurst <= 0 {
		c.HTTP.RateBurst = 20
	}
	if c.HTTP.RatePerSec <= 0 {
		c.HTTP.RatePerSec = 10
	}
}

// Validate checks settings that cannot be defaulted and returns the decoded
// signing secret.
func (c Config) Validate() ([]byte, error) {
	secret, err := auth.DecodeSecret(c.Token.Secret)
	if err != nil {
		return nil, fmt.Errorf("%sJWT_SECRET: %w", EnvPrefix, err)
	}
	if c.Token.TTL <= 0 {
		return nil, fmt.Errorf("%sJWT_TTL must be positive", EnvPrefix)
	}
	switch c.Revocation.Backend {
	case RevocationMemory:
	case RevocationRedis:
		if strings.TrimSpace(c.Redis.Addr) == "" {
			return nil, fmt.Errorf("%sREDIS_ADDR is required for the redis revocation backend", EnvPrefix)
		}
	default:
		return nil, fmt.Errorf("unknown revocation backend %q", c.Revocation.Backend)
	}
	return secret, nil
}
