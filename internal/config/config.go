// Package config reads process settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreRedis    = "redis"

	TickInterval = "interval"
	TickDeadline = "deadline"
)

type Config struct {
	Addr string `env:"ARENA_ADDR" envDefault:":8080"`

	RegistryURL     string        `env:"ARENA_REGISTRY_URL"`
	ServiceSecret   string        `env:"ARENA_SERVICE_SECRET"`
	RegistryTimeout time.Duration `env:"ARENA_REGISTRY_TIMEOUT" envDefault:"3s"`

	Store    string `env:"ARENA_STORE" envDefault:"memory"`
	StoreDSN string `env:"ARENA_STORE_DSN"`

	TickPolicy     string        `env:"ARENA_TICK_POLICY" envDefault:"interval"`
	IdleTimeout    time.Duration `env:"ARENA_IDLE_TIMEOUT" envDefault:"30s"`
	SocketBuffer   int           `env:"ARENA_SOCKET_BUFFER" envDefault:"32"`
	MaxMessage     int64         `env:"ARENA_MAX_MESSAGE_BYTES" envDefault:"1048576"`
	OriginPatterns []string      `env:"ARENA_ORIGIN_PATTERNS" envSeparator:","`

	LogLevel string `env:"ARENA_LOG_LEVEL" envDefault:"info"`
	LogDev   bool   `env:"ARENA_LOG_DEV" envDefault:"false"`

	OTelEndpoint string `env:"ARENA_OTEL_ENDPOINT"`
}

// Load reads .env files if present, then the environment.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load dotenv: %w", err)
	}
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Store {
	case StoreMemory:
	case StoreSQLite, StorePostgres, StoreRedis:
		if c.StoreDSN == "" {
			return fmt.Errorf("ARENA_STORE_DSN required for %s store", c.Store)
		}
	default:
		return fmt.Errorf("unknown store %q", c.Store)
	}
	switch c.TickPolicy {
	case TickInterval, TickDeadline:
	default:
		return fmt.Errorf("unknown tick policy %q", c.TickPolicy)
	}
	if c.SocketBuffer <= 0 {
		return fmt.Errorf("ARENA_SOCKET_BUFFER must be positive")
	}
	if c.MaxMessage <= 0 {
		return fmt.Errorf("ARENA_MAX_MESSAGE_BYTES must be positive")
	}
	return nil
}
