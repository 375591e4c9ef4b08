package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"

	MaxJudgeTimeout = 10 * time.Second
)

type Config struct {
	ServerAddr     string   `env:"ARENA_ADDR" envDefault:"localhost:8000"`
	DatabaseDSN    string   `env:"ARENA_DATABASE_DSN" envDefault:"host=localhost user=postgres password=postgres dbname=arena sslmode=disable"`
	Store          string   `env:"ARENA_STORE" envDefault:"postgres"`
	SigningSecret  string   `env:"ARENA_SIGNING_KEY"`
	AllowedOrigins []string `env:"ARENA_ALLOWED_ORIGINS" envSeparator:","`

	Redis RedisConfig

	JudgeURL     string        `env:"ARENA_JUDGE_URL"`
	JudgeTimeout time.Duration `env:"ARENA_JUDGE_TIMEOUT" envDefault:"10s"`
	// JudgeScore is awarded by the built-in judge when no judge URL is set.
	JudgeScore int `env:"ARENA_JUDGE_SCORE" envDefault:"100"`

	SweepInterval time.Duration `env:"ARENA_SWEEP_INTERVAL" envDefault:"30s"`
	Migrate       bool          `env:"ARENA_MIGRATE" envDefault:"false"`

	// SigningKey is the decoded SigningSecret, set by Validate.
	SigningKey []byte `env:"-"`
}

type RedisConfig struct {
	// Addr enables redis for the event bus, user cache and sweeper lock.
	// Left empty the server runs as a single instance.
	Addr     string        `env:"ARENA_REDIS_ADDR"`
	Password string        `env:"ARENA_REDIS_PASSWORD"`
	DB       int           `env:"ARENA_REDIS_DB" envDefault:"0"`
	Channel  string        `env:"ARENA_REDIS_CHANNEL" envDefault:"arena:events"`
	CacheTTL time.Duration `env:"ARENA_USER_CACHE_TTL" envDefault:"30m"`
}

func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(base64Secret)
}

// Load reads the optional dotenv files, then the environment. Variables
// already set in the environment win over dotenv values. The result is
// not validated so that callers can apply flag overrides first.
func Load(dotenvFiles ...string) (*Config, error) {
	for _, file := range dotenvFiles {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", file, err)
		}
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.ServerAddr == "" {
		return fmt.Errorf("server address cannot be empty")
	}

	switch c.Store {
	case StoreMemory:
	case StorePostgres:
		if c.DatabaseDSN == "" {
			return fmt.Errorf("database DSN cannot be empty")
		}
	default:
		return fmt.Errorf("unknown store %q, want %s or %s", c.Store, StoreMemory, StorePostgres)
	}

	if c.SigningSecret == "" {
		return fmt.Errorf("signing secret cannot be empty")
	}
	key, err := decodeSigningSecret(c.SigningSecret)
	if err != nil {
		return fmt.Errorf("decode signing secret: %w", err)
	}
	c.SigningKey = key

	if c.JudgeTimeout <= 0 || c.JudgeTimeout > MaxJudgeTimeout {
		return fmt.Errorf("judge timeout must be between 0 and %s, got %s", MaxJudgeTimeout, c.JudgeTimeout)
	}
	if c.JudgeScore < 0 {
		return fmt.Errorf("judge score cannot be negative")
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("sweep interval must be positive")
	}
	if c.Redis.Enabled() && c.Redis.Channel == "" {
		return fmt.Errorf("redis channel cannot be empty")
	}

	return nil
}
