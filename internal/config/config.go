// Package config loads server and client settings from the environment,
// optionally seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type StoreConfig struct {
	Driver        string `env:"STORE_DRIVER" env-default:"sqlite3"`
	DSN           string `env:"STORE_DSN" env-default:"messenger.db"`
	MongoDatabase string `env:"MONGO_DATABASE" env-default:"messenger"`
}

type AuthConfig struct {
	FreshnessWindow time.Duration `env:"FRESHNESS_WINDOW" env-default:"5s"`
	// ReplayGuard is one of memory, redis or off.
	ReplayGuard string `env:"REPLAY_GUARD" env-default:"memory"`
	RedisAddr   string `env:"REDIS_ADDR" env-default:"localhost:6379"`
}

type Server struct {
	Addr       string        `env:"SERVER_ADDR" env-default:":8080"`
	PingPeriod time.Duration `env:"PING_PERIOD" env-default:"10s"`
	LogLevel   string        `env:"LOG_LEVEL" env-default:"info"`
	Store      StoreConfig
	Auth       AuthConfig
}

type Client struct {
	ServerURL string        `env:"MESSENGER_SERVER_URL" env-default:"ws://localhost:8080/ws"`
	StatePath string        `env:"MESSENGER_STATE_PATH" env-default:"messenger-state.db"`
	KeyBits   int           `env:"MESSENGER_KEY_BITS" env-default:"4096"`
	Watchdog  time.Duration `env:"MESSENGER_WATCHDOG" env-default:"11s"`
	LogLevel  string        `env:"LOG_LEVEL" env-default:"warning"`
}

// LoadServer reads the server configuration. If envFile is set it is loaded
// first; variables already present in the environment win.
func LoadServer(envFile string) (*Server, error) {
	var cfg Server
	if err := load(envFile, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func LoadClient(envFile string) (*Client, error) {
	var cfg Client
	if err := load(envFile, &cfg); err != nil {
		return nil, err
	}
	if cfg.KeyBits < 1024 {
		return nil, fmt.Errorf("config: MESSENGER_KEY_BITS %d is too small", cfg.KeyBits)
	}
	return &cfg, nil
}

func load(envFile string, cfg any) error {
	if envFile != "" {
		if _, err := os.Stat(envFile); err != nil {
			return fmt.Errorf("config: %w", err)
		}
		if err := godotenv.Load(envFile); err != nil {
			return fmt.Errorf("config: load %s: %w", envFile, err)
		}
	}
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func (c *Server) validate() error {
	switch c.Store.Driver {
	case "sqlite3", "postgres", "mongo":
	default:
		return fmt.Errorf("config: unknown STORE_DRIVER %q", c.Store.Driver)
	}
	switch c.Auth.ReplayGuard {
	case "memory", "redis", "off":
	default:
		return fmt.Errorf("config: unknown REPLAY_GUARD %q", c.Auth.ReplayGuard)
	}
	if c.PingPeriod <= 0 || c.Auth.FreshnessWindow <= 0 {
		return errors.New("config: PING_PERIOD and FRESHNESS_WINDOW must be positive")
	}
	return nil
}
