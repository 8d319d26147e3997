// Package config loads the storefront host configuration from the
// environment, with an optional YAML overlay file.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the storefront host configuration.
type Config struct {
	ListenAddr string `env:"STOREFRONT_LISTEN_ADDR,default=:8080" yaml:"listen_addr"`
	LogLevel   string `env:"STOREFRONT_LOG_LEVEL,default=info" yaml:"log_level"`

	// ConfigFile points at an optional YAML overlay applied after the
	// environment.
	ConfigFile string `env:"STOREFRONT_CONFIG" yaml:"-"`

	// Store identities.
	StoreAccount string `env:"STOREFRONT_ACCOUNT,default=store.local" yaml:"store_account"`
	OwnerID      string `env:"STOREFRONT_OWNER,default=owner.local" yaml:"owner_id"`
	EscrowID     string `env:"STOREFRONT_ESCROW,default=escrow.local" yaml:"escrow_id"`

	// TokenCodePath locates the companion token service's installable code.
	TokenCodePath string `env:"STOREFRONT_TOKEN_CODE" yaml:"token_code_path"`

	// DatabaseURL enables PostgreSQL snapshot persistence when set.
	DatabaseURL string `env:"STOREFRONT_DATABASE_URL" yaml:"database_url"`

	// SnapshotSchedule is the cron expression for periodic state snapshots.
	SnapshotSchedule string `env:"STOREFRONT_SNAPSHOT_SCHEDULE,default=@every 1m" yaml:"snapshot_schedule"`

	// FlushInterval is how often the host drains the promise queue.
	// Environment-only: YAML has no duration syntax.
	FlushInterval time.Duration `env:"STOREFRONT_FLUSH_INTERVAL,default=250ms" yaml:"-"`
}

// Load reads .env (when present), the environment, and the optional YAML
// overlay.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	if cfg.ConfigFile != "" {
		if err := cfg.applyFile(cfg.ConfigFile); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}
