package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds the runtime configuration, parsed from environment variables.
type Config struct {
	Port         string `env:"PORT" envDefault:"8080"`
	DatabasePath string `env:"DATABASE_PATH" envDefault:"commerceiq.db"`

	// SweepInterval is how often the expiry sweep runs; SweepBatchSize caps
	// how many entities one pass moves per kind.
	SweepInterval  time.Duration `env:"SWEEP_INTERVAL" envDefault:"1m"`
	SweepBatchSize int           `env:"SWEEP_BATCH_SIZE" envDefault:"100"`
}

// Load parses the environment into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}
