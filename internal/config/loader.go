package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):.
//  1. defaults (New())
//  2. file (YAML) if PITSTOP_CONFIG is set
//  3. env (prefix PITSTOP_)
func Load(_ context.Context) (*Config, error) {
	// Start with defaults
	base := New()

	k := koanf.New(".")

	// Load from file if provided
	if path := os.Getenv("PITSTOP_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
		}
	}

	// Environment variables: PITSTOP_ADDR, PITSTOP_RATE_LIMIT, ...
	// Map env keys like PITSTOP_RATE_LIMIT -> rate_limit (flat keys)
	// Preserve underscores to match koanf tags on the struct.
	envProvider := env.Provider("PITSTOP_", ".", func(s string) string {
		s = strings.ToLower(s)
		s = strings.TrimPrefix(s, "pitstop_")
		return s
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	// Unmarshal into a copy
	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func validate(cfg *Config) error {
	switch {
	case cfg.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case cfg.RateLimit <= 0:
		return fmt.Errorf("%w: rate_limit must be positive", ErrInvalidConfig)
	case cfg.RateWindowSeconds <= 0:
		return fmt.Errorf("%w: rate_window_seconds must be positive", ErrInvalidConfig)
	case cfg.BreakerThreshold <= 0:
		return fmt.Errorf("%w: breaker_threshold must be positive", ErrInvalidConfig)
	case cfg.MaxConcurrentPerTech <= 0:
		return fmt.Errorf("%w: max_concurrent_per_tech must be positive", ErrInvalidConfig)
	case cfg.WorkerCount <= 0:
		return fmt.Errorf("%w: worker_count must be positive", ErrInvalidConfig)
	}
	return nil
}
