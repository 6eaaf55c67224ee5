package config

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix  = "FATHOM_"
	envFileKey = "FATHOM_CONFIG"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if FATHOM_CONFIG is set
//  3. env (prefix FATHOM_)
func Load(_ context.Context) (*Config, error) {
	cfg := New()
	k := koanf.New(".")

	if path := os.Getenv(envFileKey); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// FATHOM_QUEUE_SIZE -> queue_size, FATHOM_WEIGHTS_SUCCESS -> weights.success
	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
		if rest, ok := strings.CutPrefix(s, "weights_"); ok {
			return "weights." + rest
		}
		return s
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the service cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Addr == "" {
		errs = append(errs, errors.New("addr must not be empty"))
	}
	if c.QueueSize < 1 {
		errs = append(errs, errors.New("queue_size must be positive"))
	}
	switch c.StoreDriver {
	case "memory":
	case "sqlite":
		if c.SQLitePath == "" {
			errs = append(errs, errors.New("sqlite_path is required for the sqlite driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store_driver %q", c.StoreDriver))
	}
	if c.PatternCacheTTLSeconds < 0 {
		errs = append(errs, errors.New("pattern_cache_ttl_seconds must not be negative"))
	}
	if c.MinGroupSupport < 1 || c.MinContextSupport < 1 || c.MaxPatterns < 1 {
		errs = append(errs, errors.New("pattern thresholds must be positive"))
	}
	if c.CompareMargin < 0 || math.IsNaN(c.CompareMargin) {
		errs = append(errs, errors.New("compare_margin must not be negative"))
	}
	if c.ApplyThreshold < 0 || c.ApplyThreshold > 1 || math.IsNaN(c.ApplyThreshold) {
		errs = append(errs, errors.New("apply_threshold must be within [0, 1]"))
	}
	if c.DefaultSampleSize < 1 {
		errs = append(errs, errors.New("default_sample_size must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}
