// Package config defines service configuration and its loading.
//
// Conventions:
// - New() returns a Config populated with defaults.
// - Load(ctx) layers a YAML file and environment variables on top.
// - Validate reports every problem wrapped in ErrInvalidConfig.
package config

import (
	"runtime"
	"time"

	"github.com/okian/fathom/internal/domain/scoring"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// QueueSize bounds the in-memory ingestion queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of ingestion workers. With one worker records
	// are stored in ingest order; with more, order within a batch may vary.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize bounds the set of remembered decision IDs.
	DedupeSize int `koanf:"dedupe_size"`

	// StoreDriver selects the decision store: memory or sqlite.
	StoreDriver string `koanf:"store_driver"`

	// SQLitePath is the database file used by the sqlite driver.
	SQLitePath string `koanf:"sqlite_path"`

	// PatternCacheTTLSeconds is how long pattern reports are memoized.
	// Zero disables the cache.
	PatternCacheTTLSeconds int `koanf:"pattern_cache_ttl_seconds"`

	MinGroupSupport   int `koanf:"min_group_support"`
	MinContextSupport int `koanf:"min_context_support"`
	MaxPatterns       int `koanf:"max_patterns"`

	// CompareMargin is the score difference below which variants tie.
	CompareMargin float64 `koanf:"compare_margin"`

	// ApplyThreshold is the confidence a winning variant B needs before a
	// change is applied.
	ApplyThreshold float64 `koanf:"apply_threshold"`

	Weights scoring.Weights `koanf:"weights"`

	// DefaultSampleSize is used when a comparison supplies no sample size.
	DefaultSampleSize int `koanf:"default_sample_size"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:               "info",
		Addr:                   ":9080",
		QueueSize:              10_000,
		WorkerCount:            runtime.NumCPU(),
		DedupeSize:             50_000,
		StoreDriver:            "memory",
		SQLitePath:             "fathom.db",
		PatternCacheTTLSeconds: 300,
		MinGroupSupport:        3,
		MinContextSupport:      2,
		MaxPatterns:            20,
		CompareMargin:          0.05,
		ApplyThreshold:         0.8,
		Weights:                scoring.DefaultWeights(),
		DefaultSampleSize:      100,
	}
}

// PatternCacheTTL returns the cache TTL as a duration.
func (c *Config) PatternCacheTTL() time.Duration {
	return time.Duration(c.PatternCacheTTLSeconds) * time.Second
}
