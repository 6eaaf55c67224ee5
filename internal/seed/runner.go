package seed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/okian/fathom/internal/domain/types"
	"github.com/okian/fathom/pkg/logger"
)

// SetupLogging initializes the global logger writing to stdout and logFile.
// If logFile is empty, only stdout is used.
func SetupLogging(logFile string) error {
	if logFile == "" {
		return logger.Init()
	}
	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return fmt.Errorf("create log file: %w", err)
	}
	logger.InitWithWriter(io.MultiWriter(os.Stdout, file))
	return nil
}

// Run executes a complete seeding run.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	stats := &Stats{StartTime: time.Now()}
	log := logger.Get().Named("seed")

	log.Info(ctx, "starting fathom seed run",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("records", cfg.NumRecords),
		logger.Int("workers", cfg.Workers),
		logger.Any("seed", cfg.Seed))

	client := NewClient(cfg.BaseURL, cfg.Timeout)

	if err := client.Healthy(ctx); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}

	before, err := client.StoredDecisions(ctx)
	if err != nil {
		return stats, fmt.Errorf("read stats: %w", err)
	}

	records := NewGenerator(cfg.Seed, time.Now(), cfg.Months, cfg.NoiseRatio).Generate(cfg.NumRecords)
	stats.RecordsGenerated = len(records)

	submitRecords(ctx, cfg, client, records, stats)
	if stats.BatchesFailed > 0 {
		return stats, fmt.Errorf("%d batches failed", stats.BatchesFailed)
	}

	if err := waitStored(ctx, client, before+stats.RecordsAccepted); err != nil {
		return stats, err
	}

	if err := verifyPatterns(ctx, client, stats); err != nil {
		return stats, fmt.Errorf("pattern verification failed: %w", err)
	}
	if err := verifyTrends(ctx, client, stats); err != nil {
		return stats, fmt.Errorf("trend verification failed: %w", err)
	}

	if cfg.OutputFile != "" {
		if err := saveRecords(cfg.OutputFile, records); err != nil {
			log.Warn(ctx, "failed to save records", logger.Error(err))
		}
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, stats)
	return stats, nil
}

// waitStored polls /stats until the workers have persisted want records.
func waitStored(ctx context.Context, client *Client, want int) error {
	ctx, cancel := context.WithTimeout(ctx, storedWaitTimeout)
	defer cancel()

	ticker := time.NewTicker(storedPollInterval)
	defer ticker.Stop()
	for {
		n, err := client.StoredDecisions(ctx)
		if err == nil && n >= want {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for %d stored decisions: %w", want, ctx.Err())
		case <-ticker.C:
		}
	}
}

// saveRecords writes records as an ingest document, so the file can be fed
// back to the offline CLI commands.
func saveRecords(filename string, records []types.Decision) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("create directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(types.IngestRequest{Decisions: records}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal records: %w", err)
	}
	return os.WriteFile(filename, data, logFilePermission)
}

func displayFinalStats(ctx context.Context, stats *Stats) {
	var acceptRate, recordsPerSecond float64
	if stats.RecordsGenerated > 0 {
		acceptRate = float64(stats.RecordsAccepted) / float64(stats.RecordsGenerated) * PercentageMultiplier
	}
	if stats.Duration > 0 {
		recordsPerSecond = float64(stats.RecordsGenerated) / stats.Duration.Seconds()
	}

	logger.Get().Info(ctx, "final statistics",
		logger.Int("recordsGenerated", stats.RecordsGenerated),
		logger.Int("batchesSubmitted", stats.BatchesSubmitted),
		logger.Int("recordsAccepted", stats.RecordsAccepted),
		logger.Int("recordsDuplicate", stats.RecordsDuplicate),
		logger.Int("patternsFound", stats.PatternsFound),
		logger.Int("trendSeries", stats.TrendSeries),
		logger.Duration("duration", stats.Duration),
		logger.Float64("acceptRate", acceptRate),
		logger.Float64("recordsPerSecond", recordsPerSecond))
}
