package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/okian/fathom/internal/seed"
)

// Default configuration constants.
const (
	defaultNumRecords = 5000
	defaultBatchSize  = 100
	defaultWorkers    = 2 // multiplier for runtime.NumCPU()
	defaultTimeout    = 30 * time.Second
	defaultMonths     = 12
	defaultNoise      = 0.3
	defaultRunTimeout = 10 * time.Minute
)

func main() {
	var (
		baseURL    = flag.String("url", "http://localhost:9080", "Base URL of the service")
		numRecords = flag.Int("records", defaultNumRecords, "Number of decision records to generate and submit")
		batchSize  = flag.Int("batch", defaultBatchSize, "Records per request")
		workers    = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent submitters")
		timeout    = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		seedValue  = flag.Uint64("seed", 1, "Generator seed")
		months     = flag.Int("months", defaultMonths, "Spread timestamps over this many months")
		noise      = flag.Float64("noise", defaultNoise, "Share of records with a random context (0-1)")
		outputFile = flag.String("output", "", "Write generated records to this file")
		logFile    = flag.String("log", "", "Also write logs to this file")
		verbose    = flag.Bool("verbose", false, "Enable verbose logging")
	)
	flag.Parse()

	if err := seed.SetupLogging(*logFile); err != nil {
		fmt.Fprintln(os.Stderr, "failed to setup logging:", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultRunTimeout)
	defer cancel()

	cfg := &seed.Config{
		BaseURL:    *baseURL,
		NumRecords: *numRecords,
		BatchSize:  *batchSize,
		Workers:    max(*workers, 1),
		Timeout:    *timeout,
		Seed:       *seedValue,
		Months:     *months,
		NoiseRatio: *noise,
		OutputFile: *outputFile,
		LogFile:    *logFile,
		Verbose:    *verbose,
	}

	if _, err := seed.Run(ctx, cfg); err != nil {
		fmt.Fprintln(os.Stderr, "seed run failed:", err)
		os.Exit(1)
	}
}
