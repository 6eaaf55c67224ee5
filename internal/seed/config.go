// Package seed generates synthetic fleet decision records, submits them to a
// running service and checks that the planted patterns are detected.
package seed

import "time"

// Config holds configuration for a seeding run.
type Config struct {
	BaseURL    string        // Base URL of the service
	NumRecords int           // Number of decision records to generate
	BatchSize  int           // Records per POST /v1/decisions
	Workers    int           // Number of concurrent submitters
	Timeout    time.Duration // HTTP request timeout
	Seed       uint64        // Generator seed; equal seeds give equal records
	Months     int           // Spread timestamps over this many months
	NoiseRatio float64       // Share of records with a random context
	OutputFile string        // Output file for generated records
	LogFile    string        // Log file for run output
	Verbose    bool          // Enable verbose logging
}

// Stats holds run statistics.
type Stats struct {
	RecordsGenerated int
	BatchesSubmitted int
	RecordsAccepted  int
	RecordsDuplicate int
	BatchesFailed    int
	PatternsFound    int
	PatternsMissing  int
	TrendSeries      int
	StartTime        time.Time
	EndTime          time.Time
	Duration         time.Duration
}
