package service

import (
	"time"

	"github.com/okian/fathom/internal/adapters/repository"
	"github.com/okian/fathom/internal/domain/patterns"
	"github.com/okian/fathom/internal/domain/scoring"
	"github.com/okian/fathom/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of ingestion workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the ingestion queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize bounds the set of remembered decision IDs.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithStore sets the decision store. The service closes it on Stop.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithScoring configures the variant scorer.
func WithScoring(weights scoring.Weights, margin float64) Option {
	return func(s *Service) {
		s.scorer = scoring.New(scoring.WithWeights(weights), scoring.WithMargin(margin))
	}
}

// WithApplyThreshold sets the confidence a winning variant B needs before a
// change is applied.
func WithApplyThreshold(threshold float64) Option {
	return func(s *Service) {
		if threshold >= 0 && threshold <= 1 {
			s.applyThreshold = threshold
		}
	}
}

// WithDefaultSampleSize sets the sample size used when a comparison has none.
func WithDefaultSampleSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.defaultSampleSize = n
		}
	}
}

// WithDetector configures pattern detection thresholds.
func WithDetector(opts ...patterns.Option) Option {
	return func(s *Service) {
		s.detector = patterns.NewDetector(opts...)
	}
}

// WithPatternCacheTTL sets how long pattern reports are memoized. Zero
// disables memoization.
func WithPatternCacheTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl >= 0 {
			s.patternCacheTTL = ttl
		}
	}
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}
