// Package service orchestrates scoring, significance and pattern detection
// over ingested decision records. It implements the dependencies required by
// the HTTP API and the CLI.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/okian/fathom/internal/adapters/cache"
	eventqueue "github.com/okian/fathom/internal/adapters/mq/queue"
	workerpool "github.com/okian/fathom/internal/adapters/mq/worker"
	"github.com/okian/fathom/internal/adapters/repository"
	"github.com/okian/fathom/internal/domain/dedupe"
	"github.com/okian/fathom/internal/domain/model"
	"github.com/okian/fathom/internal/domain/patterns"
	"github.com/okian/fathom/internal/domain/scoring"
	"github.com/okian/fathom/internal/domain/significance"
	"github.com/okian/fathom/internal/domain/types"
	"github.com/okian/fathom/pkg/logger"
	"github.com/okian/fathom/pkg/metrics"
)

const (
	defaultApplyThreshold  = 0.8
	defaultSampleSize      = 100
	defaultQueueSize       = 10_000
	defaultDedupeSize      = 50_000
	defaultPatternCacheTTL = 5 * time.Minute
	groupBySubject         = "subject"
	groupByAction          = "action"
)

// Service implements the API dependencies for the analytics engine.
type Service struct {
	mu sync.RWMutex

	// Core components
	scorer   *scoring.Scorer
	detector *patterns.Detector

	// Ingestion and storage, built by Start
	store      repository.Store
	deduper    dedupe.Deduper
	queue      eventqueue.Queue
	workerPool *workerpool.Pool
	patterns   *cache.PatternCache

	// Configuration
	workerCount       int
	queueSize         int
	dedupeSize        int
	applyThreshold    float64
	defaultSampleSize int
	patternCacheTTL   time.Duration
	now               func() time.Time

	started bool
	logger  logger.Logger
}

// New constructs a Service. Scoring is usable right away; ingestion and
// pattern queries need Start.
func New(opts ...Option) *Service {
	s := &Service{
		scorer:            scoring.New(),
		detector:          patterns.NewDetector(),
		workerCount:       runtime.NumCPU(),
		queueSize:         defaultQueueSize,
		dedupeSize:        defaultDedupeSize,
		applyThreshold:    defaultApplyThreshold,
		defaultSampleSize: defaultSampleSize,
		patternCacheTTL:   defaultPatternCacheTTL,
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start builds the ingestion pipeline and starts the workers.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}

	s.logger.Info(ctx, "starting analytics service...")

	if s.store == nil {
		s.store = repository.NewMemoryStore()
		s.logger.Info(ctx, "using in-memory store")
	}
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.queue = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.queueSize))
	s.patterns = cache.New(cache.WithTTL(s.patternCacheTTL), cache.WithClock(s.now))

	s.workerPool = workerpool.NewPool(s.workerCount, s.queue, s.store, s.patterns,
		workerpool.WithLogger(s.logger.Named("worker")))
	s.workerPool.Start(ctx)

	s.started = true
	s.logger.Info(ctx, "analytics service started",
		logger.Int("workers", s.workerPool.Size()),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.Duration("patternCacheTTL", s.patternCacheTTL),
	)
	return nil
}

// Stop drains queued records into the store and closes it.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping analytics service...")

	var errs []error
	if err := s.workerPool.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := s.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}

	s.started = false
	s.logger.Info(ctx, "analytics service stopped")
	return errors.Join(errs...)
}

// Score returns the weighted score of a metric bundle.
func (s *Service) Score(m scoring.MetricBundle) float64 {
	return s.scorer.Score(m)
}

// Compare picks a winner between two variants. A nil significance is
// estimated from the bundles over sampleSize observations, falling back to
// the configured default when sampleSize < 1.
func (s *Service) Compare(ctx context.Context, a, b scoring.MetricBundle, sig *float64, sampleSize int) types.CompareResponse {
	var confidence float64
	if sig != nil {
		confidence = *sig
	} else {
		if sampleSize < 1 {
			sampleSize = s.defaultSampleSize
		}
		confidence = significance.ForBundles(a, b, sampleSize)
		metrics.RecordSignificance(confidence)
	}

	c := s.scorer.Compare(a, b, confidence)
	apply := s.ShouldApply(c)

	metrics.RecordComparison(c.Winner.String())
	if apply {
		metrics.RecordChangeApplied()
	}
	s.log().Debug(ctx, "variants compared",
		logger.String("winner", c.Winner.String()),
		logger.Float64("confidence", c.Confidence),
		logger.Bool("apply", apply),
	)

	return types.CompareResponse{
		Winner:     c.Winner,
		Confidence: c.Confidence,
		ScoreA:     c.ScoreA,
		ScoreB:     c.ScoreB,
		Apply:      apply,
	}
}

// ShouldApply is the apply-change policy: only a second-variant win with
// enough confidence triggers a change.
func (s *Service) ShouldApply(c scoring.Comparison) bool {
	return c.Winner == scoring.SecondWins && c.Confidence >= s.applyThreshold
}

// Significance validates the observations and estimates the confidence of
// their difference.
func (s *Service) Significance(a, b float64, sampleSize int) (float64, error) {
	if err := significance.Validate(a, b, sampleSize); err != nil {
		return 0, err
	}
	v := significance.Estimate(a, b, sampleSize)
	metrics.RecordSignificance(v)
	return v, nil
}

// Ingest deduplicates records and queues them for persistence. Records
// without an ID get a random one and a zero timestamp becomes now. On
// backpressure the records accepted so far stay queued and ErrBackpressure
// is returned.
func (s *Service) Ingest(ctx context.Context, records []model.DecisionRecord) (types.IngestResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	resp := types.IngestResponse{IDs: make([]string, 0, len(records))}
	if !s.started {
		return resp, ErrNotStarted
	}

	// A batch with any invalid record is rejected before anything is queued.
	for _, rec := range records {
		if rec.Subject == "" || rec.Action == "" {
			metrics.RecordDecisionRejected("invalid")
			return resp, fmt.Errorf("%w: record %q", ErrInvalidDecision, rec.ID)
		}
	}

	for _, rec := range records {
		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}
		if rec.Timestamp.IsZero() {
			rec.Timestamp = s.now()
		}

		if s.deduper.SeenAndRecord(ctx, rec.ID) {
			metrics.RecordDecisionDuplicate()
			resp.Duplicates++
			continue
		}
		if err := s.queue.Enqueue(ctx, rec); err != nil {
			s.deduper.Unrecord(ctx, rec.ID)
			if errors.Is(err, eventqueue.ErrQueueFull) {
				metrics.RecordDecisionRejected("backpressure")
				return resp, ErrBackpressure
			}
			metrics.RecordDecisionRejected("queue")
			return resp, fmt.Errorf("enqueue %s: %w", rec.ID, err)
		}

		metrics.RecordDecisionIngested()
		resp.Accepted++
		resp.IDs = append(resp.IDs, rec.ID)
	}

	s.logger.Debug(ctx, "decisions ingested",
		logger.Int("accepted", resp.Accepted),
		logger.Int("duplicates", resp.Duplicates),
	)
	return resp, nil
}

// Patterns detects recurring decisions for a module and decision type.
// Reports are memoized per query for the cache TTL.
func (s *Service) Patterns(ctx context.Context, q types.PatternQuery) (types.PatternsResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started {
		return types.PatternsResponse{}, ErrNotStarted
	}

	key := cache.Key{Module: q.Module, DecisionType: q.DecisionType, Days: q.Days}
	report, cached, err := s.patterns.Get(ctx, key, func(ctx context.Context) (patterns.Report, error) {
		records, err := s.store.Query(ctx, repository.Filter{
			Subject: q.Module,
			Action:  q.DecisionType,
			Since:   s.since(q.Days),
		})
		if err != nil {
			return patterns.Report{}, fmt.Errorf("query decisions: %w", err)
		}

		start := time.Now()
		r := s.detector.DetectReport(records)
		metrics.RecordDetectionLatency(float64(time.Since(start).Nanoseconds()) / 1e6)
		metrics.RecordPatternsDetected(len(r.Patterns))
		return r, nil
	})
	if err != nil {
		metrics.RecordErrorByComponent("service", "patterns")
		return types.PatternsResponse{}, err
	}

	return types.PatternsResponse{
		Patterns: report.Patterns,
		Groups:   report.Groups,
		Skipped:  report.Skipped,
		Cached:   cached,
	}, nil
}

// Trend buckets stored records by calendar month.
func (s *Service) Trend(ctx context.Context, q types.TrendQuery) (types.TrendResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started {
		return types.TrendResponse{}, ErrNotStarted
	}

	records, err := s.store.Query(ctx, repository.Filter{Subject: q.Subject, Since: s.since(q.Days)})
	if err != nil {
		metrics.RecordErrorByComponent("service", "trend")
		return types.TrendResponse{}, fmt.Errorf("query decisions: %w", err)
	}
	return BuildTrend(records, q.Subject == ""), nil
}

// BuildTrend buckets records by month, keyed by subject or by action.
func BuildTrend(records []model.DecisionRecord, bySubject bool) types.TrendResponse {
	groupBy, key := groupByAction, func(r model.DecisionRecord) string { return r.Action }
	if bySubject {
		groupBy, key = groupBySubject, func(r model.DecisionRecord) string { return r.Subject }
	}
	t := patterns.MonthlyTrend(records, key, func(r model.DecisionRecord) time.Time { return r.Timestamp })
	return types.NewTrendResponse(groupBy, t)
}

// log returns the service logger, or a no-op logger before Start.
func (s *Service) log() logger.Logger {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.logger == nil {
		return logger.Nop()
	}
	return s.logger
}

func (s *Service) since(days int) time.Time {
	if days <= 0 {
		return time.Time{}
	}
	return s.now().AddDate(0, 0, -days)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]any{
		"started":        s.started,
		"workerCount":    s.workerCount,
		"queueSize":      s.queueSize,
		"dedupeSize":     s.dedupeSize,
		"applyThreshold": s.applyThreshold,
		"margin":         s.scorer.Margin(),
		"weights":        s.scorer.Weights(),
	}

	if s.started {
		queueLen := s.queue.Len(ctx)
		records := s.store.Count(ctx)

		stats["queueLength"] = queueLen
		stats["storedDecisions"] = records
		stats["seenDecisions"] = s.deduper.Size()
		stats["cachedPatternQueries"] = s.patterns.Len()

		metrics.UpdateQueueSize(queueLen)
		metrics.UpdateStoreRecords(records)
	}
	return stats
}
