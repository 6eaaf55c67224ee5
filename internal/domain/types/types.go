// Package types contains the wire shapes shared by the HTTP API, the CLI and
// the seeder. Validation tags are read by go-playground/validator.
package types

import (
	"math"
	"time"

	"github.com/okian/fathom/internal/domain/model"
	"github.com/okian/fathom/internal/domain/patterns"
	"github.com/okian/fathom/internal/domain/scoring"
)

// MaxExecutionTimeMS bounds the wire execution time to one day.
const MaxExecutionTimeMS = 86_400_000

// MetricBundle is the wire form of scoring.MetricBundle. Execution time
// travels in milliseconds.
type MetricBundle struct {
	SuccessRate        float64 `json:"success_rate" yaml:"success_rate" validate:"gte=0,lte=1"`
	ErrorRate          float64 `json:"error_rate" yaml:"error_rate" validate:"gte=0,lte=1"`
	UserSatisfaction   float64 `json:"user_satisfaction" yaml:"user_satisfaction" validate:"gte=0,lte=1"`
	ResourceEfficiency float64 `json:"resource_efficiency" yaml:"resource_efficiency" validate:"gte=0,lte=1"`
	AvgExecutionTimeMS float64 `json:"avg_execution_time_ms" yaml:"avg_execution_time_ms" validate:"gte=0,lte=86400000"`
}

// ToDomain converts the wire bundle.
func (m MetricBundle) ToDomain() scoring.MetricBundle {
	return scoring.MetricBundle{
		SuccessRate:        m.SuccessRate,
		ErrorRate:          m.ErrorRate,
		UserSatisfaction:   m.UserSatisfaction,
		ResourceEfficiency: m.ResourceEfficiency,
		AvgExecutionTime:   executionTime(m.AvgExecutionTimeMS),
	}
}

// executionTime converts milliseconds, saturating at MaxExecutionTimeMS.
// NaN and negative values become zero.
func executionTime(ms float64) time.Duration {
	switch {
	case math.IsNaN(ms) || ms <= 0:
		return 0
	case ms > MaxExecutionTimeMS:
		ms = MaxExecutionTimeMS
	}
	return time.Duration(ms * float64(time.Millisecond))
}

// ScoreRequest is the body of POST /v1/score.
type ScoreRequest struct {
	Metrics MetricBundle `json:"metrics" yaml:"metrics"`
}

// ScoreResponse carries a composite score.
type ScoreResponse struct {
	Score float64 `json:"score"`
}

// CompareRequest is the body of POST /v1/compare. When Significance is
// absent it is estimated from the bundles with SampleSize observations.
type CompareRequest struct {
	A            MetricBundle `json:"a" yaml:"a"`
	B            MetricBundle `json:"b" yaml:"b"`
	Significance *float64     `json:"significance,omitempty" yaml:"significance,omitempty" validate:"omitempty,gte=0,lte=1"`
	SampleSize   int          `json:"sample_size,omitempty" yaml:"sample_size,omitempty" validate:"omitempty,gte=1"`
}

// CompareResponse reports the winner and whether the change should apply.
type CompareResponse struct {
	Winner     scoring.Winner `json:"winner"`
	Confidence float64        `json:"confidence"`
	ScoreA     float64        `json:"score_a"`
	ScoreB     float64        `json:"score_b"`
	Apply      bool           `json:"apply"`
}

// SignificanceRequest is the body of POST /v1/significance.
type SignificanceRequest struct {
	A          float64 `json:"a" yaml:"a" validate:"gte=0"`
	B          float64 `json:"b" yaml:"b" validate:"gte=0"`
	SampleSize int     `json:"sample_size" yaml:"sample_size" validate:"gte=1"`
}

// SignificanceResponse carries a confidence in [0.5, 0.99].
type SignificanceResponse struct {
	Confidence float64 `json:"confidence"`
}

// Decision is the wire form of a decision record. A missing ID is assigned
// on ingest and a zero timestamp means now.
type Decision struct {
	ID        string         `json:"id,omitempty" yaml:"id,omitempty" validate:"omitempty,max=128"`
	Subject   string         `json:"subject" yaml:"subject" validate:"required"`
	Action    string         `json:"action" yaml:"action" validate:"required"`
	Context   map[string]any `json:"context" yaml:"context"`
	Timestamp time.Time      `json:"timestamp" yaml:"timestamp"`
}

// ToDomain converts the wire decision.
func (d Decision) ToDomain() model.DecisionRecord {
	return model.DecisionRecord{
		ID:        d.ID,
		Subject:   d.Subject,
		Action:    d.Action,
		Context:   d.Context,
		Timestamp: d.Timestamp,
	}
}

// IngestRequest is the body of POST /v1/decisions.
type IngestRequest struct {
	Decisions []Decision `json:"decisions" yaml:"decisions" validate:"required,min=1,dive"`
}

// IngestResponse reports how many records were queued.
type IngestResponse struct {
	Accepted   int      `json:"accepted"`
	Duplicates int      `json:"duplicates"`
	IDs        []string `json:"ids"`
}

// PatternQuery selects the records pattern detection runs over. Days <= 0
// means no time bound.
type PatternQuery struct {
	Module       string
	DecisionType string
	Days         int
}

// TrendQuery selects the records a monthly trend is built from. Without a
// subject the series are keyed by subject, otherwise by action.
type TrendQuery struct {
	Subject string
	Days    int
}

// PatternsResponse is returned by GET /v1/patterns.
type PatternsResponse struct {
	Patterns []patterns.Pattern `json:"patterns"`
	Groups   int                `json:"groups"`
	Skipped  int                `json:"skipped"`
	Cached   bool               `json:"cached"`
}

// SeriesTrend is the monthly series of one key.
type SeriesTrend struct {
	Key       string                `json:"key"`
	Months    []string              `json:"months"`
	Counts    []patterns.MonthCount `json:"counts"`
	Direction patterns.Direction    `json:"direction"`
}

// TrendResponse is returned by GET /v1/trends. GroupBy names the record
// field the series are keyed by.
type TrendResponse struct {
	GroupBy string        `json:"group_by"`
	Series  []SeriesTrend `json:"series"`
}

// NewTrendResponse narrates every key of t.
func NewTrendResponse(groupBy string, t patterns.Trend) TrendResponse {
	out := TrendResponse{GroupBy: groupBy, Series: make([]SeriesTrend, 0, len(t.Keys))}
	for _, k := range t.Keys {
		out.Series = append(out.Series, SeriesTrend{
			Key:       k,
			Months:    t.Months[k],
			Counts:    t.Counts(k),
			Direction: t.Direction(k),
		})
	}
	return out
}
