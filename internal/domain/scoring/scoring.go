// Package scoring reduces variant metric bundles to a comparable scalar and
// classifies a winner between two variants.
//
// Scores are pure functions of their inputs. Out-of-range input (negative
// durations, NaN rates) is not clamped: the resulting NaN or nonsensical
// score propagates so the caller's own validation can catch it.
package scoring

import (
	"encoding/json"
	"fmt"
	"time"
)

// Default scoring configuration constants.
const (
	defaultSuccessWeight      = 0.30
	defaultErrorWeight        = 0.20
	defaultSatisfactionWeight = 0.25
	defaultEfficiencyWeight   = 0.15
	defaultSpeedWeight        = 0.10
	defaultMargin             = 0.05
)

// MetricBundle is the observed behavior of one variant.
// Rates, satisfaction and efficiency are fractions in [0,1].
type MetricBundle struct {
	SuccessRate        float64       `json:"success_rate" yaml:"success_rate"`
	ErrorRate          float64       `json:"error_rate" yaml:"error_rate"`
	UserSatisfaction   float64       `json:"user_satisfaction" yaml:"user_satisfaction"`
	ResourceEfficiency float64       `json:"resource_efficiency" yaml:"resource_efficiency"`
	AvgExecutionTime   time.Duration `json:"avg_execution_time" yaml:"avg_execution_time"`
}

// Weights maps each metric to its contribution. ErrorRate and execution time
// are "lower is better"; the polarity is applied by Score, not by the weight.
// Weights are not normalized: a set that does not sum to 1 scales the output.
type Weights struct {
	Success      float64 `json:"success" yaml:"success" koanf:"success"`
	Error        float64 `json:"error" yaml:"error" koanf:"error"`
	Satisfaction float64 `json:"satisfaction" yaml:"satisfaction" koanf:"satisfaction"`
	Efficiency   float64 `json:"efficiency" yaml:"efficiency" koanf:"efficiency"`
	Speed        float64 `json:"speed" yaml:"speed" koanf:"speed"`
}

// DefaultWeights returns the weight set used when none is configured.
func DefaultWeights() Weights {
	return Weights{
		Success:      defaultSuccessWeight,
		Error:        defaultErrorWeight,
		Satisfaction: defaultSatisfactionWeight,
		Efficiency:   defaultEfficiencyWeight,
		Speed:        defaultSpeedWeight,
	}
}

// Sum returns the total of all weights.
func (w Weights) Sum() float64 {
	return w.Success + w.Error + w.Satisfaction + w.Efficiency + w.Speed
}

// IsZero reports whether no weight is set.
func (w Weights) IsZero() bool {
	return w == Weights{}
}

// Winner is the categorical outcome of a comparison.
type Winner int

// Comparison outcomes.
const (
	Tie Winner = iota
	FirstWins
	SecondWins
)

// String returns the wire label of the winner.
func (w Winner) String() string {
	switch w {
	case FirstWins:
		return "A"
	case SecondWins:
		return "B"
	default:
		return "tie"
	}
}

// MarshalJSON encodes the winner as "A", "B" or "tie".
func (w Winner) MarshalJSON() ([]byte, error) {
	return json.Marshal(w.String())
}

// UnmarshalJSON decodes "A", "B" or "tie".
func (w *Winner) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	switch s {
	case "A":
		*w = FirstWins
	case "B":
		*w = SecondWins
	case "tie", "":
		*w = Tie
	default:
		return fmt.Errorf("unknown winner %q", s)
	}
	return nil
}

// Comparison is the result of comparing two variants.
type Comparison struct {
	Winner     Winner  `json:"winner"`
	Confidence float64 `json:"confidence"`
	ScoreA     float64 `json:"score_a"`
	ScoreB     float64 `json:"score_b"`
}

// Option applies a configuration option to the Scorer.
type Option func(*Scorer)

// WithWeights replaces the weight set. A zero weight set is ignored.
func WithWeights(w Weights) Option {
	return func(s *Scorer) {
		if !w.IsZero() {
			s.weights = w
		}
	}
}

// WithMargin sets the score difference a variant must exceed to win.
func WithMargin(margin float64) Option {
	return func(s *Scorer) {
		if margin >= 0 {
			s.margin = margin
		}
	}
}

// Scorer is stateless after construction and safe for concurrent use.
type Scorer struct {
	weights Weights
	margin  float64
}

// New creates a scorer with the default weights and margin.
func New(opts ...Option) *Scorer {
	s := &Scorer{
		weights: DefaultWeights(),
		margin:  defaultMargin,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Weights returns the configured weights.
func (s *Scorer) Weights() Weights { return s.weights }

// Margin returns the configured decision margin.
func (s *Scorer) Margin() float64 { return s.margin }

// Score combines a metric bundle into one scalar.
func (s *Scorer) Score(m MetricBundle) float64 {
	w := s.weights
	secs := m.AvgExecutionTime.Seconds()
	return w.Success*m.SuccessRate +
		w.Error*(1-m.ErrorRate) +
		w.Satisfaction*m.UserSatisfaction +
		w.Efficiency*m.ResourceEfficiency +
		w.Speed*(1/(secs+1))
}

// Compare scores both bundles and classifies the winner. significance is
// passed through as the comparison confidence.
func (s *Scorer) Compare(a, b MetricBundle, significance float64) Comparison {
	scoreA := s.Score(a)
	scoreB := s.Score(b)

	winner := Tie
	switch {
	case scoreB > scoreA+s.margin:
		winner = SecondWins
	case scoreA > scoreB+s.margin:
		winner = FirstWins
	}

	return Comparison{
		Winner:     winner,
		Confidence: significance,
		ScoreA:     scoreA,
		ScoreB:     scoreB,
	}
}

// Score computes the score of m with the default weights.
func Score(m MetricBundle) float64 {
	return New().Score(m)
}

// CompareVariants compares two bundles with the default weights and margin.
func CompareVariants(a, b MetricBundle, significance float64) Comparison {
	return New().Compare(a, b, significance)
}
