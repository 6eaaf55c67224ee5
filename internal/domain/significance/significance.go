// Package significance estimates how likely an observed difference between
// two values is real rather than noise.
//
// The estimate is a heuristic, not a hypothesis test: the observations are
// treated as fixed means with no variance information, so the result is only
// a rough confidence-like number. Replace it with a two-proportion z-test
// before relying on it for real decisions.
package significance

import (
	"fmt"
	"math"

	"github.com/okian/fathom/internal/domain/scoring"
)

// Bounds of the estimate.
const (
	Baseline = 0.5  // no evidence of a difference
	Ceiling  = 0.99 // never report certainty

	zDivisor = 4
)

// Estimate returns a confidence in [Baseline, Ceiling] for the difference
// between a and b observed over sampleSize samples. It is monotonic in the
// absolute difference and in sampleSize.
//
// Estimate is total: a zero pooled mean, a non-positive sample size or NaN
// input all collapse to a zero z-score and return Baseline.
func Estimate(a, b float64, sampleSize int) float64 {
	diff := math.Abs(a - b)
	pooled := (a + b) / 2
	stdErr := math.Sqrt(pooled / float64(sampleSize))

	z := 0.0
	if stdErr > 0 && !math.IsInf(stdErr, 0) {
		z = diff / stdErr
	}
	if math.IsNaN(z) {
		z = 0
	}
	return clamp(Baseline+z/zDivisor, Baseline, Ceiling)
}

// Validate reports whether the inputs are inside the documented domain of
// Estimate. Estimate itself does not call Validate.
func Validate(a, b float64, sampleSize int) error {
	for _, v := range []float64{a, b} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: observation %v is not finite", ErrInvalidArgument, v)
		}
		if v < 0 {
			return fmt.Errorf("%w: observation %v is negative", ErrInvalidArgument, v)
		}
	}
	if sampleSize < 1 {
		return fmt.Errorf("%w: sample size %d must be at least 1", ErrInvalidArgument, sampleSize)
	}
	return nil
}

// Average returns the mean of the given estimates, or Baseline when empty.
func Average(estimates ...float64) float64 {
	if len(estimates) == 0 {
		return Baseline
	}
	sum := 0.0
	for _, e := range estimates {
		sum += e
	}
	return sum / float64(len(estimates))
}

// ForBundles averages the per-metric estimates of two variants over success
// rate, error rate, user satisfaction and resource efficiency. Execution time
// is left out because it is not on the same fractional scale.
func ForBundles(a, b scoring.MetricBundle, sampleSize int) float64 {
	return Average(
		Estimate(a.SuccessRate, b.SuccessRate, sampleSize),
		Estimate(a.ErrorRate, b.ErrorRate, sampleSize),
		Estimate(a.UserSatisfaction, b.UserSatisfaction, sampleSize),
		Estimate(a.ResourceEfficiency, b.ResourceEfficiency, sampleSize),
	)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
