package patterns

import (
	"sort"
	"time"
)

const (
	monthLayout    = "2006-01"
	trendTolerance = 0.10
)

// Direction is the narrated shape of a monthly series.
type Direction string

// Trend directions.
const (
	Rising  Direction = "rising"
	Falling Direction = "falling"
	Stable  Direction = "stable"
)

// MonthCount is the number of occurrences in one YYYY-MM bucket.
type MonthCount struct {
	Month string `json:"month"`
	Count int    `json:"count"`
}

// Trend maps entity keys to the month label of every occurrence.
type Trend struct {
	// Keys lists entity keys in first-seen order.
	Keys []string
	// Months holds, per key, one YYYY-MM label per record in input order.
	Months map[string][]string
}

// MonthlyTrend buckets records by keyFn and labels each with the UTC month of
// dateFn. Labels are appended in input order and never sorted.
func MonthlyTrend[T any](records []T, keyFn func(T) string, dateFn func(T) time.Time) Trend {
	g := newGroups[string]()
	for _, r := range records {
		g.add(keyFn(r), MonthLabel(dateFn(r)))
	}

	t := Trend{
		Keys:   append([]string{}, g.keys()...),
		Months: make(map[string][]string, len(g.keys())),
	}
	g.each(func(k string, months []string) {
		t.Months[k] = months
	})
	return t
}

// MonthLabel truncates t to its UTC YYYY-MM label.
func MonthLabel(t time.Time) string {
	return t.UTC().Format(monthLayout)
}

// Counts reduces the labels of key into per-month counts, earliest first.
func (t Trend) Counts(key string) []MonthCount {
	byMonth := newGroups[struct{}]()
	for _, m := range t.Months[key] {
		byMonth.add(m, struct{}{})
	}

	counts := make([]MonthCount, 0, len(byMonth.keys()))
	byMonth.each(func(m string, hits []struct{}) {
		counts = append(counts, MonthCount{Month: m, Count: len(hits)})
	})
	sort.Slice(counts, func(i, j int) bool { return counts[i].Month < counts[j].Month })
	return counts
}

// Direction classifies the monthly counts of key.
func (t Trend) Direction(key string) Direction {
	counts := t.Counts(key)
	values := make([]float64, len(counts))
	for i, c := range counts {
		values[i] = float64(c.Count)
	}
	return Classify(values)
}

// Classify compares the mean of the later half of a chronological series to
// the mean of the earlier half. A relative change above 10% is Rising, below
// -10% is Falling. Series shorter than two points are Stable. For odd
// lengths the middle point belongs to neither half.
func Classify(values []float64) Direction {
	if len(values) < 2 {
		return Stable
	}
	half := len(values) / 2
	early := mean(values[:half])
	late := mean(values[len(values)-half:])

	if early == 0 {
		if late > 0 {
			return Rising
		}
		return Stable
	}
	change := (late - early) / early
	switch {
	case change > trendTolerance:
		return Rising
	case change < -trendTolerance:
		return Falling
	default:
		return Stable
	}
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
