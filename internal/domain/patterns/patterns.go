// Package patterns discovers recurring (subject, action, context) triples in
// decision records and buckets occurrences by calendar month.
//
// Grouping preserves first-insertion order of keys, so for a given input
// order the output is deterministic, including ties in the ranking.
package patterns

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/okian/fathom/internal/domain/model"
)

// Default detection thresholds.
const (
	defaultMinGroupSupport   = 3
	defaultMinContextSupport = 2
	defaultLimit             = 20
	defaultExampleLimit      = 3

	// MaxConfidence caps pattern confidence below certainty.
	MaxConfidence = 0.95

	confidenceBoost    = 1.2
	keySeparator       = "_"
	signatureSeparator = "|"
)

// Pattern is a recurring decision derived from a batch of records.
type Pattern struct {
	Subject     string         `json:"subject"`
	Action      string         `json:"action"`
	Context     map[string]any `json:"context"`
	Signature   string         `json:"signature"`
	Occurrences int            `json:"occurrences"`
	Confidence  float64        `json:"confidence"`
	Examples    []string       `json:"examples"`
}

// Weight is the ranking key of a pattern.
func (p Pattern) Weight() float64 {
	return p.Confidence * float64(p.Occurrences)
}

// Report carries detected patterns plus bookkeeping about the input.
type Report struct {
	Patterns []Pattern
	// Groups is the number of subject/action groups that met the group support.
	Groups int
	// Skipped counts records ignored for having no context.
	Skipped int
}

// Option applies a configuration option to the Detector.
type Option func(*Detector)

// WithMinGroupSupport sets the minimum size of a subject/action group.
func WithMinGroupSupport(n int) Option {
	return func(d *Detector) {
		if n > 0 {
			d.minGroupSupport = n
		}
	}
}

// WithMinContextSupport sets the minimum size of a context sub-group.
func WithMinContextSupport(n int) Option {
	return func(d *Detector) {
		if n > 0 {
			d.minContextSupport = n
		}
	}
}

// WithLimit caps the number of returned patterns.
func WithLimit(n int) Option {
	return func(d *Detector) {
		if n > 0 {
			d.limit = n
		}
	}
}

// WithExampleLimit caps the number of example record ids kept per pattern.
func WithExampleLimit(n int) Option {
	return func(d *Detector) {
		if n >= 0 {
			d.exampleLimit = n
		}
	}
}

// Detector groups decision records into ranked patterns. It holds no state
// beyond its thresholds and is safe for concurrent use.
type Detector struct {
	minGroupSupport   int
	minContextSupport int
	limit             int
	exampleLimit      int
}

// NewDetector creates a detector with the default thresholds.
func NewDetector(opts ...Option) *Detector {
	d := &Detector{
		minGroupSupport:   defaultMinGroupSupport,
		minContextSupport: defaultMinContextSupport,
		limit:             defaultLimit,
		exampleLimit:      defaultExampleLimit,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Detect returns ranked patterns found in records.
func (d *Detector) Detect(records []model.DecisionRecord) []Pattern {
	return d.DetectReport(records).Patterns
}

// DetectReport is Detect with bookkeeping. Records without a context are
// skipped before grouping and do not count toward any group size.
func (d *Detector) DetectReport(records []model.DecisionRecord) Report {
	var report Report

	primary := newGroups[model.DecisionRecord]()
	for _, r := range records {
		if !r.HasContext() {
			report.Skipped++
			continue
		}
		primary.add(r.Subject+keySeparator+r.Action, r)
	}

	var found []Pattern
	primary.each(func(_ string, group []model.DecisionRecord) {
		if len(group) < d.minGroupSupport {
			return
		}
		report.Groups++

		total := len(group)
		byContext := newGroups[model.DecisionRecord]()
		for _, r := range group {
			byContext.add(Signature(r.Context), r)
		}

		byContext.each(func(sig string, sub []model.DecisionRecord) {
			if len(sub) < d.minContextSupport {
				return
			}
			first := sub[0]
			found = append(found, Pattern{
				Subject:     first.Subject,
				Action:      first.Action,
				Context:     first.Context,
				Signature:   sig,
				Occurrences: len(sub),
				Confidence:  confidence(len(sub), total),
				Examples:    d.examples(sub),
			})
		})
	})

	sort.SliceStable(found, func(i, j int) bool {
		return found[i].Weight() > found[j].Weight()
	})
	if len(found) > d.limit {
		found = found[:d.limit]
	}
	if found == nil {
		found = []Pattern{}
	}
	report.Patterns = found
	return report
}

func (d *Detector) examples(sub []model.DecisionRecord) []string {
	n := min(d.exampleLimit, len(sub))
	ids := make([]string, 0, n)
	for _, r := range sub[:n] {
		ids = append(ids, r.ID)
	}
	return ids
}

// confidence scales the sub-group share by 1.2 and caps it at MaxConfidence.
func confidence(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Min(MaxConfidence, float64(n)/float64(total)*confidenceBoost)
}

// Signature builds the canonical form of a decision context: keys sorted
// lexicographically, each rendered as key:JSON(value), joined by "|".
// Nested maps are encoded by encoding/json, which also sorts their keys.
func Signature(ctx map[string]any) string {
	keys := make([]string, 0, len(ctx))
	for k := range ctx {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+":"+encodeValue(ctx[k]))
	}
	return strings.Join(parts, signatureSeparator)
}

func encodeValue(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		// unencodable values (funcs, channels) still need a stable rendering
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

// Detect runs a default detector over records.
func Detect(records []model.DecisionRecord) []Pattern {
	return NewDetector().Detect(records)
}
