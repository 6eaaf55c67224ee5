// Package model contains domain models passed between layers.
package model

import "time"

// DecisionRecord is a timestamped human or automated decision captured by an
// upstream system. Records are read-only once created.
type DecisionRecord struct {
	ID        string         `json:"id" yaml:"id"`               // unique id for idempotency
	Subject   string         `json:"subject" yaml:"subject"`     // module or function name, e.g. "maintenance"
	Action    string         `json:"action" yaml:"action"`       // decision label, e.g. "accepted"
	Context   map[string]any `json:"context" yaml:"context"`     // situation the decision was made in
	Timestamp time.Time      `json:"timestamp" yaml:"timestamp"` // when the decision happened
}

// HasContext reports whether the record carries a decision context.
func (r DecisionRecord) HasContext() bool {
	return r.Context != nil
}
