// Package repository stores decision records for pattern queries.
package repository

import (
	"context"
	"time"

	"github.com/okian/fathom/internal/domain/model"
)

// Filter narrows a query. Zero fields match everything.
type Filter struct {
	Subject string
	Action  string
	Since   time.Time // inclusive lower bound on Timestamp
}

// Match reports whether rec passes the filter.
func (f Filter) Match(rec model.DecisionRecord) bool {
	if f.Subject != "" && rec.Subject != f.Subject {
		return false
	}
	if f.Action != "" && rec.Action != f.Action {
		return false
	}
	if !f.Since.IsZero() && rec.Timestamp.Before(f.Since) {
		return false
	}
	return true
}

// Store provides append-only access to decision records.
type Store interface {
	// Append persists rec. Returns ErrDuplicate if a record with the same ID
	// was already stored and ErrInvalidRecord if rec lacks an ID or subject.
	Append(ctx context.Context, rec model.DecisionRecord) error

	// Query returns the records matching f in insertion order.
	Query(ctx context.Context, f Filter) ([]model.DecisionRecord, error)

	// Count returns the number of stored records.
	Count(ctx context.Context) int

	Close() error
}

func validate(rec model.DecisionRecord) error {
	if rec.ID == "" || rec.Subject == "" {
		return ErrInvalidRecord
	}
	return nil
}
