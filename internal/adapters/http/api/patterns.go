package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	service "github.com/okian/fathom/internal/app"
	"github.com/okian/fathom/internal/domain/types"
)

// defaultDays is the look-back window when a query names none.
const defaultDays = 30

// PatternsHandler serves pattern detection and monthly trends.
type PatternsHandler struct {
	deps Dependencies
}

// NewPatternsHandler creates a new patterns handler.
func NewPatternsHandler(deps Dependencies) *PatternsHandler {
	return &PatternsHandler{deps: deps}
}

// HandleGetPatterns handles GET /v1/patterns?module=&decision_type=&days=.
func (h *PatternsHandler) HandleGetPatterns(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_patterns"
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", NewKind(op, ErrMethodNotAllowed))
		return
	}
	q := r.URL.Query()
	days, err := parseDays(q.Get("days"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	resp, err := h.deps.Patterns(r.Context(), types.PatternQuery{
		Module:       q.Get("module"),
		DecisionType: q.Get("decision_type"),
		Days:         days,
	})
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleGetTrends handles GET /v1/trends?subject=&days=.
func (h *PatternsHandler) HandleGetTrends(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_trends"
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", NewKind(op, ErrMethodNotAllowed))
		return
	}
	q := r.URL.Query()
	days, err := parseDays(q.Get("days"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	resp, err := h.deps.Trend(r.Context(), types.TrendQuery{Subject: q.Get("subject"), Days: days})
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// parseDays defaults to defaultDays. Zero means no time bound.
func parseDays(raw string) (int, error) {
	if raw == "" {
		return defaultDays, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("days must be a non-negative integer, got %q", raw)
	}
	return n, nil
}

func writeServiceError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, service.ErrNotStarted) {
		writeError(w, http.StatusServiceUnavailable, "unavailable", WrapKind(op, ErrUnavailable, err))
		return
	}
	writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
}
