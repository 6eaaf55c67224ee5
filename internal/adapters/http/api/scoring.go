package api

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/okian/fathom/internal/domain/significance"
	"github.com/okian/fathom/internal/domain/types"
)

// ScoringHandler serves variant scoring, comparison and significance.
type ScoringHandler struct {
	deps     Dependencies
	validate *validator.Validate
}

// NewScoringHandler creates a new scoring handler.
func NewScoringHandler(deps Dependencies, v *validator.Validate) *ScoringHandler {
	return &ScoringHandler{deps: deps, validate: v}
}

// HandleScore handles POST /v1/score.
func (h *ScoringHandler) HandleScore(w http.ResponseWriter, r *http.Request) {
	const op = "api.score"
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", NewKind(op, ErrMethodNotAllowed))
		return
	}
	var req types.ScoreRequest
	if err := decodeJSON(r, h.validate, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	writeJSON(w, http.StatusOK, types.ScoreResponse{Score: h.deps.Score(req.Metrics.ToDomain())})
}

// HandleCompare handles POST /v1/compare.
func (h *ScoringHandler) HandleCompare(w http.ResponseWriter, r *http.Request) {
	const op = "api.compare"
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", NewKind(op, ErrMethodNotAllowed))
		return
	}
	var req types.CompareRequest
	if err := decodeJSON(r, h.validate, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	resp := h.deps.Compare(r.Context(), req.A.ToDomain(), req.B.ToDomain(), req.Significance, req.SampleSize)
	writeJSON(w, http.StatusOK, resp)
}

// HandleSignificance handles POST /v1/significance.
func (h *ScoringHandler) HandleSignificance(w http.ResponseWriter, r *http.Request) {
	const op = "api.significance"
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", NewKind(op, ErrMethodNotAllowed))
		return
	}
	var req types.SignificanceRequest
	if err := decodeJSON(r, h.validate, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	v, err := h.deps.Significance(req.A, req.B, req.SampleSize)
	if err != nil {
		if errors.Is(err, significance.ErrInvalidArgument) {
			writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, types.SignificanceResponse{Confidence: v})
}
