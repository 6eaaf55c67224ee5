package api

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	service "github.com/okian/fathom/internal/app"
	"github.com/okian/fathom/internal/domain/model"
	"github.com/okian/fathom/internal/domain/types"
)

// DecisionsHandler accepts decision records for ingestion.
type DecisionsHandler struct {
	deps     Dependencies
	validate *validator.Validate
}

// NewDecisionsHandler creates a new decisions handler.
func NewDecisionsHandler(deps Dependencies, v *validator.Validate) *DecisionsHandler {
	return &DecisionsHandler{deps: deps, validate: v}
}

// HandlePostDecisions handles POST /v1/decisions. Records are persisted
// asynchronously, so success is 202 Accepted.
func (h *DecisionsHandler) HandlePostDecisions(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_decisions"
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", NewKind(op, ErrMethodNotAllowed))
		return
	}
	var req types.IngestRequest
	if err := decodeJSON(r, h.validate, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	records := make([]model.DecisionRecord, len(req.Decisions))
	for i, d := range req.Decisions {
		records[i] = d.ToDomain()
	}

	resp, err := h.deps.Ingest(r.Context(), records)
	switch {
	case errors.Is(err, service.ErrBackpressure):
		writeError(w, http.StatusTooManyRequests, "backpressure", WrapKind(op, ErrBackpressure, err))
	case errors.Is(err, service.ErrInvalidDecision):
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
	case errors.Is(err, service.ErrNotStarted):
		writeError(w, http.StatusServiceUnavailable, "unavailable", WrapKind(op, ErrUnavailable, err))
	case err != nil:
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
	default:
		writeJSON(w, http.StatusAccepted, resp)
	}
}
