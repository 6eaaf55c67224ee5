// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/okian/fathom/internal/domain/model"
	"github.com/okian/fathom/internal/domain/scoring"
	"github.com/okian/fathom/internal/domain/types"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 4 << 20

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	StatsProvider

	Score(m scoring.MetricBundle) float64
	Compare(ctx context.Context, a, b scoring.MetricBundle, significance *float64, sampleSize int) types.CompareResponse
	Significance(a, b float64, sampleSize int) (float64, error)

	Ingest(ctx context.Context, records []model.DecisionRecord) (types.IngestResponse, error)
	Patterns(ctx context.Context, q types.PatternQuery) (types.PatternsResponse, error)
	Trend(ctx context.Context, q types.TrendQuery) (types.TrendResponse, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler    *HealthHandler
	statsHandler     *StatsHandler
	scoringHandler   *ScoringHandler
	decisionsHandler *DecisionsHandler
	patternsHandler  *PatternsHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies) *Server {
	v := newValidator()
	return &Server{
		healthHandler:    NewHealthHandler(),
		statsHandler:     NewStatsHandler(deps),
		scoringHandler:   NewScoringHandler(deps, v),
		decisionsHandler: NewDecisionsHandler(deps, v),
		patternsHandler:  NewPatternsHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/v1/score", MetricsMiddleware(s.scoringHandler.HandleScore, "score"))
	mux.HandleFunc("/v1/compare", MetricsMiddleware(s.scoringHandler.HandleCompare, "compare"))
	mux.HandleFunc("/v1/significance", MetricsMiddleware(s.scoringHandler.HandleSignificance, "significance"))
	mux.HandleFunc("/v1/decisions", MetricsMiddleware(s.decisionsHandler.HandlePostDecisions, "decisions"))
	mux.HandleFunc("/v1/patterns", MetricsMiddleware(s.patternsHandler.HandleGetPatterns, "patterns"))
	mux.HandleFunc("/v1/trends", MetricsMiddleware(s.patternsHandler.HandleGetTrends, "trends"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeJSON reads a single JSON document into dst and validates it.
func decodeJSON(r *http.Request, v *validator.Validate, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty body")
		}
		return fmt.Errorf("invalid json: %w", err)
	}
	if err := v.Struct(dst); err != nil {
		return describeValidation(err)
	}
	return nil
}

func describeValidation(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		parts = append(parts, fmt.Sprintf("%s must satisfy %s", fieldPath(fe.Namespace()), rule))
	}
	return errors.New(strings.Join(parts, "; "))
}

// fieldPath drops the root type name from a validator namespace.
func fieldPath(ns string) string {
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}
