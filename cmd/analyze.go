package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/okian/fathom/internal/adapters/repository"
	app "github.com/okian/fathom/internal/app"
	"github.com/okian/fathom/internal/config"
	"github.com/okian/fathom/internal/domain/model"
	"github.com/okian/fathom/internal/domain/patterns"
	"github.com/okian/fathom/internal/domain/types"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// Offline commands read YAML or JSON documents and print JSON results.
// They use the same configuration layers as serve.

func newScoreCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score a metric bundle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var req types.ScoreRequest
			if err := readInput(cmd, file, &req); err != nil {
				return err
			}
			svc, err := offlineService(cmd)
			if err != nil {
				return err
			}
			return printJSON(cmd, types.ScoreResponse{Score: svc.Score(req.Metrics.ToDomain())})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "input document, - for stdin")
	return cmd
}

func newCompareCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Compare two variants and decide whether to apply B",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var req types.CompareRequest
			if err := readInput(cmd, file, &req); err != nil {
				return err
			}
			svc, err := offlineService(cmd)
			if err != nil {
				return err
			}
			resp := svc.Compare(cmd.Context(), req.A.ToDomain(), req.B.ToDomain(), req.Significance, req.SampleSize)
			return printJSON(cmd, resp)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "input document, - for stdin")
	return cmd
}

func newSignificanceCmd() *cobra.Command {
	var req types.SignificanceRequest
	cmd := &cobra.Command{
		Use:   "significance",
		Short: "Estimate the confidence that two observations differ",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := offlineService(cmd)
			if err != nil {
				return err
			}
			v, err := svc.Significance(req.A, req.B, req.SampleSize)
			if err != nil {
				return err
			}
			return printJSON(cmd, types.SignificanceResponse{Confidence: v})
		},
	}
	cmd.Flags().Float64Var(&req.A, "a", 0, "first observation")
	cmd.Flags().Float64Var(&req.B, "b", 0, "second observation")
	cmd.Flags().IntVarP(&req.SampleSize, "samples", "n", 100, "sample size")
	return cmd
}

func newPatternsCmd() *cobra.Command {
	var file, module, decisionType string
	cmd := &cobra.Command{
		Use:   "patterns",
		Short: "Detect recurring decisions in a decision file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			records, err := readDecisions(cmd, file, repository.Filter{Subject: module, Action: decisionType})
			if err != nil {
				return err
			}
			cfg, err := config.Load(cmd.Context())
			if err != nil {
				return err
			}
			report := patterns.NewDetector(detectorOptions(cfg)...).DetectReport(records)
			return printJSON(cmd, types.PatternsResponse{
				Patterns: report.Patterns,
				Groups:   report.Groups,
				Skipped:  report.Skipped,
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "decision document, - for stdin")
	cmd.Flags().StringVar(&module, "module", "", "only records with this subject")
	cmd.Flags().StringVar(&decisionType, "decision-type", "", "only records with this action")
	return cmd
}

func newTrendCmd() *cobra.Command {
	var file, subject string
	cmd := &cobra.Command{
		Use:   "trend",
		Short: "Bucket a decision file by calendar month",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			records, err := readDecisions(cmd, file, repository.Filter{Subject: subject})
			if err != nil {
				return err
			}
			return printJSON(cmd, app.BuildTrend(records, subject == ""))
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "decision document, - for stdin")
	cmd.Flags().StringVar(&subject, "subject", "", "series by action for this subject")
	return cmd
}

// offlineService builds an unstarted service from configuration. Scoring
// and significance do not need the ingestion pipeline.
func offlineService(cmd *cobra.Command) (*app.Service, error) {
	cfg, err := config.Load(cmd.Context())
	if err != nil {
		return nil, err
	}
	return app.New(
		app.WithScoring(cfg.Weights, cfg.CompareMargin),
		app.WithApplyThreshold(cfg.ApplyThreshold),
		app.WithDefaultSampleSize(cfg.DefaultSampleSize),
	), nil
}

func readDecisions(cmd *cobra.Command, path string, f repository.Filter) ([]model.DecisionRecord, error) {
	var req types.IngestRequest
	if err := readInput(cmd, path, &req); err != nil {
		return nil, err
	}
	out := make([]model.DecisionRecord, 0, len(req.Decisions))
	for _, d := range req.Decisions {
		rec := d.ToDomain()
		if f.Match(rec) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// readInput decodes a YAML or JSON document from path, or stdin for "-",
// and validates it.
func readInput(cmd *cobra.Command, path string, dst any) error {
	var r io.Reader = cmd.InOrStdin()
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open input: %w", err)
		}
		defer f.Close()
		r = f
	}
	if err := yaml.NewDecoder(r).Decode(dst); err != nil {
		return fmt.Errorf("decode input: %w", err)
	}
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(dst); err != nil {
		return fmt.Errorf("invalid input: %w", err)
	}
	return nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
