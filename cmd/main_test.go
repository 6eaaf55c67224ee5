package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/okian/fathom/internal/config"
	"github.com/okian/fathom/internal/domain/types"
	"github.com/smartystreets/goconvey/convey"
)

const decisionsYAML = `
decisions:
  - id: d1
    subject: engine
    action: replace
    context: {part: injector}
    timestamp: 2025-01-05T10:00:00Z
  - id: d2
    subject: engine
    action: replace
    context: {part: injector}
    timestamp: 2025-02-07T10:00:00Z
  - id: d3
    subject: engine
    action: replace
    context: {part: injector}
    timestamp: 2025-02-09T10:00:00Z
  - id: d4
    subject: hull
    action: inspect
    timestamp: 2025-03-01T10:00:00Z
`

// run executes the root command and returns its stdout.
func run(stdin string, args ...string) (string, error) {
	var out bytes.Buffer
	root := newRootCmd()
	root.SetArgs(args)
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func clearEnv() {
	for _, kv := range os.Environ() {
		if k, _, _ := strings.Cut(kv, "="); strings.HasPrefix(k, "FATHOM_") {
			_ = os.Unsetenv(k)
		}
	}
}

func TestOfflineCommands(t *testing.T) {
	convey.Convey("Given the fathom CLI", t, func() {
		clearEnv()

		convey.Convey("When scoring a bundle from stdin", func() {
			out, err := run(`{"metrics": {"success_rate": 1, "error_rate": 0, "user_satisfaction": 1, "resource_efficiency": 1}}`, "score")
			convey.So(err, convey.ShouldBeNil)

			convey.Convey("Then the score should be printed as JSON", func() {
				var resp types.ScoreResponse
				convey.So(json.Unmarshal([]byte(out), &resp), convey.ShouldBeNil)
				convey.So(resp.Score, convey.ShouldAlmostEqual, 1.0, 1e-9)
			})
		})

		convey.Convey("When comparing variants from a YAML file", func() {
			path := filepath.Join(t.TempDir(), "variants.yaml")
			doc := `
a: {success_rate: 0.82, error_rate: 0.12, user_satisfaction: 0.75, resource_efficiency: 0.65, avg_execution_time_ms: 450}
b: {success_rate: 0.89, error_rate: 0.07, user_satisfaction: 0.82, resource_efficiency: 0.71, avg_execution_time_ms: 300}
significance: 0.9
`
			convey.So(os.WriteFile(path, []byte(doc), 0o600), convey.ShouldBeNil)
			out, err := run("", "compare", "--file", path)
			convey.So(err, convey.ShouldBeNil)

			convey.Convey("Then B should win and be applied", func() {
				var resp map[string]any
				convey.So(json.Unmarshal([]byte(out), &resp), convey.ShouldBeNil)
				convey.So(resp["winner"], convey.ShouldEqual, "B")
				convey.So(resp["apply"], convey.ShouldEqual, true)
			})
		})

		convey.Convey("When the input fails validation", func() {
			_, err := run(`{"metrics": {"success_rate": 2}}`, "score")

			convey.Convey("Then the command should fail", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(err.Error(), convey.ShouldContainSubstring, "invalid input")
			})
		})

		convey.Convey("When a YAML bundle has an infinite execution time", func() {
			_, err := run("metrics: {success_rate: 1, avg_execution_time_ms: .inf}", "score")

			convey.Convey("Then the command should fail validation", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(err.Error(), convey.ShouldContainSubstring, "invalid input")
			})
		})

		convey.Convey("When estimating significance from flags", func() {
			out, err := run("", "significance", "--a", "0.82", "--b", "0.89", "-n", "100")
			convey.So(err, convey.ShouldBeNil)

			convey.Convey("Then the confidence should be bounded", func() {
				var resp types.SignificanceResponse
				convey.So(json.Unmarshal([]byte(out), &resp), convey.ShouldBeNil)
				convey.So(resp.Confidence, convey.ShouldBeBetweenOrEqual, 0.5, 0.99)
			})
		})

		convey.Convey("When the sample size is invalid", func() {
			_, err := run("", "significance", "--a", "1", "--b", "2", "-n", "0")

			convey.Convey("Then the command should fail", func() {
				convey.So(err, convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When detecting patterns in a decision file", func() {
			out, err := run(decisionsYAML, "patterns", "--module", "engine")
			convey.So(err, convey.ShouldBeNil)

			convey.Convey("Then the recurring repair should be reported", func() {
				var resp types.PatternsResponse
				convey.So(json.Unmarshal([]byte(out), &resp), convey.ShouldBeNil)
				convey.So(resp.Patterns, convey.ShouldHaveLength, 1)
				convey.So(resp.Patterns[0].Action, convey.ShouldEqual, "replace")
				convey.So(resp.Patterns[0].Occurrences, convey.ShouldEqual, 3)
			})
		})

		convey.Convey("When building a trend for a subject", func() {
			out, err := run(decisionsYAML, "trend", "--subject", "engine")
			convey.So(err, convey.ShouldBeNil)

			convey.Convey("Then the series should be keyed by action", func() {
				var resp types.TrendResponse
				convey.So(json.Unmarshal([]byte(out), &resp), convey.ShouldBeNil)
				convey.So(resp.GroupBy, convey.ShouldEqual, "action")
				convey.So(resp.Series, convey.ShouldHaveLength, 1)
				convey.So(resp.Series[0].Months, convey.ShouldResemble, []string{"2025-01", "2025-02", "2025-02"})
			})
		})

		convey.Reset(clearEnv)
	})
}

func TestServiceOptions(t *testing.T) {
	convey.Convey("Given a default configuration", t, func() {
		cfg := config.New()

		convey.Convey("Then every tunable should map to an option", func() {
			convey.So(serviceOptions(cfg, nil, nil), convey.ShouldHaveLength, 10)
			convey.So(detectorOptions(cfg), convey.ShouldHaveLength, 3)
		})
	})
}

func TestServe(t *testing.T) {
	convey.Convey("Given serve on an ephemeral port", t, func() {
		clearEnv()
		_ = os.Setenv("FATHOM_ADDR", "127.0.0.1:0")
		_ = os.Setenv("FATHOM_LOG_LEVEL", "error")
		convey.Reset(clearEnv)

		convey.Convey("When the context ends", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
			defer cancel()

			convey.Convey("Then the server should shut down cleanly", func() {
				convey.So(serve(ctx), convey.ShouldBeNil)
			})
		})
	})
}
