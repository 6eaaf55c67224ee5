package scoring_test

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	scoring "github.com/okian/fathom/internal/domain/scoring"
	. "github.com/smartystreets/goconvey/convey"
)

func bundleA() scoring.MetricBundle {
	return scoring.MetricBundle{
		SuccessRate:        0.82,
		ErrorRate:          0.12,
		UserSatisfaction:   0.75,
		ResourceEfficiency: 0.65,
		AvgExecutionTime:   450 * time.Millisecond,
	}
}

func bundleB() scoring.MetricBundle {
	return scoring.MetricBundle{
		SuccessRate:        0.90,
		ErrorRate:          0.05,
		UserSatisfaction:   0.85,
		ResourceEfficiency: 0.70,
		AvgExecutionTime:   300 * time.Millisecond,
	}
}

func TestScorer_Score(t *testing.T) {
	Convey("Given a scorer with default weights", t, func() {
		scorer := scoring.New()

		Convey("When scoring a perfect bundle with zero execution time", func() {
			score := scorer.Score(scoring.MetricBundle{
				SuccessRate:        1,
				ErrorRate:          0,
				UserSatisfaction:   1,
				ResourceEfficiency: 1,
			})

			Convey("Then every weight contributes fully", func() {
				So(score, ShouldAlmostEqual, 1.0, 1e-12)
			})
		})

		Convey("When scoring the reference bundle", func() {
			score := scorer.Score(bundleA())

			Convey("Then it should match the weighted formula", func() {
				expected := 0.30*0.82 + 0.20*0.88 + 0.25*0.75 + 0.15*0.65 + 0.10/(0.45+1)
				So(score, ShouldAlmostEqual, expected, 1e-12)
			})
		})

		Convey("When success rate increases", func() {
			low := bundleA()
			high := bundleA()
			high.SuccessRate = 0.95

			Convey("Then the score should not decrease", func() {
				So(scorer.Score(high), ShouldBeGreaterThanOrEqualTo, scorer.Score(low))
			})
		})

		Convey("When error rate increases", func() {
			low := bundleA()
			high := bundleA()
			high.ErrorRate = 0.40

			Convey("Then the score should not increase", func() {
				So(scorer.Score(high), ShouldBeLessThanOrEqualTo, scorer.Score(low))
			})
		})

		Convey("When execution time decreases", func() {
			slow := bundleA()
			fast := bundleA()
			fast.AvgExecutionTime = 10 * time.Millisecond

			Convey("Then the score should not decrease", func() {
				So(scorer.Score(fast), ShouldBeGreaterThanOrEqualTo, scorer.Score(slow))
			})
		})

		Convey("When a rate is NaN", func() {
			m := bundleA()
			m.SuccessRate = math.NaN()

			Convey("Then NaN should propagate instead of panicking", func() {
				So(func() { scorer.Score(m) }, ShouldNotPanic)
				So(math.IsNaN(scorer.Score(m)), ShouldBeTrue)
			})
		})
	})

	Convey("Given a scorer with weights that do not sum to one", t, func() {
		w := scoring.DefaultWeights()
		w.Success *= 2
		scorer := scoring.New(scoring.WithWeights(w))

		Convey("Then the output should scale instead of being normalized", func() {
			base := scoring.New().Score(bundleA())
			So(scorer.Score(bundleA()), ShouldAlmostEqual, base+0.30*0.82, 1e-12)
			So(scorer.Weights().Sum(), ShouldAlmostEqual, 1.3, 1e-12)
		})
	})
}

func TestScorer_Compare(t *testing.T) {
	Convey("Given the reference variants", t, func() {
		scorer := scoring.New()

		Convey("When comparing A against B", func() {
			result := scorer.Compare(bundleA(), bundleB(), 0.85)

			Convey("Then B should win with the passed-through confidence", func() {
				So(result.ScoreB, ShouldBeGreaterThan, result.ScoreA)
				So(result.Winner, ShouldEqual, scoring.SecondWins)
				So(result.Confidence, ShouldEqual, 0.85)
			})
		})

		Convey("When swapping the arguments", func() {
			forward := scorer.Compare(bundleA(), bundleB(), 0.85)
			reverse := scorer.Compare(bundleB(), bundleA(), 0.85)

			Convey("Then the winner should be symmetric", func() {
				So(forward.Winner, ShouldEqual, scoring.SecondWins)
				So(reverse.Winner, ShouldEqual, scoring.FirstWins)
			})
		})

		Convey("When the difference is within the margin", func() {
			b := bundleA()
			b.SuccessRate += 0.1 // +0.03 score

			Convey("Then the result should be a tie", func() {
				So(scorer.Compare(bundleA(), b, 0.9).Winner, ShouldEqual, scoring.Tie)
			})
		})

		Convey("When the margin is zero", func() {
			strict := scoring.New(scoring.WithMargin(0))
			b := bundleA()
			b.SuccessRate += 0.1

			Convey("Then any positive difference should decide the winner", func() {
				So(strict.Compare(bundleA(), b, 0.9).Winner, ShouldEqual, scoring.SecondWins)
				So(strict.Margin(), ShouldEqual, 0.0)
			})
		})

		Convey("When using the package-level helpers", func() {
			result := scoring.CompareVariants(bundleA(), bundleB(), 0.85)

			Convey("Then they should match the default scorer", func() {
				So(result.Winner, ShouldEqual, scoring.SecondWins)
				So(scoring.Score(bundleB()), ShouldEqual, result.ScoreB)
			})
		})
	})
}

func TestWinner_JSON(t *testing.T) {
	Convey("Given the winner labels", t, func() {
		Convey("Then they should encode as A, B and tie", func() {
			for w, label := range map[scoring.Winner]string{
				scoring.FirstWins:  `"A"`,
				scoring.SecondWins: `"B"`,
				scoring.Tie:        `"tie"`,
			} {
				b, err := json.Marshal(w)
				So(err, ShouldBeNil)
				So(string(b), ShouldEqual, label)
			}
		})

		Convey("And unknown labels should fail to decode", func() {
			var w scoring.Winner
			So(json.Unmarshal([]byte(`"C"`), &w), ShouldNotBeNil)
			So(json.Unmarshal([]byte(`"B"`), &w), ShouldBeNil)
			So(w, ShouldEqual, scoring.SecondWins)
		})
	})
}
