package service_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/fathom/internal/adapters/repository"
	service "github.com/okian/fathom/internal/app"
	"github.com/okian/fathom/internal/domain/model"
	"github.com/okian/fathom/internal/domain/types"
	"github.com/okian/fathom/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
	_ = logger.SetLevelString("error")
}

var now = time.Date(2025, 6, 30, 12, 0, 0, 0, time.UTC)

func decision(id, subject, action string, ctx map[string]any, age time.Duration) model.DecisionRecord {
	return model.DecisionRecord{ID: id, Subject: subject, Action: action, Context: ctx, Timestamp: now.Add(-age)}
}

// waitStored polls until the service has persisted n records and the
// worker has had time to invalidate the pattern cache.
func waitStored(svc *service.Service, n int) bool {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if svc.GetStats()["storedDecisions"] == n {
			time.Sleep(50 * time.Millisecond)
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

func TestServiceIntegration(t *testing.T) {
	day := 24 * time.Hour
	dock := map[string]any{"vessel": "aurora", "port": "bergen"}

	Convey("Given a running service", t, func() {
		ctx := context.Background()
		svc := service.New(
			service.WithWorkerCount(1),
			service.WithQueueSize(100),
			service.WithDedupeSize(100),
			service.WithClock(func() time.Time { return now }),
		)
		So(svc.Start(ctx), ShouldBeNil)
		So(svc.Start(ctx), ShouldBeNil)
		Reset(func() { _ = svc.Stop(ctx) })

		Convey("When recurring decisions are ingested", func() {
			resp, err := svc.Ingest(ctx, []model.DecisionRecord{
				decision("d1", "maintenance", "accepted", dock, 1*day),
				decision("d2", "maintenance", "accepted", dock, 2*day),
				decision("d3", "maintenance", "accepted", dock, 3*day),
				decision("d4", "maintenance", "accepted", map[string]any{"vessel": "borealis"}, 4*day),
				decision("d5", "maintenance", "accepted", dock, 90*day),
			})
			So(err, ShouldBeNil)
			So(resp.Accepted, ShouldEqual, 5)
			So(waitStored(svc, 5), ShouldBeTrue)

			Convey("Then a pattern should be detected within the window", func() {
				got, err := svc.Patterns(ctx, types.PatternQuery{Module: "maintenance", DecisionType: "accepted", Days: 30})
				So(err, ShouldBeNil)
				So(got.Cached, ShouldBeFalse)
				So(got.Groups, ShouldEqual, 1)
				So(len(got.Patterns), ShouldEqual, 1)
				So(got.Patterns[0].Occurrences, ShouldEqual, 3)
				So(got.Patterns[0].Confidence, ShouldAlmostEqual, 0.9, 1e-9)
				So(got.Patterns[0].Examples, ShouldResemble, []string{"d1", "d2", "d3"})
			})

			Convey("Then a repeated query should be served from cache", func() {
				q := types.PatternQuery{Module: "maintenance", DecisionType: "accepted", Days: 30}
				_, err := svc.Patterns(ctx, q)
				So(err, ShouldBeNil)
				got, err := svc.Patterns(ctx, q)
				So(err, ShouldBeNil)
				So(got.Cached, ShouldBeTrue)
			})

			Convey("Then new decisions should invalidate cached reports", func() {
				q := types.PatternQuery{Module: "maintenance", DecisionType: "accepted"}
				first, _ := svc.Patterns(ctx, q)
				_, err := svc.Ingest(ctx, []model.DecisionRecord{decision("d6", "maintenance", "accepted", dock, 0)})
				So(err, ShouldBeNil)
				So(waitStored(svc, 6), ShouldBeTrue)

				got, err := svc.Patterns(ctx, q)
				So(err, ShouldBeNil)
				So(got.Cached, ShouldBeFalse)
				So(got.Patterns[0].Occurrences, ShouldEqual, first.Patterns[0].Occurrences+1)
			})

			Convey("Then re-ingesting the same IDs should count duplicates", func() {
				resp, err := svc.Ingest(ctx, []model.DecisionRecord{decision("d1", "maintenance", "accepted", dock, 0)})
				So(err, ShouldBeNil)
				So(resp.Accepted, ShouldEqual, 0)
				So(resp.Duplicates, ShouldEqual, 1)
			})

			Convey("Then the trend should bucket by action within a subject", func() {
				got, err := svc.Trend(ctx, types.TrendQuery{Subject: "maintenance"})
				So(err, ShouldBeNil)
				So(got.GroupBy, ShouldEqual, "action")
				So(len(got.Series), ShouldEqual, 1)
				So(got.Series[0].Months, ShouldResemble, []string{"2025-06", "2025-06", "2025-06", "2025-06", "2025-04"})
			})
		})

		Convey("When decisions lack IDs and timestamps", func() {
			resp, err := svc.Ingest(ctx, []model.DecisionRecord{{Subject: "fuel", Action: "bunkered"}})

			Convey("Then they should be assigned", func() {
				So(err, ShouldBeNil)
				So(resp.Accepted, ShouldEqual, 1)
				So(resp.IDs[0], ShouldNotBeEmpty)
				So(waitStored(svc, 1), ShouldBeTrue)

				got, err := svc.Trend(ctx, types.TrendQuery{})
				So(err, ShouldBeNil)
				So(got.Series[0].Months, ShouldResemble, []string{"2025-06"})
			})
		})

		Convey("When a decision has no action", func() {
			_, err := svc.Ingest(ctx, []model.DecisionRecord{{ID: "x", Subject: "fuel"}})

			Convey("Then it should be rejected", func() {
				So(errors.Is(err, service.ErrInvalidDecision), ShouldBeTrue)
			})
		})

		Convey("When a single worker stores a batch out of date order", func() {
			resp, err := svc.Ingest(ctx, []model.DecisionRecord{
				decision("o1", "crew", "rostered", nil, 70*day),
				decision("o2", "crew", "rostered", nil, 0),
				decision("o3", "crew", "rostered", nil, 100*day),
				decision("o4", "crew", "rostered", nil, 35*day),
			})
			So(err, ShouldBeNil)
			So(resp.Accepted, ShouldEqual, 4)
			So(waitStored(svc, 4), ShouldBeTrue)

			Convey("Then the trend months should follow ingest order", func() {
				got, err := svc.Trend(ctx, types.TrendQuery{Subject: "crew"})
				So(err, ShouldBeNil)
				So(len(got.Series), ShouldEqual, 1)
				So(got.Series[0].Months, ShouldResemble, []string{"2025-04", "2025-06", "2025-03", "2025-05"})
			})
		})

		Convey("When a batch has an invalid record after a valid one", func() {
			resp, err := svc.Ingest(ctx, []model.DecisionRecord{
				decision("ok1", "fuel", "bunkered", nil, 0),
				{ID: "bad", Subject: "fuel"},
			})

			Convey("Then the whole batch should be rejected", func() {
				So(errors.Is(err, service.ErrInvalidDecision), ShouldBeTrue)
				So(resp.Accepted, ShouldEqual, 0)
				time.Sleep(50 * time.Millisecond)
				So(svc.GetStats()["storedDecisions"], ShouldEqual, 0)
			})

			Convey("Then the valid record should be accepted on retry", func() {
				resp, err := svc.Ingest(ctx, []model.DecisionRecord{decision("ok1", "fuel", "bunkered", nil, 0)})
				So(err, ShouldBeNil)
				So(resp.Accepted, ShouldEqual, 1)
				So(resp.Duplicates, ShouldEqual, 0)
			})
		})
	})

	Convey("Given a service whose queue fills up", t, func() {
		ctx := context.Background()
		svc := service.New(service.WithQueueSize(1), service.WithWorkerCount(1))
		So(svc.Start(ctx), ShouldBeNil)
		Reset(func() { _ = svc.Stop(ctx) })

		Convey("When a large batch is ingested", func() {
			batch := make([]model.DecisionRecord, 0, 500)
			for i := 0; i < 500; i++ {
				batch = append(batch, model.DecisionRecord{ID: fmt.Sprintf("b%d", i), Subject: "crew", Action: "rostered"})
			}
			resp, err := svc.Ingest(ctx, batch)

			Convey("Then backpressure should stop the batch part way", func() {
				if err != nil {
					So(err, ShouldEqual, service.ErrBackpressure)
					So(resp.Accepted, ShouldBeLessThan, 500)
				} else {
					So(resp.Accepted, ShouldEqual, 500)
				}
			})
		})
	})

	Convey("Given a service whose start context is cancelled", t, func() {
		startCtx, cancel := context.WithCancel(context.Background())
		store := repository.NewMemoryStore()
		svc := service.New(service.WithStore(store), service.WithWorkerCount(2), service.WithPatternCacheTTL(0))
		So(svc.Start(startCtx), ShouldBeNil)
		cancel()
		time.Sleep(50 * time.Millisecond)

		Convey("When decisions are ingested and the service stopped", func() {
			ctx := context.Background()
			resp, err := svc.Ingest(ctx, []model.DecisionRecord{
				decision("late1", "crew", "rostered", dock, 0),
				decision("late2", "crew", "rostered", dock, 0),
			})
			So(err, ShouldBeNil)
			So(svc.Stop(ctx), ShouldBeNil)

			Convey("Then every accepted decision should be stored", func() {
				So(resp.Accepted, ShouldEqual, 2)
				So(store.Count(ctx), ShouldEqual, resp.Accepted)
			})
		})
	})

	Convey("Given a service backed by SQLite", t, func() {
		ctx := context.Background()
		path := filepath.Join(t.TempDir(), "fathom.db")
		store, err := repository.NewSQLiteStore(path)
		So(err, ShouldBeNil)

		svc := service.New(service.WithStore(store), service.WithWorkerCount(1), service.WithPatternCacheTTL(0))
		So(svc.Start(ctx), ShouldBeNil)

		_, err = svc.Ingest(ctx, []model.DecisionRecord{
			decision("s1", "maintenance", "deferred", dock, 0),
			decision("s2", "maintenance", "deferred", dock, 0),
			decision("s3", "maintenance", "deferred", dock, 0),
		})
		So(err, ShouldBeNil)

		Convey("When the service stops", func() {
			So(svc.Stop(ctx), ShouldBeNil)

			Convey("Then queued decisions should be flushed to disk", func() {
				reopened, err := repository.NewSQLiteStore(path)
				So(err, ShouldBeNil)
				defer reopened.Close()
				So(reopened.Count(ctx), ShouldEqual, 3)
			})
		})
	})
}
