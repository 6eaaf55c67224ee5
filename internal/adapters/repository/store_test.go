package repository_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/fathom/internal/adapters/repository"
	"github.com/okian/fathom/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

var base = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

func rec(id, subject, action string, ctx map[string]any, offset time.Duration) model.DecisionRecord {
	return model.DecisionRecord{ID: id, Subject: subject, Action: action, Context: ctx, Timestamp: base.Add(offset)}
}

// exerciseStore runs the behaviour every Store implementation shares.
func exerciseStore(t *testing.T, name string, open func(t *testing.T) repository.Store) {
	ctx := context.Background()

	Convey("Given an empty "+name, t, func() {
		s := open(t)
		Reset(func() { s.Close() })

		So(s.Count(ctx), ShouldEqual, 0)

		Convey("When records are appended", func() {
			So(s.Append(ctx, rec("r1", "maintenance", "accepted", map[string]any{"vessel": "aurora", "hours": 120}, 0)), ShouldBeNil)
			So(s.Append(ctx, rec("r2", "maintenance", "rejected", map[string]any{"vessel": "aurora"}, time.Hour)), ShouldBeNil)
			So(s.Append(ctx, rec("r3", "fuel", "accepted", nil, 2*time.Hour)), ShouldBeNil)
			So(s.Append(ctx, rec("r4", "maintenance", "accepted", map[string]any{}, 48*time.Hour)), ShouldBeNil)

			Convey("Then the count should reflect them", func() {
				So(s.Count(ctx), ShouldEqual, 4)
			})

			Convey("Then an empty filter should return all in insertion order", func() {
				got, err := s.Query(ctx, repository.Filter{})
				So(err, ShouldBeNil)
				So(len(got), ShouldEqual, 4)
				So(got[0].ID, ShouldEqual, "r1")
				So(got[3].ID, ShouldEqual, "r4")
			})

			Convey("Then subject and action filters should narrow the result", func() {
				got, err := s.Query(ctx, repository.Filter{Subject: "maintenance", Action: "accepted"})
				So(err, ShouldBeNil)
				So(len(got), ShouldEqual, 2)
				So(got[0].ID, ShouldEqual, "r1")
				So(got[1].ID, ShouldEqual, "r4")
			})

			Convey("Then Since should be an inclusive lower bound", func() {
				got, err := s.Query(ctx, repository.Filter{Since: base.Add(time.Hour)})
				So(err, ShouldBeNil)
				So(len(got), ShouldEqual, 3)
				So(got[0].ID, ShouldEqual, "r2")
			})

			Convey("Then contexts and timestamps should round-trip", func() {
				got, err := s.Query(ctx, repository.Filter{Subject: "maintenance"})
				So(err, ShouldBeNil)
				So(got[0].Context["vessel"], ShouldEqual, "aurora")
				So(fmt.Sprint(got[0].Context["hours"]), ShouldEqual, "120")
				So(got[0].Timestamp.Equal(base), ShouldBeTrue)
				So(got[2].HasContext(), ShouldBeTrue)
				So(got[2].Context, ShouldBeEmpty)
			})

			Convey("Then a nil context should stay nil", func() {
				got, err := s.Query(ctx, repository.Filter{Subject: "fuel"})
				So(err, ShouldBeNil)
				So(len(got), ShouldEqual, 1)
				So(got[0].HasContext(), ShouldBeFalse)
			})

			Convey("Then a repeated ID should be rejected", func() {
				err := s.Append(ctx, rec("r1", "fuel", "accepted", nil, 0))
				So(err, ShouldEqual, repository.ErrDuplicate)
				So(s.Count(ctx), ShouldEqual, 4)
			})
		})

		Convey("When a record lacks an id or subject", func() {
			Convey("Then Append should fail", func() {
				So(s.Append(ctx, rec("", "fuel", "accepted", nil, 0)), ShouldEqual, repository.ErrInvalidRecord)
				So(s.Append(ctx, rec("r9", "", "accepted", nil, 0)), ShouldEqual, repository.ErrInvalidRecord)
			})
		})

		Convey("When nothing matches", func() {
			got, err := s.Query(ctx, repository.Filter{Subject: "crew"})

			Convey("Then the result should be empty, not nil", func() {
				So(err, ShouldBeNil)
				So(got, ShouldNotBeNil)
				So(got, ShouldBeEmpty)
			})
		})
	})
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, "memory store", func(*testing.T) repository.Store {
		return repository.NewMemoryStore()
	})

	Convey("Given a closed memory store", t, func() {
		s := repository.NewMemoryStore()
		So(s.Close(), ShouldBeNil)

		Convey("Then writes and reads should fail", func() {
			So(s.Append(context.Background(), rec("r1", "fuel", "accepted", nil, 0)), ShouldEqual, repository.ErrClosed)
			_, err := s.Query(context.Background(), repository.Filter{})
			So(err, ShouldEqual, repository.ErrClosed)
		})
	})
}

func TestSQLiteStore(t *testing.T) {
	exerciseStore(t, "sqlite store", func(t *testing.T) repository.Store {
		s, err := repository.NewSQLiteStore(filepath.Join(t.TempDir(), "decisions.db"), repository.WithBusyTimeout(time.Second))
		if err != nil {
			t.Fatalf("NewSQLiteStore: %v", err)
		}
		return s
	})

	Convey("Given a database file written by one store", t, func() {
		path := filepath.Join(t.TempDir(), "reopen.db")
		s, err := repository.NewSQLiteStore(path)
		So(err, ShouldBeNil)
		So(s.Append(context.Background(), rec("r1", "maintenance", "accepted", map[string]any{"vessel": "aurora"}, 0)), ShouldBeNil)
		So(s.Close(), ShouldBeNil)

		Convey("When it is reopened", func() {
			again, err := repository.NewSQLiteStore(path)
			So(err, ShouldBeNil)
			Reset(func() { again.Close() })

			Convey("Then earlier records should still be there", func() {
				So(again.Count(context.Background()), ShouldEqual, 1)
			})
		})
	})
}

func TestOpen(t *testing.T) {
	Convey("Given store drivers", t, func() {
		Convey("Then memory and empty should open a memory store", func() {
			for _, driver := range []string{"", "memory"} {
				s, err := repository.Open(driver, "")
				So(err, ShouldBeNil)
				So(s, ShouldHaveSameTypeAs, &repository.MemoryStore{})
			}
		})

		Convey("Then sqlite should open a sqlite store", func() {
			s, err := repository.Open("sqlite", ":memory:")
			So(err, ShouldBeNil)
			So(s, ShouldHaveSameTypeAs, &repository.SQLiteStore{})
			So(s.Close(), ShouldBeNil)
		})

		Convey("Then unknown drivers should fail", func() {
			_, err := repository.Open("postgres", "")
			So(errors.Is(err, repository.ErrUnknownDriver), ShouldBeTrue)
		})
	})
}
