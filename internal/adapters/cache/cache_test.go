package cache_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/fathom/internal/adapters/cache"
	"github.com/okian/fathom/internal/domain/patterns"
	. "github.com/smartystreets/goconvey/convey"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func counting(calls *int32, groups int) cache.ComputeFunc {
	return func(context.Context) (patterns.Report, error) {
		atomic.AddInt32(calls, 1)
		return patterns.Report{Groups: groups, Patterns: []patterns.Pattern{}}, nil
	}
}

func TestPatternCache(t *testing.T) {
	ctx := context.Background()
	key := cache.Key{Module: "maintenance", DecisionType: "accepted", Days: 30}

	Convey("Given a cache with a five minute TTL", t, func() {
		clk := &clock{now: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)}
		c := cache.New(cache.WithTTL(5*time.Minute), cache.WithClock(clk.Now))
		var calls int32

		Convey("When the same key is requested twice", func() {
			_, hit1, err1 := c.Get(ctx, key, counting(&calls, 1))
			r, hit2, err2 := c.Get(ctx, key, counting(&calls, 2))

			Convey("Then the second request should be served from cache", func() {
				So(err1, ShouldBeNil)
				So(err2, ShouldBeNil)
				So(hit1, ShouldBeFalse)
				So(hit2, ShouldBeTrue)
				So(r.Groups, ShouldEqual, 1)
				So(atomic.LoadInt32(&calls), ShouldEqual, 1)
				So(c.Len(), ShouldEqual, 1)
			})
		})

		Convey("When different keys are requested", func() {
			other := key
			other.Days = 7
			c.Get(ctx, key, counting(&calls, 1))
			c.Get(ctx, other, counting(&calls, 1))

			Convey("Then each key should be computed", func() {
				So(atomic.LoadInt32(&calls), ShouldEqual, 2)
				So(c.Len(), ShouldEqual, 2)
			})
		})

		Convey("When the TTL elapses", func() {
			c.Get(ctx, key, counting(&calls, 1))
			clk.Advance(5*time.Minute + time.Second)
			r, hit, _ := c.Get(ctx, key, counting(&calls, 2))

			Convey("Then the report should be recomputed", func() {
				So(hit, ShouldBeFalse)
				So(r.Groups, ShouldEqual, 2)
				So(atomic.LoadInt32(&calls), ShouldEqual, 2)
			})
		})

		Convey("When the cache is invalidated", func() {
			c.Get(ctx, key, counting(&calls, 1))
			c.Invalidate()
			_, hit, _ := c.Get(ctx, key, counting(&calls, 1))

			Convey("Then the next request should recompute", func() {
				So(hit, ShouldBeFalse)
				So(atomic.LoadInt32(&calls), ShouldEqual, 2)
			})
		})

		Convey("When compute fails", func() {
			boom := errors.New("store unavailable")
			_, _, err := c.Get(ctx, key, func(context.Context) (patterns.Report, error) {
				return patterns.Report{}, boom
			})

			Convey("Then the error should surface and nothing be cached", func() {
				So(err, ShouldEqual, boom)
				So(c.Len(), ShouldEqual, 0)
			})
		})

		Convey("When many goroutines miss at once", func() {
			release := make(chan struct{})
			slow := func(context.Context) (patterns.Report, error) {
				atomic.AddInt32(&calls, 1)
				<-release
				return patterns.Report{Groups: 9}, nil
			}

			var wg sync.WaitGroup
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					c.Get(ctx, key, slow)
				}()
			}
			time.Sleep(50 * time.Millisecond)
			close(release)
			wg.Wait()

			Convey("Then the computation should run once", func() {
				So(atomic.LoadInt32(&calls), ShouldEqual, 1)
			})
		})
	})

	Convey("Given a shared computation whose first caller goes away", t, func() {
		c := cache.New(cache.WithTTL(5 * time.Minute))
		started := make(chan struct{})
		release := make(chan struct{})
		slow := func(ctx context.Context) (patterns.Report, error) {
			close(started)
			<-release
			if err := ctx.Err(); err != nil {
				return patterns.Report{}, err
			}
			return patterns.Report{Groups: 4}, nil
		}

		firstCtx, cancelFirst := context.WithCancel(context.Background())
		firstErr := make(chan error, 1)
		go func() {
			_, _, err := c.Get(firstCtx, key, slow)
			firstErr <- err
		}()
		<-started

		type result struct {
			report patterns.Report
			err    error
		}
		second := make(chan result, 1)
		go func() {
			r, _, err := c.Get(ctx, key, slow)
			second <- result{r, err}
		}()
		time.Sleep(20 * time.Millisecond)

		cancelFirst()
		So(errors.Is(<-firstErr, context.Canceled), ShouldBeTrue)
		close(release)
		got := <-second

		Convey("Then the remaining waiter should still get the report", func() {
			So(got.err, ShouldBeNil)
			So(got.report.Groups, ShouldEqual, 4)
		})

		Convey("Then the report should be cached for later callers", func() {
			_, hit, err := c.Get(ctx, key, slow)
			So(err, ShouldBeNil)
			So(hit, ShouldBeTrue)
		})
	})

	Convey("Given a cache with caching disabled", t, func() {
		c := cache.New(cache.WithTTL(0))
		var calls int32

		Convey("Then every request should compute", func() {
			So(c.Enabled(), ShouldBeFalse)
			c.Get(ctx, key, counting(&calls, 1))
			_, hit, _ := c.Get(ctx, key, counting(&calls, 1))
			So(hit, ShouldBeFalse)
			So(atomic.LoadInt32(&calls), ShouldEqual, 2)
			So(c.Len(), ShouldEqual, 0)
		})
	})

	Convey("Given a cache limited to one entry", t, func() {
		c := cache.New(cache.WithMaxEntries(1))
		var calls int32
		other := key
		other.Module = "fuel"

		Convey("Then a second key should be computed but not stored", func() {
			c.Get(ctx, key, counting(&calls, 1))
			c.Get(ctx, other, counting(&calls, 1))
			So(c.Len(), ShouldEqual, 1)
			_, hit, _ := c.Get(ctx, key, counting(&calls, 1))
			So(hit, ShouldBeTrue)
		})
	})
}
