// Package cache memoizes pattern detection results.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/fathom/internal/domain/patterns"
	"github.com/okian/fathom/pkg/metrics"
	"golang.org/x/sync/singleflight"
)

const (
	defaultTTL        = 5 * time.Minute
	defaultMaxEntries = 1000
)

// Key identifies a pattern query.
type Key struct {
	Module       string
	DecisionType string
	Days         int
}

func (k Key) String() string {
	return fmt.Sprintf("%s\x00%s\x00%d", k.Module, k.DecisionType, k.Days)
}

// ComputeFunc produces a fresh detection report for a key.
type ComputeFunc func(ctx context.Context) (patterns.Report, error)

type entry struct {
	report     patterns.Report
	computedAt time.Time
}

// PatternCache is a TTL memo for pattern reports. Concurrent misses for the
// same key share one computation. Results may be stale by up to the TTL
// unless Invalidate is called.
//
// Safe for concurrent use.
type PatternCache struct {
	mu         sync.Mutex
	entries    map[Key]entry
	generation uint64
	flight     singleflight.Group

	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

// New creates a PatternCache. A TTL <= 0 disables caching.
func New(opts ...Option) *PatternCache {
	c := &PatternCache{
		entries:    make(map[Key]entry),
		ttl:        defaultTTL,
		maxEntries: defaultMaxEntries,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Enabled reports whether results are memoized.
func (c *PatternCache) Enabled() bool { return c.ttl > 0 }

// Get returns the cached report for key or runs compute. The bool result is
// true when the report came from the cache.
func (c *PatternCache) Get(ctx context.Context, key Key, compute ComputeFunc) (patterns.Report, bool, error) {
	if !c.Enabled() {
		r, err := compute(ctx)
		return r, false, err
	}

	if r, ok := c.lookup(key); ok {
		metrics.RecordPatternCacheHit()
		return r, true, nil
	}
	metrics.RecordPatternCacheMiss()

	c.mu.Lock()
	gen := c.generation
	c.mu.Unlock()

	// The flight outlives any single caller, so it runs detached from the
	// first caller's cancellation. Each caller still stops waiting on its own ctx.
	flightCtx := context.WithoutCancel(ctx)
	ch := c.flight.DoChan(fmt.Sprintf("%d\x00%s", gen, key), func() (any, error) {
		if r, ok := c.lookup(key); ok {
			return r, nil
		}
		r, err := compute(flightCtx)
		if err != nil {
			return patterns.Report{}, err
		}
		c.store(key, gen, r)
		return r, nil
	})

	select {
	case <-ctx.Done():
		return patterns.Report{}, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return patterns.Report{}, false, res.Err
		}
		return res.Val.(patterns.Report), false, nil
	}
}

// Invalidate drops every entry. Computations already running are not stored.
func (c *PatternCache) Invalidate() {
	c.mu.Lock()
	n := len(c.entries)
	c.entries = make(map[Key]entry)
	c.generation++
	c.mu.Unlock()

	if n > 0 {
		metrics.RecordPatternCacheEvictions(n)
	}
	metrics.UpdatePatternCacheSize(0)
}

// Len returns the number of entries, including expired ones not yet swept.
func (c *PatternCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *PatternCache) lookup(key Key) (patterns.Report, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return patterns.Report{}, false
	}
	if c.now().Sub(e.computedAt) > c.ttl {
		delete(c.entries, key)
		metrics.RecordPatternCacheEvictions(1)
		metrics.UpdatePatternCacheSize(len(c.entries))
		return patterns.Report{}, false
	}
	return e.report, true
}

func (c *PatternCache) store(key Key, gen uint64, r patterns.Report) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		return
	}
	if len(c.entries) >= c.maxEntries {
		c.sweepLocked()
	}
	if len(c.entries) >= c.maxEntries {
		return
	}
	c.entries[key] = entry{report: r, computedAt: c.now()}
	metrics.UpdatePatternCacheSize(len(c.entries))
}

// sweepLocked removes expired entries. Must be called with c.mu held.
func (c *PatternCache) sweepLocked() {
	now := c.now()
	n := 0
	for k, e := range c.entries {
		if now.Sub(e.computedAt) > c.ttl {
			delete(c.entries, k)
			n++
		}
	}
	if n > 0 {
		metrics.RecordPatternCacheEvictions(n)
	}
}
