package cache

import "time"

// Option applies a configuration option to the PatternCache.
type Option func(*PatternCache)

// WithTTL sets how long a report stays fresh. A TTL <= 0 disables caching.
func WithTTL(ttl time.Duration) Option {
	return func(c *PatternCache) {
		c.ttl = ttl
	}
}

// WithMaxEntries caps the number of cached reports.
func WithMaxEntries(n int) Option {
	return func(c *PatternCache) {
		if n > 0 {
			c.maxEntries = n
		}
	}
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(c *PatternCache) {
		if now != nil {
			c.now = now
		}
	}
}
