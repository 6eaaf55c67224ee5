package repository

import (
	"fmt"
	"time"
)

type sqliteConfig struct {
	busyTimeout time.Duration
}

// SQLiteOption applies a configuration option to the SQLiteStore.
type SQLiteOption func(*sqliteConfig)

// WithBusyTimeout sets how long SQLite waits on a locked database.
func WithBusyTimeout(d time.Duration) SQLiteOption {
	return func(c *sqliteConfig) {
		if d > 0 {
			c.busyTimeout = d
		}
	}
}

// Open builds the store named by driver: "memory" or "sqlite".
func Open(driver, path string, opts ...SQLiteOption) (Store, error) {
	switch driver {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return NewSQLiteStore(path, opts...)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
}
