// Package ratelimit bounds per-client call volume to the oracle pipeline with
// a reset-on-expiry window. Policy lives in Limiter; counter state lives
// behind Store so a single-process map or a shared Redis can back it.
package ratelimit

import (
	"context"
	"time"
)

// Record is the counter state for one client key.
type Record struct {
	Count       int
	WindowStart time.Time
	LastRequest time.Time
}

// Store holds windowed counters keyed by client identity.
type Store interface {
	// Hit increments the counter for key, starting a fresh window when none
	// exists or the previous one has expired. Returns the post-increment record.
	Hit(ctx context.Context, key string, window time.Duration) (Record, error)

	// Status returns the current record without incrementing. The second
	// return value is false when the key has no live window.
	Status(ctx context.Context, key string) (Record, bool, error)

	// Reset drops the counter for key.
	Reset(ctx context.Context, key string) error

	Close() error
}
