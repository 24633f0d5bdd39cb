package shared

import (
	"context"
	"time"
)

// DedupStore claims keys for a bounded time so that only one caller acts on a
// key inside the window. Implementations: Redis (SETNX) and in-memory.
type DedupStore interface {
	// Claim marks key as taken for ttl.
	// Returns true if the key was newly claimed, false if it is already held.
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Release drops a claim so that a later caller may claim the key again.
	Release(ctx context.Context, key string) error

	// Close closes the store and releases resources
	Close() error
}

// Clock abstracts time.Now for window computations
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock
type SystemClock struct{}

// Now returns the current time
func (SystemClock) Now() time.Time { return time.Now() }
