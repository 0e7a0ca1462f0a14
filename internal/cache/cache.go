// Package cache defines the result cache contract shared by its backends.
package cache

import (
	"context"
	"time"
)

// Entry is a computed dashboard payload plus the moment it was computed.
// Staleness is always decided by the policy engine from ComputedAt; backends
// never expire entries on their own, so a stale entry stays retrievable after
// a failed refresh.
type Entry struct {
	Payload    []byte    `json:"payload"`
	ComputedAt time.Time `json:"computed_at"`
}

func (e Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.ComputedAt)
}

type Store interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Set(ctx context.Context, key string, e Entry) error
	Del(ctx context.Context, keys ...string) error

	// DelPrefix removes every entry whose key starts with prefix and
	// returns the number of removed entries.
	DelPrefix(ctx context.Context, prefix string) (int, error)
}
