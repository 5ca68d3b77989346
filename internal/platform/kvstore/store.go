package kvstore

import (
	"context"
	"time"
)

// Store is the ephemeral key/value backend behind idempotency, presence and
// unread state. Implementations must make SetNX and IncrIfExists atomic.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	MGet(ctx context.Context, keys []string) (map[string]string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value string, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, keys ...string) error
	// IncrIfExists adds delta to an existing integer key and keeps its TTL.
	// A missing key is left missing and reported with ok=false.
	IncrIfExists(ctx context.Context, key string, delta int64) (int64, bool, error)
	Close() error
}
