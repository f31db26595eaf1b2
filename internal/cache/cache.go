package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned when the key is absent or expired
var ErrMiss = errors.New("cache miss")

// Cache is the injected lookup cache used for profile snapshots and similar
// hot reads. Implementations must be safe for concurrent use; lifecycle and
// test isolation are the caller's concern, which is why this is an interface
// rather than package-level state.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Invalidate(ctx context.Context, key string) error
}
