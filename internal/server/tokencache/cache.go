// Package tokencache is the fast key-value tier holding token snapshots.
package tokencache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned by Get when the key is absent. Any other error means
// the cache could not answer and must not be read as absence.
var ErrMiss = errors.New("cache miss")

// Cache is the minimal surface the token manager needs from a cache.
type Cache interface {
	// Set stores value under key. A non-positive ttl stores without expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete removes keys; absent keys are not an error.
	Delete(ctx context.Context, keys ...string) error
}
