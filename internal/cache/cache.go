// Package cache is the key/value layer behind sessions and pending
// provider verifications. Redis in production, go-cache in process.
package cache

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("cache: key not found")

type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error

	// Take returns the value and removes it in one step, so a value can
	// be consumed at most once.
	Take(ctx context.Context, key string) ([]byte, error)
}
