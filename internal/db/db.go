package db

import (
	"context"
	"time"
)

// BlobStore persists exactly one serialized blob per store instance.
// Implementations must replace the blob atomically: a reader sees either the previous
// or the new value, never a partial write.
type BlobStore interface {
	// Load returns the saved blob, or (nil, nil) when nothing was saved yet.
	Load(ctx context.Context) ([]byte, error)
	// Save replaces the blob.
	Save(ctx context.Context, data []byte) error
}

// Pinger checks backend connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// KVStore provides simple key-value operations (embedding cache, budget counters).
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	IncrBy(ctx context.Context, key string, val int64) error
	Expire(ctx context.Context, key string, ttl time.Duration, nx bool) error
}
