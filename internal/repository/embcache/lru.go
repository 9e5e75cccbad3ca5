package embcache

import (
	"context"
	"fmt"
	"slices"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kailas-cloud/mailrag/internal/db"
)

// LRUStore is an in-process cache backend for deployments without redis.
// Retrieval re-embeds the same incoming email on every reply attempt, so even
// a small cache saves most repeat calls.
type LRUStore struct {
	cache *lru.Cache[string, []byte]
}

// NewLRUStore creates a store holding at most size entries.
func NewLRUStore(size int) (*LRUStore, error) {
	c, err := lru.New[string, []byte](size)
	if err != nil {
		return nil, fmt.Errorf("create embedding lru: %w", err)
	}
	return &LRUStore{cache: c}, nil
}

// Get returns a copy of the cached bytes or db.ErrKeyNotFound.
func (s *LRUStore) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := s.cache.Get(key)
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return slices.Clone(v), nil
}

// Set stores a copy of value, evicting the least recently used entry when full.
func (s *LRUStore) Set(_ context.Context, key string, value []byte) error {
	s.cache.Add(key, slices.Clone(value))
	return nil
}

// Len returns the number of cached entries.
func (s *LRUStore) Len() int { return s.cache.Len() }
