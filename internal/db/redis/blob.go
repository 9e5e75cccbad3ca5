package redis

import (
	"context"
	"errors"

	"github.com/kailas-cloud/mailrag/internal/db"
)

// Compile-time check: Blob implements db.BlobStore.
var _ db.BlobStore = (*Blob)(nil)

// Blob stores the vector snapshot under a single key. SET replaces the value atomically.
type Blob struct {
	store *Store
	key   string
}

// Blob binds a db.BlobStore to key.
func (s *Store) Blob(key string) *Blob {
	return &Blob{store: s, key: key}
}

// Key returns the bound key.
func (b *Blob) Key() string { return b.key }

// Load returns the snapshot, or nil when the key does not exist.
func (b *Blob) Load(ctx context.Context) ([]byte, error) {
	data, err := b.store.Get(ctx, b.key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, &db.Error{Op: db.OpLoad, Err: err}
	}
	return data, nil
}

// Save replaces the snapshot.
func (b *Blob) Save(ctx context.Context, data []byte) error {
	if err := b.store.Set(ctx, b.key, data); err != nil {
		return &db.Error{Op: db.OpSave, Err: err}
	}
	return nil
}

// Ping checks connectivity of the underlying store.
func (b *Blob) Ping(ctx context.Context) error {
	return b.store.Ping(ctx)
}
