// Package memory provides an in-process db.BlobStore for tests and ephemeral runs.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/kailas-cloud/mailrag/internal/db"
)

// Compile-time check: Blob implements db.BlobStore.
var _ db.BlobStore = (*Blob)(nil)

// Blob keeps the snapshot in memory. FailSave makes the next Save calls fail.
type Blob struct {
	mu       sync.Mutex
	data     []byte
	saves    int
	failWith error
}

// NewBlob creates an empty in-memory blob.
func NewBlob() *Blob {
	return &Blob{}
}

// Load returns a copy of the saved bytes, or nil when empty.
func (b *Blob) Load(_ context.Context) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.data == nil {
		return nil, nil
	}
	return slices.Clone(b.data), nil
}

// Save stores a copy of data.
func (b *Blob) Save(_ context.Context, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failWith != nil {
		return &db.Error{Op: db.OpSave, Err: b.failWith}
	}
	b.data = slices.Clone(data)
	b.saves++
	return nil
}

// FailSave makes subsequent saves return err; nil restores normal behaviour.
func (b *Blob) FailSave(err error) {
	b.mu.Lock()
	b.failWith = err
	b.mu.Unlock()
}

// Saves returns the number of successful saves.
func (b *Blob) Saves() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.saves
}

// Ping always succeeds.
func (b *Blob) Ping(_ context.Context) error { return nil }
