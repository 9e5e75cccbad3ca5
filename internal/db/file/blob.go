// Package file stores the vector snapshot as a single file on the local file system.
package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kailas-cloud/mailrag/internal/db"
)

// Compile-time check: Blob implements db.BlobStore.
var _ db.BlobStore = (*Blob)(nil)

// Blob is a file-backed db.BlobStore.
// Save writes to a temp file in the same directory, fsyncs it and renames it over the target.
type Blob struct {
	path string
}

// NewBlob creates a file blob at path. The parent directory is created on first Save.
func NewBlob(path string) *Blob {
	return &Blob{path: filepath.Clean(path)}
}

// Path returns the target file path.
func (b *Blob) Path() string { return b.path }

// Load reads the file. A missing file is an empty store.
func (b *Blob) Load(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(b.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, &db.Error{Op: db.OpLoad, Err: err}
	}
	return data, nil
}

// Save atomically replaces the file contents.
func (b *Blob) Save(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return &db.Error{Op: db.OpSave, Err: err}
	}
	if err := b.write(data); err != nil {
		return &db.Error{Op: db.OpSave, Err: err}
	}
	return nil
}

func (b *Blob) write(data []byte) error {
	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(b.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, b.path); err != nil {
		return fmt.Errorf("rename %s: %w", tmpName, err)
	}
	committed = true
	return nil
}

// Ping verifies that the target directory is reachable.
func (b *Blob) Ping(_ context.Context) error {
	dir := filepath.Dir(b.path)
	if _, err := os.Stat(dir); err != nil && !errors.Is(err, os.ErrNotExist) {
		return &db.Error{Op: db.OpPing, Err: err}
	}
	return nil
}
