package indexing

import (
	"context"

	domemail "github.com/kailas-cloud/mailrag/internal/domain/email"
)

// Store is the write side of the vector store.
type Store interface {
	Insert(ctx context.Context, text string, metadata map[string]string) (int, error)
	MetadataValues(key string) map[string]struct{}
}

// Source lists the emails to index.
type Source interface {
	List(ctx context.Context) ([]domemail.Email, error)
}

// Categorizer fills in a category for emails that arrive without one.
type Categorizer func(e *domemail.Email) domemail.Email
