package retrieval

import (
	"context"

	"github.com/kailas-cloud/mailrag/internal/domain"
	"github.com/kailas-cloud/mailrag/internal/domain/record"
)

// Searcher runs nearest-neighbour search over stored vectors.
// The vector store is the exact backend; an approximate index can stand in.
type Searcher interface {
	Search(ctx context.Context, query []float32, topK int) ([]record.Similarity, error)
}

// Embedder vectorizes the query text.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}
