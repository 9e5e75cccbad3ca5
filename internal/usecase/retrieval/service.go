// Package retrieval finds stored emails similar to a query text.
package retrieval

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/mailrag/internal/domain/record"
	"github.com/kailas-cloud/mailrag/internal/logger"
	"github.com/kailas-cloud/mailrag/internal/metrics"
)

// Service embeds a query and delegates to the searcher.
type Service struct {
	embed  Embedder
	search Searcher
}

// New creates a retrieval service.
func New(embed Embedder, search Searcher) *Service {
	return &Service{embed: embed, search: search}
}

// Retrieve returns up to topK stored records most similar to queryText, best first.
// topK reaches the searcher unchanged; topK <= 0 yields nothing, as the store would.
// A query that cannot be embedded yields an empty result, not an error:
// callers treat "no context" and "no similar emails" the same way.
// Only a failing searcher (cancelled context) surfaces as an error.
func (s *Service) Retrieve(ctx context.Context, queryText string, topK int) ([]record.Similarity, error) {
	if topK <= 0 {
		return []record.Similarity{}, nil
	}

	emb, err := s.embed.Embed(ctx, queryText)
	if err != nil {
		metrics.RetrievalEmbeddingFailuresTotal.Inc()
		logger.FromContext(ctx).Warn("Query embedding failed, retrieving nothing", zap.Error(err))
		return []record.Similarity{}, nil
	}

	results, err := s.search.Search(ctx, emb.Embedding, topK)
	if err != nil {
		return nil, fmt.Errorf("search similar: %w", err)
	}

	metrics.RetrievalResults.Observe(float64(len(results)))
	return results, nil
}
