package embedding

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/kailas-cloud/mailrag/internal/domain"
)

// RateLimitedEmbedder spaces out calls to the inner embedder. Indexing a large
// mailbox otherwise bursts straight into the provider's per-minute limits.
type RateLimitedEmbedder struct {
	inner   domain.Embedder
	limiter *rate.Limiter
}

// NewRateLimitedEmbedder allows rps calls per second with the given burst.
// rps <= 0 disables limiting.
func NewRateLimitedEmbedder(inner domain.Embedder, rps float64, burst int) *RateLimitedEmbedder {
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimitedEmbedder{inner: inner, limiter: rate.NewLimiter(limit, burst)}
}

// Embed waits for a token, then delegates. A wait that cannot finish before
// the context deadline fails immediately with ErrRateLimited.
func (e *RateLimitedEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embedding rate limiter: %w: %w: %w",
			domain.ErrEmbedding, domain.ErrRateLimited, err)
	}
	return e.inner.Embed(ctx, text) //nolint:wrapcheck // transparent decorator
}

// HealthCheck forwards to the inner embedder when it supports health checks.
func (e *RateLimitedEmbedder) HealthCheck(ctx context.Context) error {
	if hc, ok := e.inner.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx) //nolint:wrapcheck // transparent decorator
	}
	return nil
}
