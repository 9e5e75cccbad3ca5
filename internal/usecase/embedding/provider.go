// Package embedding assembles the embedding provider used by the vector store
// and the retriever: budget and rate decorators around a transport, and the
// Provider that owns warm-up, the fixed dimension and input normalisation.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/kailas-cloud/mailrag/internal/domain"
	"github.com/kailas-cloud/mailrag/internal/metrics"
)

const warmupText = "warm-up probe"

// ProviderConfig configures a Provider.
type ProviderConfig struct {
	// Provider and Model label metrics.
	Provider string
	Model    string
	// Dimension is the expected vector length. Zero means learn it from the warm-up probe.
	Dimension int
	// Timeout bounds each Embed call on top of the caller's deadline. Zero disables it.
	Timeout time.Duration
	// MaxInputChars caps the input in runes. Longer inputs are cut silently,
	// which keeps long email threads inside the model's context window.
	MaxInputChars int
}

// Provider is the Embedding Provider: text in, exactly Dimension() floats out.
// Lifecycle is NewProvider, Warmup, any number of Embed calls, Close.
// Every error it returns wraps domain.ErrEmbedding.
type Provider struct {
	inner  domain.Embedder
	cfg    ProviderConfig
	logger *zap.Logger

	mu     sync.RWMutex
	dim    int
	warm   bool
	closed bool
}

// NewProvider wraps the decorated embedder chain.
func NewProvider(inner domain.Embedder, cfg ProviderConfig, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{inner: inner, cfg: cfg, logger: logger, dim: cfg.Dimension}
}

// Warmup embeds a probe text to verify the model is reachable and to fix D.
// Calling it again after success is a no-op.
func (p *Provider) Warmup(ctx context.Context) error {
	p.mu.RLock()
	warm := p.warm
	p.mu.RUnlock()
	if warm {
		return nil
	}

	start := time.Now()
	res, err := p.call(ctx, warmupText)
	if err != nil {
		return fmt.Errorf("embedding warm-up: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	got := len(res.Embedding)
	if p.dim != 0 && got != p.dim {
		return fmt.Errorf("embedding warm-up: model returned %d floats, configured %d: %w",
			got, p.dim, domain.ErrEmbedding)
	}
	p.dim = got
	p.warm = true
	p.logger.Info("Embedding provider ready",
		zap.Int("dimension", got),
		zap.Duration("warmup", time.Since(start)),
	)
	return nil
}

// Dimension returns D, or 0 before the first successful call when unconfigured.
func (p *Provider) Dimension() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.dim
}

// Embed returns the vector for text. Empty or whitespace-only input is an error.
// Inputs longer than MaxInputChars runes are truncated before embedding.
func (p *Provider) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	if strings.TrimSpace(text) == "" {
		return domain.EmbeddingResult{}, fmt.Errorf("empty input text: %w", domain.ErrEmbedding)
	}

	res, err := p.call(ctx, p.truncate(text))
	if err != nil {
		return domain.EmbeddingResult{}, err
	}

	p.mu.Lock()
	if p.dim == 0 {
		p.dim = len(res.Embedding)
	}
	dim := p.dim
	p.mu.Unlock()

	if len(res.Embedding) != dim {
		metrics.EmbeddingErrorsTotal.WithLabelValues(p.cfg.Provider, p.cfg.Model, "dimension").Inc()
		return domain.EmbeddingResult{}, fmt.Errorf("model returned %d floats, expected %d: %w",
			len(res.Embedding), dim, domain.ErrEmbedding)
	}

	domain.UsageFromContext(ctx).AddTokens(res.TotalTokens)
	return res, nil
}

func (p *Provider) call(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return domain.EmbeddingResult{}, fmt.Errorf("embedding provider closed: %w", domain.ErrEmbedding)
	}

	callCtx := ctx
	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}

	res, err := p.inner.Embed(callCtx, text)
	if err != nil {
		return domain.EmbeddingResult{}, wrapEmbedError(callCtx, err)
	}
	if len(res.Embedding) == 0 {
		return domain.EmbeddingResult{}, fmt.Errorf("model returned an empty vector: %w", domain.ErrEmbedding)
	}
	return res, nil
}

// wrapEmbedError guarantees ErrEmbedding and, on timeout, context.DeadlineExceeded in the chain.
func wrapEmbedError(ctx context.Context, err error) error {
	if cerr := ctx.Err(); cerr != nil && !errors.Is(err, cerr) {
		err = fmt.Errorf("%w: %w", err, cerr)
	}
	if errors.Is(err, domain.ErrEmbedding) {
		return fmt.Errorf("embed: %w", err)
	}
	return fmt.Errorf("embed: %w: %w", domain.ErrEmbedding, err)
}

func (p *Provider) truncate(text string) string {
	limit := p.cfg.MaxInputChars
	if limit <= 0 || len(text) <= limit {
		return text
	}
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	n := 0
	for i := range text {
		if n == limit {
			metrics.EmbeddingTruncatedTotal.Inc()
			return text[:i]
		}
		n++
	}
	return text
}

// HealthCheck forwards to the embedder chain when it supports health checks.
func (p *Provider) HealthCheck(ctx context.Context) error {
	if hc, ok := p.inner.(domain.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("embedding health: %w", err)
		}
	}
	return nil
}

// Close releases the inner embedder when it holds resources. Later calls fail.
func (p *Provider) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	if c, ok := p.inner.(io.Closer); ok {
		if err := c.Close(); err != nil {
			return fmt.Errorf("close embedder: %w", err)
		}
	}
	return nil
}
