package domain

import "context"

type embeddingUsageKey struct{}

// EmbeddingUsage collects token usage for one unit of work (an indexing run or a reply).
// The caller puts a mutable pointer into the context; the embedding layer adds to it.
// Not safe for concurrent use; one collector per goroutine.
type EmbeddingUsage struct {
	Calls       int
	TotalTokens int
}

// NewContextWithUsage returns a context with an embedded usage collector.
func NewContextWithUsage(ctx context.Context) (context.Context, *EmbeddingUsage) {
	u := &EmbeddingUsage{}
	return context.WithValue(ctx, embeddingUsageKey{}, u), u
}

// UsageFromContext extracts the usage collector from context. Returns nil if not set.
func UsageFromContext(ctx context.Context) *EmbeddingUsage {
	u, _ := ctx.Value(embeddingUsageKey{}).(*EmbeddingUsage)
	return u
}

// AddTokens records one embedding call and its consumed tokens.
func (u *EmbeddingUsage) AddTokens(n int) {
	if u != nil {
		u.Calls++
		u.TotalTokens += n
	}
}
