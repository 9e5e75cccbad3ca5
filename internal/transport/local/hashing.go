// Package local provides an offline embedding provider.
package local

import (
	"context"
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"

	"github.com/kailas-cloud/mailrag/internal/domain"
)

// ModelName identifies vectors produced by HashingEmbedder.
const ModelName = "hashing-v1"

// HashingEmbedder maps text to a signed feature-hashing bag of words, L2 normalised.
// Output is deterministic across processes and needs no network, so texts sharing
// vocabulary score high under cosine similarity. It is not a semantic model.
type HashingEmbedder struct {
	dim int
}

// NewHashingEmbedder creates an embedder producing dim-length vectors.
func NewHashingEmbedder(dim int) (*HashingEmbedder, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("hashing embedder dimension must be positive, got %d", dim)
	}
	return &HashingEmbedder{dim: dim}, nil
}

// Embed implements domain.Embedder. TotalTokens reports the token count seen.
func (e *HashingEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("hashing embed: %w", err)
	}

	vec := make([]float32, e.dim)
	tokens := tokenize(text)
	for _, tok := range tokens {
		h := xxhash.Sum64String(tok)
		idx := int(h % uint64(e.dim))
		// Top bit picks the sign so collisions partially cancel instead of piling up.
		if h>>63 == 1 {
			vec[idx]--
		} else {
			vec[idx]++
		}
	}

	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum > 0 {
		inv := 1 / math.Sqrt(sum)
		for i := range vec {
			vec[i] = float32(float64(vec[i]) * inv)
		}
	}

	return domain.EmbeddingResult{
		Embedding:    vec,
		PromptTokens: len(tokens),
		TotalTokens:  len(tokens),
	}, nil
}

// Dimension returns the vector length.
func (e *HashingEmbedder) Dimension() int { return e.dim }

// HealthCheck always succeeds.
func (e *HashingEmbedder) HealthCheck(_ context.Context) error { return nil }

// tokenize lowercases text and splits on anything that is not a letter or digit.
// Adjacent word pairs are added so word order contributes a little signal.
func tokenize(text string) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '$'
	})
	out := make([]string, 0, len(words)*2)
	out = append(out, words...)
	for i := 1; i < len(words); i++ {
		out = append(out, words[i-1]+" "+words[i])
	}
	return out
}
