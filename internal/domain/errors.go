package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound signals an email id absent from the email source.
	ErrNotFound = errors.New("not found")
	// ErrEmbedding signals that no embedding is available (model unavailable or computation failure).
	ErrEmbedding = errors.New("embedding failed")
	// ErrEmbeddingQuotaExceeded signals an exhausted embedding token budget.
	ErrEmbeddingQuotaExceeded = errors.New("embedding quota exceeded")
	// ErrRateLimited signals a local or upstream rate limit hit.
	ErrRateLimited = errors.New("rate limited")
	// ErrStore signals a vector store persistence failure.
	ErrStore = errors.New("vector store error")
	// ErrDimensionMismatch signals an embedding whose length differs from the store dimension.
	ErrDimensionMismatch = fmt.Errorf("embedding dimension mismatch: %w", ErrStore)
	// ErrGeneration signals a failed completion call.
	ErrGeneration = errors.New("generation failed")
	// ErrGenerationQuota signals a quota or auth failure of the completion provider.
	ErrGenerationQuota = fmt.Errorf("generation quota or auth failure: %w", ErrGeneration)
	// ErrNoSuggestion signals that both the grounded and the fallback generation failed.
	ErrNoSuggestion = errors.New("no reply suggestion")
)

// DimensionError reports the expected and actual embedding lengths.
type DimensionError struct {
	Expected int
	Actual   int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("%s: expected %d, got %d", ErrDimensionMismatch.Error(), e.Expected, e.Actual)
}

func (e *DimensionError) Unwrap() error { return ErrDimensionMismatch }

// NewDimensionError creates a dimension mismatch error.
func NewDimensionError(expected, actual int) error {
	return &DimensionError{Expected: expected, Actual: actual}
}
