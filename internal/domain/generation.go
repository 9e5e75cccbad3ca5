package domain

import "context"

// Default parameters for reply drafting.
const (
	DefaultMaxTokens   = 500
	DefaultTemperature = 0.7
	// DefaultTopK is how many similar emails ground a reply.
	DefaultTopK = 3
)

// CompletionRequest is a single-prompt completion call.
type CompletionRequest struct {
	Prompt      string
	MaxTokens   int
	Temperature float32
}

// Completer is the generation collaborator. Errors wrap ErrGeneration.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}
