// Package reply drafts email replies grounded on similar past emails.
package reply

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/mailrag/internal/domain"
	"github.com/kailas-cloud/mailrag/internal/domain/email"
	"github.com/kailas-cloud/mailrag/internal/domain/record"
	domreply "github.com/kailas-cloud/mailrag/internal/domain/reply"
	"github.com/kailas-cloud/mailrag/internal/logger"
	"github.com/kailas-cloud/mailrag/internal/metrics"
)

// Options tunes composition. Zero values take defaults.
type Options struct {
	TopK        int
	MaxTokens   int
	Temperature float32
	// Timeout bounds each completion call; 0 leaves only the caller's deadline.
	Timeout time.Duration
}

// Service composes reply suggestions.
type Service struct {
	retriever Retriever
	completer domain.Completer
	emails    EmailSource
	opts      Options
}

// New creates a reply composer. emails may be nil when SuggestForID is not used.
func New(retriever Retriever, completer domain.Completer, emails EmailSource, opts Options) *Service {
	if opts.TopK <= 0 {
		opts.TopK = domain.DefaultTopK
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = domain.DefaultMaxTokens
	}
	if opts.Temperature <= 0 {
		opts.Temperature = domain.DefaultTemperature
	}
	return &Service{retriever: retriever, completer: completer, emails: emails, opts: opts}
}

// Compose drafts a reply for e.
//
// With at least one similar email the reply is grounded on them. With none, or
// when grounded generation fails or comes back empty, a minimal prompt with only
// the target email is tried once. If that fails too, ErrNoSuggestion is returned.
// Retrieval errors other than "nothing found" propagate unchanged.
func (s *Service) Compose(ctx context.Context, e *email.Email) (domreply.Suggestion, error) {
	log := logger.FromContext(ctx).With(zap.Int64("email_id", e.ID()))

	similar, err := s.retriever.Retrieve(ctx, e.IndexText(), s.opts.TopK)
	if err != nil {
		metrics.ReplySuggestionsTotal.WithLabelValues("none").Inc()
		return domreply.Suggestion{}, fmt.Errorf("retrieve similar emails: %w", err)
	}

	if len(similar) > 0 {
		text, err := s.complete(ctx, groundedPrompt(e, similar))
		switch {
		case err == nil && text != "":
			metrics.ReplySuggestionsTotal.WithLabelValues(string(domreply.PathGrounded)).Inc()
			log.Info("Generated grounded reply", zap.Int("sources", len(similar)))
			return domreply.NewSuggestion(text, domreply.PathGrounded, similar), nil
		case err != nil:
			log.Warn("Grounded generation failed, falling back", zap.Error(err))
		default:
			log.Warn("Grounded generation returned an empty reply, falling back")
		}
	} else {
		log.Info("No similar emails found, using fallback prompt")
	}

	text, err := s.complete(ctx, fallbackPrompt(e))
	if err != nil {
		metrics.ReplySuggestionsTotal.WithLabelValues("none").Inc()
		log.Error("Fallback generation failed", zap.Error(err))
		return domreply.Suggestion{}, fmt.Errorf("%w: %w", domain.ErrNoSuggestion, err)
	}

	metrics.ReplySuggestionsTotal.WithLabelValues(string(domreply.PathFallback)).Inc()
	return domreply.NewSuggestion(text, domreply.PathFallback, []record.Similarity{}), nil
}

// SuggestForID resolves the email by id and composes a reply for it.
// An unknown id returns ErrNotFound without touching retrieval or generation.
func (s *Service) SuggestForID(ctx context.Context, id int64) (domreply.Suggestion, error) {
	if s.emails == nil {
		return domreply.Suggestion{}, errors.New("suggest reply: no email source configured")
	}
	e, err := s.emails.Get(ctx, id)
	if err != nil {
		return domreply.Suggestion{}, fmt.Errorf("get email %d: %w", id, err)
	}
	return s.Compose(ctx, &e)
}

func (s *Service) complete(ctx context.Context, prompt string) (string, error) {
	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}
	text, err := s.completer.Complete(ctx, domain.CompletionRequest{
		Prompt:      prompt,
		MaxTokens:   s.opts.MaxTokens,
		Temperature: s.opts.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("complete: %w", err)
	}
	return text, nil
}
