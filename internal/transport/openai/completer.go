package openai

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/mailrag/internal/domain"
	"github.com/kailas-cloud/mailrag/internal/metrics"
)

// DefaultChatModel is used when no completion model is configured.
const DefaultChatModel = openai.GPT3Dot5Turbo

const systemPrompt = "You are a helpful assistant."

// Completer drafts text through the chat completions endpoint.
type Completer struct {
	client *openai.Client
	model  string
	user   string
	logger *zap.Logger
}

// NewCompleter creates a chat completion client. cfg.Dimensions is ignored.
func NewCompleter(cfg *Config) *Completer {
	model := cfg.Model
	if model == "" {
		model = DefaultChatModel
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Completer{
		client: newClient(cfg),
		model:  model,
		user:   cfg.User,
		logger: logger,
	}
}

// Complete implements domain.Completer. The first choice is returned verbatim.
func (c *Completer) Complete(ctx context.Context, req domain.CompletionRequest) (string, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = domain.DefaultMaxTokens
	}

	chatReq := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
		},
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
		User:        c.user,
	}

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, chatReq)
	metrics.GenerationRequestDuration.WithLabelValues(c.model).Observe(time.Since(start).Seconds())

	if err != nil {
		parsed := parseCompletionError(err)
		metrics.GenerationRequestsTotal.WithLabelValues(c.model, "error").Inc()
		c.logger.Warn("Completion request failed", zap.String("model", c.model), zap.Error(parsed))
		return "", parsed
	}
	if len(resp.Choices) == 0 {
		metrics.GenerationRequestsTotal.WithLabelValues(c.model, "empty").Inc()
		return "", fmt.Errorf("completion returned no choices: %w", domain.ErrGeneration)
	}

	metrics.GenerationRequestsTotal.WithLabelValues(c.model, "success").Inc()
	c.logger.Debug("Completion request completed",
		zap.String("model", c.model),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		zap.String("finish_reason", string(resp.Choices[0].FinishReason)),
	)
	return resp.Choices[0].Message.Content, nil
}

// Model returns the configured chat model.
func (c *Completer) Model() string { return c.model }
