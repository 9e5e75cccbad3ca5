package openai

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/kailas-cloud/mailrag/internal/domain"
)

// apiFailure is the readable part of an OpenAI-compatible API error.
type apiFailure struct {
	status int
	detail string
	quota  bool
}

// describeAPIError extracts the status, message and quota classification.
// ok is false for transport-level failures (DNS, timeouts, cancelled contexts).
func describeAPIError(err error) (apiFailure, bool) {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		code, _ := apiErr.Code.(string)
		f := apiFailure{status: apiErr.HTTPStatusCode, detail: apiErr.Message}
		f.quota = isQuota(f.status, apiErr.Type, code, apiErr.Message)
		return f, true
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		detail := extractDetail(reqErr.Body)
		if detail == "" {
			detail = string(reqErr.Body)
		}
		f := apiFailure{status: reqErr.HTTPStatusCode, detail: detail}
		f.quota = isQuota(f.status, "", "", detail)
		return f, true
	}

	return apiFailure{}, false
}

// isQuota reports an exhausted account or rejected credentials. Plain 429
// rate limiting is not a quota failure and may be retried.
func isQuota(status int, typ, code, message string) bool {
	if status == http.StatusUnauthorized {
		return true
	}
	if typ == "insufficient_quota" || code == "insufficient_quota" {
		return true
	}
	msg := strings.ToLower(message)
	return strings.Contains(msg, "exceeded your current quota") ||
		strings.Contains(msg, "insufficient_quota")
}

// parseEmbeddingError maps an API error onto the embedding sentinels.
func parseEmbeddingError(err error) error {
	f, ok := describeAPIError(err)
	if !ok {
		return fmt.Errorf("embedding request failed: %w: %w", domain.ErrEmbedding, err)
	}
	switch {
	case f.quota:
		return fmt.Errorf("embedding API error %d: %s: %w: %w",
			f.status, f.detail, domain.ErrEmbedding, domain.ErrEmbeddingQuotaExceeded)
	case f.status == http.StatusTooManyRequests:
		return fmt.Errorf("embedding API error %d: %s: %w: %w",
			f.status, f.detail, domain.ErrEmbedding, domain.ErrRateLimited)
	default:
		return fmt.Errorf("embedding API error %d: %s: %w", f.status, f.detail, domain.ErrEmbedding)
	}
}

// parseCompletionError maps an API error onto the generation sentinels.
func parseCompletionError(err error) error {
	f, ok := describeAPIError(err)
	if !ok {
		return fmt.Errorf("completion request failed: %w: %w", domain.ErrGeneration, err)
	}
	switch {
	case f.quota:
		return fmt.Errorf("completion API error %d: %s: %w", f.status, f.detail, domain.ErrGenerationQuota)
	case f.status == http.StatusTooManyRequests:
		return fmt.Errorf("completion API error %d: %s: %w: %w",
			f.status, f.detail, domain.ErrGeneration, domain.ErrRateLimited)
	default:
		return fmt.Errorf("completion API error %d: %s: %w", f.status, f.detail, domain.ErrGeneration)
	}
}

// extractDetail extracts the "detail" field from a JSON error body (Nebius error format).
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}
