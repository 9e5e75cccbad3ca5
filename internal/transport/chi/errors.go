package chi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kailas-cloud/mailrag/internal/domain"
)

// Error codes returned in error bodies.
const (
	codeBadRequest     = "bad_request"
	codeUnauthorized   = "unauthorized"
	codeNotFound       = "not_found"
	codeRateLimited    = "rate_limited"
	codeQuotaExceeded  = "quota_exceeded"
	codeNoSuggestion   = "no_suggestion"
	codeProviderError  = "provider_error"
	codeStorageError   = "storage_error"
	codeInternalError  = "internal_error"
	codeDimensionError = "dimension_mismatch"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// sentinelStatus maps domain errors to HTTP responses, most specific first.
var sentinelStatus = []struct {
	err    error
	status int
	code   string
}{
	{domain.ErrNotFound, http.StatusNotFound, codeNotFound},
	{domain.ErrRateLimited, http.StatusTooManyRequests, codeRateLimited},
	{domain.ErrEmbeddingQuotaExceeded, http.StatusPaymentRequired, codeQuotaExceeded},
	{domain.ErrGenerationQuota, http.StatusPaymentRequired, codeQuotaExceeded},
	{domain.ErrNoSuggestion, http.StatusBadGateway, codeNoSuggestion},
	{domain.ErrDimensionMismatch, http.StatusConflict, codeDimensionError},
	{domain.ErrStore, http.StatusInternalServerError, codeStorageError},
	{domain.ErrEmbedding, http.StatusBadGateway, codeProviderError},
	{domain.ErrGeneration, http.StatusBadGateway, codeProviderError},
}

// writeDomainError writes the response for err. Messages are the sentinel
// text only so provider details never reach the client.
func writeDomainError(w http.ResponseWriter, err error) {
	for _, s := range sentinelStatus {
		if errors.Is(err, s.err) {
			writeError(w, s.status, s.code, s.err.Error())
			return
		}
	}
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}
