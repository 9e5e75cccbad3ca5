package reply

import (
	"context"

	"github.com/kailas-cloud/mailrag/internal/domain/email"
	"github.com/kailas-cloud/mailrag/internal/domain/record"
)

// Retriever finds stored emails similar to a query text.
type Retriever interface {
	Retrieve(ctx context.Context, queryText string, topK int) ([]record.Similarity, error)
}

// EmailSource resolves emails by id.
type EmailSource interface {
	Get(ctx context.Context, id int64) (email.Email, error)
}
