package vector

import (
	"context"
	"sync"
	"testing"

	"github.com/kailas-cloud/mailrag/internal/db/memory"
	"github.com/kailas-cloud/mailrag/internal/domain"
)

// mockEmbedder returns a fixed vector per text, or err.
type mockEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float32
	def     []float32
	err     error
	calls   int
}

func (m *mockEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	if v, ok := m.vectors[text]; ok {
		return domain.EmbeddingResult{Embedding: v, TotalTokens: 1}, nil
	}
	return domain.EmbeddingResult{Embedding: m.def, TotalTokens: 1}, nil
}

func openTestStore(t *testing.T, blob *memory.Blob, emb domain.Embedder, opts Options) *Store {
	t.Helper()
	s, err := Open(context.Background(), blob, emb, opts)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func mustAppend(t *testing.T, s *Store, text string, emb []float32, meta map[string]string) int {
	t.Helper()
	id, err := s.Append(context.Background(), text, emb, meta)
	if err != nil {
		t.Fatalf("Append(%q): %v", text, err)
	}
	return id
}
