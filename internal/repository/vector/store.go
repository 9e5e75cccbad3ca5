// Package vector implements the durable, append-only vector store.
//
// The whole collection lives in memory and is rewritten to the blob store on
// every insert, so inserts cost O(n) and searches are an O(n·D) linear scan.
// That ceiling is acceptable for a single mailbox; a different backend can be
// plugged in behind retrieval.Searcher.
package vector

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/mailrag/internal/db"
	"github.com/kailas-cloud/mailrag/internal/domain"
	"github.com/kailas-cloud/mailrag/internal/domain/record"
	"github.com/kailas-cloud/mailrag/internal/metrics"
)

// Options configure a Store.
type Options struct {
	// Dimension fixes D up front. Zero lets the first stored record fix it.
	Dimension   int
	Compression Compression
	Logger      *zap.Logger
}

// Store is an insert-only collection of records with cosine similarity search.
// Inserts are serialized by the write lock; searches share the read lock and
// never observe a half-applied insert.
type Store struct {
	mu       sync.RWMutex
	records  []record.Record
	norms    []float64
	dim      int
	blob     db.BlobStore
	embedder domain.Embedder
	codec    *codec
	logger   *zap.Logger
}

// Open loads the persisted collection from blob. embedder may be nil for a
// read-only store; Insert then fails with ErrEmbedding.
func Open(ctx context.Context, blob db.BlobStore, embedder domain.Embedder, opts Options) (*Store, error) {
	if blob == nil {
		return nil, fmt.Errorf("open vector store: blob store is required")
	}
	if !opts.Compression.IsValid() {
		return nil, fmt.Errorf("open vector store: unknown compression %q", opts.Compression)
	}
	if opts.Dimension < 0 {
		return nil, fmt.Errorf("open vector store: negative dimension %d", opts.Dimension)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	cd, err := newCodec(opts.Compression)
	if err != nil {
		return nil, fmt.Errorf("open vector store: %w", err)
	}

	s := &Store{
		blob:     blob,
		embedder: embedder,
		codec:    cd,
		dim:      opts.Dimension,
		logger:   logger,
	}
	if err := s.load(ctx, opts.Dimension); err != nil {
		cd.close()
		return nil, err
	}

	metrics.StoreRecords.Set(float64(len(s.records)))
	logger.Info("Vector store opened",
		zap.Int("records", len(s.records)),
		zap.Int("dimension", s.dim),
		zap.String("compression", string(opts.Compression)),
	)
	return s, nil
}

func (s *Store) load(ctx context.Context, configuredDim int) error {
	data, err := s.blob.Load(ctx)
	if err != nil {
		return fmt.Errorf("load vector snapshot: %w: %w", domain.ErrStore, err)
	}
	if len(data) == 0 {
		return nil
	}

	records, dim, err := s.codec.decode(data)
	if err != nil {
		return fmt.Errorf("decode vector snapshot: %w: %w", domain.ErrStore, err)
	}
	if len(records) == 0 {
		return nil
	}
	if err := validate(records, dim); err != nil {
		return fmt.Errorf("validate vector snapshot: %w: %w", domain.ErrStore, err)
	}
	if configuredDim > 0 && configuredDim != dim {
		return fmt.Errorf("stored collection vs embedding provider: %w",
			domain.NewDimensionError(configuredDim, dim))
	}

	s.records = records
	s.norms = make([]float64, len(records))
	for i := range records {
		s.norms[i] = magnitude(records[i].Embedding())
	}
	s.dim = dim
	return nil
}

// Insert embeds text through the provider and appends the result.
// Embedding failures wrap ErrEmbedding; persistence failures wrap ErrStore.
func (s *Store) Insert(ctx context.Context, text string, metadata map[string]string) (int, error) {
	if s.embedder == nil {
		return -1, fmt.Errorf("insert: no embedding provider: %w", domain.ErrEmbedding)
	}
	res, err := s.embedder.Embed(ctx, text)
	if err != nil {
		if errors.Is(err, domain.ErrEmbedding) {
			return -1, fmt.Errorf("insert: %w", err)
		}
		return -1, fmt.Errorf("insert: %w: %w", domain.ErrEmbedding, err)
	}
	return s.Append(ctx, text, res.Embedding, metadata)
}

// Append stores a precomputed embedding and durably saves the collection
// before returning its id. A failed save leaves the store unchanged.
func (s *Store) Append(ctx context.Context, text string, embedding []float32, metadata map[string]string) (int, error) {
	if err := ctx.Err(); err != nil {
		return -1, fmt.Errorf("append: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dim != 0 && len(embedding) != s.dim {
		metrics.StoreInsertsTotal.WithLabelValues("dimension_mismatch").Inc()
		return -1, fmt.Errorf("append: %w", domain.NewDimensionError(s.dim, len(embedding)))
	}

	id := len(s.records)
	rec, err := record.New(id, text, embedding, metadata)
	if err != nil {
		metrics.StoreInsertsTotal.WithLabelValues("invalid").Inc()
		return -1, fmt.Errorf("append: %w: %w", domain.ErrStore, err)
	}

	prevDim := s.dim
	s.records = append(s.records, rec)
	s.norms = append(s.norms, magnitude(rec.Embedding()))
	if s.dim == 0 {
		s.dim = rec.Dimension()
	}

	if err := s.persistLocked(ctx); err != nil {
		s.records[id] = record.Record{}
		s.records = s.records[:id]
		s.norms = s.norms[:id]
		s.dim = prevDim
		s.logger.Error("Vector store persist failed, insert rolled back",
			zap.Int("id", id), zap.Error(err))
		return -1, fmt.Errorf("persist record %d: %w: %w", id, domain.ErrStore, err)
	}

	metrics.StoreInsertsTotal.WithLabelValues("ok").Inc()
	metrics.StoreRecords.Set(float64(len(s.records)))
	return id, nil
}

func (s *Store) persistLocked(ctx context.Context) error {
	start := time.Now()
	data, err := s.codec.encode(s.records, s.dim)
	if err != nil {
		metrics.StoreInsertsTotal.WithLabelValues("encode_error").Inc()
		return err
	}
	if err := s.blob.Save(ctx, data); err != nil {
		metrics.StoreInsertsTotal.WithLabelValues("persist_error").Inc()
		return fmt.Errorf("save snapshot: %w", err)
	}
	metrics.StorePersistDuration.Observe(time.Since(start).Seconds())
	metrics.StoreSnapshotBytes.Set(float64(len(data)))
	return nil
}

type scored struct {
	idx   int
	score float64
}

// Search returns up to topK records ordered by descending cosine similarity,
// ties broken by lower id. topK <= 0, an empty store or a query whose length
// differs from the store dimension all yield an empty, non-nil slice.
// The only error is a done context.
func (s *Store) Search(ctx context.Context, query []float32, topK int) ([]record.Similarity, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	if topK <= 0 {
		return []record.Similarity{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.records) == 0 {
		return []record.Similarity{}, nil
	}
	if len(query) != s.dim {
		s.logger.Warn("Search query dimension mismatch",
			zap.Int("expected", s.dim), zap.Int("actual", len(query)))
		return []record.Similarity{}, nil
	}

	qMag := magnitude(query)
	hits := make([]scored, len(s.records))
	for i := range s.records {
		hits[i] = scored{idx: i, score: cosine(query, s.records[i].Embedding(), qMag, s.norms[i])}
	}
	slices.SortFunc(hits, func(a, b scored) int {
		if c := cmp.Compare(b.score, a.score); c != 0 {
			return c
		}
		return cmp.Compare(a.idx, b.idx)
	})

	n := min(topK, len(hits))
	out := make([]record.Similarity, n)
	for i := range n {
		out[i] = record.NewSimilarity(&s.records[hits[i].idx], hits[i].score)
	}
	return out, nil
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Dimension returns D, or 0 while the store is empty and unconfigured.
func (s *Store) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dim
}

// MetadataValues returns the set of values stored under key.
func (s *Store) MetadataValues(key string) map[string]struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]struct{})
	for i := range s.records {
		if v, ok := s.records[i].MetadataValue(key); ok {
			out[v] = struct{}{}
		}
	}
	return out
}

// Records returns a snapshot of all records in id order.
func (s *Store) Records() []record.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.records)
}

// Ping checks the durable storage when it supports it.
func (s *Store) Ping(ctx context.Context) error {
	if p, ok := s.blob.(db.Pinger); ok {
		return p.Ping(ctx) //nolint:wrapcheck // db.Error already carries the op
	}
	return nil
}

// Close releases codec resources. The store must not be used afterwards.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codec.close()
}
