package vector

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"sync"
	"testing"

	"github.com/kailas-cloud/mailrag/internal/db/file"
	"github.com/kailas-cloud/mailrag/internal/db/memory"
	"github.com/kailas-cloud/mailrag/internal/domain"
)

func TestAppend_AssignsSequentialIDs(t *testing.T) {
	s := openTestStore(t, memory.NewBlob(), nil, Options{})

	for want := range 3 {
		got := mustAppend(t, s, fmt.Sprintf("text %d", want), []float32{1, float32(want)}, nil)
		if got != want {
			t.Fatalf("expected id %d, got %d", want, got)
		}
	}
	if s.Len() != 3 {
		t.Fatalf("expected 3 records, got %d", s.Len())
	}
	if s.Dimension() != 2 {
		t.Fatalf("expected dimension 2, got %d", s.Dimension())
	}
}

func TestAppend_PersistsBeforeReturning(t *testing.T) {
	blob := memory.NewBlob()
	s := openTestStore(t, blob, nil, Options{})

	mustAppend(t, s, "a", []float32{1, 0}, nil)
	mustAppend(t, s, "b", []float32{0, 1}, nil)

	if blob.Saves() != 2 {
		t.Fatalf("expected one save per insert, got %d", blob.Saves())
	}
}

func TestAppend_DimensionMismatch(t *testing.T) {
	s := openTestStore(t, memory.NewBlob(), nil, Options{})
	mustAppend(t, s, "a", []float32{1, 0, 0}, nil)

	_, err := s.Append(context.Background(), "b", []float32{1, 0}, nil)
	if !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
	if !errors.Is(err, domain.ErrStore) {
		t.Fatalf("expected dimension mismatch to wrap ErrStore, got %v", err)
	}
	var de *domain.DimensionError
	if !errors.As(err, &de) || de.Expected != 3 || de.Actual != 2 {
		t.Fatalf("expected DimensionError{3,2}, got %v", err)
	}
	if s.Len() != 1 {
		t.Fatalf("expected store unchanged, got %d records", s.Len())
	}
}

func TestAppend_ConfiguredDimension(t *testing.T) {
	s := openTestStore(t, memory.NewBlob(), nil, Options{Dimension: 4})

	_, err := s.Append(context.Background(), "a", []float32{1, 0}, nil)
	if !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch on first insert, got %v", err)
	}
	if s.Dimension() != 4 {
		t.Fatalf("expected configured dimension to stay 4, got %d", s.Dimension())
	}
}

func TestAppend_RollbackOnSaveFailure(t *testing.T) {
	blob := memory.NewBlob()
	s := openTestStore(t, blob, nil, Options{})
	mustAppend(t, s, "a", []float32{1, 0}, map[string]string{"email_id": "1"})

	blob.FailSave(errors.New("disk full"))
	_, err := s.Append(context.Background(), "b", []float32{0, 1}, map[string]string{"email_id": "2"})
	if !errors.Is(err, domain.ErrStore) {
		t.Fatalf("expected ErrStore, got %v", err)
	}
	if s.Len() != 1 {
		t.Fatalf("expected rollback to 1 record, got %d", s.Len())
	}
	if _, ok := s.MetadataValues("email_id")["2"]; ok {
		t.Fatal("rolled back record must not be visible")
	}

	blob.FailSave(nil)
	id := mustAppend(t, s, "c", []float32{0, 1}, nil)
	if id != 1 {
		t.Fatalf("expected id 1 to be reused after rollback, got %d", id)
	}
}

func TestAppend_RollbackRestoresUnsetDimension(t *testing.T) {
	blob := memory.NewBlob()
	s := openTestStore(t, blob, nil, Options{})

	blob.FailSave(errors.New("boom"))
	if _, err := s.Append(context.Background(), "a", []float32{1, 0, 0}, nil); err == nil {
		t.Fatal("expected error")
	}
	if s.Dimension() != 0 {
		t.Fatalf("expected dimension reset to 0, got %d", s.Dimension())
	}

	blob.FailSave(nil)
	mustAppend(t, s, "b", []float32{1, 0}, nil)
	if s.Dimension() != 2 {
		t.Fatalf("expected dimension 2, got %d", s.Dimension())
	}
}

func TestAppend_RejectsInvalidRecord(t *testing.T) {
	s := openTestStore(t, memory.NewBlob(), nil, Options{})

	if _, err := s.Append(context.Background(), "", []float32{1}, nil); !errors.Is(err, domain.ErrStore) {
		t.Fatalf("expected ErrStore for empty text, got %v", err)
	}
	if _, err := s.Append(context.Background(), "a", nil, nil); !errors.Is(err, domain.ErrStore) {
		t.Fatalf("expected ErrStore for empty embedding, got %v", err)
	}
	if s.Len() != 0 {
		t.Fatalf("expected empty store, got %d", s.Len())
	}
}

func TestAppend_CancelledContext(t *testing.T) {
	s := openTestStore(t, memory.NewBlob(), nil, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.Append(ctx, "a", []float32{1}, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestInsert_EmbedsThroughProvider(t *testing.T) {
	emb := &mockEmbedder{vectors: map[string][]float32{"hello": {0.6, 0.8}}}
	s := openTestStore(t, memory.NewBlob(), emb, Options{})

	id, err := s.Insert(context.Background(), "hello", map[string]string{"k": "v"})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if id != 0 {
		t.Fatalf("expected id 0, got %d", id)
	}
	recs := s.Records()
	if recs[0].Text() != "hello" || recs[0].Embedding()[1] != 0.8 {
		t.Fatalf("unexpected record: %q %v", recs[0].Text(), recs[0].Embedding())
	}
}

func TestInsert_EmbeddingFailure(t *testing.T) {
	emb := &mockEmbedder{err: errors.New("model unavailable")}
	blob := memory.NewBlob()
	s := openTestStore(t, blob, emb, Options{})

	_, err := s.Insert(context.Background(), "hello", nil)
	if !errors.Is(err, domain.ErrEmbedding) {
		t.Fatalf("expected ErrEmbedding, got %v", err)
	}
	if s.Len() != 0 || blob.Saves() != 0 {
		t.Fatalf("expected no write, got len=%d saves=%d", s.Len(), blob.Saves())
	}
}

func TestInsert_NoProvider(t *testing.T) {
	s := openTestStore(t, memory.NewBlob(), nil, Options{})
	if _, err := s.Insert(context.Background(), "hello", nil); !errors.Is(err, domain.ErrEmbedding) {
		t.Fatalf("expected ErrEmbedding, got %v", err)
	}
}

func TestInsert_ConcurrentIDsAreContiguous(t *testing.T) {
	const n = 64
	emb := &mockEmbedder{def: []float32{1, 2, 3}}
	blob := memory.NewBlob()
	s := openTestStore(t, blob, emb, Options{})

	ids := make([]int, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids[i], errs[i] = s.Insert(context.Background(), fmt.Sprintf("email %d", i), nil)
		}()
	}
	wg.Wait()

	seen := make(map[int]bool, n)
	for i := range n {
		if errs[i] != nil {
			t.Fatalf("insert %d: %v", i, errs[i])
		}
		if ids[i] < 0 || ids[i] >= n || seen[ids[i]] {
			t.Fatalf("id %d out of range or duplicated", ids[i])
		}
		seen[ids[i]] = true
	}

	reopened := openTestStore(t, blob, nil, Options{})
	if reopened.Len() != n {
		t.Fatalf("expected %d persisted records, got %d", n, reopened.Len())
	}
	for i, r := range reopened.Records() {
		if r.ID() != i {
			t.Fatalf("persisted record %d has id %d", i, r.ID())
		}
	}
}

func TestSearch_OrderingAndTieBreak(t *testing.T) {
	s := openTestStore(t, memory.NewBlob(), nil, Options{})
	mustAppend(t, s, "east", []float32{1, 0}, nil)
	mustAppend(t, s, "north", []float32{0, 1}, nil)
	mustAppend(t, s, "east again", []float32{2, 0}, nil)
	mustAppend(t, s, "north-east", []float32{1, 1}, nil)

	got, err := s.Search(context.Background(), []float32{1, 0}, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	wantIDs := []int{0, 2, 3, 1}
	if len(got) != len(wantIDs) {
		t.Fatalf("expected %d results, got %d", len(wantIDs), len(got))
	}
	for i, want := range wantIDs {
		if got[i].RecordID() != want {
			t.Fatalf("position %d: expected id %d, got %d", i, want, got[i].RecordID())
		}
	}
	for i := 1; i < len(got); i++ {
		if got[i].Score() > got[i-1].Score() {
			t.Fatalf("scores not descending at %d: %f > %f", i, got[i].Score(), got[i-1].Score())
		}
	}
	if math.Abs(got[2].Score()-1/math.Sqrt2) > 1e-9 {
		t.Fatalf("expected score 1/sqrt(2), got %f", got[2].Score())
	}
	if got[3].Score() != 0 {
		t.Fatalf("expected orthogonal score 0, got %f", got[3].Score())
	}
}

func TestSearch_TopKEdgeCases(t *testing.T) {
	s := openTestStore(t, memory.NewBlob(), nil, Options{})
	mustAppend(t, s, "a", []float32{1, 0}, nil)
	mustAppend(t, s, "b", []float32{0, 1}, nil)

	tests := []struct {
		name  string
		query []float32
		topK  int
		want  int
	}{
		{"zero", []float32{1, 0}, 0, 0},
		{"negative", []float32{1, 0}, -3, 0},
		{"one", []float32{1, 0}, 1, 1},
		{"more than stored", []float32{1, 0}, 5, 2},
		{"wrong dimension", []float32{1, 0, 0}, 2, 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := s.Search(context.Background(), tc.query, tc.topK)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got == nil {
				t.Fatal("expected non-nil slice")
			}
			if len(got) != tc.want {
				t.Fatalf("expected %d results, got %d", tc.want, len(got))
			}
		})
	}
}

func TestSearch_EmptyStore(t *testing.T) {
	s := openTestStore(t, memory.NewBlob(), nil, Options{})

	got, err := s.Search(context.Background(), []float32{1, 2, 3}, 3)
	if err != nil {
		t.Fatalf("expected no error on empty store, got %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty result, got %d", len(got))
	}
}

func TestSearch_SelfSimilarityIsMaximal(t *testing.T) {
	s := openTestStore(t, memory.NewBlob(), nil, Options{})
	vecs := [][]float32{
		{0.3, -0.2, 0.9},
		{0.31, -0.19, 0.88},
		{-0.5, 0.5, 0.1},
		{0.0, 0.1, 0.0},
	}
	for i, v := range vecs {
		mustAppend(t, s, fmt.Sprintf("r%d", i), v, nil)
	}

	for i, v := range vecs {
		got, err := s.Search(context.Background(), v, 1)
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if got[0].RecordID() != i {
			t.Fatalf("query %d: expected self as top hit, got %d", i, got[0].RecordID())
		}
		if math.Abs(got[0].Score()-1) > 1e-6 {
			t.Fatalf("query %d: expected self score ~1, got %f", i, got[0].Score())
		}
	}
}

func TestSearch_ZeroMagnitudeScoresZero(t *testing.T) {
	s := openTestStore(t, memory.NewBlob(), nil, Options{})
	mustAppend(t, s, "zero", []float32{0, 0}, nil)
	mustAppend(t, s, "unit", []float32{1, 0}, nil)

	got, err := s.Search(context.Background(), []float32{0, 0}, 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for _, r := range got {
		if r.Score() != 0 {
			t.Fatalf("expected zero score for zero query, got %f", r.Score())
		}
	}
	// Equal scores fall back to id order.
	if got[0].RecordID() != 0 || got[1].RecordID() != 1 {
		t.Fatalf("expected id order on ties, got %d,%d", got[0].RecordID(), got[1].RecordID())
	}
}

func TestSearch_CancelledContext(t *testing.T) {
	s := openTestStore(t, memory.NewBlob(), nil, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.Search(ctx, []float32{1}, 1); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestSearch_ReturnsMetadataAndText(t *testing.T) {
	s := openTestStore(t, memory.NewBlob(), nil, Options{})
	mustAppend(t, s, "Subject: hi\n\nBody: there", []float32{1, 0}, map[string]string{"subject": "hi"})

	got, err := s.Search(context.Background(), []float32{1, 0}, 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if got[0].Text() != "Subject: hi\n\nBody: there" {
		t.Fatalf("unexpected text %q", got[0].Text())
	}
	if got[0].Metadata()["subject"] != "hi" {
		t.Fatalf("unexpected metadata %v", got[0].Metadata())
	}
}

func TestMetadataLookups(t *testing.T) {
	s := openTestStore(t, memory.NewBlob(), nil, Options{})
	mustAppend(t, s, "a", []float32{1}, map[string]string{"email_id": "7"})
	mustAppend(t, s, "b", []float32{1}, map[string]string{"email_id": "9"})
	mustAppend(t, s, "c", []float32{1}, nil)

	vals := s.MetadataValues("email_id")
	if _, ok := vals["9"]; !ok {
		t.Fatal("expected email_id 9 to be found")
	}
	if _, ok := vals["8"]; ok {
		t.Fatal("did not expect email_id 8")
	}
	if len(vals) != 2 {
		t.Fatalf("expected 2 values, got %v", vals)
	}
}

func TestPersistence_RoundTrip(t *testing.T) {
	for _, c := range []Compression{CompressionNone, CompressionZstd} {
		t.Run(string(c), func(t *testing.T) {
			blob := memory.NewBlob()
			s := openTestStore(t, blob, nil, Options{Compression: c})

			want := [][]float32{
				{0.123456789, -1.5e-7, 42.0001},
				{float32(math.Pi), float32(math.E), -0.333333},
			}
			meta := map[string]string{"email_id": "12", "subject": "Pricing", "received_date": ""}
			for i, v := range want {
				mustAppend(t, s, fmt.Sprintf("text %d", i), v, meta)
			}

			raw, _ := blob.Load(context.Background())
			if c == CompressionZstd && !bytes.HasPrefix(raw, zstdMagic) {
				t.Fatal("expected zstd envelope")
			}
			if c == CompressionNone && !bytes.HasPrefix(raw, []byte(`{"version":1`)) {
				t.Fatalf("expected plain JSON snapshot, got %q", raw[:min(20, len(raw))])
			}

			reopened := openTestStore(t, blob, nil, Options{})
			recs := reopened.Records()
			if len(recs) != len(want) {
				t.Fatalf("expected %d records, got %d", len(want), len(recs))
			}
			for i := range recs {
				if recs[i].ID() != i || recs[i].Text() != fmt.Sprintf("text %d", i) {
					t.Fatalf("record %d mismatch: id=%d text=%q", i, recs[i].ID(), recs[i].Text())
				}
				for j, f := range recs[i].Embedding() {
					if math.Abs(float64(f-want[i][j])) > 1e-6 {
						t.Fatalf("record %d component %d: got %v want %v", i, j, f, want[i][j])
					}
				}
				got := recs[i].Metadata()
				for k, v := range meta {
					if got[k] != v {
						t.Fatalf("metadata %q: got %q want %q", k, got[k], v)
					}
				}
			}
			if reopened.Dimension() != 3 {
				t.Fatalf("expected dimension 3, got %d", reopened.Dimension())
			}
		})
	}
}

func TestPersistence_FileBlob(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors", "store.json")

	s, err := Open(context.Background(), file.NewBlob(path), nil, Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := s.Append(context.Background(), "a", []float32{1, 2}, map[string]string{"x": "y"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	s.Close()

	reopened, err := Open(context.Background(), file.NewBlob(path), nil, Options{})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	if _, ok := reopened.MetadataValues("x")["y"]; reopened.Len() != 1 || !ok {
		t.Fatalf("expected persisted record, got len=%d", reopened.Len())
	}
}

func TestOpen_LegacyArray(t *testing.T) {
	blob := memory.NewBlob()
	legacy := `[
		{"id": 0, "text": "Subject: a\n\nBody: b", "embedding": [0.5, 0.5],
		 "metadata": {"email_id": 3, "sender": "x@y.z", "category": null, "flag": true}},
		{"id": 1, "text": "Subject: c\n\nBody: d", "embedding": [1, 0], "metadata": {}}
	]`
	if err := blob.Save(context.Background(), []byte(legacy)); err != nil {
		t.Fatal(err)
	}

	s := openTestStore(t, blob, nil, Options{})
	if s.Len() != 2 || s.Dimension() != 2 {
		t.Fatalf("unexpected store shape: len=%d dim=%d", s.Len(), s.Dimension())
	}
	rec := s.Records()[0]
	meta := rec.Metadata()
	if meta["email_id"] != "3" || meta["category"] != "" || meta["flag"] != "true" {
		t.Fatalf("unexpected stringified metadata: %v", meta)
	}

	// Next insert rewrites in the versioned layout.
	mustAppend(t, s, "new", []float32{0, 1}, nil)
	raw, _ := blob.Load(context.Background())
	if !bytes.HasPrefix(raw, []byte(`{"version":1`)) {
		t.Fatalf("expected versioned snapshot after rewrite, got %q", raw[:20])
	}
}

func TestOpen_Errors(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		opts    Options
		wantErr error
	}{
		{"corrupt json", `{"version":1,"records":[`, Options{}, domain.ErrStore},
		{"unknown version", `{"version":2,"dimension":1,"records":[]}`, Options{}, domain.ErrStore},
		{"garbage", `hello`, Options{}, domain.ErrStore},
		{
			"non contiguous ids",
			`{"version":1,"dimension":1,"records":[{"id":0,"text":"a","embedding":[1]},{"id":5,"text":"b","embedding":[1]}]}`,
			Options{}, domain.ErrStore,
		},
		{
			"mixed dimensions",
			`{"version":1,"dimension":2,"records":[{"id":0,"text":"a","embedding":[1,0]},{"id":1,"text":"b","embedding":[1]}]}`,
			Options{}, domain.ErrDimensionMismatch,
		},
		{
			"provider dimension differs",
			`{"version":1,"dimension":2,"records":[{"id":0,"text":"a","embedding":[1,0]}]}`,
			Options{Dimension: 3}, domain.ErrDimensionMismatch,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			blob := memory.NewBlob()
			_ = blob.Save(context.Background(), []byte(tc.data))

			_, err := Open(context.Background(), blob, nil, tc.opts)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestOpen_InvalidOptions(t *testing.T) {
	if _, err := Open(context.Background(), nil, nil, Options{}); err == nil {
		t.Fatal("expected error for nil blob")
	}
	if _, err := Open(context.Background(), memory.NewBlob(), nil, Options{Compression: "lz4"}); err == nil {
		t.Fatal("expected error for unknown compression")
	}
}

func TestOpen_CompressedSnapshotReadableWithoutCompression(t *testing.T) {
	blob := memory.NewBlob()
	s := openTestStore(t, blob, nil, Options{Compression: CompressionZstd})
	mustAppend(t, s, "a", []float32{1, 2, 3}, nil)

	plain := openTestStore(t, blob, nil, Options{Compression: CompressionNone})
	if plain.Len() != 1 {
		t.Fatalf("expected 1 record, got %d", plain.Len())
	}
}

func TestSearch_ConcurrentWithInserts(t *testing.T) {
	emb := &mockEmbedder{def: []float32{1, 1}}
	s := openTestStore(t, memory.NewBlob(), emb, Options{})
	mustAppend(t, s, "seed", []float32{1, 0}, nil)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = s.Insert(context.Background(), fmt.Sprintf("t%d", i), nil)
		}()
		go func() {
			defer wg.Done()
			res, err := s.Search(context.Background(), []float32{1, 0}, 100)
			if err != nil {
				t.Errorf("Search: %v", err)
				return
			}
			for j := 1; j < len(res); j++ {
				if res[j].Score() > res[j-1].Score() {
					t.Errorf("unsorted result")
				}
			}
		}()
	}
	wg.Wait()

	if s.Len() != 21 {
		t.Fatalf("expected 21 records, got %d", s.Len())
	}
}
