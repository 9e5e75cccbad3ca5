package record

import (
	"fmt"
	"maps"
	"slices"
)

// Record is one indexed text with its embedding (immutable value object).
// IDs are assigned by the store as the record's position at write time.
type Record struct {
	id        int
	text      string
	embedding []float32
	metadata  map[string]string
}

// New validates and creates a Record. The embedding and metadata are copied.
func New(id int, text string, embedding []float32, metadata map[string]string) (Record, error) {
	if id < 0 {
		return Record{}, fmt.Errorf("record id must be non-negative, got %d", id)
	}
	if text == "" {
		return Record{}, fmt.Errorf("record text is required")
	}
	if len(embedding) == 0 {
		return Record{}, fmt.Errorf("record embedding is required")
	}
	return Record{
		id:        id,
		text:      text,
		embedding: slices.Clone(embedding),
		metadata:  cloneMetadata(metadata),
	}, nil
}

// Reconstruct creates a Record without validation (storage hydration).
func Reconstruct(id int, text string, embedding []float32, metadata map[string]string) Record {
	return Record{id: id, text: text, embedding: embedding, metadata: metadata}
}

// ID returns the record identifier.
func (r *Record) ID() int { return r.id }

// Text returns the exact string that was embedded.
func (r *Record) Text() string { return r.text }

// Embedding returns the stored vector. Callers must not modify it.
func (r *Record) Embedding() []float32 { return r.embedding }

// Dimension returns the embedding length.
func (r *Record) Dimension() int { return len(r.embedding) }

// Metadata returns a copy of the metadata map.
func (r *Record) Metadata() map[string]string { return cloneMetadata(r.metadata) }

// MetadataValue returns a single metadata value.
func (r *Record) MetadataValue(key string) (string, bool) {
	v, ok := r.metadata[key]
	return v, ok
}

func cloneMetadata(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return maps.Clone(m)
}
