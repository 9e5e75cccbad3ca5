package record

// Similarity is a single search hit: a stored record scored against a query.
// Scores are cosine similarity in [-1, 1] and are never cached.
type Similarity struct {
	recordID int
	text     string
	metadata map[string]string
	score    float64
}

// NewSimilarity creates a search hit from a record and its score.
func NewSimilarity(r *Record, score float64) Similarity {
	return Similarity{
		recordID: r.id,
		text:     r.text,
		metadata: r.Metadata(),
		score:    score,
	}
}

// RecordID returns the id of the matched record.
func (s *Similarity) RecordID() int { return s.recordID }

// Text returns the matched record text.
func (s *Similarity) Text() string { return s.text }

// Metadata returns the matched record metadata.
func (s *Similarity) Metadata() map[string]string { return s.metadata }

// Score returns the cosine similarity.
func (s *Similarity) Score() float64 { return s.score }
