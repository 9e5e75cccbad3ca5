package reply

import "github.com/kailas-cloud/mailrag/internal/domain/record"

// Path identifies which composition path produced a suggestion.
type Path string

// Composition paths.
const (
	PathGrounded Path = "grounded"
	PathFallback Path = "fallback"
)

// Suggestion is a generated reply draft.
type Suggestion struct {
	text    string
	path    Path
	sources []record.Similarity
}

// NewSuggestion creates a suggestion. sources is empty on the fallback path.
func NewSuggestion(text string, path Path, sources []record.Similarity) Suggestion {
	return Suggestion{text: text, path: path, sources: sources}
}

// Text returns the generated reply verbatim.
func (s *Suggestion) Text() string { return s.text }

// Path returns the composition path used.
func (s *Suggestion) Path() Path { return s.path }

// Grounded reports whether retrieved emails were used.
func (s *Suggestion) Grounded() bool { return s.path == PathGrounded }

// Sources returns the retrieved emails the reply was grounded on.
func (s *Suggestion) Sources() []record.Similarity { return s.sources }
