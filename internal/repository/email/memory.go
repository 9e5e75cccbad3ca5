package email

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/kailas-cloud/mailrag/internal/domain"
	domemail "github.com/kailas-cloud/mailrag/internal/domain/email"
)

// MemorySource holds emails in memory. List returns them ordered by id.
type MemorySource struct {
	mu     sync.RWMutex
	emails map[int64]domemail.Email
}

// NewMemorySource creates a source seeded with emails. Later duplicates replace earlier ones.
func NewMemorySource(emails ...domemail.Email) *MemorySource {
	s := &MemorySource{emails: make(map[int64]domemail.Email, len(emails))}
	_ = s.Append(context.Background(), emails...)
	return s
}

// Append adds or replaces emails.
func (s *MemorySource) Append(_ context.Context, emails ...domemail.Email) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range emails {
		s.emails[e.ID()] = e
	}
	return nil
}

// Get returns the email with the given id or ErrNotFound.
func (s *MemorySource) Get(_ context.Context, id int64) (domemail.Email, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.emails[id]
	if !ok {
		return domemail.Email{}, fmt.Errorf("email %d: %w", id, domain.ErrNotFound)
	}
	return e, nil
}

// List returns all emails ordered by id.
func (s *MemorySource) List(_ context.Context) ([]domemail.Email, error) {
	s.mu.RLock()
	out := make([]domemail.Email, 0, len(s.emails))
	for _, e := range s.emails {
		out = append(out, e)
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b domemail.Email) int {
		return cmp.Compare(a.ID(), b.ID())
	})
	return out, nil
}
