// Package email provides email sources for indexing and reply lookup.
package email

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/mailrag/internal/domain"
	domemail "github.com/kailas-cloud/mailrag/internal/domain/email"
	"github.com/kailas-cloud/mailrag/internal/metrics"
)

const maxLineBytes = 4 << 20

// FileSource reads emails from a JSON-lines file, one email object per line.
// The file is re-read on every call so appended emails are picked up by catch-up runs.
// Lines that do not decode into a valid email are logged and skipped.
type FileSource struct {
	path   string
	logger *zap.Logger
}

// NewFileSource creates a source over path. The file need not exist yet.
func NewFileSource(path string, logger *zap.Logger) *FileSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileSource{path: path, logger: logger}
}

// List returns every email in file order. A missing file is an empty mailbox.
func (s *FileSource) List(ctx context.Context) ([]domemail.Email, error) {
	var out []domemail.Email
	err := s.scan(ctx, func(e domemail.Email) bool {
		out = append(out, e)
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Get returns the email with the given id or ErrNotFound.
func (s *FileSource) Get(ctx context.Context, id int64) (domemail.Email, error) {
	var (
		found domemail.Email
		ok    bool
	)
	err := s.scan(ctx, func(e domemail.Email) bool {
		if e.ID() == id {
			found, ok = e, true
			return false
		}
		return true
	})
	if err != nil {
		return domemail.Email{}, err
	}
	if !ok {
		return domemail.Email{}, fmt.Errorf("email %d: %w", id, domain.ErrNotFound)
	}
	return found, nil
}

func (s *FileSource) scan(ctx context.Context, fn func(domemail.Email) bool) error {
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("open email file: %w", err)
	}
	defer func() { _ = f.Close() }()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)
	line := 0
	for sc.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return err
		}
		raw := strings.TrimSpace(sc.Text())
		if raw == "" {
			continue
		}

		e, err := decodeLine(raw)
		if err != nil {
			metrics.EmailSourceBadLinesTotal.Inc()
			s.logger.Warn("Skipping unreadable email line",
				zap.String("path", s.path),
				zap.Int("line", line),
				zap.Error(err),
			)
			continue
		}
		if !fn(e) {
			return nil
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read email file: %w", err)
	}
	return nil
}

func decodeLine(raw string) (domemail.Email, error) {
	var dto emailDTO
	if err := json.Unmarshal([]byte(raw), &dto); err != nil {
		return domemail.Email{}, fmt.Errorf("decode email: %w", err)
	}
	return dto.toDomain()
}

// Append writes emails to the end of the file, creating it if needed.
func (s *FileSource) Append(_ context.Context, emails ...domemail.Email) error {
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open email file: %w", err)
	}

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for i := range emails {
		if err := enc.Encode(fromDomain(&emails[i])); err != nil {
			_ = f.Close()
			return fmt.Errorf("encode email %d: %w", emails[i].ID(), err)
		}
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return fmt.Errorf("write email file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close email file: %w", err)
	}
	return nil
}
