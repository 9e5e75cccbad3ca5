// Package indexing loads emails into the vector store.
package indexing

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/mailrag/internal/domain"
	domemail "github.com/kailas-cloud/mailrag/internal/domain/email"
	"github.com/kailas-cloud/mailrag/internal/logger"
	"github.com/kailas-cloud/mailrag/internal/metrics"
)

// Mode selects how a source is indexed.
type Mode string

// Indexing modes.
const (
	// ModeReindex inserts every email, duplicates included.
	ModeReindex Mode = "reindex"
	// ModeCatchUp inserts only emails whose id is not stored yet.
	ModeCatchUp Mode = "catchup"
)

// IsValid reports whether m is a known mode.
func (m Mode) IsValid() bool {
	return m == ModeReindex || m == ModeCatchUp
}

// Report summarizes one indexing run.
type Report struct {
	RunID    string
	Mode     Mode
	Total    int
	Indexed  int
	Skipped  int
	Failed   int
	Tokens   int
	Duration time.Duration
	// Interrupted is set when the context ended before every email was visited.
	Interrupted bool
}

// Service indexes emails one at a time. Runs are sequential per call; the
// store serializes concurrent inserts from parallel runs.
type Service struct {
	store      Store
	categorize Categorizer
	logger     *zap.Logger
}

// New creates an indexing service. categorize may be nil.
func New(store Store, categorize Categorizer, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, categorize: categorize, logger: logger}
}

// IndexOne embeds and stores a single email. Failures are logged, never returned.
func (s *Service) IndexOne(ctx context.Context, e *domemail.Email) bool {
	log := logger.FromContextOr(ctx, s.logger)

	if s.categorize != nil && e.Category() == domemail.CategoryUncategorized {
		filled := s.categorize(e)
		e = &filled
	}

	id, err := s.store.Insert(ctx, e.IndexText(), e.Metadata())
	if err != nil {
		metrics.IndexedEmailsTotal.WithLabelValues("failed").Inc()
		log.Error("Failed to index email", zap.Int64("email_id", e.ID()), zap.Error(err))
		return false
	}

	metrics.IndexedEmailsTotal.WithLabelValues("ok").Inc()
	log.Debug("Indexed email", zap.Int64("email_id", e.ID()), zap.Int("record_id", id))
	return true
}

// IndexAll indexes every email and returns how many succeeded. It keeps going
// past failures and stops between emails once ctx is done.
func (s *Service) IndexAll(ctx context.Context, emails []domemail.Email) int {
	return s.run(ctx, ModeReindex, emails).Indexed
}

// CatchUp indexes only emails whose email_id is not in the store yet and
// returns how many were added. Running it twice over the same emails adds nothing.
func (s *Service) CatchUp(ctx context.Context, emails []domemail.Email) int {
	return s.run(ctx, ModeCatchUp, emails).Indexed
}

// IndexSource lists the source and indexes it in the given mode.
func (s *Service) IndexSource(ctx context.Context, src Source, mode Mode) (Report, error) {
	if !mode.IsValid() {
		return Report{}, fmt.Errorf("unknown indexing mode %q", mode)
	}
	emails, err := src.List(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("list emails: %w", err)
	}
	return s.run(ctx, mode, emails), nil
}

func (s *Service) run(ctx context.Context, mode Mode, emails []domemail.Email) Report {
	start := time.Now()
	rep := Report{RunID: uuid.NewString(), Mode: mode, Total: len(emails)}

	log := s.logger.With(zap.String("run_id", rep.RunID), zap.String("mode", string(mode)))
	ctx = logger.ContextWithLogger(ctx, log)
	ctx, usage := domain.NewContextWithUsage(ctx)

	var stored map[string]struct{}
	if mode == ModeCatchUp {
		stored = s.store.MetadataValues(domemail.MetaEmailID)
	}

	for i := range emails {
		if ctx.Err() != nil {
			rep.Interrupted = true
			break
		}
		e := &emails[i]

		key := strconv.FormatInt(e.ID(), 10)
		if stored != nil {
			if _, ok := stored[key]; ok {
				rep.Skipped++
				metrics.IndexedEmailsTotal.WithLabelValues("skipped").Inc()
				continue
			}
		}

		if s.IndexOne(ctx, e) {
			rep.Indexed++
			if stored != nil {
				stored[key] = struct{}{}
			}
		} else {
			rep.Failed++
		}
	}

	rep.Tokens = usage.TotalTokens
	rep.Duration = time.Since(start)

	fields := []zap.Field{
		zap.Int("total", rep.Total),
		zap.Int("indexed", rep.Indexed),
		zap.Int("skipped", rep.Skipped),
		zap.Int("failed", rep.Failed),
		zap.Int("tokens", rep.Tokens),
		zap.Duration("duration", rep.Duration),
	}
	if rep.Interrupted {
		log.Warn("Indexing interrupted", append(fields, zap.Error(ctx.Err()))...)
	} else {
		log.Info("Indexing finished", fields...)
	}
	return rep
}
