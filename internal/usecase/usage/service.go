// Package usage reports embedding token consumption for the ops surface.
package usage

import (
	"context"
	"fmt"
	"time"

	domusage "github.com/kailas-cloud/mailrag/internal/domain/usage"
)

// Service handles usage reporting.
type Service struct {
	br  BudgetReader
	now func() time.Time
}

// New creates a Service. br can be nil (no budget configured, unlimited).
func New(br BudgetReader) *Service {
	return &Service{br: br, now: func() time.Time { return time.Now().UTC() }}
}

// GetReport builds a usage report for the current UTC day or month.
func (s *Service) GetReport(_ context.Context, period domusage.Period) (domusage.Report, error) {
	now := s.now()
	var start, end time.Time
	var used, limit int64

	switch period {
	case domusage.PeriodDay:
		start = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		end = start.Add(24 * time.Hour)
		if s.br != nil {
			used, limit = s.br.DailyUsed(), s.br.DailyLimit()
		}
	case domusage.PeriodMonth:
		start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		end = start.AddDate(0, 1, 0)
		if s.br != nil {
			used, limit = s.br.MonthlyUsed(), s.br.MonthlyLimit()
		}
	default:
		return domusage.Report{}, fmt.Errorf("unknown usage period %q", period)
	}

	return domusage.NewReport(period, start, end, used, limit), nil
}
