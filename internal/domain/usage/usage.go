// Package usage describes embedding token consumption against the budget.
package usage

import "time"

// Period is the budget window a report covers.
type Period string

// Budget periods.
const (
	PeriodDay   Period = "day"
	PeriodMonth Period = "month"
)

// IsValid reports whether p is a known period.
func (p Period) IsValid() bool {
	return p == PeriodDay || p == PeriodMonth
}

// Report is embedding token usage for one UTC budget window.
type Report struct {
	period    Period
	start     time.Time
	end       time.Time
	used      int64
	limit     int64
	remaining int64
}

// NewReport creates a usage report. A zero limit means unlimited.
func NewReport(period Period, start, end time.Time, used, limit int64) Report {
	remaining := int64(-1)
	if limit > 0 {
		remaining = max(limit-used, 0)
	}
	return Report{
		period:    period,
		start:     start,
		end:       end,
		used:      used,
		limit:     limit,
		remaining: remaining,
	}
}

// Period returns the budget window.
func (r Report) Period() Period { return r.period }

// Start returns the window start.
func (r Report) Start() time.Time { return r.start }

// End returns the window end, when the counter resets.
func (r Report) End() time.Time { return r.end }

// Used returns tokens consumed in the window.
func (r Report) Used() int64 { return r.used }

// Limit returns the token cap, 0 if unlimited.
func (r Report) Limit() int64 { return r.limit }

// Remaining returns tokens left, -1 if unlimited.
func (r Report) Remaining() int64 { return r.remaining }

// Unlimited reports whether no cap is configured.
func (r Report) Unlimited() bool { return r.limit == 0 }

// Exhausted reports whether the cap has been reached.
func (r Report) Exhausted() bool { return r.limit > 0 && r.remaining == 0 }
