package billing

import (
	"fmt"
	"time"

	"github.com/erp/utility-billing/internal/domain/shared"
)

// BillingPeriod is an inclusive range of calendar dates
type BillingPeriod struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// dateOf truncates t to its calendar date in UTC
func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// NewBillingPeriod creates a period from start to end, both inclusive
func NewBillingPeriod(start, end time.Time) (BillingPeriod, error) {
	if start.IsZero() || end.IsZero() {
		return BillingPeriod{}, fmt.Errorf("%w: billing period dates are required", shared.ErrInvalidInput)
	}
	s, e := dateOf(start), dateOf(end)
	if e.Before(s) {
		return BillingPeriod{}, fmt.Errorf("%w: billing period ends (%s) before it starts (%s)",
			shared.ErrInvalidInput, e.Format(time.DateOnly), s.Format(time.DateOnly))
	}
	return BillingPeriod{Start: s, End: e}, nil
}

// FullMonth returns the period covering the whole calendar month
func FullMonth(year int, month time.Month) BillingPeriod {
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return BillingPeriod{Start: start, End: start.AddDate(0, 1, -1)}
}

// DaysIn returns the number of days of the calendar month containing t
func DaysIn(t time.Time) int {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Days returns the inclusive number of days in the period
func (p BillingPeriod) Days() int {
	return int(dateOf(p.End).Sub(dateOf(p.Start)).Hours()/24) + 1
}

// DaysInStartMonth returns the length of the calendar month the period starts in
func (p BillingPeriod) DaysInStartMonth() int {
	return DaysIn(p.Start)
}

// IsPartial returns false only when the period spans exactly one calendar
// month, from its first through its last day
func (p BillingPeriod) IsPartial() bool {
	if p.Start.Day() != 1 {
		return true
	}
	if p.Start.Year() != p.End.Year() || p.Start.Month() != p.End.Month() {
		return true
	}
	return p.End.Day() != DaysIn(p.End)
}

// Contains reports whether t falls on a date within the period
func (p BillingPeriod) Contains(t time.Time) bool {
	d := dateOf(t)
	return !d.Before(dateOf(p.Start)) && !d.After(dateOf(p.End))
}

// MonthKey returns the YYYY-MM of the period start
func (p BillingPeriod) MonthKey() string {
	return p.Start.Format("2006-01")
}

// String returns the period as "start..end"
func (p BillingPeriod) String() string {
	return p.Start.Format(time.DateOnly) + ".." + p.End.Format(time.DateOnly)
}
