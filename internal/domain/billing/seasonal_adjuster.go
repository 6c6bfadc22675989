package billing

import (
	"fmt"
	"time"

	"github.com/erp/utility-billing/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Season is the rate season a date falls into. Winter is the heating season.
type Season string

const (
	SeasonSummer Season = "summer"
	SeasonWinter Season = "winter"
)

// SeasonConfig holds the month ranges used for season classification.
// Ranges are inclusive and may wrap the year boundary (e.g. 10..4).
type SeasonConfig struct {
	HeatingStartMonth int
	HeatingEndMonth   int
	SummerStartMonth  int
	SummerEndMonth    int
}

// DefaultSeasonConfig returns October-April heating and May-September summer
func DefaultSeasonConfig() SeasonConfig {
	return SeasonConfig{
		HeatingStartMonth: 10,
		HeatingEndMonth:   4,
		SummerStartMonth:  5,
		SummerEndMonth:    9,
	}
}

// Validate checks every month bound is between 1 and 12
func (c SeasonConfig) Validate() error {
	bounds := []struct {
		name  string
		value int
	}{
		{"heating start month", c.HeatingStartMonth},
		{"heating end month", c.HeatingEndMonth},
		{"summer start month", c.SummerStartMonth},
		{"summer end month", c.SummerEndMonth},
	}
	for _, b := range bounds {
		if b.value < 1 || b.value > 12 {
			return fmt.Errorf("%w: %s must be between 1 and 12, got %d", shared.ErrInvalidConfiguration, b.name, b.value)
		}
	}
	return nil
}

// SeasonalAdjuster classifies dates into seasons, applies seasonal
// multipliers and pro-rates monthly amounts. It is immutable.
type SeasonalAdjuster struct {
	cfg SeasonConfig
}

// NewSeasonalAdjuster creates an adjuster, failing on out-of-range months
func NewSeasonalAdjuster(cfg SeasonConfig) (*SeasonalAdjuster, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &SeasonalAdjuster{cfg: cfg}, nil
}

// Config returns the month ranges in use
func (a *SeasonalAdjuster) Config() SeasonConfig {
	return a.cfg
}

func inMonthRange(month time.Month, start, end int) bool {
	m := int(month)
	if start <= end {
		return m >= start && m <= end
	}
	return m >= start || m <= end
}

// IsHeatingSeason reports whether month lies in the heating season
func (a *SeasonalAdjuster) IsHeatingSeason(month time.Month) bool {
	return inMonthRange(month, a.cfg.HeatingStartMonth, a.cfg.HeatingEndMonth)
}

// IsSummer reports whether month lies in the summer range used for formula variables
func (a *SeasonalAdjuster) IsSummer(month time.Month) bool {
	return inMonthRange(month, a.cfg.SummerStartMonth, a.cfg.SummerEndMonth)
}

// Season returns the rate season of date
func (a *SeasonalAdjuster) Season(date time.Time) Season {
	if a.IsHeatingSeason(date.Month()) {
		return SeasonWinter
	}
	return SeasonSummer
}

// Multiplier returns the seasonal multiplier that applies on date
func (a *SeasonalAdjuster) Multiplier(adj *SeasonalAdjustments, date time.Time) decimal.Decimal {
	return adj.Multiplier(a.Season(date))
}

// Adjust applies the seasonal multiplier for date to amount (unrounded)
func (a *SeasonalAdjuster) Adjust(amount decimal.Decimal, adj *SeasonalAdjustments, date time.Time) decimal.Decimal {
	return amount.Mul(a.Multiplier(adj, date))
}

// ProrationFactor returns days/daysInStartMonth for partial periods and 1 otherwise
func (a *SeasonalAdjuster) ProrationFactor(period BillingPeriod) decimal.Decimal {
	if !period.IsPartial() {
		return decimal.NewFromInt(1)
	}
	return decimal.NewFromInt(int64(period.Days())).Div(decimal.NewFromInt(int64(period.DaysInStartMonth())))
}

// Prorate scales a monthly amount to the period (unrounded). Full months are
// returned unchanged.
func (a *SeasonalAdjuster) Prorate(monthlyAmount decimal.Decimal, period BillingPeriod) decimal.Decimal {
	if !period.IsPartial() {
		return monthlyAmount
	}
	return monthlyAmount.
		Mul(decimal.NewFromInt(int64(period.Days()))).
		Div(decimal.NewFromInt(int64(period.DaysInStartMonth())))
}
