package pricing

import (
	"fmt"

	"github.com/erp/utility-billing/internal/domain/billing"
	"github.com/erp/utility-billing/internal/domain/shared"
	"github.com/erp/utility-billing/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// scheduleAs returns the configuration's schedule as the concrete type T
func scheduleAs[T billing.RateSchedule](in billing.PricingInput) (T, error) {
	var zero T
	if in.Configuration == nil || in.Configuration.RateSchedule == nil {
		return zero, fmt.Errorf("%w: rate schedule is required", shared.ErrInvalidConfiguration)
	}
	s, ok := in.Configuration.RateSchedule.(T)
	if !ok {
		return zero, fmt.Errorf("%w: rate schedule is %T, expected %T",
			shared.ErrInvalidConfiguration, in.Configuration.RateSchedule, zero)
	}
	if err := billing.ValidateSchedule(s); err != nil {
		return zero, err
	}
	return s, nil
}

// baseDetails fills the period and season fields every model reports
func baseDetails(in billing.PricingInput) billing.CalculationDetails {
	return billing.CalculationDetails{
		Season:             in.Adjuster.Season(in.Period.Start),
		SeasonalMultiplier: decimal.NewFromInt(1),
		ProrationFactor:    decimal.NewFromInt(1),
		PeriodDays:         in.Period.Days(),
		IsPartialPeriod:    in.Period.IsPartial(),
		Consumption:        in.Consumption.Total,
	}
}

// fixedComponent pro-rates a monthly amount and splits the seasonal effect
// into its own adjustment. The returned fixed amount is unadjusted; the
// adjustment carries round(adjusted) - round(unadjusted) when it is at least
// one minor unit.
func fixedComponent(
	monthly decimal.Decimal,
	seasonal *billing.SeasonalAdjustments,
	in billing.PricingInput,
	details *billing.CalculationDetails,
) (decimal.Decimal, []billing.Adjustment) {
	multiplier := in.Adjuster.Multiplier(seasonal, in.Period.Start)
	details.SeasonalMultiplier = multiplier
	details.ProrationFactor = in.Adjuster.ProrationFactor(in.Period)
	details.MonthlyRate = billing.DecimalPtr(monthly)

	unadjusted := valueobject.RoundMoney(in.Adjuster.Prorate(monthly, in.Period))
	adjusted := valueobject.RoundMoney(in.Adjuster.Prorate(monthly.Mul(multiplier), in.Period))

	delta := adjusted.Sub(unadjusted)
	if delta.Abs().LessThan(valueobject.MinorUnit) {
		return unadjusted, nil
	}
	season := details.Season
	return unadjusted, []billing.Adjustment{{
		Type:        billing.AdjustmentSeasonal,
		Description: fmt.Sprintf("%s multiplier %s", season, multiplier.String()),
		Amount:      delta,
	}}
}

// linearAmount returns round(consumption * rate)
func linearAmount(consumption, rate decimal.Decimal) decimal.Decimal {
	return valueobject.RoundMoney(consumption.Mul(rate))
}
