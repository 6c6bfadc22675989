package pricing

import (
	"context"
	"fmt"

	"github.com/erp/utility-billing/internal/domain/billing"
	"github.com/erp/utility-billing/internal/domain/shared/strategy"
	"github.com/shopspring/decimal"
)

// TimeOfUseStrategy prices each consumption zone at its own rate
type TimeOfUseStrategy struct {
	strategy.BaseStrategy
}

// NewTimeOfUseStrategy creates a new time-of-use strategy
func NewTimeOfUseStrategy() *TimeOfUseStrategy {
	return &TimeOfUseStrategy{
		BaseStrategy: strategy.NewBaseStrategy(
			string(billing.PricingModelTimeOfUse),
			strategy.StrategyTypePricing,
			"Per-zone rates with a default zone fallback",
		),
	}
}

// Model implements billing.PricingStrategy
func (s *TimeOfUseStrategy) Model() billing.PricingModel {
	return billing.PricingModelTimeOfUse
}

// Price implements billing.PricingStrategy
func (s *TimeOfUseStrategy) Price(ctx context.Context, in billing.PricingInput) (*billing.PricingOutcome, error) {
	schedule, err := scheduleAs[*billing.TimeOfUseSchedule](in)
	if err != nil {
		return nil, err
	}

	var warnings []string
	lines := make([]billing.ZoneLine, 0, len(in.Consumption.Zones))
	amount := decimal.Zero
	for _, zone := range in.Consumption.ZoneNames() {
		consumption := in.Consumption.Zones[zone]
		if _, ok := schedule.ZoneRates[zone]; !ok {
			if _, hasDefault := schedule.ZoneRates[billing.DefaultZone]; hasDefault {
				warnings = append(warnings, fmt.Sprintf("zone %q has no rate; using the default zone rate", zone))
			} else {
				warnings = append(warnings, fmt.Sprintf("zone %q has no rate and no default zone is configured; billed at 0", zone))
			}
		}
		rate := schedule.RateFor(zone)
		line := billing.ZoneLine{
			Zone:        zone,
			Rate:        rate,
			Consumption: consumption,
			Amount:      linearAmount(consumption, rate),
		}
		lines = append(lines, line)
		amount = amount.Add(line.Amount)
	}

	details := baseDetails(in)
	details.Mode = billing.ModeConsumption
	details.ZoneBreakdown = lines

	return &billing.PricingOutcome{
		ConsumptionAmount: amount,
		FixedAmount:       decimal.Zero,
		Details:           details,
		Warnings:          warnings,
	}, nil
}
