package pricing

import (
	"context"
	"fmt"

	"github.com/erp/utility-billing/internal/domain/billing"
	"github.com/erp/utility-billing/internal/domain/shared/strategy"
	"github.com/erp/utility-billing/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// TieredStrategy bills consumption in brackets. Consumption fills tiers
// greedily from the lowest limit upward; anything left once every tier is
// full is billed at the last tier's rate.
type TieredStrategy struct {
	strategy.BaseStrategy
}

// NewTieredStrategy creates a new tiered strategy
func NewTieredStrategy() *TieredStrategy {
	return &TieredStrategy{
		BaseStrategy: strategy.NewBaseStrategy(
			string(billing.PricingModelTieredRates),
			strategy.StrategyTypePricing,
			"Consumption brackets with per-tier rates",
		),
	}
}

// Model implements billing.PricingStrategy
func (s *TieredStrategy) Model() billing.PricingModel {
	return billing.PricingModelTieredRates
}

// Price implements billing.PricingStrategy
func (s *TieredStrategy) Price(ctx context.Context, in billing.PricingInput) (*billing.PricingOutcome, error) {
	schedule, err := scheduleAs[*billing.TieredSchedule](in)
	if err != nil {
		return nil, err
	}

	lines, overflow := AllocateTiers(schedule.SortedTiers(), in.Consumption.Total)
	amount := decimal.Zero
	for _, line := range lines {
		amount = amount.Add(line.Amount)
	}

	details := baseDetails(in)
	details.Mode = billing.ModeConsumption
	details.TierBreakdown = lines

	var warnings []string
	if overflow.IsPositive() {
		warnings = append(warnings, fmt.Sprintf("consumption exceeds tier capacity by %s; billed at the last tier rate", overflow))
	}

	return &billing.PricingOutcome{
		ConsumptionAmount: amount,
		FixedAmount:       decimal.Zero,
		Details:           details,
		Warnings:          warnings,
	}, nil
}

// AllocateTiers walks sorted tiers and returns one line per tier that
// received consumption, plus the overflow that did not fit any bounded tier.
// Overflow is added to the last line at the last tier's rate. Line amounts
// are rounded to minor units.
func AllocateTiers(tiers []billing.Tier, consumption decimal.Decimal) ([]billing.TierLine, decimal.Decimal) {
	var lines []billing.TierLine
	remaining := consumption
	previous := decimal.Zero

	for i, tier := range tiers {
		if !remaining.IsPositive() {
			break
		}
		take := remaining
		if !tier.IsUnbounded() {
			capacity := tier.Limit.Sub(previous)
			if capacity.LessThan(take) {
				take = capacity
			}
			previous = *tier.Limit
		}
		if !take.IsPositive() {
			continue
		}
		lines = append(lines, billing.TierLine{
			Tier:        i + 1,
			Limit:       tier.Limit,
			Rate:        *tier.Rate,
			Consumption: take,
		})
		remaining = remaining.Sub(take)
	}

	overflow := decimal.Zero
	if remaining.IsPositive() && len(tiers) > 0 {
		overflow = remaining
		last := tiers[len(tiers)-1]
		if n := len(lines); n > 0 && lines[n-1].Tier == len(tiers) {
			lines[n-1].Consumption = lines[n-1].Consumption.Add(remaining)
		} else {
			lines = append(lines, billing.TierLine{
				Tier:        len(tiers),
				Limit:       last.Limit,
				Rate:        *last.Rate,
				Consumption: remaining,
			})
		}
	}

	for i := range lines {
		lines[i].Amount = valueobject.RoundMoney(lines[i].Consumption.Mul(lines[i].Rate))
	}
	return lines, overflow
}
