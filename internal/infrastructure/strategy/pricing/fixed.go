package pricing

import (
	"context"

	"github.com/erp/utility-billing/internal/domain/billing"
	"github.com/erp/utility-billing/internal/domain/shared/strategy"
	"github.com/shopspring/decimal"
)

// FixedMonthlyStrategy charges a seasonally adjusted monthly rate, pro-rated
// for partial periods
type FixedMonthlyStrategy struct {
	strategy.BaseStrategy
}

// NewFixedMonthlyStrategy creates a new fixed monthly strategy
func NewFixedMonthlyStrategy() *FixedMonthlyStrategy {
	return &FixedMonthlyStrategy{
		BaseStrategy: strategy.NewBaseStrategy(
			string(billing.PricingModelFixedMonthly),
			strategy.StrategyTypePricing,
			"Flat monthly rate with seasonal multipliers and pro-ration",
		),
	}
}

// Model implements billing.PricingStrategy
func (s *FixedMonthlyStrategy) Model() billing.PricingModel {
	return billing.PricingModelFixedMonthly
}

// Price implements billing.PricingStrategy
func (s *FixedMonthlyStrategy) Price(ctx context.Context, in billing.PricingInput) (*billing.PricingOutcome, error) {
	schedule, err := scheduleAs[*billing.FixedMonthlySchedule](in)
	if err != nil {
		return nil, err
	}

	details := baseDetails(in)
	details.Mode = billing.ModeFixed
	fixed, adjustments := fixedComponent(*schedule.MonthlyRate, schedule.SeasonalAdjustments, in, &details)

	return &billing.PricingOutcome{
		ConsumptionAmount: decimal.Zero,
		FixedAmount:       fixed,
		Adjustments:       adjustments,
		Details:           details,
	}, nil
}

// ConsumptionBasedStrategy charges consumption at a linear unit rate
type ConsumptionBasedStrategy struct {
	strategy.BaseStrategy
}

// NewConsumptionBasedStrategy creates a new consumption based strategy
func NewConsumptionBasedStrategy() *ConsumptionBasedStrategy {
	return &ConsumptionBasedStrategy{
		BaseStrategy: strategy.NewBaseStrategy(
			string(billing.PricingModelConsumptionBased),
			strategy.StrategyTypePricing,
			"Total consumption times unit rate",
		),
	}
}

// Model implements billing.PricingStrategy
func (s *ConsumptionBasedStrategy) Model() billing.PricingModel {
	return billing.PricingModelConsumptionBased
}

// Price implements billing.PricingStrategy
func (s *ConsumptionBasedStrategy) Price(ctx context.Context, in billing.PricingInput) (*billing.PricingOutcome, error) {
	schedule, err := scheduleAs[*billing.ConsumptionBasedSchedule](in)
	if err != nil {
		return nil, err
	}

	details := baseDetails(in)
	details.Mode = billing.ModeConsumption
	details.UnitRate = schedule.UnitRate

	return &billing.PricingOutcome{
		ConsumptionAmount: linearAmount(in.Consumption.Total, *schedule.UnitRate),
		FixedAmount:       decimal.Zero,
		Details:           details,
	}, nil
}

// HybridStrategy combines a seasonally adjusted, pro-rated fixed fee with a
// unit-rate consumption charge
type HybridStrategy struct {
	strategy.BaseStrategy
}

// NewHybridStrategy creates a new hybrid strategy
func NewHybridStrategy() *HybridStrategy {
	return &HybridStrategy{
		BaseStrategy: strategy.NewBaseStrategy(
			string(billing.PricingModelHybrid),
			strategy.StrategyTypePricing,
			"Fixed fee plus consumption times unit rate",
		),
	}
}

// Model implements billing.PricingStrategy
func (s *HybridStrategy) Model() billing.PricingModel {
	return billing.PricingModelHybrid
}

// Price implements billing.PricingStrategy
func (s *HybridStrategy) Price(ctx context.Context, in billing.PricingInput) (*billing.PricingOutcome, error) {
	schedule, err := scheduleAs[*billing.HybridSchedule](in)
	if err != nil {
		return nil, err
	}

	details := baseDetails(in)
	details.Mode = billing.ModeHybrid
	details.UnitRate = schedule.UnitRate
	fixed, adjustments := fixedComponent(*schedule.FixedFee, schedule.SeasonalAdjustments, in, &details)

	return &billing.PricingOutcome{
		ConsumptionAmount: linearAmount(in.Consumption.Total, *schedule.UnitRate),
		FixedAmount:       fixed,
		Adjustments:       adjustments,
		Details:           details,
	}, nil
}

// LegacyFlatStrategy prices the pre-model flat schedule: as a fixed monthly
// charge when a monthly rate is configured, otherwise per unit
type LegacyFlatStrategy struct {
	strategy.BaseStrategy
}

// NewLegacyFlatStrategy creates a new legacy flat strategy
func NewLegacyFlatStrategy() *LegacyFlatStrategy {
	return &LegacyFlatStrategy{
		BaseStrategy: strategy.NewBaseStrategy(
			string(billing.PricingModelLegacyFlat),
			strategy.StrategyTypePricing,
			"Legacy flat rate, monthly or per unit",
		),
	}
}

// Model implements billing.PricingStrategy
func (s *LegacyFlatStrategy) Model() billing.PricingModel {
	return billing.PricingModelLegacyFlat
}

// Price implements billing.PricingStrategy
func (s *LegacyFlatStrategy) Price(ctx context.Context, in billing.PricingInput) (*billing.PricingOutcome, error) {
	schedule, err := scheduleAs[*billing.LegacyFlatSchedule](in)
	if err != nil {
		return nil, err
	}

	details := baseDetails(in)
	if schedule.IsFixed() {
		details.Mode = billing.ModeFixed
		fixed, adjustments := fixedComponent(*schedule.MonthlyRate, schedule.SeasonalAdjustments, in, &details)
		return &billing.PricingOutcome{
			ConsumptionAmount: decimal.Zero,
			FixedAmount:       fixed,
			Adjustments:       adjustments,
			Details:           details,
		}, nil
	}

	details.Mode = billing.ModeConsumption
	details.UnitRate = schedule.UnitRate
	return &billing.PricingOutcome{
		ConsumptionAmount: linearAmount(in.Consumption.Total, *schedule.UnitRate),
		FixedAmount:       decimal.Zero,
		Details:           details,
	}, nil
}
