package billing

import (
	"context"

	"github.com/erp/utility-billing/internal/domain/billing/formula"
	"github.com/erp/utility-billing/internal/domain/shared/strategy"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PricingInput is everything a pricing strategy needs to price one period
type PricingInput struct {
	Configuration *ServiceConfiguration
	Consumption   ConsumptionData
	Period        BillingPeriod
	Adjuster      *SeasonalAdjuster
}

// Schedule returns the configuration's rate schedule
func (in PricingInput) Schedule() RateSchedule {
	return in.Configuration.RateSchedule
}

// PricingOutcome is what a pricing strategy produces. Amounts are rounded to
// minor units.
type PricingOutcome struct {
	ConsumptionAmount decimal.Decimal
	FixedAmount       decimal.Decimal
	Adjustments       []Adjustment
	Details           CalculationDetails
	Warnings          []string
}

// PricingStrategy prices consumption for one pricing model
type PricingStrategy interface {
	strategy.Strategy
	// Model returns the pricing model this strategy implements
	Model() PricingModel
	// Price computes the amounts for in. Errors are hard failures.
	Price(ctx context.Context, in PricingInput) (*PricingOutcome, error)
}

// DistributionInput describes a shared cost to split across properties
type DistributionInput struct {
	Cost       decimal.Decimal
	Properties []Property
	// Consumption overrides Property.HistoricalConsumption for by_consumption
	Consumption map[uuid.UUID]decimal.Decimal
	// Formula is the per-property weight expression for custom_formula
	Formula string
}

// DistributionResult maps each property to its share of a cost. Order keeps
// the iteration order used for remainder placement.
type DistributionResult struct {
	Allocations    map[uuid.UUID]decimal.Decimal `json:"allocations"`
	Order          []uuid.UUID                   `json:"order"`
	Method         DistributionMethod            `json:"method"`
	FallbackReason string                        `json:"fallbackReason,omitempty"`
	Warnings       []string                      `json:"warnings,omitempty"`
}

// Total returns the sum of all allocations
func (r *DistributionResult) Total() decimal.Decimal {
	total := decimal.Zero
	for _, id := range r.Order {
		total = total.Add(r.Allocations[id])
	}
	return total
}

// DistributionStrategy splits a cost for one distribution method
type DistributionStrategy interface {
	strategy.Strategy
	// Method returns the distribution method this strategy implements
	Method() DistributionMethod
	// Distribute allocates in.Cost across in.Properties
	Distribute(ctx context.Context, in DistributionInput) (*DistributionResult, error)
}

// DistributionFormulaVariables are the per-property names a distribution
// formula may reference
var DistributionFormulaVariables = []string{"area", "consumption", "total_area", "total_consumption", "property_count"}

// PricingVariables returns the built-in formula variables for a period:
// consumption, days, month, year, is_summer and is_winter
func PricingVariables(consumption ConsumptionData, period BillingPeriod, adjuster *SeasonalAdjuster) formula.Variables {
	summer := adjuster.IsSummer(period.Start.Month())
	return formula.Variables{
		"consumption": consumption.Total,
		"days":        decimal.NewFromInt(int64(period.Days())),
		"month":       decimal.NewFromInt(int64(period.Start.Month())),
		"year":        decimal.NewFromInt(int64(period.Start.Year())),
		"is_summer":   formula.BoolValue(summer),
		"is_winter":   formula.BoolValue(!summer),
	}
}

// MergeVariables returns the built-in variables plus the custom ones. Custom
// variables never shadow built-ins; schedule validation rejects such names.
func MergeVariables(builtin formula.Variables, custom map[string]decimal.Decimal) formula.Variables {
	out := make(formula.Variables, len(builtin)+len(custom))
	for k, v := range custom {
		out[k] = v
	}
	for k, v := range builtin {
		out[k] = v
	}
	return out
}
