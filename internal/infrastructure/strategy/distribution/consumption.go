package distribution

import (
	"context"

	"github.com/erp/utility-billing/internal/domain/billing"
	"github.com/erp/utility-billing/internal/domain/shared/strategy"
	"github.com/shopspring/decimal"
)

// ConsumptionStrategy shares a cost proportionally to each property's
// consumption, taken from the input override or the property's history
type ConsumptionStrategy struct {
	strategy.BaseStrategy
}

// NewConsumptionStrategy creates a new consumption-weighted distribution strategy
func NewConsumptionStrategy() *ConsumptionStrategy {
	return &ConsumptionStrategy{
		BaseStrategy: strategy.NewBaseStrategy(
			string(billing.DistributionConsumption),
			strategy.StrategyTypeDistribution,
			"Shares proportional to consumption",
		),
	}
}

// Method implements billing.DistributionStrategy
func (s *ConsumptionStrategy) Method() billing.DistributionMethod {
	return billing.DistributionConsumption
}

// Distribute implements billing.DistributionStrategy
func (s *ConsumptionStrategy) Distribute(ctx context.Context, in billing.DistributionInput) (*billing.DistributionResult, error) {
	if r, err := checkInput(s.Method(), in); r != nil || err != nil {
		return r, err
	}
	weights := make([]decimal.Decimal, len(in.Properties))
	for i, p := range in.Properties {
		weights[i] = propertyConsumption(in, p)
	}
	return splitWeighted(s.Method(), in, weights, "property consumption"), nil
}

func propertyConsumption(in billing.DistributionInput, p billing.Property) decimal.Decimal {
	if v, ok := in.Consumption[p.ID]; ok {
		return v
	}
	return p.HistoricalConsumption
}
