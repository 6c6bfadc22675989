package distribution

import (
	"context"

	"github.com/erp/utility-billing/internal/domain/billing"
	"github.com/erp/utility-billing/internal/domain/shared/strategy"
	"github.com/shopspring/decimal"
)

// AreaStrategy shares a cost proportionally to property area
type AreaStrategy struct {
	strategy.BaseStrategy
}

// NewAreaStrategy creates a new area-weighted distribution strategy
func NewAreaStrategy() *AreaStrategy {
	return &AreaStrategy{
		BaseStrategy: strategy.NewBaseStrategy(
			string(billing.DistributionArea),
			strategy.StrategyTypeDistribution,
			"Shares proportional to area in square meters",
		),
	}
}

// Method implements billing.DistributionStrategy
func (s *AreaStrategy) Method() billing.DistributionMethod {
	return billing.DistributionArea
}

// Distribute implements billing.DistributionStrategy. A total area of zero
// or less falls back to an equal split.
func (s *AreaStrategy) Distribute(ctx context.Context, in billing.DistributionInput) (*billing.DistributionResult, error) {
	if r, err := checkInput(s.Method(), in); r != nil || err != nil {
		return r, err
	}
	weights := make([]decimal.Decimal, len(in.Properties))
	for i, p := range in.Properties {
		weights[i] = p.AreaSqm
	}
	return splitWeighted(s.Method(), in, weights, "property areas"), nil
}
