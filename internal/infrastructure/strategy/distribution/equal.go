package distribution

import (
	"context"

	"github.com/erp/utility-billing/internal/domain/billing"
	"github.com/erp/utility-billing/internal/domain/shared/strategy"
)

// EqualStrategy gives every property the same share
type EqualStrategy struct {
	strategy.BaseStrategy
}

// NewEqualStrategy creates a new equal distribution strategy
func NewEqualStrategy() *EqualStrategy {
	return &EqualStrategy{
		BaseStrategy: strategy.NewBaseStrategy(
			string(billing.DistributionEqual),
			strategy.StrategyTypeDistribution,
			"Equal shares, remainder on the last property",
		),
	}
}

// Method implements billing.DistributionStrategy
func (s *EqualStrategy) Method() billing.DistributionMethod {
	return billing.DistributionEqual
}

// Distribute implements billing.DistributionStrategy
func (s *EqualStrategy) Distribute(ctx context.Context, in billing.DistributionInput) (*billing.DistributionResult, error) {
	if r, err := checkInput(s.Method(), in); r != nil || err != nil {
		return r, err
	}
	return splitEqual(s.Method(), in), nil
}
