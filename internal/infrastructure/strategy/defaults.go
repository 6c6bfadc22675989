package strategy

import (
	"github.com/erp/utility-billing/internal/domain/billing"
	"github.com/erp/utility-billing/internal/domain/billing/formula"
	"github.com/erp/utility-billing/internal/domain/shared/strategy"
	"github.com/erp/utility-billing/internal/infrastructure/strategy/distribution"
	"github.com/erp/utility-billing/internal/infrastructure/strategy/pricing"
)

// NewRegistryWithDefaults creates a registry with a strategy for every
// pricing model and distribution method, using default formula limits.
// Equal distribution is the default.
func NewRegistryWithDefaults() (*StrategyRegistry, error) {
	return NewRegistryWithEvaluator(formula.NewEvaluator())
}

// NewRegistryWithEvaluator creates a registry with default strategies whose
// formula-based strategies share evaluator
func NewRegistryWithEvaluator(evaluator *formula.Evaluator) (*StrategyRegistry, error) {
	r := NewStrategyRegistry()

	pricingStrategies := []billing.PricingStrategy{
		pricing.NewFixedMonthlyStrategy(),
		pricing.NewConsumptionBasedStrategy(),
		pricing.NewTieredStrategy(),
		pricing.NewHybridStrategy(),
		pricing.NewTimeOfUseStrategy(),
		pricing.NewCustomFormulaStrategy(evaluator),
		pricing.NewLegacyFlatStrategy(),
	}
	for _, s := range pricingStrategies {
		if err := r.RegisterPricingStrategy(s); err != nil {
			return nil, err
		}
	}

	equal := distribution.NewEqualStrategy()
	distributionStrategies := []billing.DistributionStrategy{
		equal,
		distribution.NewAreaStrategy(),
		distribution.NewConsumptionStrategy(),
		distribution.NewFormulaStrategy(evaluator),
	}
	for _, s := range distributionStrategies {
		if err := r.RegisterDistributionStrategy(s); err != nil {
			return nil, err
		}
	}

	// Set defaults
	if err := r.SetDefault(strategy.StrategyTypeDistribution, equal.Name()); err != nil {
		return nil, err
	}

	return r, nil
}
