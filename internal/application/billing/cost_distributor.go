package billing

import (
	"context"

	"github.com/erp/utility-billing/internal/domain/billing"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DistributionStrategyResolver looks up the strategy of a distribution method.
// An empty method resolves to the registry default.
type DistributionStrategyResolver interface {
	GetDistributionStrategy(method billing.DistributionMethod) (billing.DistributionStrategy, error)
}

// DistributeOptions carries the inputs only some methods need
type DistributeOptions struct {
	// Consumption overrides the historical consumption of by_consumption
	Consumption map[uuid.UUID]decimal.Decimal
	// Formula is the per-property weight formula of custom_formula
	Formula string
}

// CostDistributor allocates shared costs across the properties of a building
type CostDistributor struct {
	strategies DistributionStrategyResolver
	logger     *zap.Logger
	metrics    MetricsRecorder
}

// NewCostDistributor creates a new CostDistributor
func NewCostDistributor(strategies DistributionStrategyResolver, logger *zap.Logger, metrics MetricsRecorder) *CostDistributor {
	return &CostDistributor{
		strategies: strategies,
		logger:     logger,
		metrics:    orNop(metrics),
	}
}

// Distribute splits cost across properties with method. The allocations
// always sum to cost exactly. Fallbacks and empty inputs are warnings.
func (d *CostDistributor) Distribute(ctx context.Context, cost decimal.Decimal, properties []billing.Property, method billing.DistributionMethod, opts DistributeOptions) (*billing.DistributionResult, error) {
	strategy, err := d.strategies.GetDistributionStrategy(method)
	if err != nil {
		return nil, err
	}

	result, err := strategy.Distribute(ctx, billing.DistributionInput{
		Cost:        cost,
		Properties:  properties,
		Consumption: opts.Consumption,
		Formula:     opts.Formula,
	})
	if err != nil {
		return nil, err
	}

	d.metrics.ObserveDistribution(result.Method.String(), result.FallbackReason != "")
	for _, w := range result.Warnings {
		d.logger.Warn("Cost distribution warning",
			zap.String("method", result.Method.String()),
			zap.Int("property_count", len(properties)),
			zap.String("cost", cost.StringFixed(2)),
			zap.String("warning", w))
	}
	return result, nil
}
