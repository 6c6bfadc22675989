package distribution

import (
	"context"
	"fmt"
	"strings"

	"github.com/erp/utility-billing/internal/domain/billing"
	"github.com/erp/utility-billing/internal/domain/billing/formula"
	"github.com/erp/utility-billing/internal/domain/shared/strategy"
	"github.com/shopspring/decimal"
)

// FormulaStrategy weights each property by a user formula evaluated per property
type FormulaStrategy struct {
	strategy.BaseStrategy
	evaluator *formula.Evaluator
}

// NewFormulaStrategy creates a new formula-weighted distribution strategy.
// A nil evaluator uses the default complexity limits.
func NewFormulaStrategy(evaluator *formula.Evaluator) *FormulaStrategy {
	if evaluator == nil {
		evaluator = formula.NewEvaluator()
	}
	return &FormulaStrategy{
		BaseStrategy: strategy.NewBaseStrategy(
			string(billing.DistributionCustomFormula),
			strategy.StrategyTypeDistribution,
			"Shares proportional to a per-property weight formula",
		),
		evaluator: evaluator,
	}
}

// Method implements billing.DistributionStrategy
func (s *FormulaStrategy) Method() billing.DistributionMethod {
	return billing.DistributionCustomFormula
}

// Distribute implements billing.DistributionStrategy. A missing or failing
// formula falls back to an equal split.
func (s *FormulaStrategy) Distribute(ctx context.Context, in billing.DistributionInput) (*billing.DistributionResult, error) {
	if r, err := checkInput(s.Method(), in); r != nil || err != nil {
		return r, err
	}
	if strings.TrimSpace(in.Formula) == "" {
		return fallbackEqual(s.Method(), in, "no distribution formula configured"), nil
	}
	expr, err := s.evaluator.Compile(in.Formula)
	if err != nil {
		return fallbackEqual(s.Method(), in, fmt.Sprintf("distribution formula is invalid (%v)", err)), nil
	}

	totalArea, totalConsumption := decimal.Zero, decimal.Zero
	for _, p := range in.Properties {
		totalArea = totalArea.Add(p.AreaSqm)
		totalConsumption = totalConsumption.Add(propertyConsumption(in, p))
	}

	weights := make([]decimal.Decimal, len(in.Properties))
	for i, p := range in.Properties {
		w, err := expr.Evaluate(formula.Variables{
			"area":              p.AreaSqm,
			"consumption":       propertyConsumption(in, p),
			"total_area":        totalArea,
			"total_consumption": totalConsumption,
			"property_count":    decimal.NewFromInt(int64(len(in.Properties))),
		})
		if err != nil {
			return fallbackEqual(s.Method(), in, fmt.Sprintf("distribution formula failed for property %s (%v)", p.ID, err)), nil
		}
		weights[i] = w
	}
	return splitWeighted(s.Method(), in, weights, "formula weights"), nil
}
