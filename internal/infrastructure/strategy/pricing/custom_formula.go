package pricing

import (
	"context"
	"fmt"

	"github.com/erp/utility-billing/internal/domain/billing"
	"github.com/erp/utility-billing/internal/domain/billing/formula"
	"github.com/erp/utility-billing/internal/domain/shared"
	"github.com/erp/utility-billing/internal/domain/shared/strategy"
	"github.com/erp/utility-billing/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// CustomFormulaStrategy evaluates a configured formula over the built-in
// pricing variables and the schedule's custom variables
type CustomFormulaStrategy struct {
	strategy.BaseStrategy
	evaluator *formula.Evaluator
}

// NewCustomFormulaStrategy creates a new custom formula strategy. A nil
// evaluator uses the default complexity limits.
func NewCustomFormulaStrategy(evaluator *formula.Evaluator) *CustomFormulaStrategy {
	if evaluator == nil {
		evaluator = formula.NewEvaluator()
	}
	return &CustomFormulaStrategy{
		BaseStrategy: strategy.NewBaseStrategy(
			string(billing.PricingModelCustomFormula),
			strategy.StrategyTypePricing,
			"User-defined arithmetic formula",
		),
		evaluator: evaluator,
	}
}

// Model implements billing.PricingStrategy
func (s *CustomFormulaStrategy) Model() billing.PricingModel {
	return billing.PricingModelCustomFormula
}

// Price implements billing.PricingStrategy. Evaluation failures are hard
// errors matching both shared.ErrFormulaEvaluation and the formula package
// sentinels.
func (s *CustomFormulaStrategy) Price(ctx context.Context, in billing.PricingInput) (*billing.PricingOutcome, error) {
	schedule, err := scheduleAs[*billing.CustomFormulaSchedule](in)
	if err != nil {
		return nil, err
	}

	vars := billing.MergeVariables(billing.PricingVariables(in.Consumption, in.Period, in.Adjuster), schedule.Variables)
	result, err := s.evaluator.Evaluate(schedule.Formula, vars)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrFormulaEvaluation, err)
	}

	var warnings []string
	if result.IsNegative() {
		warnings = append(warnings, fmt.Sprintf("formula produced a negative amount (%s); clamped to 0", result))
		result = decimal.Zero
	}

	details := baseDetails(in)
	details.Mode = billing.ModeConsumption
	details.Formula = schedule.Formula
	details.Variables = vars

	return &billing.PricingOutcome{
		ConsumptionAmount: valueobject.RoundMoney(result),
		FixedAmount:       decimal.Zero,
		Details:           details,
		Warnings:          warnings,
	}, nil
}
