package billing

import (
	"context"
	"fmt"

	"github.com/erp/utility-billing/internal/domain/billing"
	"github.com/erp/utility-billing/internal/domain/billing/formula"
	"github.com/erp/utility-billing/internal/domain/shared"
	"github.com/erp/utility-billing/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PricingStrategyResolver looks up the strategy of a pricing model
type PricingStrategyResolver interface {
	GetPricingStrategy(model billing.PricingModel) (billing.PricingStrategy, error)
}

// PricingCalculator dispatches a configuration to the strategy of its
// pricing model, applies conditional rules and builds the auditable result
type PricingCalculator struct {
	strategies PricingStrategyResolver
	adjuster   *billing.SeasonalAdjuster
	evaluator  *formula.Evaluator
	clock      shared.Clock
	logger     *zap.Logger
	currency   valueobject.Currency
}

// PricingCalculatorConfig contains configuration for PricingCalculator
type PricingCalculatorConfig struct {
	Currency valueobject.Currency
}

// DefaultPricingCalculatorConfig returns default configuration
func DefaultPricingCalculatorConfig() PricingCalculatorConfig {
	return PricingCalculatorConfig{Currency: valueobject.DefaultCurrency}
}

// NewPricingCalculator creates a new PricingCalculator
func NewPricingCalculator(
	strategies PricingStrategyResolver,
	adjuster *billing.SeasonalAdjuster,
	evaluator *formula.Evaluator,
	clock shared.Clock,
	logger *zap.Logger,
	config PricingCalculatorConfig,
) *PricingCalculator {
	if evaluator == nil {
		evaluator = formula.NewEvaluator()
	}
	if clock == nil {
		clock = shared.SystemClock()
	}
	if config.Currency == "" {
		config.Currency = valueobject.DefaultCurrency
	}
	return &PricingCalculator{
		strategies: strategies,
		adjuster:   adjuster,
		evaluator:  evaluator,
		clock:      clock,
		logger:     logger,
		currency:   config.Currency,
	}
}

// Calculate prices consumption for period under cfg. Structural problems of
// the configuration and evaluation failures are returned as errors; soft
// conditions end up in the result warnings.
func (c *PricingCalculator) Calculate(ctx context.Context, cfg *billing.ServiceConfiguration, consumption billing.ConsumptionData, period billing.BillingPeriod) (*billing.CalculationResult, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: service configuration is required", shared.ErrInvalidInput)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	strategy, err := c.strategies.GetPricingStrategy(cfg.PricingModel)
	if err != nil {
		return nil, err
	}

	outcome, err := strategy.Price(ctx, billing.PricingInput{
		Configuration: cfg,
		Consumption:   consumption,
		Period:        period,
		Adjuster:      c.adjuster,
	})
	if err != nil {
		c.logger.Warn("Pricing failed",
			zap.String("service_configuration_id", cfg.ID.String()),
			zap.String("pricing_model", cfg.PricingModel.String()),
			zap.Error(err))
		return nil, err
	}

	now := c.clock.Now()
	snapshot, err := billing.NewTariffSnapshot(cfg, now)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot tariff: %w", err)
	}

	result := &billing.CalculationResult{
		ServiceConfigurationID: cfg.ID,
		ConsumptionAmount:      outcome.ConsumptionAmount,
		FixedAmount:            outcome.FixedAmount,
		Currency:               c.currency,
		Adjustments:            append([]billing.Adjustment{}, outcome.Adjustments...),
		TariffSnapshot:         snapshot,
		Details:                outcome.Details,
		Period:                 period,
		Warnings:               append([]string{}, outcome.Warnings...),
		CalculatedAt:           now,
	}
	result.Finalize()

	if len(cfg.Rules) > 0 {
		if err := c.applyRules(cfg, consumption, period, result); err != nil {
			return nil, err
		}
		result.Finalize()
	}

	if !cfg.IsEffectiveOn(period.Start) {
		result.Warnings = append(result.Warnings, fmt.Sprintf("configuration is not effective on %s", period.Start.Format("2006-01-02")))
	}
	if cfg.ConsumptionLimits != nil && cfg.ConsumptionLimits.MaxMonthly != nil && consumption.Total.GreaterThan(*cfg.ConsumptionLimits.MaxMonthly) {
		result.Warnings = append(result.Warnings, fmt.Sprintf("consumption %s exceeds the monthly limit %s", consumption.Total, cfg.ConsumptionLimits.MaxMonthly))
	}

	for _, w := range result.Warnings {
		c.logger.Warn("Calculation warning",
			zap.String("service_configuration_id", cfg.ID.String()),
			zap.String("pricing_model", cfg.PricingModel.String()),
			zap.String("warning", w))
	}
	return result, nil
}

// applyRules appends an adjustment for every rule whose condition holds.
// Percent rules apply to the base amount. Discounts never push the total
// below zero.
func (c *PricingCalculator) applyRules(cfg *billing.ServiceConfiguration, consumption billing.ConsumptionData, period billing.BillingPeriod, result *billing.CalculationResult) error {
	custom := map[string]decimal.Decimal{}
	if s, ok := cfg.RateSchedule.(*billing.CustomFormulaSchedule); ok {
		custom = s.Variables
	}
	vars := billing.MergeVariables(billing.PricingVariables(consumption, period, c.adjuster), custom)

	for _, rule := range cfg.Rules {
		hit, err := c.evaluator.Evaluate(rule.Condition, vars)
		if err != nil {
			return fmt.Errorf("%w: rule %q: %w", shared.ErrFormulaEvaluation, rule.Name, err)
		}
		if hit.IsZero() {
			continue
		}

		amount := decimal.Zero
		if rule.Percent != nil {
			amount = valueobject.RoundMoney(result.BaseAmount.Mul(*rule.Percent).Div(decimal.NewFromInt(100)))
		} else if rule.Amount != nil {
			amount = valueobject.RoundMoney(*rule.Amount)
		}

		adjustment := billing.Adjustment{Description: rule.Name}
		switch rule.Kind {
		case billing.RuleKindDiscount:
			running := result.BaseAmount.Add(result.AdjustmentTotal())
			if amount.GreaterThan(running) {
				result.Warnings = append(result.Warnings, fmt.Sprintf("discount %q capped at %s", rule.Name, running))
				amount = decimal.Max(running, decimal.Zero)
			}
			adjustment.Type = billing.AdjustmentDiscount
			adjustment.Amount = amount.Neg()
		default:
			adjustment.Type = billing.AdjustmentSurcharge
			adjustment.Amount = amount
		}
		if adjustment.Amount.IsZero() {
			continue
		}
		result.Adjustments = append(result.Adjustments, adjustment)
		result.Details.AppliedRules = append(result.Details.AppliedRules, rule.Name)
	}
	return nil
}
