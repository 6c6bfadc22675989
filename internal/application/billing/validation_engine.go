package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/erp/utility-billing/internal/domain/billing"
	"github.com/erp/utility-billing/internal/domain/billing/formula"
	"github.com/erp/utility-billing/internal/domain/shared"
	"github.com/erp/utility-billing/internal/domain/shared/strategy"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ConfigRule names one check of the configuration rule set
type ConfigRule string

const (
	RuleRateScheduleStructure   ConfigRule = "rate_schedule_structure"
	RuleEffectiveDates          ConfigRule = "effective_dates"
	RuleConsumptionLimits       ConfigRule = "consumption_limits"
	RuleRateChangeTiming        ConfigRule = "rate_change_timing"
	RuleSeasonalAdjustmentRange ConfigRule = "seasonal_adjustment_range"
	RuleConditionalRules        ConfigRule = "conditional_rules"
	RuleDistributionFormula     ConfigRule = "distribution_formula"
	RuleConfigurationOverlap    ConfigRule = "configuration_overlap"
)

// AllConfigRules returns the configuration rules in evaluation order
func AllConfigRules() []ConfigRule {
	return []ConfigRule{
		RuleRateScheduleStructure,
		RuleEffectiveDates,
		RuleConsumptionLimits,
		RuleRateChangeTiming,
		RuleSeasonalAdjustmentRange,
		RuleConditionalRules,
		RuleDistributionFormula,
		RuleConfigurationOverlap,
	}
}

// SeasonalExpectation bounds the consumption between two readings of a meter
// type per season. Nil bounds are not checked.
type SeasonalExpectation struct {
	SummerMin *decimal.Decimal
	SummerMax *decimal.Decimal
	WinterMin *decimal.Decimal
	WinterMax *decimal.Decimal
}

// ValidationConfig contains the thresholds of the validation engine
type ValidationConfig struct {
	MaxConsumption         decimal.Decimal
	MinDailyConsumption    decimal.Decimal
	MaxDailyConsumption    decimal.Decimal
	VarianceThreshold      decimal.Decimal
	RateChangeMinDays      int
	MinReadingIntervalDays int
	MaxReadingIntervalDays int
	MaxDecimalPlaces       int
	AllowEstimated         bool
	RequirePhotoForOCR     bool
	MaxBatchSize           int
	HistoryMonths          int
	// RolloverHigh and RolloverLow are fractions of MaxConsumption
	RolloverHigh decimal.Decimal
	RolloverLow  decimal.Decimal
	// Seasonal multipliers outside this range are configuration errors
	MinSeasonalMultiplier decimal.Decimal
	MaxSeasonalMultiplier decimal.Decimal
	// Effective dates further away than these produce warnings
	PastEffectiveToleranceDays int
	FutureEffectiveWarningDays int
	SeasonalExpectations       map[billing.MeterType]SeasonalExpectation
}

// DefaultValidationConfig returns default configuration
func DefaultValidationConfig() ValidationConfig {
	return ValidationConfig{
		MaxConsumption:             decimal.RequireFromString("999999.99"),
		MinDailyConsumption:        decimal.Zero,
		MaxDailyConsumption:        decimal.NewFromInt(1000),
		VarianceThreshold:          decimal.RequireFromString("0.3"),
		RateChangeMinDays:          30,
		MinReadingIntervalDays:     1,
		MaxReadingIntervalDays:     35,
		MaxDecimalPlaces:           3,
		AllowEstimated:             true,
		RequirePhotoForOCR:         true,
		MaxBatchSize:               100,
		HistoryMonths:              12,
		RolloverHigh:               decimal.RequireFromString("0.9"),
		RolloverLow:                decimal.RequireFromString("0.1"),
		MinSeasonalMultiplier:      decimal.RequireFromString("0.5"),
		MaxSeasonalMultiplier:      decimal.NewFromInt(3),
		PastEffectiveToleranceDays: 1,
		FutureEffectiveWarningDays: 365,
		SeasonalExpectations: map[billing.MeterType]SeasonalExpectation{
			billing.MeterTypeHeating: {
				SummerMax: billing.DecimalPtr(decimal.NewFromInt(50)),
				WinterMin: billing.DecimalPtr(decimal.NewFromInt(100)),
			},
			billing.MeterTypeHotWater: {
				SummerMin: billing.DecimalPtr(decimal.NewFromInt(80)),
				SummerMax: billing.DecimalPtr(decimal.NewFromInt(150)),
				WinterMin: billing.DecimalPtr(decimal.NewFromInt(60)),
				WinterMax: billing.DecimalPtr(decimal.NewFromInt(120)),
			},
			billing.MeterTypeColdWater: {
				SummerMin: billing.DecimalPtr(decimal.NewFromInt(80)),
				SummerMax: billing.DecimalPtr(decimal.NewFromInt(150)),
				WinterMin: billing.DecimalPtr(decimal.NewFromInt(60)),
				WinterMax: billing.DecimalPtr(decimal.NewFromInt(120)),
			},
		},
	}
}

func (c ValidationConfig) withDefaults() ValidationConfig {
	d := DefaultValidationConfig()
	if !c.MaxConsumption.IsPositive() {
		c.MaxConsumption = d.MaxConsumption
	}
	if !c.MaxDailyConsumption.IsPositive() {
		c.MaxDailyConsumption = d.MaxDailyConsumption
	}
	if !c.VarianceThreshold.IsPositive() {
		c.VarianceThreshold = d.VarianceThreshold
	}
	if c.MinReadingIntervalDays < 0 {
		c.MinReadingIntervalDays = d.MinReadingIntervalDays
	}
	if c.MaxReadingIntervalDays <= 0 {
		c.MaxReadingIntervalDays = d.MaxReadingIntervalDays
	}
	if c.MaxDecimalPlaces <= 0 {
		c.MaxDecimalPlaces = d.MaxDecimalPlaces
	}
	if c.MaxBatchSize <= 0 {
		c.MaxBatchSize = d.MaxBatchSize
	}
	if c.HistoryMonths <= 0 {
		c.HistoryMonths = d.HistoryMonths
	}
	if !c.RolloverHigh.IsPositive() {
		c.RolloverHigh = d.RolloverHigh
	}
	if !c.RolloverLow.IsPositive() {
		c.RolloverLow = d.RolloverLow
	}
	if !c.MinSeasonalMultiplier.IsPositive() {
		c.MinSeasonalMultiplier = d.MinSeasonalMultiplier
	}
	if !c.MaxSeasonalMultiplier.IsPositive() {
		c.MaxSeasonalMultiplier = d.MaxSeasonalMultiplier
	}
	if c.FutureEffectiveWarningDays <= 0 {
		c.FutureEffectiveWarningDays = d.FutureEffectiveWarningDays
	}
	if c.SeasonalExpectations == nil {
		c.SeasonalExpectations = d.SeasonalExpectations
	}
	return c
}

// ValidationEngine gates configurations and meter readings before they are
// used for billing. Configuration checks accumulate every violation; reading
// checks stop at the first rejection.
type ValidationEngine struct {
	configs   billing.ServiceConfigurationReader
	tariffs   billing.TariffReader
	meters    billing.MeterReader
	readings  billing.MeterReadingReader
	adjuster  *billing.SeasonalAdjuster
	evaluator *formula.Evaluator
	clock     shared.Clock
	logger    *zap.Logger
	metrics   MetricsRecorder
	config    ValidationConfig
}

// NewValidationEngine creates a new ValidationEngine. The readers may be nil
// when only the checks that do not need them are used.
func NewValidationEngine(
	configs billing.ServiceConfigurationReader,
	tariffs billing.TariffReader,
	meters billing.MeterReader,
	readings billing.MeterReadingReader,
	adjuster *billing.SeasonalAdjuster,
	clock shared.Clock,
	logger *zap.Logger,
	metrics MetricsRecorder,
	config ValidationConfig,
) *ValidationEngine {
	if clock == nil {
		clock = shared.SystemClock()
	}
	return &ValidationEngine{
		configs:   configs,
		tariffs:   tariffs,
		meters:    meters,
		readings:  readings,
		adjuster:  adjuster,
		evaluator: formula.NewEvaluator(),
		clock:     clock,
		logger:    logger.Named("validation"),
		metrics:   orNop(metrics),
		config:    config.withDefaults(),
	}
}

// Config returns the effective thresholds
func (v *ValidationEngine) Config() ValidationConfig {
	return v.config
}

// ValidateConfiguration runs every configuration rule and returns all
// violations. Repository failures of a rule are reported as warnings of
// that rule.
func (v *ValidationEngine) ValidateConfiguration(ctx context.Context, cfg *billing.ServiceConfiguration) strategy.ValidationResult {
	result := strategy.NewValidationResult()
	if cfg == nil {
		result.AddError(string(RuleRateScheduleStructure), "configuration", "REQUIRED", "configuration is required")
		return result
	}
	for _, rule := range AllConfigRules() {
		v.checkConfigRule(ctx, rule, cfg, &result)
	}

	v.metrics.IncConfigurationValidation(result.IsValid)
	if !result.IsValid {
		v.logger.Info("Configuration failed validation",
			zap.String("service_configuration_id", cfg.ID.String()),
			zap.Int("errors", len(result.Errors)),
			zap.Int("warnings", len(result.Warnings)))
	}
	return result
}

// ValidateConfigurationRule runs a single rule
func (v *ValidationEngine) ValidateConfigurationRule(ctx context.Context, rule ConfigRule, cfg *billing.ServiceConfiguration) strategy.ValidationResult {
	result := strategy.NewValidationResult()
	v.checkConfigRule(ctx, rule, cfg, &result)
	return result
}

func (v *ValidationEngine) checkConfigRule(ctx context.Context, rule ConfigRule, cfg *billing.ServiceConfiguration, r *strategy.ValidationResult) {
	switch rule {
	case RuleRateScheduleStructure:
		v.checkScheduleStructure(cfg, r)
	case RuleEffectiveDates:
		v.checkEffectiveDates(cfg, r)
	case RuleConsumptionLimits:
		v.checkConsumptionLimits(cfg, r)
	case RuleRateChangeTiming:
		v.checkRateChangeTiming(ctx, cfg, r)
	case RuleSeasonalAdjustmentRange:
		v.checkSeasonalRange(cfg, r)
	case RuleConditionalRules:
		v.checkConditionalRules(cfg, r)
	case RuleDistributionFormula:
		v.checkDistributionFormula(cfg, r)
	case RuleConfigurationOverlap:
		v.checkOverlap(ctx, cfg, r)
	}
}

func addViolations(r *strategy.ValidationResult, rule ConfigRule, violations []billing.FieldViolation) {
	for _, fv := range violations {
		r.AddError(string(rule), fv.Field, fv.Code, fv.Message)
	}
}

func (v *ValidationEngine) checkScheduleStructure(cfg *billing.ServiceConfiguration, r *strategy.ValidationResult) {
	rule := string(RuleRateScheduleStructure)
	switch {
	case !cfg.PricingModel.IsValid():
		r.AddError(rule, "pricingModel", shared.ErrUnsupportedModel.Code, fmt.Sprintf("unsupported pricing model %q", cfg.PricingModel))
	case cfg.RateSchedule == nil:
		r.AddError(rule, "rateSchedule", "REQUIRED", "rate schedule is required")
	case cfg.RateSchedule.Model() != cfg.PricingModel:
		r.AddError(rule, "rateSchedule", "MODEL_MISMATCH",
			fmt.Sprintf("rate schedule is for %s but the pricing model is %s", cfg.RateSchedule.Model(), cfg.PricingModel))
	default:
		addViolations(r, RuleRateScheduleStructure, cfg.RateSchedule.Validate())
	}
	if cfg.DistributionMethod != "" && !cfg.DistributionMethod.IsValid() {
		r.AddError(rule, "distributionMethod", "INVALID_METHOD", fmt.Sprintf("unknown distribution method %q", cfg.DistributionMethod))
	}
}

func (v *ValidationEngine) checkEffectiveDates(cfg *billing.ServiceConfiguration, r *strategy.ValidationResult) {
	rule := string(RuleEffectiveDates)
	if cfg.EffectiveFrom.IsZero() {
		r.AddError(rule, "effectiveFrom", "REQUIRED", "effective from date is required")
		return
	}
	if cfg.EffectiveUntil != nil && cfg.EffectiveFrom.After(*cfg.EffectiveUntil) {
		r.AddError(rule, "effectiveUntil", "INVALID_RANGE", "effective until must not be before effective from")
	}

	today := v.clock.Now()
	if cfg.EffectiveFrom.Before(today.AddDate(0, 0, -v.config.PastEffectiveToleranceDays)) {
		r.AddWarning(rule, "effectiveFrom", "PAST_DATE", "effective from date lies in the past; existing bills are not recalculated")
	}
	if cfg.EffectiveFrom.After(today.AddDate(0, 0, v.config.FutureEffectiveWarningDays)) {
		r.AddWarning(rule, "effectiveFrom", "FAR_FUTURE", fmt.Sprintf("effective from date is more than %d days ahead", v.config.FutureEffectiveWarningDays))
	}
}

func (v *ValidationEngine) checkConsumptionLimits(cfg *billing.ServiceConfiguration, r *strategy.ValidationResult) {
	if cfg.ConsumptionLimits == nil {
		return
	}
	addViolations(r, RuleConsumptionLimits, cfg.ConsumptionLimits.Validate())
	if limit := cfg.ConsumptionLimits.MaxDaily; limit != nil && limit.GreaterThan(v.config.MaxDailyConsumption) {
		r.AddWarning(string(RuleConsumptionLimits), "consumptionLimits.maxDaily", "ABOVE_GLOBAL_LIMIT",
			fmt.Sprintf("maxDaily %s is above the global limit %s", limit, v.config.MaxDailyConsumption))
	}
	if limit := cfg.ConsumptionLimits.MaxMonthly; limit != nil && limit.GreaterThan(v.config.MaxConsumption) {
		r.AddError(string(RuleConsumptionLimits), "consumptionLimits.maxMonthly", "OUT_OF_RANGE",
			fmt.Sprintf("maxMonthly %s exceeds the consumption sanity bound %s", limit, v.config.MaxConsumption))
	}
}

func (v *ValidationEngine) checkRateChangeTiming(ctx context.Context, cfg *billing.ServiceConfiguration, r *strategy.ValidationResult) {
	rule := string(RuleRateChangeTiming)
	if cfg.TariffID != nil && v.tariffs != nil {
		tariff, err := v.tariffs.FindByID(ctx, *cfg.TariffID)
		switch {
		case errors.Is(err, shared.ErrNotFound):
			r.AddError(rule, "tariffId", "NOT_FOUND", "linked tariff does not exist")
		case err != nil:
			r.AddWarning(rule, "tariffId", "LOOKUP_FAILED", fmt.Sprintf("could not check the linked tariff: %v", err))
		case !tariff.IsActiveOn(cfg.EffectiveFrom):
			r.AddError(rule, "tariffId", "TARIFF_INACTIVE",
				fmt.Sprintf("tariff %s is not active on %s", tariff.Name, cfg.EffectiveFrom.Format(time.DateOnly)))
		}
	}

	if v.configs == nil || v.config.RateChangeMinDays <= 0 {
		return
	}
	others, err := v.configs.FindActiveForService(ctx, cfg.PropertyID, cfg.UtilityServiceID)
	if err != nil {
		r.AddWarning(rule, "effectiveFrom", "LOOKUP_FAILED", fmt.Sprintf("could not check previous rate changes: %v", err))
		return
	}
	for _, other := range others {
		if other.ID == cfg.ID {
			continue
		}
		gap := cfg.EffectiveFrom.Sub(other.EffectiveFrom)
		if gap < 0 {
			gap = -gap
		}
		if days := int(gap.Hours() / 24); days < v.config.RateChangeMinDays {
			r.AddWarning(rule, "effectiveFrom", "TOO_FREQUENT",
				fmt.Sprintf("rate changes %d days after configuration %s; at least %d days are expected", days, other.ID, v.config.RateChangeMinDays))
		}
	}
}

func (v *ValidationEngine) checkSeasonalRange(cfg *billing.ServiceConfiguration, r *strategy.ValidationResult) {
	seasonal, ok := cfg.RateSchedule.(billing.SeasonallyAdjusted)
	if !ok || seasonal.Seasonal() == nil {
		return
	}
	adj := seasonal.Seasonal()
	for _, f := range []struct {
		field string
		value *decimal.Decimal
	}{
		{"seasonalAdjustments.summerMultiplier", adj.SummerMultiplier},
		{"seasonalAdjustments.winterMultiplier", adj.WinterMultiplier},
	} {
		if f.value == nil {
			continue
		}
		if f.value.LessThan(v.config.MinSeasonalMultiplier) || f.value.GreaterThan(v.config.MaxSeasonalMultiplier) {
			r.AddError(string(RuleSeasonalAdjustmentRange), f.field, "OUT_OF_RANGE",
				fmt.Sprintf("multiplier %s outside [%s, %s]", f.value, v.config.MinSeasonalMultiplier, v.config.MaxSeasonalMultiplier))
		}
	}
}

func (v *ValidationEngine) checkConditionalRules(cfg *billing.ServiceConfiguration, r *strategy.ValidationResult) {
	if len(cfg.Rules) == 0 {
		return
	}
	allowed := cfg.RuleVariables()
	seen := make(map[string]bool, len(cfg.Rules))
	for i, rule := range cfg.Rules {
		addViolations(r, RuleConditionalRules, rule.Validate(i, allowed))
		if name := strings.TrimSpace(rule.Name); name != "" {
			if seen[name] {
				r.AddWarning(string(RuleConditionalRules), fmt.Sprintf("rules[%d].name", i), "DUPLICATE_NAME", fmt.Sprintf("rule name %q is used more than once", name))
			}
			seen[name] = true
		}
	}
}

func (v *ValidationEngine) checkDistributionFormula(cfg *billing.ServiceConfiguration, r *strategy.ValidationResult) {
	rule := string(RuleDistributionFormula)
	if cfg.DistributionMethod != billing.DistributionCustomFormula {
		if cfg.DistributionFormula != "" {
			r.AddWarning(rule, "distributionFormula", "UNUSED", "distribution formula is ignored by the selected method")
		}
		return
	}
	if strings.TrimSpace(cfg.DistributionFormula) == "" {
		r.AddError(rule, "distributionFormula", "REQUIRED", "custom_formula distribution requires a formula")
		return
	}
	if err := v.evaluator.Validate(cfg.DistributionFormula, billing.DistributionFormulaVariables); err != nil {
		r.AddError(rule, "distributionFormula", "INVALID_FORMULA", err.Error())
	}
}

func (v *ValidationEngine) checkOverlap(ctx context.Context, cfg *billing.ServiceConfiguration, r *strategy.ValidationResult) {
	if v.configs == nil || !cfg.IsActive {
		return
	}
	rule := string(RuleConfigurationOverlap)
	others, err := v.configs.FindActiveForService(ctx, cfg.PropertyID, cfg.UtilityServiceID)
	if err != nil {
		r.AddWarning(rule, "effectiveFrom", "LOOKUP_FAILED", fmt.Sprintf("could not check overlapping configurations: %v", err))
		return
	}
	for _, other := range others {
		if other.ID == cfg.ID || !other.IsActive {
			continue
		}
		if cfg.Overlaps(other) {
			r.AddWarning(rule, "effectiveFrom", "OVERLAP",
				fmt.Sprintf("effective period overlaps active configuration %s", other.ID))
		}
	}
}
