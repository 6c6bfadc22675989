package billing

import (
	"time"

	"github.com/erp/utility-billing/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AdjustmentType classifies an entry of CalculationResult.Adjustments
type AdjustmentType string

const (
	AdjustmentSeasonal  AdjustmentType = "seasonal_adjustment"
	AdjustmentSurcharge AdjustmentType = "surcharge"
	AdjustmentDiscount  AdjustmentType = "discount"
)

// Adjustment is a signed delta applied on top of the base amount
type Adjustment struct {
	Type        AdjustmentType  `json:"type"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
}

// CalculationMode records which path a dual-mode schedule took
type CalculationMode string

const (
	ModeFixed       CalculationMode = "fixed"
	ModeConsumption CalculationMode = "consumption"
	ModeHybrid      CalculationMode = "hybrid"
)

// TierLine is the per-tier breakdown of a tiered calculation
type TierLine struct {
	Tier        int              `json:"tier"`
	Limit       *decimal.Decimal `json:"limit,omitempty"`
	Rate        decimal.Decimal  `json:"rate"`
	Consumption decimal.Decimal  `json:"consumption"`
	Amount      decimal.Decimal  `json:"amount"`
}

// ZoneLine is the per-zone breakdown of a time-of-use calculation
type ZoneLine struct {
	Zone        string          `json:"zone"`
	Rate        decimal.Decimal `json:"rate"`
	Consumption decimal.Decimal `json:"consumption"`
	Amount      decimal.Decimal `json:"amount"`
}

// CalculationDetails is the model-specific diagnostic breakdown
type CalculationDetails struct {
	Season             Season                     `json:"season"`
	SeasonalMultiplier decimal.Decimal            `json:"seasonalMultiplier"`
	ProrationFactor    decimal.Decimal            `json:"prorationFactor"`
	PeriodDays         int                        `json:"periodDays"`
	IsPartialPeriod    bool                       `json:"isPartialPeriod"`
	Consumption        decimal.Decimal            `json:"consumption"`
	UnitRate           *decimal.Decimal           `json:"unitRate,omitempty"`
	MonthlyRate        *decimal.Decimal           `json:"monthlyRate,omitempty"`
	TierBreakdown      []TierLine                 `json:"tierBreakdown,omitempty"`
	ZoneBreakdown      []ZoneLine                 `json:"zoneBreakdown,omitempty"`
	Formula            string                     `json:"formula,omitempty"`
	Variables          map[string]decimal.Decimal `json:"variables,omitempty"`
	Mode               CalculationMode            `json:"mode,omitempty"`
	AppliedRules       []string                   `json:"appliedRules,omitempty"`
}

// TariffSnapshot captures the exact rate configuration used for one
// calculation so the amount can be reproduced later
type TariffSnapshot struct {
	ServiceConfigurationID uuid.UUID          `json:"serviceConfigurationId"`
	PricingModel           PricingModel       `json:"pricingModel"`
	RateSchedule           map[string]any     `json:"rateSchedule"`
	DistributionMethod     DistributionMethod `json:"distributionMethod"`
	EffectiveFrom          time.Time          `json:"effectiveFrom"`
	EffectiveUntil         *time.Time         `json:"effectiveUntil,omitempty"`
	Rules                  []ConditionalRule  `json:"rules,omitempty"`
	SnapshotCreatedAt      time.Time          `json:"snapshotCreatedAt"`
}

// NewTariffSnapshot captures cfg at now
func NewTariffSnapshot(cfg *ServiceConfiguration, now time.Time) (TariffSnapshot, error) {
	schedule, err := ScheduleSnapshot(cfg.RateSchedule)
	if err != nil {
		return TariffSnapshot{}, err
	}
	return TariffSnapshot{
		ServiceConfigurationID: cfg.ID,
		PricingModel:           cfg.PricingModel,
		RateSchedule:           schedule,
		DistributionMethod:     cfg.DistributionMethod,
		EffectiveFrom:          cfg.EffectiveFrom,
		EffectiveUntil:         cfg.EffectiveUntil,
		Rules:                  cfg.Rules,
		SnapshotCreatedAt:      now,
	}, nil
}

// CalculationResult is the auditable outcome of pricing one configuration
// for one period
type CalculationResult struct {
	ServiceConfigurationID uuid.UUID            `json:"serviceConfigurationId"`
	TotalAmount            decimal.Decimal      `json:"totalAmount"`
	BaseAmount             decimal.Decimal      `json:"baseAmount"`
	ConsumptionAmount      decimal.Decimal      `json:"consumptionAmount"`
	FixedAmount            decimal.Decimal      `json:"fixedAmount"`
	Currency               valueobject.Currency `json:"currency"`
	Adjustments            []Adjustment         `json:"adjustments"`
	TariffSnapshot         TariffSnapshot       `json:"tariffSnapshot"`
	Details                CalculationDetails   `json:"calculationDetails"`
	Period                 BillingPeriod        `json:"period"`
	Warnings               []string             `json:"warnings,omitempty"`
	Fingerprint            string               `json:"fingerprint,omitempty"`
	FromCache              bool                 `json:"fromCache"`
	CalculatedAt           time.Time            `json:"calculatedAt"`
}

// AdjustmentTotal returns the signed sum of all adjustments
func (r *CalculationResult) AdjustmentTotal() decimal.Decimal {
	total := decimal.Zero
	for _, a := range r.Adjustments {
		total = total.Add(a.Amount)
	}
	return total
}

// Finalize recomputes BaseAmount and TotalAmount from the components
func (r *CalculationResult) Finalize() {
	r.ConsumptionAmount = valueobject.RoundMoney(r.ConsumptionAmount)
	r.FixedAmount = valueobject.RoundMoney(r.FixedAmount)
	r.BaseAmount = r.ConsumptionAmount.Add(r.FixedAmount)
	r.TotalAmount = r.BaseAmount.Add(r.AdjustmentTotal())
}

// Reconciles reports whether Total = Consumption + Fixed + Σ adjustments
// within one minor unit
func (r *CalculationResult) Reconciles() bool {
	expected := r.ConsumptionAmount.Add(r.FixedAmount).Add(r.AdjustmentTotal())
	return valueobject.WithinMinorUnit(r.TotalAmount, expected)
}
