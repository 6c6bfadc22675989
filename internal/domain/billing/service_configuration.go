package billing

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/erp/utility-billing/internal/domain/billing/formula"
	"github.com/erp/utility-billing/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ConsumptionLimits bounds the implied daily consumption of readings for a
// service and optionally the monthly total
type ConsumptionLimits struct {
	MinDaily   *decimal.Decimal `json:"minDaily,omitempty"`
	MaxDaily   *decimal.Decimal `json:"maxDaily,omitempty"`
	MaxMonthly *decimal.Decimal `json:"maxMonthly,omitempty"`
}

// Validate returns the invalid limit fields
func (l *ConsumptionLimits) Validate() []FieldViolation {
	if l == nil {
		return nil
	}
	var out []FieldViolation
	for _, f := range []struct {
		name string
		v    *decimal.Decimal
	}{{"consumptionLimits.minDaily", l.MinDaily}, {"consumptionLimits.maxDaily", l.MaxDaily}, {"consumptionLimits.maxMonthly", l.MaxMonthly}} {
		if f.v != nil && f.v.IsNegative() {
			out = append(out, negative(f.name))
		}
	}
	if l.MinDaily != nil && l.MaxDaily != nil && l.MinDaily.GreaterThan(*l.MaxDaily) {
		out = append(out, FieldViolation{
			Field:   "consumptionLimits",
			Code:    "MIN_EXCEEDS_MAX",
			Message: fmt.Sprintf("minDaily %s exceeds maxDaily %s", l.MinDaily, l.MaxDaily),
		})
	}
	return out
}

// RuleKind says whether a conditional rule raises or lowers the amount
type RuleKind string

const (
	RuleKindSurcharge RuleKind = "surcharge"
	RuleKindDiscount  RuleKind = "discount"
)

// IsValid returns true if the rule kind is known
func (k RuleKind) IsValid() bool {
	return k == RuleKindSurcharge || k == RuleKindDiscount
}

// ConditionalRule adds a surcharge or discount when Condition evaluates to a
// non-zero value. Exactly one of Percent (of the base amount) and Amount is set.
type ConditionalRule struct {
	Name      string           `json:"name"`
	Condition string           `json:"condition"`
	Kind      RuleKind         `json:"kind"`
	Percent   *decimal.Decimal `json:"percent,omitempty"`
	Amount    *decimal.Decimal `json:"amount,omitempty"`
}

// Validate returns every invalid field of the rule. allowed lists the
// variables the condition may reference.
func (r ConditionalRule) Validate(index int, allowed []string) []FieldViolation {
	prefix := fmt.Sprintf("rules[%d]", index)
	var out []FieldViolation
	if strings.TrimSpace(r.Name) == "" {
		out = append(out, required(prefix+".name"))
	}
	if strings.TrimSpace(r.Condition) == "" {
		out = append(out, required(prefix+".condition"))
	} else if err := formula.NewEvaluator().Validate(r.Condition, allowed); err != nil {
		out = append(out, FieldViolation{Field: prefix + ".condition", Code: "INVALID_FORMULA", Message: err.Error()})
	}
	if !r.Kind.IsValid() {
		out = append(out, FieldViolation{Field: prefix + ".kind", Code: "INVALID_KIND", Message: "kind must be surcharge or discount"})
	}
	switch {
	case r.Percent == nil && r.Amount == nil:
		out = append(out, FieldViolation{Field: prefix + ".percent|amount", Code: "REQUIRED", Message: "either percent or amount is required"})
	case r.Percent != nil && r.Amount != nil:
		out = append(out, FieldViolation{Field: prefix + ".percent|amount", Code: "AMBIGUOUS", Message: "percent and amount are mutually exclusive"})
	case r.Percent != nil && (r.Percent.IsNegative() || r.Percent.GreaterThan(decimal.NewFromInt(100))):
		out = append(out, FieldViolation{Field: prefix + ".percent", Code: "OUT_OF_RANGE", Message: "percent must be between 0 and 100"})
	case r.Amount != nil && r.Amount.IsNegative():
		out = append(out, negative(prefix+".amount"))
	}
	return out
}

// ServiceConfiguration binds a property and utility service to a pricing
// model and its rate schedule for an effective date range. It is owned by an
// administrative collaborator and read-only to calculations.
type ServiceConfiguration struct {
	ID                  uuid.UUID          `json:"id"`
	PropertyID          uuid.UUID          `json:"propertyId"`
	UtilityServiceID    uuid.UUID          `json:"utilityServiceId"`
	ServiceType         string             `json:"serviceType,omitempty"`
	PricingModel        PricingModel       `json:"pricingModel"`
	RateSchedule        RateSchedule       `json:"-"`
	DistributionMethod  DistributionMethod `json:"distributionMethod"`
	DistributionFormula string             `json:"distributionFormula,omitempty"`
	EffectiveFrom       time.Time          `json:"effectiveFrom"`
	EffectiveUntil      *time.Time         `json:"effectiveUntil,omitempty"`
	IsActive            bool               `json:"isActive"`
	TariffID            *uuid.UUID         `json:"tariffId,omitempty"`
	ProviderID          *uuid.UUID         `json:"providerId,omitempty"`
	ConsumptionLimits   *ConsumptionLimits `json:"consumptionLimits,omitempty"`
	Rules               []ConditionalRule  `json:"rules,omitempty"`
	UpdatedAt           time.Time          `json:"updatedAt"`
}

// ServiceConfigurationParams carries the fields of a new configuration
type ServiceConfigurationParams struct {
	PropertyID          uuid.UUID
	UtilityServiceID    uuid.UUID
	ServiceType         string
	PricingModel        PricingModel
	RateSchedule        RateSchedule
	DistributionMethod  DistributionMethod
	DistributionFormula string
	EffectiveFrom       time.Time
	EffectiveUntil      *time.Time
	TariffID            *uuid.UUID
	ProviderID          *uuid.UUID
	ConsumptionLimits   *ConsumptionLimits
	Rules               []ConditionalRule
}

// NewServiceConfiguration creates an active configuration, failing when the
// schedule does not match the pricing model, misses required fields, or the
// effective dates are inverted
func NewServiceConfiguration(p ServiceConfigurationParams, now time.Time) (*ServiceConfiguration, error) {
	cfg := &ServiceConfiguration{
		ID:                  uuid.New(),
		PropertyID:          p.PropertyID,
		UtilityServiceID:    p.UtilityServiceID,
		ServiceType:         p.ServiceType,
		PricingModel:        p.PricingModel,
		RateSchedule:        p.RateSchedule,
		DistributionMethod:  p.DistributionMethod,
		DistributionFormula: p.DistributionFormula,
		EffectiveFrom:       p.EffectiveFrom,
		EffectiveUntil:      p.EffectiveUntil,
		IsActive:            true,
		TariffID:            p.TariffID,
		ProviderID:          p.ProviderID,
		ConsumptionLimits:   p.ConsumptionLimits,
		Rules:               p.Rules,
		UpdatedAt:           now,
	}
	if cfg.DistributionMethod == "" {
		cfg.DistributionMethod = DistributionEqual
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the structural invariants every configuration must hold
// before it can be priced
func (c *ServiceConfiguration) Validate() error {
	if !c.PricingModel.IsValid() {
		return fmt.Errorf("%w: %q", shared.ErrUnsupportedModel, c.PricingModel)
	}
	if c.RateSchedule == nil {
		return &ScheduleError{Model: c.PricingModel, Violations: []FieldViolation{required("rateSchedule")}}
	}
	if c.RateSchedule.Model() != c.PricingModel {
		return fmt.Errorf("%w: rate schedule is for %s but the pricing model is %s",
			shared.ErrInvalidConfiguration, c.RateSchedule.Model(), c.PricingModel)
	}
	if err := ValidateSchedule(c.RateSchedule); err != nil {
		return err
	}
	if c.EffectiveFrom.IsZero() {
		return fmt.Errorf("%w: effectiveFrom is required", shared.ErrInvalidConfiguration)
	}
	if c.EffectiveUntil != nil && c.EffectiveFrom.After(*c.EffectiveUntil) {
		return fmt.Errorf("%w: effectiveFrom %s is after effectiveUntil %s", shared.ErrInvalidConfiguration,
			c.EffectiveFrom.Format(time.DateOnly), c.EffectiveUntil.Format(time.DateOnly))
	}
	if c.DistributionMethod != "" && !c.DistributionMethod.IsValid() {
		return fmt.Errorf("%w: unknown distribution method %q", shared.ErrInvalidConfiguration, c.DistributionMethod)
	}
	return nil
}

// IsEffectiveOn reports whether the configuration applies on date
func (c *ServiceConfiguration) IsEffectiveOn(date time.Time) bool {
	d := dateOf(date)
	if d.Before(dateOf(c.EffectiveFrom)) {
		return false
	}
	return c.EffectiveUntil == nil || !d.After(dateOf(*c.EffectiveUntil))
}

// Overlaps reports whether the effective windows of c and other intersect
func (c *ServiceConfiguration) Overlaps(other *ServiceConfiguration) bool {
	if c.EffectiveUntil != nil && dateOf(other.EffectiveFrom).After(dateOf(*c.EffectiveUntil)) {
		return false
	}
	if other.EffectiveUntil != nil && dateOf(c.EffectiveFrom).After(dateOf(*other.EffectiveUntil)) {
		return false
	}
	return true
}

// RuleVariables returns the variables a conditional rule condition may use
func (c *ServiceConfiguration) RuleVariables() []string {
	if s, ok := c.RateSchedule.(*CustomFormulaSchedule); ok {
		return s.AllowedVariables()
	}
	return append([]string{}, ReservedFormulaVariables...)
}

type serviceConfigurationJSON ServiceConfiguration

// MarshalJSON renders the configuration with its rate schedule inline
func (c ServiceConfiguration) MarshalJSON() ([]byte, error) {
	var schedule json.RawMessage
	if c.RateSchedule != nil {
		raw, err := MarshalRateSchedule(c.RateSchedule)
		if err != nil {
			return nil, err
		}
		schedule = raw
	}
	return json.Marshal(struct {
		serviceConfigurationJSON
		RateSchedule json.RawMessage `json:"rateSchedule,omitempty"`
	}{serviceConfigurationJSON(c), schedule})
}

// UnmarshalJSON decodes a configuration and parses its rate schedule for the
// declared pricing model
func (c *ServiceConfiguration) UnmarshalJSON(data []byte) error {
	var aux struct {
		serviceConfigurationJSON
		RateSchedule json.RawMessage `json:"rateSchedule"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*c = ServiceConfiguration(aux.serviceConfigurationJSON)
	if len(aux.RateSchedule) == 0 || string(aux.RateSchedule) == "null" {
		return nil
	}
	schedule, err := ParseRateSchedule(c.PricingModel, aux.RateSchedule)
	if err != nil {
		return err
	}
	c.RateSchedule = schedule
	return nil
}
