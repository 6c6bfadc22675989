package billing

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/erp/utility-billing/internal/domain/billing/formula"
	"github.com/erp/utility-billing/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// maxSeasonalMultiplier bounds seasonal multipliers to a sane range
var maxSeasonalMultiplier = decimal.NewFromInt(10)

// DefaultZone is the zone used when consumption has no zone breakdown
const DefaultZone = "default"

// ReservedFormulaVariables are supplied by the calculator; rate schedules cannot redefine them
var ReservedFormulaVariables = []string{"consumption", "days", "month", "year", "is_summer", "is_winter"}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// FieldViolation describes one invalid or missing field of a configuration
type FieldViolation struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (v FieldViolation) Error() string {
	return fmt.Sprintf("%s: %s", v.Field, v.Message)
}

func required(field string) FieldViolation {
	return FieldViolation{Field: field, Code: "REQUIRED", Message: "field is required"}
}

func negative(field string) FieldViolation {
	return FieldViolation{Field: field, Code: "NEGATIVE", Message: "value cannot be negative"}
}

// ScheduleError reports every violation found in a rate schedule
type ScheduleError struct {
	Model      PricingModel
	Violations []FieldViolation
}

// Error implements the error interface
func (e *ScheduleError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.Error()
	}
	return fmt.Sprintf("%s: invalid %s rate schedule: %s", shared.ErrInvalidConfiguration.Message, e.Model, strings.Join(parts, "; "))
}

// Unwrap lets callers match shared.ErrInvalidConfiguration
func (e *ScheduleError) Unwrap() error {
	return shared.ErrInvalidConfiguration
}

// RateSchedule is the pricing-model specific part of a ServiceConfiguration.
// Each pricing model has exactly one concrete implementation.
type RateSchedule interface {
	// Model returns the pricing model this schedule belongs to
	Model() PricingModel
	// Validate returns every missing or invalid field
	Validate() []FieldViolation
}

// SeasonallyAdjusted is implemented by schedules with a fixed component that
// may carry seasonal multipliers
type SeasonallyAdjusted interface {
	Seasonal() *SeasonalAdjustments
}

// DecimalPtr returns a pointer to d
func DecimalPtr(d decimal.Decimal) *decimal.Decimal {
	return &d
}

// SeasonalAdjustments holds optional per-season multipliers. Absent
// multipliers mean 1.0.
type SeasonalAdjustments struct {
	SummerMultiplier *decimal.Decimal `json:"summerMultiplier,omitempty"`
	WinterMultiplier *decimal.Decimal `json:"winterMultiplier,omitempty"`
}

// Multiplier returns the multiplier configured for season, or 1
func (s *SeasonalAdjustments) Multiplier(season Season) decimal.Decimal {
	one := decimal.NewFromInt(1)
	if s == nil {
		return one
	}
	switch season {
	case SeasonSummer:
		if s.SummerMultiplier != nil {
			return *s.SummerMultiplier
		}
	case SeasonWinter:
		if s.WinterMultiplier != nil {
			return *s.WinterMultiplier
		}
	}
	return one
}

func (s *SeasonalAdjustments) validate() []FieldViolation {
	if s == nil {
		return nil
	}
	var out []FieldViolation
	check := func(field string, m *decimal.Decimal) {
		if m == nil {
			return
		}
		if !m.IsPositive() || m.GreaterThan(maxSeasonalMultiplier) {
			out = append(out, FieldViolation{
				Field:   field,
				Code:    "OUT_OF_RANGE",
				Message: fmt.Sprintf("multiplier must be greater than 0 and at most %s", maxSeasonalMultiplier),
			})
		}
	}
	check("seasonalAdjustments.summerMultiplier", s.SummerMultiplier)
	check("seasonalAdjustments.winterMultiplier", s.WinterMultiplier)
	return out
}

func checkRate(field string, v *decimal.Decimal) []FieldViolation {
	if v == nil {
		return []FieldViolation{required(field)}
	}
	if v.IsNegative() {
		return []FieldViolation{negative(field)}
	}
	return nil
}

// FixedMonthlySchedule charges a flat monthly rate
type FixedMonthlySchedule struct {
	MonthlyRate         *decimal.Decimal     `json:"monthlyRate"`
	SeasonalAdjustments *SeasonalAdjustments `json:"seasonalAdjustments,omitempty"`
}

// Model implements RateSchedule
func (s *FixedMonthlySchedule) Model() PricingModel { return PricingModelFixedMonthly }

// Seasonal implements SeasonallyAdjusted
func (s *FixedMonthlySchedule) Seasonal() *SeasonalAdjustments { return s.SeasonalAdjustments }

// Validate implements RateSchedule
func (s *FixedMonthlySchedule) Validate() []FieldViolation {
	out := checkRate("monthlyRate", s.MonthlyRate)
	return append(out, s.SeasonalAdjustments.validate()...)
}

// ConsumptionBasedSchedule charges a linear unit rate
type ConsumptionBasedSchedule struct {
	UnitRate *decimal.Decimal `json:"unitRate"`
}

// Model implements RateSchedule
func (s *ConsumptionBasedSchedule) Model() PricingModel { return PricingModelConsumptionBased }

// Validate implements RateSchedule
func (s *ConsumptionBasedSchedule) Validate() []FieldViolation {
	return checkRate("unitRate", s.UnitRate)
}

// Tier is one consumption bracket. A nil Limit means unbounded.
type Tier struct {
	Limit *decimal.Decimal `json:"limit"`
	Rate  *decimal.Decimal `json:"rate"`
}

// IsUnbounded returns true for the open-ended last tier
func (t Tier) IsUnbounded() bool {
	return t.Limit == nil
}

// TieredSchedule bills consumption brackets at increasing limits
type TieredSchedule struct {
	Tiers []Tier `json:"tiers"`
}

// Model implements RateSchedule
func (s *TieredSchedule) Model() PricingModel { return PricingModelTieredRates }

// Validate implements RateSchedule
func (s *TieredSchedule) Validate() []FieldViolation {
	if len(s.Tiers) == 0 {
		return []FieldViolation{required("tiers")}
	}
	var out []FieldViolation
	unbounded := 0
	seen := make(map[string]bool)
	for i, t := range s.Tiers {
		field := fmt.Sprintf("tiers[%d]", i)
		out = append(out, checkRate(field+".rate", t.Rate)...)
		if t.Limit == nil {
			unbounded++
			continue
		}
		if !t.Limit.IsPositive() {
			out = append(out, FieldViolation{Field: field + ".limit", Code: "NOT_POSITIVE", Message: "limit must be positive"})
		}
		key := t.Limit.String()
		if seen[key] {
			out = append(out, FieldViolation{Field: field + ".limit", Code: "DUPLICATE", Message: "duplicate tier limit " + key})
		}
		seen[key] = true
	}
	if unbounded > 1 {
		out = append(out, FieldViolation{Field: "tiers", Code: "MULTIPLE_UNBOUNDED", Message: "only one tier may be unbounded"})
	}
	return out
}

// SortedTiers returns a copy of the tiers ordered by ascending limit, with the
// unbounded tier last
func (s *TieredSchedule) SortedTiers() []Tier {
	sorted := make([]Tier, len(s.Tiers))
	copy(sorted, s.Tiers)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Limit == nil {
			return false
		}
		if sorted[j].Limit == nil {
			return true
		}
		return sorted[i].Limit.LessThan(*sorted[j].Limit)
	})
	return sorted
}

// HybridSchedule combines a fixed fee with a unit rate
type HybridSchedule struct {
	FixedFee            *decimal.Decimal     `json:"fixedFee"`
	UnitRate            *decimal.Decimal     `json:"unitRate"`
	SeasonalAdjustments *SeasonalAdjustments `json:"seasonalAdjustments,omitempty"`
}

// Model implements RateSchedule
func (s *HybridSchedule) Model() PricingModel { return PricingModelHybrid }

// Seasonal implements SeasonallyAdjusted
func (s *HybridSchedule) Seasonal() *SeasonalAdjustments { return s.SeasonalAdjustments }

// Validate implements RateSchedule
func (s *HybridSchedule) Validate() []FieldViolation {
	out := checkRate("fixedFee", s.FixedFee)
	out = append(out, checkRate("unitRate", s.UnitRate)...)
	return append(out, s.SeasonalAdjustments.validate()...)
}

// TimeOfUseSchedule prices each consumption zone separately
type TimeOfUseSchedule struct {
	ZoneRates map[string]decimal.Decimal `json:"zoneRates"`
}

// Model implements RateSchedule
func (s *TimeOfUseSchedule) Model() PricingModel { return PricingModelTimeOfUse }

// Validate implements RateSchedule
func (s *TimeOfUseSchedule) Validate() []FieldViolation {
	if len(s.ZoneRates) == 0 {
		return []FieldViolation{required("zoneRates")}
	}
	var out []FieldViolation
	for _, zone := range sortedKeys(s.ZoneRates) {
		if s.ZoneRates[zone].IsNegative() {
			out = append(out, negative("zoneRates."+zone))
		}
	}
	return out
}

// RateFor returns the rate of zone, falling back to the default zone and then 0
func (s *TimeOfUseSchedule) RateFor(zone string) decimal.Decimal {
	if r, ok := s.ZoneRates[zone]; ok {
		return r
	}
	if r, ok := s.ZoneRates[DefaultZone]; ok {
		return r
	}
	return decimal.Zero
}

// CustomFormulaSchedule evaluates a user-defined formula
type CustomFormulaSchedule struct {
	Formula   string                     `json:"formula"`
	Variables map[string]decimal.Decimal `json:"variables,omitempty"`
}

// Model implements RateSchedule
func (s *CustomFormulaSchedule) Model() PricingModel { return PricingModelCustomFormula }

// Validate implements RateSchedule
func (s *CustomFormulaSchedule) Validate() []FieldViolation {
	if strings.TrimSpace(s.Formula) == "" {
		return []FieldViolation{required("formula")}
	}
	var out []FieldViolation
	reserved := make(map[string]bool, len(ReservedFormulaVariables))
	for _, name := range ReservedFormulaVariables {
		reserved[name] = true
	}
	for _, name := range sortedKeys(s.Variables) {
		switch {
		case !identifierPattern.MatchString(name):
			out = append(out, FieldViolation{Field: "variables." + name, Code: "INVALID_NAME", Message: "variable name must be an identifier"})
		case reserved[name]:
			out = append(out, FieldViolation{Field: "variables." + name, Code: "RESERVED_NAME", Message: "variable name is reserved"})
		}
	}
	if err := formula.NewEvaluator().Validate(s.Formula, s.AllowedVariables()); err != nil {
		out = append(out, FieldViolation{Field: "formula", Code: "INVALID_FORMULA", Message: err.Error()})
	}
	return out
}

// AllowedVariables returns the reserved variables plus the custom ones
func (s *CustomFormulaSchedule) AllowedVariables() []string {
	names := append([]string{}, ReservedFormulaVariables...)
	return append(names, sortedKeys(s.Variables)...)
}

// LegacyFlatSchedule is the pre-model flat tariff: a monthly rate when one is
// configured, otherwise a unit rate
type LegacyFlatSchedule struct {
	MonthlyRate         *decimal.Decimal     `json:"monthlyRate,omitempty"`
	UnitRate            *decimal.Decimal     `json:"unitRate,omitempty"`
	SeasonalAdjustments *SeasonalAdjustments `json:"seasonalAdjustments,omitempty"`
}

// Model implements RateSchedule
func (s *LegacyFlatSchedule) Model() PricingModel { return PricingModelLegacyFlat }

// Seasonal implements SeasonallyAdjusted
func (s *LegacyFlatSchedule) Seasonal() *SeasonalAdjustments { return s.SeasonalAdjustments }

// IsFixed reports whether the schedule behaves as a fixed monthly charge
func (s *LegacyFlatSchedule) IsFixed() bool {
	return s.MonthlyRate != nil
}

// Validate implements RateSchedule
func (s *LegacyFlatSchedule) Validate() []FieldViolation {
	var out []FieldViolation
	switch {
	case s.MonthlyRate != nil:
		out = checkRate("monthlyRate", s.MonthlyRate)
	case s.UnitRate != nil:
		out = checkRate("unitRate", s.UnitRate)
	default:
		out = []FieldViolation{{Field: "monthlyRate|unitRate", Code: "REQUIRED", Message: "either monthlyRate or unitRate is required"}}
	}
	return append(out, s.SeasonalAdjustments.validate()...)
}

// NewRateSchedule returns an empty schedule of the concrete type for model
func NewRateSchedule(model PricingModel) (RateSchedule, error) {
	switch model {
	case PricingModelFixedMonthly:
		return &FixedMonthlySchedule{}, nil
	case PricingModelConsumptionBased:
		return &ConsumptionBasedSchedule{}, nil
	case PricingModelTieredRates:
		return &TieredSchedule{}, nil
	case PricingModelHybrid:
		return &HybridSchedule{}, nil
	case PricingModelTimeOfUse:
		return &TimeOfUseSchedule{}, nil
	case PricingModelCustomFormula:
		return &CustomFormulaSchedule{}, nil
	case PricingModelLegacyFlat:
		return &LegacyFlatSchedule{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", shared.ErrUnsupportedModel, model)
	}
}

// ValidateSchedule returns a *ScheduleError when s has violations
func ValidateSchedule(s RateSchedule) error {
	if s == nil {
		return fmt.Errorf("%w: rate schedule is required", shared.ErrInvalidConfiguration)
	}
	if v := s.Validate(); len(v) > 0 {
		return &ScheduleError{Model: s.Model(), Violations: v}
	}
	return nil
}

// keyAliases maps legacy snake_case keys onto the canonical JSON keys
var keyAliases = map[string]string{
	"monthly_rate":         "monthlyRate",
	"unit_rate":            "unitRate",
	"fixed_fee":            "fixedFee",
	"zone_rates":           "zoneRates",
	"seasonal_adjustments": "seasonalAdjustments",
	"summer_multiplier":    "summerMultiplier",
	"winter_multiplier":    "winterMultiplier",
}

func normalizeKeys(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if alias, ok := keyAliases[k]; ok {
			k = alias
		}
		out[k] = v
	}
	return out
}

// ParseRateSchedule decodes the JSON form of a rate schedule for model and
// validates it. Both camelCase and snake_case field names are accepted.
func ParseRateSchedule(model PricingModel, raw []byte) (RateSchedule, error) {
	schedule, err := NewRateSchedule(model)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: rate schedule is empty", shared.ErrInvalidConfiguration)
	}

	var generic map[string]any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("%w: malformed rate schedule: %v", shared.ErrInvalidConfiguration, err)
	}
	if len(generic) == 0 {
		return nil, fmt.Errorf("%w: rate schedule is empty", shared.ErrInvalidConfiguration)
	}
	generic = normalizeKeys(generic)
	if seasonal, ok := generic["seasonalAdjustments"].(map[string]any); ok {
		generic["seasonalAdjustments"] = normalizeKeys(seasonal)
	}

	normalized, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalidConfiguration, err)
	}
	if err := json.Unmarshal(normalized, schedule); err != nil {
		return nil, fmt.Errorf("%w: malformed %s rate schedule: %v", shared.ErrInvalidConfiguration, model, err)
	}
	if err := ValidateSchedule(schedule); err != nil {
		return nil, err
	}
	return schedule, nil
}

// MarshalRateSchedule encodes a schedule into its canonical JSON form
func MarshalRateSchedule(s RateSchedule) ([]byte, error) {
	return json.Marshal(s)
}

// ScheduleSnapshot returns the canonical JSON form of s as a generic map.
// Decimals are rendered as strings so the snapshot round-trips exactly.
func ScheduleSnapshot(s RateSchedule) (map[string]any, error) {
	data, err := MarshalRateSchedule(s)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
