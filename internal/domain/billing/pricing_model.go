package billing

import "fmt"

// PricingModel identifies the algorithm used to price a service
type PricingModel string

const (
	PricingModelFixedMonthly     PricingModel = "fixed_monthly"
	PricingModelConsumptionBased PricingModel = "consumption_based"
	PricingModelTieredRates      PricingModel = "tiered_rates"
	PricingModelHybrid           PricingModel = "hybrid"
	PricingModelTimeOfUse        PricingModel = "time_of_use"
	PricingModelCustomFormula    PricingModel = "custom_formula"
	PricingModelLegacyFlat       PricingModel = "legacy_flat"
)

// String returns the string representation of PricingModel
func (m PricingModel) String() string {
	return string(m)
}

// IsValid returns true if the pricing model is known
func (m PricingModel) IsValid() bool {
	switch m {
	case PricingModelFixedMonthly,
		PricingModelConsumptionBased,
		PricingModelTieredRates,
		PricingModelHybrid,
		PricingModelTimeOfUse,
		PricingModelCustomFormula,
		PricingModelLegacyFlat:
		return true
	}
	return false
}

// AllPricingModels returns every supported pricing model
func AllPricingModels() []PricingModel {
	return []PricingModel{
		PricingModelFixedMonthly,
		PricingModelConsumptionBased,
		PricingModelTieredRates,
		PricingModelHybrid,
		PricingModelTimeOfUse,
		PricingModelCustomFormula,
		PricingModelLegacyFlat,
	}
}

// ParsePricingModel converts a string into a PricingModel
func ParsePricingModel(s string) (PricingModel, error) {
	m := PricingModel(s)
	if !m.IsValid() {
		return "", fmt.Errorf("invalid pricing model: %s", s)
	}
	return m, nil
}

// DistributionMethod determines how a shared cost is split across properties
type DistributionMethod string

const (
	DistributionEqual         DistributionMethod = "equal"
	DistributionArea          DistributionMethod = "area"
	DistributionConsumption   DistributionMethod = "by_consumption"
	DistributionCustomFormula DistributionMethod = "custom_formula"
)

// String returns the string representation of DistributionMethod
func (m DistributionMethod) String() string {
	return string(m)
}

// IsValid returns true if the distribution method is known
func (m DistributionMethod) IsValid() bool {
	switch m {
	case DistributionEqual, DistributionArea, DistributionConsumption, DistributionCustomFormula:
		return true
	}
	return false
}

// AllDistributionMethods returns every supported distribution method
func AllDistributionMethods() []DistributionMethod {
	return []DistributionMethod{
		DistributionEqual,
		DistributionArea,
		DistributionConsumption,
		DistributionCustomFormula,
	}
}

// ParseDistributionMethod converts a string into a DistributionMethod
func ParseDistributionMethod(s string) (DistributionMethod, error) {
	m := DistributionMethod(s)
	if !m.IsValid() {
		return "", fmt.Errorf("invalid distribution method: %s", s)
	}
	return m, nil
}
