package strategy

import "sort"

// StrategyType groups strategies by the billing step they implement
type StrategyType string

const (
	// StrategyTypePricing prices consumption for one pricing model
	StrategyTypePricing StrategyType = "pricing"
	// StrategyTypeDistribution splits a shared cost across properties
	StrategyTypeDistribution StrategyType = "distribution"
)

func (t StrategyType) String() string {
	return string(t)
}

// IsValid reports whether t is a known strategy type
func (t StrategyType) IsValid() bool {
	return t == StrategyTypePricing || t == StrategyTypeDistribution
}

// Strategy is implemented by every pricing and distribution strategy.
// Name doubles as the registry key: the pricing model or distribution method.
type Strategy interface {
	Name() string
	Type() StrategyType
	Description() string
}

// BaseStrategy carries the identity of a strategy. Embed it to satisfy Strategy.
type BaseStrategy struct {
	name         string
	strategyType StrategyType
	description  string
}

// NewBaseStrategy creates a new BaseStrategy
func NewBaseStrategy(name string, strategyType StrategyType, description string) BaseStrategy {
	return BaseStrategy{name: name, strategyType: strategyType, description: description}
}

func (s BaseStrategy) Name() string        { return s.name }
func (s BaseStrategy) Type() StrategyType  { return s.strategyType }
func (s BaseStrategy) Description() string { return s.description }

// Descriptor is the listing form of a registered strategy
type Descriptor struct {
	Name        string       `json:"name"`
	Type        StrategyType `json:"type"`
	Description string       `json:"description"`
	Default     bool         `json:"default,omitempty"`
}

// Describe returns the descriptor of s
func Describe(s Strategy) Descriptor {
	return Descriptor{Name: s.Name(), Type: s.Type(), Description: s.Description()}
}

// SortDescriptors orders descriptors by type, then name
func SortDescriptors(ds []Descriptor) {
	sort.Slice(ds, func(i, j int) bool {
		if ds[i].Type != ds[j].Type {
			return ds[i].Type < ds[j].Type
		}
		return ds[i].Name < ds[j].Name
	})
}
