package strategy

import (
	"fmt"
	"sort"
	"sync"

	"github.com/erp/utility-billing/internal/domain/billing"
	"github.com/erp/utility-billing/internal/domain/shared"
	"github.com/erp/utility-billing/internal/domain/shared/strategy"
)

// StrategyRegistry manages pricing and distribution strategy registrations.
// Pricing strategies are keyed by pricing model, distribution strategies by
// distribution method.
type StrategyRegistry struct {
	mu                     sync.RWMutex
	pricingStrategies      map[billing.PricingModel]billing.PricingStrategy
	distributionStrategies map[billing.DistributionMethod]billing.DistributionStrategy
	defaults               map[strategy.StrategyType]string
}

// NewStrategyRegistry creates a new strategy registry
func NewStrategyRegistry() *StrategyRegistry {
	return &StrategyRegistry{
		pricingStrategies:      make(map[billing.PricingModel]billing.PricingStrategy),
		distributionStrategies: make(map[billing.DistributionMethod]billing.DistributionStrategy),
		defaults:               make(map[strategy.StrategyType]string),
	}
}

// RegisterPricingStrategy registers the strategy for its pricing model
func (r *StrategyRegistry) RegisterPricingStrategy(s billing.PricingStrategy) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	model := s.Model()
	if !model.IsValid() {
		return fmt.Errorf("%w: %q", shared.ErrUnsupportedModel, model)
	}
	if _, exists := r.pricingStrategies[model]; exists {
		return fmt.Errorf("%w: pricing strategy for '%s' already registered", shared.ErrAlreadyExists, model)
	}
	r.pricingStrategies[model] = s
	return nil
}

// GetPricingStrategy returns the strategy for model
func (r *StrategyRegistry) GetPricingStrategy(model billing.PricingModel) (billing.PricingStrategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, exists := r.pricingStrategies[model]
	if !exists {
		return nil, fmt.Errorf("%w: no pricing strategy for '%s'", shared.ErrUnsupportedModel, model)
	}
	return s, nil
}

// ListPricingStrategies returns the registered pricing models in sorted order
func (r *StrategyRegistry) ListPricingStrategies() []billing.PricingModel {
	r.mu.RLock()
	defer r.mu.RUnlock()

	models := make([]billing.PricingModel, 0, len(r.pricingStrategies))
	for m := range r.pricingStrategies {
		models = append(models, m)
	}
	sort.Slice(models, func(i, j int) bool { return models[i] < models[j] })
	return models
}

// UnregisterPricingStrategy removes the strategy for model
func (r *StrategyRegistry) UnregisterPricingStrategy(model billing.PricingModel) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.pricingStrategies[model]; !exists {
		return fmt.Errorf("%w: pricing strategy for '%s' not found", shared.ErrNotFound, model)
	}
	delete(r.pricingStrategies, model)
	return nil
}

// RegisterDistributionStrategy registers the strategy for its distribution method
func (r *StrategyRegistry) RegisterDistributionStrategy(s billing.DistributionStrategy) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	method := s.Method()
	if _, exists := r.distributionStrategies[method]; exists {
		return fmt.Errorf("%w: distribution strategy for '%s' already registered", shared.ErrAlreadyExists, method)
	}
	r.distributionStrategies[method] = s
	return nil
}

// GetDistributionStrategy returns the strategy for method, or the default if method is empty
func (r *StrategyRegistry) GetDistributionStrategy(method billing.DistributionMethod) (billing.DistributionStrategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if method == "" {
		method = billing.DistributionMethod(r.defaults[strategy.StrategyTypeDistribution])
		if method == "" {
			return nil, fmt.Errorf("%w: no default distribution strategy set", shared.ErrNotFound)
		}
	}

	s, exists := r.distributionStrategies[method]
	if !exists {
		return nil, fmt.Errorf("%w: distribution strategy for '%s' not found", shared.ErrNotFound, method)
	}
	return s, nil
}

// ListDistributionStrategies returns the registered distribution methods in sorted order
func (r *StrategyRegistry) ListDistributionStrategies() []billing.DistributionMethod {
	r.mu.RLock()
	defer r.mu.RUnlock()

	methods := make([]billing.DistributionMethod, 0, len(r.distributionStrategies))
	for m := range r.distributionStrategies {
		methods = append(methods, m)
	}
	sort.Slice(methods, func(i, j int) bool { return methods[i] < methods[j] })
	return methods
}

// UnregisterDistributionStrategy removes the strategy for method
func (r *StrategyRegistry) UnregisterDistributionStrategy(method billing.DistributionMethod) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.distributionStrategies[method]; !exists {
		return fmt.Errorf("%w: distribution strategy for '%s' not found", shared.ErrNotFound, method)
	}
	delete(r.distributionStrategies, method)

	// Clear default if it was this strategy
	if r.defaults[strategy.StrategyTypeDistribution] == string(method) {
		delete(r.defaults, strategy.StrategyTypeDistribution)
	}
	return nil
}

// SetDefault sets the default strategy for a strategy type. Only distribution
// strategies have a default; pricing is always resolved by model.
func (r *StrategyRegistry) SetDefault(strategyType strategy.StrategyType, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch strategyType {
	case strategy.StrategyTypeDistribution:
		if _, exists := r.distributionStrategies[billing.DistributionMethod(name)]; !exists {
			return fmt.Errorf("%w: distribution strategy '%s' not found", shared.ErrNotFound, name)
		}
	default:
		return fmt.Errorf("%w: strategy type '%s' has no default", shared.ErrInvalidInput, strategyType)
	}
	r.defaults[strategyType] = name
	return nil
}

// Catalog describes every registered strategy, flagging the defaults
func (r *StrategyRegistry) Catalog() []strategy.Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]strategy.Descriptor, 0, len(r.pricingStrategies)+len(r.distributionStrategies))
	for _, s := range r.pricingStrategies {
		out = append(out, strategy.Describe(s))
	}
	for _, s := range r.distributionStrategies {
		d := strategy.Describe(s)
		d.Default = r.defaults[strategy.StrategyTypeDistribution] == string(s.Method())
		out = append(out, d)
	}
	strategy.SortDescriptors(out)
	return out
}

// GetDefault returns the default strategy name for a strategy type
func (r *StrategyRegistry) GetDefault(strategyType strategy.StrategyType) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaults[strategyType]
}
