package strategy

import (
	"context"
	"sync"
	"testing"

	"github.com/erp/utility-billing/internal/domain/billing"
	"github.com/erp/utility-billing/internal/domain/shared"
	"github.com/erp/utility-billing/internal/domain/shared/strategy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Mock pricing strategy for testing
type mockPricingStrategy struct {
	strategy.BaseStrategy
	model billing.PricingModel
}

func newMockPricingStrategy(model billing.PricingModel) *mockPricingStrategy {
	return &mockPricingStrategy{
		BaseStrategy: strategy.NewBaseStrategy(string(model), strategy.StrategyTypePricing, "Mock pricing strategy"),
		model:        model,
	}
}

func (s *mockPricingStrategy) Model() billing.PricingModel {
	return s.model
}

func (s *mockPricingStrategy) Price(ctx context.Context, in billing.PricingInput) (*billing.PricingOutcome, error) {
	return &billing.PricingOutcome{}, nil
}

// Mock distribution strategy for testing
type mockDistributionStrategy struct {
	strategy.BaseStrategy
	method billing.DistributionMethod
}

func newMockDistributionStrategy(method billing.DistributionMethod) *mockDistributionStrategy {
	return &mockDistributionStrategy{
		BaseStrategy: strategy.NewBaseStrategy(string(method), strategy.StrategyTypeDistribution, "Mock distribution strategy"),
		method:       method,
	}
}

func (s *mockDistributionStrategy) Method() billing.DistributionMethod {
	return s.method
}

func (s *mockDistributionStrategy) Distribute(ctx context.Context, in billing.DistributionInput) (*billing.DistributionResult, error) {
	return &billing.DistributionResult{Method: s.method}, nil
}

func TestStrategyRegistry_PricingStrategies(t *testing.T) {
	r := NewStrategyRegistry()

	t.Run("register and get", func(t *testing.T) {
		s := newMockPricingStrategy(billing.PricingModelHybrid)
		require.NoError(t, r.RegisterPricingStrategy(s))

		got, err := r.GetPricingStrategy(billing.PricingModelHybrid)
		require.NoError(t, err)
		assert.Equal(t, s, got)
	})

	t.Run("duplicate registration fails", func(t *testing.T) {
		err := r.RegisterPricingStrategy(newMockPricingStrategy(billing.PricingModelHybrid))
		assert.ErrorIs(t, err, shared.ErrAlreadyExists)
	})

	t.Run("unknown model cannot be registered", func(t *testing.T) {
		err := r.RegisterPricingStrategy(newMockPricingStrategy("per_sqm"))
		assert.ErrorIs(t, err, shared.ErrUnsupportedModel)
	})

	t.Run("missing model is unsupported", func(t *testing.T) {
		_, err := r.GetPricingStrategy(billing.PricingModelTieredRates)
		assert.ErrorIs(t, err, shared.ErrUnsupportedModel)
	})

	t.Run("unregister", func(t *testing.T) {
		require.NoError(t, r.UnregisterPricingStrategy(billing.PricingModelHybrid))
		assert.ErrorIs(t, r.UnregisterPricingStrategy(billing.PricingModelHybrid), shared.ErrNotFound)
		assert.Empty(t, r.ListPricingStrategies())
	})
}

func TestStrategyRegistry_DistributionDefaults(t *testing.T) {
	r := NewStrategyRegistry()

	_, err := r.GetDistributionStrategy("")
	assert.ErrorIs(t, err, shared.ErrNotFound)

	equal := newMockDistributionStrategy(billing.DistributionEqual)
	require.NoError(t, r.RegisterDistributionStrategy(equal))
	require.NoError(t, r.RegisterDistributionStrategy(newMockDistributionStrategy(billing.DistributionArea)))

	assert.ErrorIs(t, r.SetDefault(strategy.StrategyTypeDistribution, "by_floor"), shared.ErrNotFound)
	assert.ErrorIs(t, r.SetDefault(strategy.StrategyTypePricing, "hybrid"), shared.ErrInvalidInput)
	require.NoError(t, r.SetDefault(strategy.StrategyTypeDistribution, string(billing.DistributionEqual)))

	got, err := r.GetDistributionStrategy("")
	require.NoError(t, err)
	assert.Equal(t, equal, got)

	require.NoError(t, r.UnregisterDistributionStrategy(billing.DistributionEqual))
	assert.Empty(t, r.GetDefault(strategy.StrategyTypeDistribution))
	assert.Equal(t, []billing.DistributionMethod{billing.DistributionArea}, r.ListDistributionStrategies())
}

func TestNewRegistryWithDefaults(t *testing.T) {
	r, err := NewRegistryWithDefaults()
	require.NoError(t, err)

	assert.ElementsMatch(t, billing.AllPricingModels(), r.ListPricingStrategies())
	assert.ElementsMatch(t, billing.AllDistributionMethods(), r.ListDistributionStrategies())
	assert.Equal(t, string(billing.DistributionEqual), r.GetDefault(strategy.StrategyTypeDistribution))

	for _, m := range billing.AllPricingModels() {
		s, err := r.GetPricingStrategy(m)
		require.NoError(t, err)
		assert.Equal(t, m, s.Model())
		assert.Equal(t, strategy.StrategyTypePricing, s.Type())
	}
}

func TestStrategyRegistry_ConcurrentAccess(t *testing.T) {
	r, err := NewRegistryWithDefaults()
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = r.GetPricingStrategy(billing.PricingModelTieredRates)
			_, _ = r.GetDistributionStrategy("")
			_ = r.ListPricingStrategies()
		}()
	}
	wg.Wait()
}

func TestStrategyRegistry_Catalog(t *testing.T) {
	r, err := NewRegistryWithDefaults()
	require.NoError(t, err)

	catalog := r.Catalog()
	require.Len(t, catalog, len(billing.AllPricingModels())+len(billing.AllDistributionMethods()))

	var defaults []string
	for i, d := range catalog {
		assert.NotEmpty(t, d.Description, d.Name)
		if i > 0 && catalog[i-1].Type == d.Type {
			assert.Less(t, catalog[i-1].Name, d.Name)
		}
		if d.Default {
			defaults = append(defaults, d.Name)
		}
	}
	assert.Equal(t, []string{string(billing.DistributionEqual)}, defaults)
	assert.Equal(t, strategy.StrategyTypeDistribution, catalog[0].Type)
}
