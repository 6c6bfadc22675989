package billing

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/erp/utility-billing/internal/domain/billing"
	"github.com/erp/utility-billing/internal/domain/shared"
	strategyinfra "github.com/erp/utility-billing/internal/infrastructure/strategy"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testNow = time.Date(2024, time.March, 15, 12, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func ptr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func newAdjuster(t *testing.T) *billing.SeasonalAdjuster {
	t.Helper()
	a, err := billing.NewSeasonalAdjuster(billing.DefaultSeasonConfig())
	require.NoError(t, err)
	return a
}

func newRegistry(t *testing.T) *strategyinfra.StrategyRegistry {
	t.Helper()
	r, err := strategyinfra.NewRegistryWithDefaults()
	require.NoError(t, err)
	return r
}

func newCalculator(t *testing.T) *PricingCalculator {
	t.Helper()
	return NewPricingCalculator(newRegistry(t), newAdjuster(t), nil, shared.FixedClock(testNow), zap.NewNop(), DefaultPricingCalculatorConfig())
}

func consumptionOf(t *testing.T, total string) billing.ConsumptionData {
	t.Helper()
	c, err := billing.SingleZoneConsumption(dec(total))
	require.NoError(t, err)
	return c
}

func newConfig(t *testing.T, model billing.PricingModel, schedule billing.RateSchedule) *billing.ServiceConfiguration {
	t.Helper()
	cfg, err := billing.NewServiceConfiguration(billing.ServiceConfigurationParams{
		PropertyID:       uuid.New(),
		UtilityServiceID: uuid.New(),
		PricingModel:     model,
		RateSchedule:     schedule,
		EffectiveFrom:    date(2024, time.January, 1),
	}, testNow)
	require.NoError(t, err)
	return cfg
}

// memCache is an in-memory billing.ResultCache for tests
type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
	sets int
}

func newMemCache() *memCache {
	return &memCache{data: map[string][]byte{}}
}

func (c *memCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *memCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	c.sets++
	return nil
}

func (c *memCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

func (c *memCache) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k := range c.data {
		if strings.HasPrefix(k, prefix) {
			delete(c.data, k)
			n++
		}
	}
	return n, nil
}

// mockMeterReader is a mock implementation of billing.MeterReader
type mockMeterReader struct {
	mock.Mock
}

func (m *mockMeterReader) FindByID(ctx context.Context, id uuid.UUID) (*billing.Meter, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Meter), args.Error(1)
}

func (m *mockMeterReader) FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*billing.Meter, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[uuid.UUID]*billing.Meter), args.Error(1)
}

func (m *mockMeterReader) FindByBuilding(ctx context.Context, buildingID uuid.UUID, types ...billing.MeterType) ([]billing.Meter, error) {
	args := m.Called(ctx, buildingID, types)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]billing.Meter), args.Error(1)
}

// mockReadingReader is a mock implementation of billing.MeterReadingReader
type mockReadingReader struct {
	mock.Mock
}

func (m *mockReadingReader) FindInPeriod(ctx context.Context, meterID uuid.UUID, period billing.BillingPeriod) ([]billing.MeterReading, error) {
	args := m.Called(ctx, meterID, period)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]billing.MeterReading), args.Error(1)
}

func (m *mockReadingReader) FindPreviousValidated(ctx context.Context, meterID uuid.UUID, zone string, before time.Time) (*billing.MeterReading, error) {
	args := m.Called(ctx, meterID, zone, before)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.MeterReading), args.Error(1)
}

func (m *mockReadingReader) FindPreviousValidatedBulk(ctx context.Context, meterIDs []uuid.UUID, before time.Time) (map[uuid.UUID][]billing.MeterReading, error) {
	args := m.Called(ctx, meterIDs, before)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[uuid.UUID][]billing.MeterReading), args.Error(1)
}

func (m *mockReadingReader) FindValidatedHistory(ctx context.Context, meterID uuid.UUID, since time.Time) ([]billing.MeterReading, error) {
	args := m.Called(ctx, meterID, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]billing.MeterReading), args.Error(1)
}

func (m *mockReadingReader) FindValidatedHistoryBulk(ctx context.Context, meterIDs []uuid.UUID, since time.Time) (map[uuid.UUID][]billing.MeterReading, error) {
	args := m.Called(ctx, meterIDs, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[uuid.UUID][]billing.MeterReading), args.Error(1)
}

// mockConfigReader is a mock implementation of billing.ServiceConfigurationReader
type mockConfigReader struct {
	mock.Mock
}

func (m *mockConfigReader) FindByID(ctx context.Context, id uuid.UUID) (*billing.ServiceConfiguration, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.ServiceConfiguration), args.Error(1)
}

func (m *mockConfigReader) FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*billing.ServiceConfiguration, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[uuid.UUID]*billing.ServiceConfiguration), args.Error(1)
}

func (m *mockConfigReader) FindActiveForService(ctx context.Context, propertyID, utilityServiceID uuid.UUID) ([]*billing.ServiceConfiguration, error) {
	args := m.Called(ctx, propertyID, utilityServiceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*billing.ServiceConfiguration), args.Error(1)
}

// mockTariffReader is a mock implementation of billing.TariffReader
type mockTariffReader struct {
	mock.Mock
}

func (m *mockTariffReader) FindByID(ctx context.Context, id uuid.UUID) (*billing.Tariff, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Tariff), args.Error(1)
}

// mockBuildingRepo is a mock implementation of billing.BuildingRepository
type mockBuildingRepo struct {
	mock.Mock
}

func (m *mockBuildingRepo) FindByID(ctx context.Context, id uuid.UUID) (*billing.Building, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Building), args.Error(1)
}

func (m *mockBuildingRepo) UpdateSummerAverage(ctx context.Context, id uuid.UUID, average decimal.Decimal, calculatedAt time.Time) error {
	args := m.Called(ctx, id, average, calculatedAt)
	return args.Error(0)
}

// auditLog records audit entries in memory
type auditLog struct {
	mu      sync.Mutex
	entries []*billing.CalculationAudit
}

func (a *auditLog) Record(ctx context.Context, audit *billing.CalculationAudit) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, audit)
	return nil
}

// countingMetrics counts recorder calls
type countingMetrics struct {
	mu           sync.Mutex
	calculations map[string]int
	cacheHits    int
	cacheMisses  int
	fallbacks    int
	readings     map[string]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{calculations: map[string]int{}, readings: map[string]int{}}
}

func (m *countingMetrics) ObserveCalculation(model string, outcome string, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calculations[outcome]++
}

func (m *countingMetrics) IncCacheLookup(cache string, hit bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if hit {
		m.cacheHits++
	} else {
		m.cacheMisses++
	}
}

func (m *countingMetrics) ObserveDistribution(method string, fallback bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if fallback {
		m.fallbacks++
	}
}

func (m *countingMetrics) ObserveGyvatukas(season string, duration time.Duration) {}

func (m *countingMetrics) IncReadingValidation(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readings[outcome]++
}

func (m *countingMetrics) IncConfigurationValidation(valid bool) {}
