package billing

import (
	"context"
	"testing"
	"time"

	"github.com/erp/utility-billing/internal/domain/billing"
	"github.com/erp/utility-billing/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type gyvatukasFixture struct {
	engine   *GyvatukasEngine
	meters   *mockMeterReader
	readings *mockReadingReader
	cache    *memCache
	audit    *auditLog
	building *billing.Building
}

func validated(meterID uuid.UUID, value string, d time.Time) billing.MeterReading {
	return billing.MeterReading{
		ID:               uuid.New(),
		MeterID:          meterID,
		Value:            dec(value),
		ReadingDate:      d,
		ValidationStatus: billing.ValidationStatusValidated,
		InputMethod:      billing.InputMethodManual,
	}
}

// newGyvatukasFixture wires a building with one heating and one hot-water
// meter whose July readings yield the given energy and volume
func newGyvatukasFixture(t *testing.T, heatingEnergy, hotWaterVolume string) *gyvatukasFixture {
	t.Helper()
	building := &billing.Building{ID: uuid.New(), Name: "Test", Properties: properties("40", "60")}
	heating := billing.Meter{ID: uuid.New(), BuildingID: building.ID, Type: billing.MeterTypeHeating, IsActive: true}
	water := billing.Meter{ID: uuid.New(), BuildingID: building.ID, Type: billing.MeterTypeHotWater, IsActive: true}

	meters := &mockMeterReader{}
	meters.On("FindByBuilding", mock.Anything, building.ID, []billing.MeterType{billing.MeterTypeHeating}).Return([]billing.Meter{heating}, nil)
	meters.On("FindByBuilding", mock.Anything, building.ID, []billing.MeterType{billing.MeterTypeHotWater}).Return([]billing.Meter{water}, nil)

	readings := &mockReadingReader{}
	readings.On("FindInPeriod", mock.Anything, heating.ID, mock.Anything).Return([]billing.MeterReading{
		validated(heating.ID, "5000", date(2024, time.July, 1)),
		validated(heating.ID, dec("5000").Add(dec(heatingEnergy)).String(), date(2024, time.July, 31)),
	}, nil)
	readings.On("FindInPeriod", mock.Anything, water.ID, mock.Anything).Return([]billing.MeterReading{
		validated(water.ID, "100", date(2024, time.July, 1)),
		validated(water.ID, dec("100").Add(dec(hotWaterVolume)).String(), date(2024, time.July, 31)),
	}, nil)

	cache := newMemCache()
	audit := &auditLog{}
	engine, err := NewGyvatukasEngine(meters, readings, newAdjuster(t), NewCostDistributor(newRegistry(t), zap.NewNop(), nil),
		cache, audit, shared.FixedClock(testNow), zap.NewNop(), nil, DefaultGyvatukasConfig())
	require.NoError(t, err)

	return &gyvatukasFixture{engine: engine, meters: meters, readings: readings, cache: cache, audit: audit, building: building}
}

func TestGyvatukasConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*GyvatukasConfig)
	}{
		{"specific heat too low", func(c *GyvatukasConfig) { c.SpecificHeat = dec("0.4") }},
		{"specific heat too high", func(c *GyvatukasConfig) { c.SpecificHeat = dec("2.01") }},
		{"temperature delta too low", func(c *GyvatukasConfig) { c.TemperatureDelta = dec("19") }},
		{"temperature delta too high", func(c *GyvatukasConfig) { c.TemperatureDelta = dec("81") }},
		{"negative energy rate", func(c *GyvatukasConfig) { c.EnergyRate = dec("-0.01") }},
		{"unknown distribution method", func(c *GyvatukasConfig) { c.DistributionMethod = "random" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultGyvatukasConfig()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), shared.ErrInvalidConfiguration)

			_, err := NewGyvatukasEngine(nil, nil, nil, nil, nil, nil, nil, zap.NewNop(), nil, cfg)
			assert.ErrorIs(t, err, shared.ErrInvalidConfiguration)
		})
	}

	t.Run("bounds are inclusive", func(t *testing.T) {
		cfg := DefaultGyvatukasConfig()
		cfg.SpecificHeat = dec("0.5")
		cfg.TemperatureDelta = dec("80")
		assert.NoError(t, cfg.Validate())
	})
}

func TestGyvatukasEngine_Formula(t *testing.T) {
	f := newGyvatukasFixture(t, "0", "0")

	assert.Equal(t, "261.68", f.engine.WaterHeatingEnergy(dec("5")).StringFixed(2))

	circulation, clamped := f.engine.CirculationEnergy(dec("1000"), dec("5"))
	assert.False(t, clamped)
	assert.Equal(t, "738.32", circulation.StringFixed(2))

	circulation, clamped = f.engine.CirculationEnergy(dec("100"), dec("5"))
	assert.True(t, clamped)
	assert.True(t, circulation.IsZero())
}

func TestGyvatukasEngine_CalculateSummer(t *testing.T) {
	ctx := context.Background()

	t.Run("circulation energy from July readings", func(t *testing.T) {
		f := newGyvatukasFixture(t, "1000", "5")

		calc, err := f.engine.CalculateSummer(ctx, f.building, date(2024, time.July, 10))
		require.NoError(t, err)

		assert.Equal(t, "2024-07", calc.Month)
		assert.Equal(t, billing.SeasonSummer, calc.Season)
		assert.Equal(t, "1000.00", calc.HeatingEnergy.StringFixed(2))
		assert.Equal(t, "5.000", calc.HotWaterVolume.StringFixed(3))
		assert.Equal(t, "261.68", calc.WaterHeatingEnergy.StringFixed(2))
		assert.Equal(t, "738.32", calc.CirculationEnergy.StringFixed(2))
		assert.Empty(t, calc.Warnings)
		assert.False(t, calc.FromCache)
	})

	t.Run("repeated calls return the cached value", func(t *testing.T) {
		f := newGyvatukasFixture(t, "1000", "5")

		first, err := f.engine.CalculateSummer(ctx, f.building, date(2024, time.July, 1))
		require.NoError(t, err)
		second, err := f.engine.CalculateSummer(ctx, f.building, date(2024, time.July, 31))
		require.NoError(t, err)

		assert.True(t, second.FromCache)
		assert.True(t, first.CirculationEnergy.Equal(second.CirculationEnergy))
		f.meters.AssertNumberOfCalls(t, "FindByBuilding", 2)
	})

	t.Run("negative result is clamped with a warning", func(t *testing.T) {
		f := newGyvatukasFixture(t, "100", "5")

		calc, err := f.engine.CalculateSummer(ctx, f.building, date(2024, time.July, 1))
		require.NoError(t, err)

		assert.True(t, calc.CirculationEnergy.IsZero())
		require.Len(t, calc.Warnings, 1)
		assert.Contains(t, calc.Warnings[0], "clamped")
	})

	t.Run("nil building", func(t *testing.T) {
		f := newGyvatukasFixture(t, "1", "1")
		_, err := f.engine.CalculateSummer(ctx, nil, date(2024, time.July, 1))
		assert.ErrorIs(t, err, shared.ErrInvalidInput)
	})
}

func TestGyvatukasEngine_CalculateWinter(t *testing.T) {
	f := newGyvatukasFixture(t, "0", "0")

	t.Run("returns the stored summer average verbatim", func(t *testing.T) {
		b := *f.building
		b.CirculationSummerAverage = ptr("712.45")

		calc := f.engine.CalculateWinter(&b)
		assert.Equal(t, billing.SeasonWinter, calc.Season)
		assert.True(t, calc.CirculationEnergy.Equal(dec("712.45")))
		assert.Empty(t, calc.Warnings)
	})

	for name, avg := range map[string]*string{"missing average": nil, "zero average": strPtr("0"), "negative average": strPtr("-3")} {
		t.Run(name, func(t *testing.T) {
			b := *f.building
			if avg != nil {
				b.CirculationSummerAverage = ptr(*avg)
			}
			calc := f.engine.CalculateWinter(&b)
			assert.True(t, calc.CirculationEnergy.IsZero())
			assert.Len(t, calc.Warnings, 1)
		})
	}
}

func strPtr(s string) *string {
	return &s
}

func TestGyvatukasEngine_Calculate(t *testing.T) {
	ctx := context.Background()

	t.Run("heating season uses the summer average", func(t *testing.T) {
		f := newGyvatukasFixture(t, "1000", "5")
		f.building.CirculationSummerAverage = ptr("700")

		calc, err := f.engine.Calculate(ctx, f.building, date(2024, time.January, 1))
		require.NoError(t, err)

		assert.Equal(t, billing.SeasonWinter, calc.Season)
		assert.Equal(t, "2024-01", calc.Month)
		assert.True(t, calc.CirculationEnergy.Equal(dec("700")))
		f.meters.AssertNotCalled(t, "FindByBuilding", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("non-heating season computes from readings and is audited", func(t *testing.T) {
		f := newGyvatukasFixture(t, "1000", "5")

		calc, err := f.engine.Calculate(ctx, f.building, date(2024, time.July, 1))
		require.NoError(t, err)

		assert.Equal(t, "738.32", calc.CirculationEnergy.StringFixed(2))
		require.Len(t, f.audit.entries, 1)
		entry := f.audit.entries[0]
		assert.Equal(t, billing.AuditKindGyvatukas, entry.Kind)
		assert.Equal(t, billing.SeasonSummer, entry.Season)
		assert.Equal(t, "2024-07", entry.Month)
		assert.True(t, entry.Energy.Equal(calc.CirculationEnergy))
	})
}

func TestGyvatukasEngine_CalculateBill(t *testing.T) {
	f := newGyvatukasFixture(t, "1000", "5")

	bill, err := f.engine.CalculateBill(context.Background(), f.building, date(2024, time.July, 1), "")
	require.NoError(t, err)

	// 738.32 kWh × 0.15 = 110.748
	assert.Equal(t, "110.75", bill.Result.TotalAmount.StringFixed(2))
	assert.True(t, bill.Result.Reconciles())
	assert.Equal(t, GyvatukasPricingModel, string(bill.Result.TariffSnapshot.PricingModel))
	assert.Equal(t, billing.DistributionEqual, bill.Distribution.Method)
	assert.Equal(t, "110.75", bill.Distribution.Total().StringFixed(2))

	ids := f.building.PropertyIDs()
	assert.Equal(t, "55.37", bill.Distribution.Allocations[ids[0]].StringFixed(2))
	assert.Equal(t, "55.38", bill.Distribution.Allocations[ids[1]].StringFixed(2))

	t.Run("area weighted", func(t *testing.T) {
		bill, err := f.engine.CalculateBill(context.Background(), f.building, date(2024, time.July, 1), billing.DistributionArea)
		require.NoError(t, err)
		assert.Equal(t, "44.30", bill.Distribution.Allocations[ids[0]].StringFixed(2))
		assert.Equal(t, "66.45", bill.Distribution.Allocations[ids[1]].StringFixed(2))
	})
}

func TestGyvatukasEngine_ClearBuildingCache(t *testing.T) {
	f := newGyvatukasFixture(t, "1000", "5")
	ctx := context.Background()

	_, err := f.engine.CalculateSummer(ctx, f.building, date(2024, time.July, 1))
	require.NoError(t, err)
	_, err = f.engine.CalculateSummer(ctx, f.building, date(2024, time.August, 1))
	require.NoError(t, err)

	n, err := f.engine.ClearBuildingCache(ctx, f.building.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = f.engine.ClearBuildingCache(ctx, uuid.New())
	require.NoError(t, err)
	assert.Zero(t, n)
}
