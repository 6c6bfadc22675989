package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/erp/utility-billing/internal/domain/billing"
	"github.com/erp/utility-billing/internal/domain/shared"
	"github.com/erp/utility-billing/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// GyvatukasPricingModel is the pricing model recorded in gyvatukas bill snapshots
const GyvatukasPricingModel = "gyvatukas"

const gyvatukasCachePrefix = "gyvatukas"

var (
	minSpecificHeat     = decimal.RequireFromString("0.5")
	maxSpecificHeat     = decimal.RequireFromString("2.0")
	minTemperatureDelta = decimal.NewFromInt(20)
	maxTemperatureDelta = decimal.NewFromInt(80)
)

// GyvatukasConfig contains the physical constants and billing settings of
// the circulation fee
type GyvatukasConfig struct {
	// SpecificHeat of water in kWh/m³·°C
	SpecificHeat decimal.Decimal
	// TemperatureDelta between hot water and cold inlet in °C
	TemperatureDelta decimal.Decimal
	// EnergyRate is the price per kWh of circulation energy
	EnergyRate         decimal.Decimal
	DistributionMethod billing.DistributionMethod
	CacheTTL           time.Duration
	Currency           valueobject.Currency
}

// DefaultGyvatukasConfig returns default configuration
func DefaultGyvatukasConfig() GyvatukasConfig {
	return GyvatukasConfig{
		SpecificHeat:       decimal.RequireFromString("1.163"),
		TemperatureDelta:   decimal.NewFromInt(45),
		EnergyRate:         decimal.RequireFromString("0.15"),
		DistributionMethod: billing.DistributionEqual,
		CacheTTL:           24 * time.Hour,
		Currency:           valueobject.DefaultCurrency,
	}
}

// Validate checks the physical constants against their plausible ranges
func (c GyvatukasConfig) Validate() error {
	if c.SpecificHeat.LessThan(minSpecificHeat) || c.SpecificHeat.GreaterThan(maxSpecificHeat) {
		return fmt.Errorf("%w: specific heat %s outside [%s, %s]", shared.ErrInvalidConfiguration, c.SpecificHeat, minSpecificHeat, maxSpecificHeat)
	}
	if c.TemperatureDelta.LessThan(minTemperatureDelta) || c.TemperatureDelta.GreaterThan(maxTemperatureDelta) {
		return fmt.Errorf("%w: temperature delta %s outside [%s, %s]", shared.ErrInvalidConfiguration, c.TemperatureDelta, minTemperatureDelta, maxTemperatureDelta)
	}
	if c.EnergyRate.IsNegative() {
		return fmt.Errorf("%w: energy rate cannot be negative", shared.ErrInvalidConfiguration)
	}
	if c.DistributionMethod != "" && !c.DistributionMethod.IsValid() {
		return fmt.Errorf("%w: unknown distribution method %q", shared.ErrInvalidConfiguration, c.DistributionMethod)
	}
	return nil
}

// GyvatukasCalculation is the circulation energy of one building for one month
type GyvatukasCalculation struct {
	BuildingID         uuid.UUID       `json:"buildingId"`
	Month              string          `json:"month"`
	Season             billing.Season  `json:"season"`
	HeatingEnergy      decimal.Decimal `json:"heatingEnergy"`
	HotWaterVolume     decimal.Decimal `json:"hotWaterVolume"`
	WaterHeatingEnergy decimal.Decimal `json:"waterHeatingEnergy"`
	CirculationEnergy  decimal.Decimal `json:"circulationEnergy"`
	Warnings           []string        `json:"warnings,omitempty"`
	FromCache          bool            `json:"fromCache"`
}

// GyvatukasBill is a circulation fee priced and allocated across properties
type GyvatukasBill struct {
	Calculation  *GyvatukasCalculation       `json:"calculation"`
	Result       *billing.CalculationResult  `json:"result"`
	Distribution *billing.DistributionResult `json:"distribution"`
}

// GyvatukasEngine computes the hot-water circulation fee of a building. In
// the non-heating season the fee is derived from the month's meter readings;
// in the heating season the stored summer average is used unchanged.
type GyvatukasEngine struct {
	meters      billing.MeterReader
	readings    billing.MeterReadingReader
	aggregator  *billing.ConsumptionAggregator
	adjuster    *billing.SeasonalAdjuster
	distributor *CostDistributor
	cache       billing.ResultCache
	audit       billing.CalculationAuditRecorder
	clock       shared.Clock
	logger      *zap.Logger
	metrics     MetricsRecorder
	config      GyvatukasConfig
}

// NewGyvatukasEngine creates a new GyvatukasEngine. cache and audit may be
// nil. Out-of-range constants fail with shared.ErrInvalidConfiguration.
func NewGyvatukasEngine(
	meters billing.MeterReader,
	readings billing.MeterReadingReader,
	adjuster *billing.SeasonalAdjuster,
	distributor *CostDistributor,
	cache billing.ResultCache,
	audit billing.CalculationAuditRecorder,
	clock shared.Clock,
	logger *zap.Logger,
	metrics MetricsRecorder,
	config GyvatukasConfig,
) (*GyvatukasEngine, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.DistributionMethod == "" {
		config.DistributionMethod = billing.DistributionEqual
	}
	if config.CacheTTL <= 0 {
		config.CacheTTL = 24 * time.Hour
	}
	if config.Currency == "" {
		config.Currency = valueobject.DefaultCurrency
	}
	if clock == nil {
		clock = shared.SystemClock()
	}
	return &GyvatukasEngine{
		meters:      meters,
		readings:    readings,
		aggregator:  billing.NewConsumptionAggregator(),
		adjuster:    adjuster,
		distributor: distributor,
		cache:       cache,
		audit:       audit,
		clock:       clock,
		logger:      logger.Named("gyvatukas"),
		metrics:     orNop(metrics),
		config:      config,
	}, nil
}

// Config returns the engine configuration
func (e *GyvatukasEngine) Config() GyvatukasConfig {
	return e.config
}

func gyvatukasCacheKey(buildingID uuid.UUID, month string) string {
	return fmt.Sprintf("%s:%s:%s", gyvatukasCachePrefix, buildingID, month)
}

// WaterHeatingEnergy returns the energy needed to heat volume m³ of water:
// round(round(volume × specificHeat, 3) × ΔT, 2)
func (e *GyvatukasEngine) WaterHeatingEnergy(volume decimal.Decimal) decimal.Decimal {
	return valueobject.RoundMoney(valueobject.RoundConsumption(volume.Mul(e.config.SpecificHeat)).Mul(e.config.TemperatureDelta))
}

// CirculationEnergy returns max(0, heatingEnergy − WaterHeatingEnergy(volume))
// and whether the raw result had to be clamped
func (e *GyvatukasEngine) CirculationEnergy(heatingEnergy, volume decimal.Decimal) (decimal.Decimal, bool) {
	circulation := valueobject.RoundMoney(heatingEnergy).Sub(e.WaterHeatingEnergy(volume))
	if circulation.IsNegative() {
		return decimal.Zero, true
	}
	return circulation, false
}

// CalculateSummer computes the circulation energy of building for the
// calendar month containing month. Results are cached per building and month
// so repeated calls with unchanged readings return the identical value.
func (e *GyvatukasEngine) CalculateSummer(ctx context.Context, building *billing.Building, month time.Time) (*GyvatukasCalculation, error) {
	if building == nil {
		return nil, fmt.Errorf("%w: building is required", shared.ErrInvalidInput)
	}
	period := billing.FullMonth(month.Year(), month.Month())
	key := gyvatukasCacheKey(building.ID, period.MonthKey())

	if cached := e.fromCache(ctx, key); cached != nil {
		return cached, nil
	}

	heating, err := e.buildingConsumption(ctx, building.ID, period, billing.MeterTypeHeating)
	if err != nil {
		return nil, err
	}
	volume, err := e.buildingConsumption(ctx, building.ID, period, billing.MeterTypeHotWater)
	if err != nil {
		return nil, err
	}

	calc := &GyvatukasCalculation{
		BuildingID:         building.ID,
		Month:              period.MonthKey(),
		Season:             billing.SeasonSummer,
		HeatingEnergy:      valueobject.RoundMoney(heating),
		HotWaterVolume:     valueobject.RoundConsumption(volume),
		WaterHeatingEnergy: e.WaterHeatingEnergy(volume),
	}
	circulation, clamped := e.CirculationEnergy(heating, volume)
	calc.CirculationEnergy = circulation
	if clamped {
		msg := fmt.Sprintf("water heating energy %s exceeds total heating energy %s; circulation energy clamped to 0",
			calc.WaterHeatingEnergy, calc.HeatingEnergy)
		calc.Warnings = append(calc.Warnings, msg)
		e.logger.Warn("Negative circulation energy",
			zap.String("building", billing.BuildingRef(building.ID)),
			zap.String("month", calc.Month),
			zap.String("heating_energy", calc.HeatingEnergy.String()),
			zap.String("water_heating_energy", calc.WaterHeatingEnergy.String()))
	}

	e.toCache(ctx, key, calc)
	return calc, nil
}

// CalculateWinter returns the stored summer average of building verbatim,
// or zero with a warning when none is stored
func (e *GyvatukasEngine) CalculateWinter(building *billing.Building) *GyvatukasCalculation {
	calc := &GyvatukasCalculation{
		BuildingID:        building.ID,
		Season:            billing.SeasonWinter,
		CirculationEnergy: decimal.Zero,
	}
	if building.HasSummerAverage() {
		calc.CirculationEnergy = *building.CirculationSummerAverage
		return calc
	}
	calc.Warnings = append(calc.Warnings, "building has no summer circulation average; winter circulation energy is 0")
	e.logger.Warn("Missing summer average",
		zap.String("building", billing.BuildingRef(building.ID)))
	return calc
}

// Calculate dispatches on the season of month and records an audit entry
func (e *GyvatukasEngine) Calculate(ctx context.Context, building *billing.Building, month time.Time) (*GyvatukasCalculation, error) {
	if building == nil {
		return nil, fmt.Errorf("%w: building is required", shared.ErrInvalidInput)
	}
	start := e.clock.Now()
	period := billing.FullMonth(month.Year(), month.Month())

	var calc *GyvatukasCalculation
	if e.adjuster.IsHeatingSeason(period.Start.Month()) {
		calc = e.CalculateWinter(building)
		calc.Month = period.MonthKey()
	} else {
		var err error
		calc, err = e.CalculateSummer(ctx, building, period.Start)
		if err != nil {
			return nil, err
		}
	}

	duration := e.clock.Now().Sub(start)
	e.metrics.ObserveGyvatukas(string(calc.Season), duration)
	e.logger.Debug("Circulation energy calculated",
		zap.String("building", billing.BuildingRef(building.ID)),
		zap.String("month", calc.Month),
		zap.String("season", string(calc.Season)),
		zap.String("circulation_energy", calc.CirculationEnergy.String()),
		zap.Bool("from_cache", calc.FromCache))

	e.recordAudit(ctx, &billing.CalculationAudit{
		ID:           uuid.New(),
		Kind:         billing.AuditKindGyvatukas,
		BuildingID:   &building.ID,
		Month:        calc.Month,
		Season:       calc.Season,
		Energy:       calc.CirculationEnergy,
		Duration:     duration,
		CalculatedAt: e.clock.Now(),
	})
	return calc, nil
}

// Distribute allocates cost across the properties of building. An empty
// method uses the configured default.
func (e *GyvatukasEngine) Distribute(ctx context.Context, building *billing.Building, cost decimal.Decimal, method billing.DistributionMethod) (*billing.DistributionResult, error) {
	if building == nil {
		return nil, fmt.Errorf("%w: building is required", shared.ErrInvalidInput)
	}
	if method == "" {
		method = e.config.DistributionMethod
	}
	return e.distributor.Distribute(ctx, cost, building.Properties, method, DistributeOptions{})
}

// CalculateBill prices the month's circulation energy at the energy rate and
// allocates the amount across the building's properties
func (e *GyvatukasEngine) CalculateBill(ctx context.Context, building *billing.Building, month time.Time, method billing.DistributionMethod) (*GyvatukasBill, error) {
	calc, err := e.Calculate(ctx, building, month)
	if err != nil {
		return nil, err
	}
	if method == "" {
		method = e.config.DistributionMethod
	}

	amount := valueobject.RoundMoney(calc.CirculationEnergy.Mul(e.config.EnergyRate))
	distribution, err := e.Distribute(ctx, building, amount, method)
	if err != nil {
		return nil, err
	}

	period := billing.FullMonth(month.Year(), month.Month())
	now := e.clock.Now()
	result := &billing.CalculationResult{
		ConsumptionAmount: amount,
		FixedAmount:       decimal.Zero,
		Currency:          e.config.Currency,
		Adjustments:       []billing.Adjustment{},
		TariffSnapshot: billing.TariffSnapshot{
			PricingModel: GyvatukasPricingModel,
			RateSchedule: map[string]any{
				"energyRate":       e.config.EnergyRate.String(),
				"specificHeat":     e.config.SpecificHeat.String(),
				"temperatureDelta": e.config.TemperatureDelta.String(),
			},
			DistributionMethod: method,
			EffectiveFrom:      period.Start,
			SnapshotCreatedAt:  now,
		},
		Details: billing.CalculationDetails{
			Season:          calc.Season,
			PeriodDays:      period.Days(),
			ProrationFactor: decimal.NewFromInt(1),
			Consumption:     calc.CirculationEnergy,
			UnitRate:        billing.DecimalPtr(e.config.EnergyRate),
			Mode:            billing.ModeConsumption,
		},
		Period:       period,
		Warnings:     append(append([]string{}, calc.Warnings...), distribution.Warnings...),
		CalculatedAt: now,
	}
	result.Finalize()

	return &GyvatukasBill{Calculation: calc, Result: result, Distribution: distribution}, nil
}

// ClearBuildingCache drops every cached month of building
func (e *GyvatukasEngine) ClearBuildingCache(ctx context.Context, buildingID uuid.UUID) (int, error) {
	if e.cache == nil {
		return 0, nil
	}
	n, err := e.cache.DeletePrefix(ctx, fmt.Sprintf("%s:%s:", gyvatukasCachePrefix, buildingID))
	if err != nil {
		return 0, fmt.Errorf("failed to clear gyvatukas cache: %w", err)
	}
	e.logger.Info("Cleared gyvatukas cache",
		zap.String("building", billing.BuildingRef(buildingID)),
		zap.Int("entries", n))
	return n, nil
}

// buildingConsumption sums the consumption of every meter of type in the
// building. Meters are read concurrently.
func (e *GyvatukasEngine) buildingConsumption(ctx context.Context, buildingID uuid.UUID, period billing.BillingPeriod, meterType billing.MeterType) (decimal.Decimal, error) {
	meters, err := e.meters.FindByBuilding(ctx, buildingID, meterType)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to load %s meters: %w", meterType, err)
	}

	readings := make([][]billing.MeterReading, len(meters))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, m := range meters {
		g.Go(func() error {
			rs, err := e.readings.FindInPeriod(gctx, m.ID, period)
			if err != nil {
				return fmt.Errorf("failed to load readings of meter %s: %w", m.ID, err)
			}
			readings[i] = rs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return decimal.Zero, err
	}
	return e.aggregator.TotalAcrossMeters(readings, period), nil
}

func (e *GyvatukasEngine) fromCache(ctx context.Context, key string) *GyvatukasCalculation {
	if e.cache == nil {
		return nil
	}
	raw, ok, err := e.cache.Get(ctx, key)
	if err != nil {
		e.logger.Warn("Failed to read gyvatukas cache", zap.String("key", key), zap.Error(err))
		return nil
	}
	e.metrics.IncCacheLookup(gyvatukasCachePrefix, ok)
	if !ok {
		return nil
	}
	var calc GyvatukasCalculation
	if err := json.Unmarshal(raw, &calc); err != nil {
		e.logger.Warn("Discarding unreadable gyvatukas cache entry", zap.String("key", key), zap.Error(err))
		return nil
	}
	calc.FromCache = true
	return &calc
}

func (e *GyvatukasEngine) toCache(ctx context.Context, key string, calc *GyvatukasCalculation) {
	if e.cache == nil {
		return
	}
	raw, err := json.Marshal(calc)
	if err != nil {
		e.logger.Warn("Failed to encode gyvatukas result", zap.Error(err))
		return
	}
	if err := e.cache.Set(ctx, key, raw, e.config.CacheTTL); err != nil {
		e.logger.Warn("Failed to write gyvatukas cache", zap.String("key", key), zap.Error(err))
	}
}

func (e *GyvatukasEngine) recordAudit(ctx context.Context, audit *billing.CalculationAudit) {
	if e.audit == nil {
		return
	}
	if err := e.audit.Record(ctx, audit); err != nil {
		e.logger.Warn("Failed to record gyvatukas audit", zap.Error(err))
	}
}
