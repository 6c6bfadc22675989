package billing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/erp/utility-billing/internal/domain/billing"
	"github.com/erp/utility-billing/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CalculationRequest is one configuration priced for one period
type CalculationRequest struct {
	Configuration *billing.ServiceConfiguration
	Consumption   billing.ConsumptionData
	Period        billing.BillingPeriod
}

// CalculationService is the entry point of billing calculations. It gates
// input through the validation engine, prices through the calculator and
// caches results by fingerprint.
type CalculationService struct {
	configs    billing.ServiceConfigurationReader
	validator  *ValidationEngine
	calculator *PricingCalculator
	cache      billing.ResultCache
	audit      billing.CalculationAuditRecorder
	clock      shared.Clock
	logger     *zap.Logger
	metrics    MetricsRecorder
	config     CalculationServiceConfig
}

// CalculationServiceConfig contains configuration for CalculationService
type CalculationServiceConfig struct {
	CacheEnabled   bool
	CacheTTL       time.Duration
	CachePrefix    string
	MinConsumption decimal.Decimal
	MaxConsumption decimal.Decimal
}

// DefaultCalculationServiceConfig returns default configuration
func DefaultCalculationServiceConfig() CalculationServiceConfig {
	return CalculationServiceConfig{
		CacheEnabled:   true,
		CacheTTL:       time.Hour,
		CachePrefix:    "universal_billing",
		MinConsumption: decimal.Zero,
		MaxConsumption: decimal.RequireFromString("999999.99"),
	}
}

// NewCalculationService creates a new CalculationService. cache and audit
// may be nil.
func NewCalculationService(
	configs billing.ServiceConfigurationReader,
	validator *ValidationEngine,
	calculator *PricingCalculator,
	cache billing.ResultCache,
	audit billing.CalculationAuditRecorder,
	clock shared.Clock,
	logger *zap.Logger,
	metrics MetricsRecorder,
	config CalculationServiceConfig,
) *CalculationService {
	d := DefaultCalculationServiceConfig()
	if config.CacheTTL <= 0 {
		config.CacheTTL = d.CacheTTL
	}
	if config.CachePrefix == "" {
		config.CachePrefix = d.CachePrefix
	}
	if !config.MaxConsumption.IsPositive() {
		config.MaxConsumption = d.MaxConsumption
	}
	if clock == nil {
		clock = shared.SystemClock()
	}
	return &CalculationService{
		configs:    configs,
		validator:  validator,
		calculator: calculator,
		cache:      cache,
		audit:      audit,
		clock:      clock,
		logger:     logger.Named("calculation"),
		metrics:    orNop(metrics),
		config:     config,
	}
}

// Calculate validates req, prices it and returns the result with its tariff
// snapshot. A cached result for the same fingerprint is returned with
// FromCache set.
func (s *CalculationService) Calculate(ctx context.Context, req CalculationRequest) (*billing.CalculationResult, error) {
	start := s.clock.Now()
	cfg := req.Configuration
	if cfg == nil {
		return nil, fmt.Errorf("%w: service configuration is required", shared.ErrInvalidInput)
	}
	model := cfg.PricingModel.String()

	if err := s.gate(ctx, req); err != nil {
		s.metrics.ObserveCalculation(model, OutcomeError, s.clock.Now().Sub(start))
		return nil, err
	}

	fingerprint, err := Fingerprint(cfg, req.Consumption, req.Period)
	if err != nil {
		return nil, err
	}
	key := s.cacheKey(cfg.ID, fingerprint)

	if cached := s.fromCache(ctx, key); cached != nil {
		s.metrics.ObserveCalculation(model, OutcomeCached, s.clock.Now().Sub(start))
		return cached, nil
	}

	result, err := s.calculator.Calculate(ctx, cfg, req.Consumption, req.Period)
	if err != nil {
		s.metrics.ObserveCalculation(model, OutcomeError, s.clock.Now().Sub(start))
		return nil, err
	}
	result.Fingerprint = fingerprint
	s.toCache(ctx, key, result)

	duration := s.clock.Now().Sub(start)
	s.metrics.ObserveCalculation(model, OutcomeSuccess, duration)
	s.recordAudit(ctx, cfg, result, duration)

	s.logger.Debug("Calculation completed",
		zap.String("service_configuration_id", cfg.ID.String()),
		zap.String("pricing_model", model),
		zap.String("period", req.Period.String()),
		zap.String("total_amount", result.TotalAmount.StringFixed(2)),
		zap.Duration("duration", duration))
	return result, nil
}

// CalculateForConfiguration loads the configuration by ID and calculates
func (s *CalculationService) CalculateForConfiguration(ctx context.Context, configID uuid.UUID, consumption billing.ConsumptionData, period billing.BillingPeriod) (*billing.CalculationResult, error) {
	if s.configs == nil {
		return nil, fmt.Errorf("%w: no configuration repository", shared.ErrInvalidConfiguration)
	}
	cfg, err := s.configs.FindByID(ctx, configID)
	if err != nil {
		return nil, err
	}
	return s.Calculate(ctx, CalculationRequest{Configuration: cfg, Consumption: consumption, Period: period})
}

// ClearConfigurationCache drops every cached result of a configuration
func (s *CalculationService) ClearConfigurationCache(ctx context.Context, configID uuid.UUID) (int, error) {
	return s.clearPrefix(ctx, fmt.Sprintf("%s:%s:", s.config.CachePrefix, configID))
}

// ClearAll drops every cached calculation result
func (s *CalculationService) ClearAll(ctx context.Context) (int, error) {
	return s.clearPrefix(ctx, s.config.CachePrefix+":")
}

func (s *CalculationService) clearPrefix(ctx context.Context, prefix string) (int, error) {
	if s.cache == nil {
		return 0, nil
	}
	n, err := s.cache.DeletePrefix(ctx, prefix)
	if err != nil {
		return 0, fmt.Errorf("failed to clear calculation cache: %w", err)
	}
	s.logger.Info("Cleared calculation cache", zap.String("prefix", prefix), zap.Int("entries", n))
	return n, nil
}

// gate rejects out-of-range consumption and configurations with rule
// violations
func (s *CalculationService) gate(ctx context.Context, req CalculationRequest) error {
	if err := req.Consumption.CheckBounds(s.config.MinConsumption, s.config.MaxConsumption); err != nil {
		return err
	}
	if err := req.Configuration.Validate(); err != nil {
		return err
	}
	if s.validator == nil {
		return nil
	}
	vr := s.validator.ValidateConfiguration(ctx, req.Configuration)
	if vr.IsValid {
		return nil
	}
	msgs := make([]string, 0, len(vr.Errors))
	for _, e := range vr.Errors {
		msgs = append(msgs, fmt.Sprintf("%s: %s", e.Field, e.Message))
	}
	return fmt.Errorf("%w: %s", shared.ErrInvalidConfiguration, strings.Join(msgs, "; "))
}

func (s *CalculationService) cacheKey(configID uuid.UUID, fingerprint string) string {
	return fmt.Sprintf("%s:%s:%s", s.config.CachePrefix, configID, fingerprint)
}

func (s *CalculationService) fromCache(ctx context.Context, key string) *billing.CalculationResult {
	if s.cache == nil || !s.config.CacheEnabled {
		return nil
	}
	raw, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn("Failed to read calculation cache", zap.String("key", key), zap.Error(err))
		return nil
	}
	s.metrics.IncCacheLookup(s.config.CachePrefix, ok)
	if !ok {
		return nil
	}
	var result billing.CalculationResult
	if err := json.Unmarshal(raw, &result); err != nil {
		s.logger.Warn("Discarding unreadable cache entry", zap.String("key", key), zap.Error(err))
		return nil
	}
	result.FromCache = true
	return &result
}

func (s *CalculationService) toCache(ctx context.Context, key string, result *billing.CalculationResult) {
	if s.cache == nil || !s.config.CacheEnabled {
		return
	}
	raw, err := json.Marshal(result)
	if err != nil {
		s.logger.Warn("Failed to encode calculation result", zap.Error(err))
		return
	}
	if err := s.cache.Set(ctx, key, raw, s.config.CacheTTL); err != nil {
		s.logger.Warn("Failed to write calculation cache", zap.String("key", key), zap.Error(err))
	}
}

func (s *CalculationService) recordAudit(ctx context.Context, cfg *billing.ServiceConfiguration, result *billing.CalculationResult, duration time.Duration) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, &billing.CalculationAudit{
		ID:                     uuid.New(),
		Kind:                   billing.AuditKindCalculation,
		ServiceConfigurationID: &cfg.ID,
		Month:                  result.Period.MonthKey(),
		Season:                 result.Details.Season,
		Energy:                 result.Details.Consumption,
		Amount:                 result.TotalAmount,
		Duration:               duration,
		CalculatedAt:           result.CalculatedAt,
	})
	if err != nil {
		s.logger.Warn("Failed to record calculation audit", zap.Error(err))
	}
}

// fingerprintInput is the canonical form hashed by Fingerprint. Identity and
// bookkeeping fields of the configuration are left out.
type fingerprintInput struct {
	PricingModel       billing.PricingModel       `json:"pricingModel"`
	RateSchedule       map[string]any             `json:"rateSchedule"`
	DistributionMethod billing.DistributionMethod `json:"distributionMethod"`
	EffectiveFrom      string                     `json:"effectiveFrom"`
	EffectiveUntil     string                     `json:"effectiveUntil,omitempty"`
	Rules              []billing.ConditionalRule  `json:"rules,omitempty"`
	Zones              map[string]string          `json:"zones"`
	Total              string                     `json:"total"`
	PeriodStart        string                     `json:"periodStart"`
	PeriodEnd          string                     `json:"periodEnd"`
}

// Fingerprint returns a sha256 hex digest identifying the inputs that
// determine a calculation result
func Fingerprint(cfg *billing.ServiceConfiguration, consumption billing.ConsumptionData, period billing.BillingPeriod) (string, error) {
	schedule, err := billing.ScheduleSnapshot(cfg.RateSchedule)
	if err != nil {
		return "", fmt.Errorf("failed to fingerprint rate schedule: %w", err)
	}
	in := fingerprintInput{
		PricingModel:       cfg.PricingModel,
		RateSchedule:       schedule,
		DistributionMethod: cfg.DistributionMethod,
		EffectiveFrom:      cfg.EffectiveFrom.UTC().Format(time.DateOnly),
		Rules:              cfg.Rules,
		Zones:              make(map[string]string, len(consumption.Zones)),
		Total:              consumption.Total.String(),
		PeriodStart:        period.Start.Format(time.DateOnly),
		PeriodEnd:          period.End.Format(time.DateOnly),
	}
	if cfg.EffectiveUntil != nil {
		in.EffectiveUntil = cfg.EffectiveUntil.UTC().Format(time.DateOnly)
	}
	for zone, v := range consumption.Zones {
		in.Zones[zone] = v.String()
	}

	// encoding/json sorts map keys, which makes the encoding canonical
	raw, err := json.Marshal(in)
	if err != nil {
		return "", fmt.Errorf("failed to fingerprint calculation: %w", err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}
