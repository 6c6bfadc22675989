package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/erp/utility-billing/internal/domain/billing"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ServiceConfigurationModel is the persistence model for billing.ServiceConfiguration.
// The rate schedule, limits and rules are stored as JSON text.
type ServiceConfigurationModel struct {
	BaseModel
	PropertyID          uuid.UUID  `gorm:"type:uuid;not null;index:idx_service_config_lookup"`
	UtilityServiceID    uuid.UUID  `gorm:"type:uuid;not null;index:idx_service_config_lookup"`
	ServiceType         string     `gorm:"type:varchar(50)"`
	PricingModel        string     `gorm:"type:varchar(30);not null"`
	RateSchedule        string     `gorm:"type:text;not null"`
	DistributionMethod  string     `gorm:"type:varchar(30);not null"`
	DistributionFormula string     `gorm:"type:text"`
	EffectiveFrom       time.Time  `gorm:"not null"`
	EffectiveUntil      *time.Time
	IsActive            bool       `gorm:"not null;index"`
	TariffID            *uuid.UUID `gorm:"type:uuid"`
	ProviderID          *uuid.UUID `gorm:"type:uuid"`
	ConsumptionLimits   string     `gorm:"type:text"`
	Rules               string     `gorm:"type:text"`
}

// TableName returns the table name for GORM
func (ServiceConfigurationModel) TableName() string {
	return "service_configurations"
}

// ToDomain converts the model to a domain configuration. A stored schedule
// that no longer parses is an error.
func (m *ServiceConfigurationModel) ToDomain() (*billing.ServiceConfiguration, error) {
	model := billing.PricingModel(m.PricingModel)
	schedule, err := billing.ParseRateSchedule(model, []byte(m.RateSchedule))
	if err != nil {
		return nil, fmt.Errorf("service configuration %s: %w", m.ID, err)
	}

	cfg := &billing.ServiceConfiguration{
		ID:                  m.ID,
		PropertyID:          m.PropertyID,
		UtilityServiceID:    m.UtilityServiceID,
		ServiceType:         m.ServiceType,
		PricingModel:        model,
		RateSchedule:        schedule,
		DistributionMethod:  billing.DistributionMethod(m.DistributionMethod),
		DistributionFormula: m.DistributionFormula,
		EffectiveFrom:       m.EffectiveFrom.UTC(),
		EffectiveUntil:      utcPtr(m.EffectiveUntil),
		IsActive:            m.IsActive,
		TariffID:            m.TariffID,
		ProviderID:          m.ProviderID,
		UpdatedAt:           m.UpdatedAt.UTC(),
	}
	if m.ConsumptionLimits != "" {
		var limits billing.ConsumptionLimits
		if err := json.Unmarshal([]byte(m.ConsumptionLimits), &limits); err != nil {
			return nil, fmt.Errorf("service configuration %s: malformed consumption limits: %w", m.ID, err)
		}
		cfg.ConsumptionLimits = &limits
	}
	if m.Rules != "" {
		if err := json.Unmarshal([]byte(m.Rules), &cfg.Rules); err != nil {
			return nil, fmt.Errorf("service configuration %s: malformed rules: %w", m.ID, err)
		}
	}
	return cfg, nil
}

// ServiceConfigurationFromDomain builds the persistence model of cfg
func ServiceConfigurationFromDomain(cfg *billing.ServiceConfiguration) (*ServiceConfigurationModel, error) {
	if cfg.RateSchedule == nil {
		return nil, fmt.Errorf("service configuration %s has no rate schedule", cfg.ID)
	}
	schedule, err := billing.MarshalRateSchedule(cfg.RateSchedule)
	if err != nil {
		return nil, fmt.Errorf("failed to encode rate schedule: %w", err)
	}
	m := &ServiceConfigurationModel{
		BaseModel:           BaseModel{ID: ensureID(cfg.ID), UpdatedAt: cfg.UpdatedAt},
		PropertyID:          cfg.PropertyID,
		UtilityServiceID:    cfg.UtilityServiceID,
		ServiceType:         cfg.ServiceType,
		PricingModel:        string(cfg.PricingModel),
		RateSchedule:        string(schedule),
		DistributionMethod:  string(cfg.DistributionMethod),
		DistributionFormula: cfg.DistributionFormula,
		EffectiveFrom:       cfg.EffectiveFrom,
		EffectiveUntil:      cfg.EffectiveUntil,
		IsActive:            cfg.IsActive,
		TariffID:            cfg.TariffID,
		ProviderID:          cfg.ProviderID,
	}
	if m.DistributionMethod == "" {
		m.DistributionMethod = string(billing.DistributionEqual)
	}
	if cfg.ConsumptionLimits != nil {
		raw, err := json.Marshal(cfg.ConsumptionLimits)
		if err != nil {
			return nil, fmt.Errorf("failed to encode consumption limits: %w", err)
		}
		m.ConsumptionLimits = string(raw)
	}
	if len(cfg.Rules) > 0 {
		raw, err := json.Marshal(cfg.Rules)
		if err != nil {
			return nil, fmt.Errorf("failed to encode rules: %w", err)
		}
		m.Rules = string(raw)
	}
	return m, nil
}

// TariffModel is the persistence model for billing.Tariff
type TariffModel struct {
	BaseModel
	Name        string    `gorm:"type:varchar(200);not null"`
	ActiveFrom  time.Time `gorm:"not null"`
	ActiveUntil *time.Time
}

// TableName returns the table name for GORM
func (TariffModel) TableName() string {
	return "tariffs"
}

// ToDomain converts the model to a domain tariff
func (m *TariffModel) ToDomain() *billing.Tariff {
	return &billing.Tariff{
		ID:          m.ID,
		Name:        m.Name,
		ActiveFrom:  m.ActiveFrom.UTC(),
		ActiveUntil: utcPtr(m.ActiveUntil),
	}
}

// TariffFromDomain builds the persistence model of t
func TariffFromDomain(t *billing.Tariff) *TariffModel {
	return &TariffModel{
		BaseModel:   BaseModel{ID: ensureID(t.ID)},
		Name:        t.Name,
		ActiveFrom:  t.ActiveFrom,
		ActiveUntil: t.ActiveUntil,
	}
}

// CalculationAuditModel is one row of the calculation audit trail
type CalculationAuditModel struct {
	ID                     uuid.UUID       `gorm:"type:uuid;primaryKey"`
	Kind                   string          `gorm:"type:varchar(30);not null;index"`
	BuildingID             *uuid.UUID      `gorm:"type:uuid;index"`
	ServiceConfigurationID *uuid.UUID      `gorm:"type:uuid;index"`
	Month                  string          `gorm:"type:varchar(7);not null"`
	Season                 string          `gorm:"type:varchar(10)"`
	Energy                 decimal.Decimal `gorm:"type:numeric(20,6);not null"`
	Amount                 decimal.Decimal `gorm:"type:numeric(20,6);not null"`
	DurationMs             int64           `gorm:"not null"`
	CalculatedAt           time.Time       `gorm:"not null;index"`
}

// TableName returns the table name for GORM
func (CalculationAuditModel) TableName() string {
	return "calculation_audits"
}

// ToDomain converts the model to a domain audit entry
func (m *CalculationAuditModel) ToDomain() *billing.CalculationAudit {
	return &billing.CalculationAudit{
		ID:                     m.ID,
		Kind:                   m.Kind,
		BuildingID:             m.BuildingID,
		ServiceConfigurationID: m.ServiceConfigurationID,
		Month:                  m.Month,
		Season:                 billing.Season(m.Season),
		Energy:                 m.Energy,
		Amount:                 m.Amount,
		Duration:               time.Duration(m.DurationMs) * time.Millisecond,
		CalculatedAt:           m.CalculatedAt.UTC(),
	}
}

// CalculationAuditFromDomain builds the persistence model of a
func CalculationAuditFromDomain(a *billing.CalculationAudit) *CalculationAuditModel {
	return &CalculationAuditModel{
		ID:                     ensureID(a.ID),
		Kind:                   a.Kind,
		BuildingID:             a.BuildingID,
		ServiceConfigurationID: a.ServiceConfigurationID,
		Month:                  a.Month,
		Season:                 string(a.Season),
		Energy:                 a.Energy,
		Amount:                 a.Amount,
		DurationMs:             a.Duration.Milliseconds(),
		CalculatedAt:           a.CalculatedAt,
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
