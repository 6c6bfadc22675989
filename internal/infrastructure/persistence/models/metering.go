package models

import (
	"time"

	"github.com/erp/utility-billing/internal/domain/billing"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BuildingModel is the persistence model for billing.Building
type BuildingModel struct {
	BaseModel
	Name                      string              `gorm:"type:varchar(200);not null"`
	CirculationSummerAverage  decimal.NullDecimal `gorm:"type:numeric(20,6)"`
	SummerAverageCalculatedAt *time.Time
	Properties                []PropertyModel `gorm:"foreignKey:BuildingID"`
}

// TableName returns the table name for GORM
func (BuildingModel) TableName() string {
	return "buildings"
}

// ToDomain converts the model and its loaded properties to a domain building
func (m *BuildingModel) ToDomain() *billing.Building {
	b := &billing.Building{
		ID:                        m.ID,
		Name:                      m.Name,
		SummerAverageCalculatedAt: utcPtr(m.SummerAverageCalculatedAt),
		Properties:                make([]billing.Property, len(m.Properties)),
	}
	if m.CirculationSummerAverage.Valid {
		avg := m.CirculationSummerAverage.Decimal
		b.CirculationSummerAverage = &avg
	}
	for i := range m.Properties {
		b.Properties[i] = m.Properties[i].ToDomain()
	}
	return b
}

// BuildingFromDomain builds the persistence model of b and its properties
func BuildingFromDomain(b *billing.Building) *BuildingModel {
	m := &BuildingModel{
		BaseModel:                 BaseModel{ID: ensureID(b.ID)},
		Name:                      b.Name,
		SummerAverageCalculatedAt: b.SummerAverageCalculatedAt,
		Properties:                make([]PropertyModel, len(b.Properties)),
	}
	if b.CirculationSummerAverage != nil {
		m.CirculationSummerAverage = decimal.NewNullDecimal(*b.CirculationSummerAverage)
	}
	for i, p := range b.Properties {
		m.Properties[i] = PropertyModel{
			BaseModel:             BaseModel{ID: ensureID(p.ID)},
			BuildingID:            m.ID,
			Name:                  p.Name,
			AreaSqm:               p.AreaSqm,
			HistoricalConsumption: p.HistoricalConsumption,
		}
	}
	return m
}

// PropertyModel is the persistence model for billing.Property
type PropertyModel struct {
	BaseModel
	BuildingID            uuid.UUID       `gorm:"type:uuid;not null;index"`
	Name                  string          `gorm:"type:varchar(200)"`
	AreaSqm               decimal.Decimal `gorm:"type:numeric(12,3);not null"`
	HistoricalConsumption decimal.Decimal `gorm:"type:numeric(20,6);not null"`
}

// TableName returns the table name for GORM
func (PropertyModel) TableName() string {
	return "properties"
}

// ToDomain converts the model to a domain property
func (m *PropertyModel) ToDomain() billing.Property {
	return billing.Property{
		ID:                    m.ID,
		BuildingID:            m.BuildingID,
		Name:                  m.Name,
		AreaSqm:               m.AreaSqm,
		HistoricalConsumption: m.HistoricalConsumption,
	}
}

// MeterModel is the persistence model for billing.Meter
type MeterModel struct {
	BaseModel
	PropertyID             uuid.UUID  `gorm:"type:uuid;not null;index"`
	BuildingID             uuid.UUID  `gorm:"type:uuid;not null;index:idx_meter_building_type"`
	ServiceConfigurationID *uuid.UUID `gorm:"type:uuid"`
	SerialNumber           string     `gorm:"type:varchar(100);not null"`
	Type                   string     `gorm:"type:varchar(30);not null;index:idx_meter_building_type"`
	SupportsZones          bool       `gorm:"not null"`
	IsActive               bool       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (MeterModel) TableName() string {
	return "meters"
}

// ToDomain converts the model to a domain meter
func (m *MeterModel) ToDomain() *billing.Meter {
	return &billing.Meter{
		ID:                     m.ID,
		PropertyID:             m.PropertyID,
		BuildingID:             m.BuildingID,
		ServiceConfigurationID: m.ServiceConfigurationID,
		SerialNumber:           m.SerialNumber,
		Type:                   billing.MeterType(m.Type),
		SupportsZones:          m.SupportsZones,
		IsActive:               m.IsActive,
	}
}

// MeterFromDomain builds the persistence model of meter
func MeterFromDomain(meter *billing.Meter) *MeterModel {
	return &MeterModel{
		BaseModel:              BaseModel{ID: ensureID(meter.ID)},
		PropertyID:             meter.PropertyID,
		BuildingID:             meter.BuildingID,
		ServiceConfigurationID: meter.ServiceConfigurationID,
		SerialNumber:           meter.SerialNumber,
		Type:                   string(meter.Type),
		SupportsZones:          meter.SupportsZones,
		IsActive:               meter.IsActive,
	}
}

// MeterReadingModel is the persistence model for billing.MeterReading.
// The zone is stored normalised so an empty zone and the default zone are
// the same register.
type MeterReadingModel struct {
	BaseModel
	MeterID          uuid.UUID       `gorm:"type:uuid;not null;index:idx_reading_meter_date"`
	Zone             string          `gorm:"type:varchar(30);not null"`
	Value            decimal.Decimal `gorm:"type:numeric(20,6);not null"`
	ReadingDate      time.Time       `gorm:"not null;index:idx_reading_meter_date"`
	ValidationStatus string          `gorm:"type:varchar(20);not null;index"`
	InputMethod      string          `gorm:"type:varchar(30);not null"`
	PhotoPath        string          `gorm:"type:varchar(500)"`
	EnteredBy        *uuid.UUID      `gorm:"type:uuid"`
	Notes            string          `gorm:"type:text"`
}

// TableName returns the table name for GORM
func (MeterReadingModel) TableName() string {
	return "meter_readings"
}

// ToDomain converts the model to a domain reading
func (m *MeterReadingModel) ToDomain() billing.MeterReading {
	return billing.MeterReading{
		ID:               m.ID,
		MeterID:          m.MeterID,
		Zone:             m.Zone,
		Value:            m.Value,
		ReadingDate:      m.ReadingDate.UTC(),
		ValidationStatus: billing.ValidationStatus(m.ValidationStatus),
		InputMethod:      billing.InputMethod(m.InputMethod),
		PhotoPath:        m.PhotoPath,
		EnteredBy:        m.EnteredBy,
		Notes:            m.Notes,
	}
}

// MeterReadingFromDomain builds the persistence model of r
func MeterReadingFromDomain(r *billing.MeterReading) *MeterReadingModel {
	status := r.ValidationStatus
	if status == "" {
		status = billing.ValidationStatusPending
	}
	return &MeterReadingModel{
		BaseModel:        BaseModel{ID: ensureID(r.ID)},
		MeterID:          r.MeterID,
		Zone:             r.ZoneOrDefault(),
		Value:            r.Value,
		ReadingDate:      r.ReadingDate,
		ValidationStatus: string(status),
		InputMethod:      string(r.InputMethod),
		PhotoPath:        r.PhotoPath,
		EnteredBy:        r.EnteredBy,
		Notes:            r.Notes,
	}
}
