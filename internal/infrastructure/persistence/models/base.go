package models

import (
	"time"

	"github.com/google/uuid"
)

// BaseModel provides common persistence fields for all models
type BaseModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// ensureID assigns a fresh ID when id is the zero UUID
func ensureID(id uuid.UUID) uuid.UUID {
	if id == uuid.Nil {
		return uuid.New()
	}
	return id
}

// All returns every model in migration order
func All() []any {
	return []any{
		&TariffModel{},
		&BuildingModel{},
		&PropertyModel{},
		&ServiceConfigurationModel{},
		&MeterModel{},
		&MeterReadingModel{},
		&CalculationAuditModel{},
	}
}
