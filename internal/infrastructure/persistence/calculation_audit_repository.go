package persistence

import (
	"context"
	"fmt"

	"github.com/erp/utility-billing/internal/domain/billing"
	"github.com/erp/utility-billing/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormCalculationAuditRepository persists the calculation audit trail
type GormCalculationAuditRepository struct {
	db *gorm.DB
}

// NewGormCalculationAuditRepository creates a new GormCalculationAuditRepository
func NewGormCalculationAuditRepository(db *gorm.DB) *GormCalculationAuditRepository {
	return &GormCalculationAuditRepository{db: db}
}

// Record appends an audit entry
func (r *GormCalculationAuditRepository) Record(ctx context.Context, audit *billing.CalculationAudit) error {
	model := models.CalculationAuditFromDomain(audit)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return fmt.Errorf("failed to record calculation audit: %w", err)
	}
	audit.ID = model.ID
	return nil
}

// FindByBuilding returns the newest audit entries of a building, at most limit
func (r *GormCalculationAuditRepository) FindByBuilding(ctx context.Context, buildingID uuid.UUID, limit int) ([]*billing.CalculationAudit, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []models.CalculationAuditModel
	err := r.db.WithContext(ctx).
		Where("building_id = ?", buildingID).
		Order("calculated_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]*billing.CalculationAudit, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out, nil
}

var _ billing.CalculationAuditRecorder = (*GormCalculationAuditRepository)(nil)
