package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/erp/utility-billing/internal/domain/billing"
	"github.com/erp/utility-billing/internal/domain/shared"
	"github.com/erp/utility-billing/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormTariffRepository implements billing.TariffReader using GORM
type GormTariffRepository struct {
	db *gorm.DB
}

// NewGormTariffRepository creates a new GormTariffRepository
func NewGormTariffRepository(db *gorm.DB) *GormTariffRepository {
	return &GormTariffRepository{db: db}
}

// FindByID finds a tariff by ID
func (r *GormTariffRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.Tariff, error) {
	var model models.TariffModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: tariff %s", shared.ErrNotFound, id)
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Save inserts or replaces a tariff
func (r *GormTariffRepository) Save(ctx context.Context, t *billing.Tariff) error {
	model := models.TariffFromDomain(t)
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(model).Error; err != nil {
		return fmt.Errorf("failed to save tariff: %w", err)
	}
	t.ID = model.ID
	return nil
}

var _ billing.TariffReader = (*GormTariffRepository)(nil)
