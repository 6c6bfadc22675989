package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/utility-billing/internal/domain/billing"
	"github.com/erp/utility-billing/internal/domain/shared"
	"github.com/erp/utility-billing/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// GormBuildingRepository implements billing.BuildingRepository using GORM
type GormBuildingRepository struct {
	db *gorm.DB
}

// NewGormBuildingRepository creates a new GormBuildingRepository
func NewGormBuildingRepository(db *gorm.DB) *GormBuildingRepository {
	return &GormBuildingRepository{db: db}
}

// FindByID loads a building with its properties ordered by name
func (r *GormBuildingRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.Building, error) {
	var model models.BuildingModel
	err := r.db.WithContext(ctx).
		Preload("Properties", func(db *gorm.DB) *gorm.DB { return db.Order("name ASC, id ASC") }).
		First(&model, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: building %s", shared.ErrNotFound, id)
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Create stores a new building and its properties in one transaction
func (r *GormBuildingRepository) Create(ctx context.Context, b *billing.Building) error {
	model := models.BuildingFromDomain(b)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return fmt.Errorf("failed to create building: %w", err)
	}
	b.ID = model.ID
	for i := range b.Properties {
		b.Properties[i].ID = model.Properties[i].ID
		b.Properties[i].BuildingID = model.ID
	}
	return nil
}

// UpdateSummerAverage stores the circulation summer baseline
func (r *GormBuildingRepository) UpdateSummerAverage(ctx context.Context, id uuid.UUID, average decimal.Decimal, calculatedAt time.Time) error {
	result := r.db.WithContext(ctx).Model(&models.BuildingModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"circulation_summer_average":    decimal.NewNullDecimal(average),
			"summer_average_calculated_at": calculatedAt,
			"updated_at":                   calculatedAt,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update summer average: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: building %s", shared.ErrNotFound, id)
	}
	return nil
}

var _ billing.BuildingRepository = (*GormBuildingRepository)(nil)
