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

// GormMeterRepository implements billing.MeterReader using GORM
type GormMeterRepository struct {
	db *gorm.DB
}

// NewGormMeterRepository creates a new GormMeterRepository
func NewGormMeterRepository(db *gorm.DB) *GormMeterRepository {
	return &GormMeterRepository{db: db}
}

// FindByID finds a meter by ID
func (r *GormMeterRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.Meter, error) {
	var model models.MeterModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: meter %s", shared.ErrNotFound, id)
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByIDs loads several meters in one query
func (r *GormMeterRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*billing.Meter, error) {
	out := make(map[uuid.UUID]*billing.Meter, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.MeterModel
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for i := range rows {
		out[rows[i].ID] = rows[i].ToDomain()
	}
	return out, nil
}

// FindByBuilding returns the active meters of a building, optionally
// restricted to types
func (r *GormMeterRepository) FindByBuilding(ctx context.Context, buildingID uuid.UUID, types ...billing.MeterType) ([]billing.Meter, error) {
	query := r.db.WithContext(ctx).
		Where("building_id = ? AND is_active = ?", buildingID, true)
	if len(types) > 0 {
		names := make([]string, len(types))
		for i, t := range types {
			names[i] = string(t)
		}
		query = query.Where("type IN ?", names)
	}

	var rows []models.MeterModel
	if err := query.Order("serial_number ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]billing.Meter, len(rows))
	for i := range rows {
		out[i] = *rows[i].ToDomain()
	}
	return out, nil
}

// Save inserts or replaces a meter
func (r *GormMeterRepository) Save(ctx context.Context, meter *billing.Meter) error {
	model := models.MeterFromDomain(meter)
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(model).Error; err != nil {
		return fmt.Errorf("failed to save meter: %w", err)
	}
	meter.ID = model.ID
	return nil
}

var _ billing.MeterReader = (*GormMeterRepository)(nil)
