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

// GormServiceConfigurationRepository implements billing.ServiceConfigurationReader using GORM
type GormServiceConfigurationRepository struct {
	db *gorm.DB
}

// NewGormServiceConfigurationRepository creates a new GormServiceConfigurationRepository
func NewGormServiceConfigurationRepository(db *gorm.DB) *GormServiceConfigurationRepository {
	return &GormServiceConfigurationRepository{db: db}
}

// FindByID finds a configuration by ID
func (r *GormServiceConfigurationRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.ServiceConfiguration, error) {
	var model models.ServiceConfigurationModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: service configuration %s", shared.ErrNotFound, id)
		}
		return nil, err
	}
	return model.ToDomain()
}

// FindByIDs loads several configurations in one query
func (r *GormServiceConfigurationRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*billing.ServiceConfiguration, error) {
	out := make(map[uuid.UUID]*billing.ServiceConfiguration, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.ServiceConfigurationModel
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for i := range rows {
		cfg, err := rows[i].ToDomain()
		if err != nil {
			return nil, err
		}
		out[cfg.ID] = cfg
	}
	return out, nil
}

// FindActiveForService returns the active configurations of a property and
// utility service ordered by effective date
func (r *GormServiceConfigurationRepository) FindActiveForService(ctx context.Context, propertyID, utilityServiceID uuid.UUID) ([]*billing.ServiceConfiguration, error) {
	var rows []models.ServiceConfigurationModel
	err := r.db.WithContext(ctx).
		Where("property_id = ? AND utility_service_id = ? AND is_active = ?", propertyID, utilityServiceID, true).
		Order("effective_from ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]*billing.ServiceConfiguration, 0, len(rows))
	for i := range rows {
		cfg, err := rows[i].ToDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, cfg)
	}
	return out, nil
}

// Save inserts or replaces a configuration
func (r *GormServiceConfigurationRepository) Save(ctx context.Context, cfg *billing.ServiceConfiguration) error {
	model, err := models.ServiceConfigurationFromDomain(cfg)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(model).Error; err != nil {
		return fmt.Errorf("failed to save service configuration: %w", err)
	}
	cfg.ID = model.ID
	return nil
}

// Deactivate marks a configuration inactive
func (r *GormServiceConfigurationRepository) Deactivate(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Model(&models.ServiceConfigurationModel{}).
		Where("id = ?", id).
		Update("is_active", false)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: service configuration %s", shared.ErrNotFound, id)
	}
	return nil
}

var _ billing.ServiceConfigurationReader = (*GormServiceConfigurationRepository)(nil)
