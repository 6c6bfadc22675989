package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/utility-billing/internal/domain/billing"
	"github.com/erp/utility-billing/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormMeterReadingRepository implements billing.MeterReadingReader using GORM
type GormMeterReadingRepository struct {
	db *gorm.DB
}

// NewGormMeterReadingRepository creates a new GormMeterReadingRepository
func NewGormMeterReadingRepository(db *gorm.DB) *GormMeterReadingRepository {
	return &GormMeterReadingRepository{db: db}
}

func dayStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// FindInPeriod returns every reading of the meter dated within period,
// whatever its validation status
func (r *GormMeterReadingRepository) FindInPeriod(ctx context.Context, meterID uuid.UUID, period billing.BillingPeriod) ([]billing.MeterReading, error) {
	var rows []models.MeterReadingModel
	err := r.db.WithContext(ctx).
		Where("meter_id = ? AND reading_date >= ? AND reading_date < ?",
			meterID, dayStart(period.Start), dayStart(period.End).AddDate(0, 0, 1)).
		Order("reading_date ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toReadings(rows), nil
}

// FindPreviousValidated returns the latest validated reading of the zone
// dated strictly before before, or nil
func (r *GormMeterReadingRepository) FindPreviousValidated(ctx context.Context, meterID uuid.UUID, zone string, before time.Time) (*billing.MeterReading, error) {
	if zone == "" {
		zone = billing.DefaultZone
	}
	var rows []models.MeterReadingModel
	err := r.db.WithContext(ctx).
		Where("meter_id = ? AND zone = ? AND validation_status = ? AND reading_date < ?",
			meterID, zone, string(billing.ValidationStatusValidated), before).
		Order("reading_date DESC").
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	reading := rows[0].ToDomain()
	return &reading, nil
}

// FindPreviousValidatedBulk returns, per meter, the latest validated reading
// of each zone dated strictly before before. A window function keeps it to
// one query on PostgreSQL and SQLite.
func (r *GormMeterReadingRepository) FindPreviousValidatedBulk(ctx context.Context, meterIDs []uuid.UUID, before time.Time) (map[uuid.UUID][]billing.MeterReading, error) {
	out := make(map[uuid.UUID][]billing.MeterReading, len(meterIDs))
	if len(meterIDs) == 0 {
		return out, nil
	}

	ranked := r.db.Model(&models.MeterReadingModel{}).
		Select("*, ROW_NUMBER() OVER (PARTITION BY meter_id, zone ORDER BY reading_date DESC) AS rn").
		Where("meter_id IN ? AND validation_status = ? AND reading_date < ?",
			meterIDs, string(billing.ValidationStatusValidated), before)

	var rows []models.MeterReadingModel
	err := r.db.WithContext(ctx).
		Table("(?) AS ranked", ranked).
		Where("rn = 1").
		Order("meter_id, zone").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	for i := range rows {
		out[rows[i].MeterID] = append(out[rows[i].MeterID], rows[i].ToDomain())
	}
	return out, nil
}

// FindValidatedHistory returns validated readings dated on or after since
func (r *GormMeterReadingRepository) FindValidatedHistory(ctx context.Context, meterID uuid.UUID, since time.Time) ([]billing.MeterReading, error) {
	var rows []models.MeterReadingModel
	err := r.db.WithContext(ctx).
		Where("meter_id = ? AND validation_status = ? AND reading_date >= ?",
			meterID, string(billing.ValidationStatusValidated), since).
		Order("reading_date ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toReadings(rows), nil
}

// FindValidatedHistoryBulk is FindValidatedHistory for several meters
func (r *GormMeterReadingRepository) FindValidatedHistoryBulk(ctx context.Context, meterIDs []uuid.UUID, since time.Time) (map[uuid.UUID][]billing.MeterReading, error) {
	out := make(map[uuid.UUID][]billing.MeterReading, len(meterIDs))
	if len(meterIDs) == 0 {
		return out, nil
	}
	var rows []models.MeterReadingModel
	err := r.db.WithContext(ctx).
		Where("meter_id IN ? AND validation_status = ? AND reading_date >= ?",
			meterIDs, string(billing.ValidationStatusValidated), since).
		Order("reading_date ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	for i := range rows {
		out[rows[i].MeterID] = append(out[rows[i].MeterID], rows[i].ToDomain())
	}
	return out, nil
}

// Save inserts or replaces a reading
func (r *GormMeterReadingRepository) Save(ctx context.Context, reading *billing.MeterReading) error {
	model := models.MeterReadingFromDomain(reading)
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(model).Error; err != nil {
		return fmt.Errorf("failed to save meter reading: %w", err)
	}
	reading.ID = model.ID
	return nil
}

// UpdateStatus records the outcome of validating a reading
func (r *GormMeterReadingRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status billing.ValidationStatus) error {
	return r.db.WithContext(ctx).Model(&models.MeterReadingModel{}).
		Where("id = ?", id).
		Update("validation_status", string(status)).Error
}

func toReadings(rows []models.MeterReadingModel) []billing.MeterReading {
	out := make([]billing.MeterReading, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out
}

var _ billing.MeterReadingReader = (*GormMeterReadingRepository)(nil)
