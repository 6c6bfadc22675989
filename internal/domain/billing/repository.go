package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ServiceConfigurationReader reads pricing configurations. Lookups of a
// missing configuration return an error wrapping shared.ErrNotFound.
type ServiceConfigurationReader interface {
	// FindByID retrieves a configuration by its ID
	FindByID(ctx context.Context, id uuid.UUID) (*ServiceConfiguration, error)

	// FindByIDs retrieves several configurations in one query; missing IDs are absent from the map
	FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*ServiceConfiguration, error)

	// FindActiveForService returns the active configurations of a property and utility service
	FindActiveForService(ctx context.Context, propertyID, utilityServiceID uuid.UUID) ([]*ServiceConfiguration, error)
}

// MeterReader reads meters
type MeterReader interface {
	// FindByID retrieves a meter by its ID
	FindByID(ctx context.Context, id uuid.UUID) (*Meter, error)

	// FindByIDs retrieves several meters in one query
	FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*Meter, error)

	// FindByBuilding returns the active meters of a building, optionally filtered by type
	FindByBuilding(ctx context.Context, buildingID uuid.UUID, types ...MeterType) ([]Meter, error)
}

// MeterReadingReader reads meter readings. The bulk variants serve batch
// validation, which preloads everything it needs before validating.
type MeterReadingReader interface {
	// FindInPeriod returns the readings of a meter dated within period, ordered by date
	FindInPeriod(ctx context.Context, meterID uuid.UUID, period BillingPeriod) ([]MeterReading, error)

	// FindPreviousValidated returns the latest validated reading of the
	// meter zone dated before before, or nil when there is none
	FindPreviousValidated(ctx context.Context, meterID uuid.UUID, zone string, before time.Time) (*MeterReading, error)

	// FindPreviousValidatedBulk returns, per meter, the latest validated
	// reading of each zone dated before before
	FindPreviousValidatedBulk(ctx context.Context, meterIDs []uuid.UUID, before time.Time) (map[uuid.UUID][]MeterReading, error)

	// FindValidatedHistory returns validated readings dated on or after since, ordered by date
	FindValidatedHistory(ctx context.Context, meterID uuid.UUID, since time.Time) ([]MeterReading, error)

	// FindValidatedHistoryBulk is FindValidatedHistory for several meters in one query
	FindValidatedHistoryBulk(ctx context.Context, meterIDs []uuid.UUID, since time.Time) (map[uuid.UUID][]MeterReading, error)
}

// BuildingRepository reads buildings with their properties. Only the
// scheduled summer-average job writes.
type BuildingRepository interface {
	// FindByID retrieves a building and its properties
	FindByID(ctx context.Context, id uuid.UUID) (*Building, error)

	// UpdateSummerAverage stores the circulation summer baseline
	UpdateSummerAverage(ctx context.Context, id uuid.UUID, average decimal.Decimal, calculatedAt time.Time) error
}

// TariffReader reads tariffs
type TariffReader interface {
	// FindByID retrieves a tariff by its ID
	FindByID(ctx context.Context, id uuid.UUID) (*Tariff, error)
}

// CalculationAudit is one audit trail entry of a calculation
type CalculationAudit struct {
	ID                     uuid.UUID
	Kind                   string
	BuildingID             *uuid.UUID
	ServiceConfigurationID *uuid.UUID
	Month                  string
	Season                 Season
	Energy                 decimal.Decimal
	Amount                 decimal.Decimal
	Duration               time.Duration
	CalculatedAt           time.Time
}

// Audit kinds
const (
	AuditKindGyvatukas   = "gyvatukas"
	AuditKindCalculation = "calculation"
)

// CalculationAuditRecorder persists audit trail entries
type CalculationAuditRecorder interface {
	Record(ctx context.Context, audit *CalculationAudit) error
}

// ResultCache stores serialized calculation results with a TTL. A miss
// returns (nil, false, nil).
type ResultCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// DeletePrefix removes every key starting with prefix and returns how many were removed
	DeletePrefix(ctx context.Context, prefix string) (int, error)
}
