package dto

import (
	"fmt"
	"time"

	"github.com/erp/utility-billing/internal/domain/billing"
	"github.com/erp/utility-billing/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MonthLayout is the wire format of a billing month
const MonthLayout = "2006-01"

// ConsumptionRequest carries either per-zone consumption or a single total
type ConsumptionRequest struct {
	Total *decimal.Decimal           `json:"total"`
	Zones map[string]decimal.Decimal `json:"zones"`
}

// ToDomain converts the request, preferring zones over the total
func (r ConsumptionRequest) ToDomain() (billing.ConsumptionData, error) {
	if len(r.Zones) > 0 {
		return billing.NewConsumptionData(r.Zones)
	}
	if r.Total != nil {
		return billing.SingleZoneConsumption(*r.Total)
	}
	return billing.ConsumptionData{}, fmt.Errorf("%w: consumption total or zones is required", shared.ErrInvalidInput)
}

// PeriodRequest names a billing month or an explicit inclusive date range
type PeriodRequest struct {
	Month string `json:"month" binding:"omitempty,datetime=2006-01"`
	Start string `json:"start" binding:"omitempty,datetime=2006-01-02"`
	End   string `json:"end" binding:"omitempty,datetime=2006-01-02"`
}

// ToDomain converts the request, preferring the month
func (r PeriodRequest) ToDomain() (billing.BillingPeriod, error) {
	if r.Month != "" {
		m, err := ParseMonth(r.Month)
		if err != nil {
			return billing.BillingPeriod{}, err
		}
		return billing.FullMonth(m.Year(), m.Month()), nil
	}
	if r.Start == "" || r.End == "" {
		return billing.BillingPeriod{}, fmt.Errorf("%w: period month or start and end are required", shared.ErrInvalidInput)
	}
	start, err := time.Parse(time.DateOnly, r.Start)
	if err != nil {
		return billing.BillingPeriod{}, fmt.Errorf("%w: period start: %v", shared.ErrInvalidInput, err)
	}
	end, err := time.Parse(time.DateOnly, r.End)
	if err != nil {
		return billing.BillingPeriod{}, fmt.Errorf("%w: period end: %v", shared.ErrInvalidInput, err)
	}
	return billing.NewBillingPeriod(start, end)
}

// ParseMonth parses a YYYY-MM month into its first day in UTC
func ParseMonth(s string) (time.Time, error) {
	m, err := time.Parse(MonthLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: month %q must be formatted as YYYY-MM", shared.ErrInvalidInput, s)
	}
	return m, nil
}

// CalculateRequest prices an inline configuration or a stored one
type CalculateRequest struct {
	ConfigurationID string                        `json:"configurationId" binding:"omitempty,uuid"`
	Configuration   *billing.ServiceConfiguration `json:"configuration"`
	Consumption     ConsumptionRequest            `json:"consumption"`
	Period          PeriodRequest                 `json:"period"`
}

// MeterReadingRequest is a reading submitted for validation
type MeterReadingRequest struct {
	ID          string          `json:"id" binding:"omitempty,uuid"`
	MeterID     string          `json:"meterId" binding:"required,uuid"`
	Zone        string          `json:"zone" binding:"omitempty,max=32"`
	Value       decimal.Decimal `json:"value"`
	ReadingDate string          `json:"readingDate" binding:"required,datetime=2006-01-02"`
	InputMethod string          `json:"inputMethod" binding:"required,oneof=manual photo_ocr csv_import api_integration estimated"`
	PhotoPath   string          `json:"photoPath" binding:"omitempty,max=512"`
	EnteredBy   string          `json:"enteredBy" binding:"omitempty,uuid"`
	Notes       string          `json:"notes" binding:"omitempty,max=1000"`
}

// ToDomain converts the request. A missing ID gets a fresh one.
func (r MeterReadingRequest) ToDomain() (billing.MeterReading, error) {
	date, err := time.Parse(time.DateOnly, r.ReadingDate)
	if err != nil {
		return billing.MeterReading{}, fmt.Errorf("%w: readingDate: %v", shared.ErrInvalidInput, err)
	}
	reading := billing.MeterReading{
		ID:               uuid.New(),
		MeterID:          uuid.MustParse(r.MeterID),
		Zone:             r.Zone,
		Value:            r.Value,
		ReadingDate:      date,
		ValidationStatus: billing.ValidationStatusPending,
		InputMethod:      billing.InputMethod(r.InputMethod),
		PhotoPath:        r.PhotoPath,
		Notes:            r.Notes,
	}
	if r.ID != "" {
		reading.ID = uuid.MustParse(r.ID)
	}
	if r.EnteredBy != "" {
		by := uuid.MustParse(r.EnteredBy)
		reading.EnteredBy = &by
	}
	return reading, nil
}

// BatchValidateRequest is a batch of readings
type BatchValidateRequest struct {
	Readings []MeterReadingRequest `json:"readings" binding:"required,min=1,max=5000,dive"`
}

// PropertyRequest is one property taking part in a distribution
type PropertyRequest struct {
	ID                    string          `json:"id" binding:"required,uuid"`
	Name                  string          `json:"name" binding:"omitempty,max=200"`
	AreaSqm               decimal.Decimal `json:"areaSqm"`
	HistoricalConsumption decimal.Decimal `json:"historicalConsumption"`
}

// DistributeRequest splits a shared cost across properties
type DistributeRequest struct {
	Cost        decimal.Decimal            `json:"cost"`
	Method      string                     `json:"method" binding:"required,oneof=equal area by_consumption custom_formula"`
	Properties  []PropertyRequest          `json:"properties" binding:"required,min=1,unique=ID,dive"`
	Consumption map[string]decimal.Decimal `json:"consumption"`
	Formula     string                     `json:"formula" binding:"omitempty,max=500"`
}

// PropertiesToDomain converts the properties in request order
func (r DistributeRequest) PropertiesToDomain() []billing.Property {
	out := make([]billing.Property, len(r.Properties))
	for i, p := range r.Properties {
		out[i] = billing.Property{
			ID:                    uuid.MustParse(p.ID),
			Name:                  p.Name,
			AreaSqm:               p.AreaSqm,
			HistoricalConsumption: p.HistoricalConsumption,
		}
	}
	return out
}

// ConsumptionOverrides converts the consumption map keyed by property ID
func (r DistributeRequest) ConsumptionOverrides() (map[uuid.UUID]decimal.Decimal, error) {
	if len(r.Consumption) == 0 {
		return nil, nil
	}
	out := make(map[uuid.UUID]decimal.Decimal, len(r.Consumption))
	for key, v := range r.Consumption {
		id, err := uuid.Parse(key)
		if err != nil {
			return nil, fmt.Errorf("%w: consumption key %q is not a property ID", shared.ErrInvalidInput, key)
		}
		out[id] = v
	}
	return out, nil
}

// GyvatukasQuery selects the month of a circulation calculation
type GyvatukasQuery struct {
	Month string `form:"month" binding:"required,datetime=2006-01"`
}

// GyvatukasBillRequest prices and distributes a month's circulation fee
type GyvatukasBillRequest struct {
	Month  string `json:"month" binding:"required,datetime=2006-01"`
	Method string `json:"method" binding:"omitempty,oneof=equal area by_consumption custom_formula"`
}

// SummerAverageRequest recomputes a building's summer baseline
type SummerAverageRequest struct {
	Year int `json:"year" binding:"required,gte=2000,lte=2100"`
}

// SummerAverageResponse is the stored summer baseline
type SummerAverageResponse struct {
	BuildingID uuid.UUID       `json:"buildingId"`
	Year       int             `json:"year"`
	Average    decimal.Decimal `json:"average"`
}

// CacheClearResponse reports how many cache entries were removed
type CacheClearResponse struct {
	Removed int `json:"removed"`
}
