package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MeterType identifies what a meter measures
type MeterType string

const (
	MeterTypeHeating     MeterType = "heating"
	MeterTypeHotWater    MeterType = "hot_water"
	MeterTypeColdWater   MeterType = "cold_water"
	MeterTypeElectricity MeterType = "electricity"
	MeterTypeGas         MeterType = "gas"
)

// IsValid returns true if the meter type is known
func (t MeterType) IsValid() bool {
	switch t {
	case MeterTypeHeating, MeterTypeHotWater, MeterTypeColdWater, MeterTypeElectricity, MeterTypeGas:
		return true
	}
	return false
}

// IsWater returns true for hot and cold water meters
func (t MeterType) IsWater() bool {
	return t == MeterTypeHotWater || t == MeterTypeColdWater
}

// ValidationStatus is the review state of a meter reading
type ValidationStatus string

const (
	ValidationStatusPending        ValidationStatus = "pending"
	ValidationStatusValidated      ValidationStatus = "validated"
	ValidationStatusRejected       ValidationStatus = "rejected"
	ValidationStatusRequiresReview ValidationStatus = "requires_review"
)

// IsValid returns true if the status is known
func (s ValidationStatus) IsValid() bool {
	switch s {
	case ValidationStatusPending, ValidationStatusValidated, ValidationStatusRejected, ValidationStatusRequiresReview:
		return true
	}
	return false
}

// InputMethod records how a reading entered the system
type InputMethod string

const (
	InputMethodManual         InputMethod = "manual"
	InputMethodPhotoOCR       InputMethod = "photo_ocr"
	InputMethodCSVImport      InputMethod = "csv_import"
	InputMethodAPIIntegration InputMethod = "api_integration"
	InputMethodEstimated      InputMethod = "estimated"
)

// IsValid returns true if the input method is known
func (m InputMethod) IsValid() bool {
	switch m {
	case InputMethodManual, InputMethodPhotoOCR, InputMethodCSVImport, InputMethodAPIIntegration, InputMethodEstimated:
		return true
	}
	return false
}

// Meter is a physical or virtual measuring device attached to a property
type Meter struct {
	ID                     uuid.UUID  `json:"id"`
	PropertyID             uuid.UUID  `json:"propertyId"`
	BuildingID             uuid.UUID  `json:"buildingId"`
	ServiceConfigurationID *uuid.UUID `json:"serviceConfigurationId,omitempty"`
	SerialNumber           string     `json:"serialNumber"`
	Type                   MeterType  `json:"type"`
	SupportsZones          bool       `json:"supportsZones"`
	IsActive               bool       `json:"isActive"`
}

// MeterReading is a single register value captured on a date
type MeterReading struct {
	ID               uuid.UUID        `json:"id"`
	MeterID          uuid.UUID        `json:"meterId"`
	Zone             string           `json:"zone,omitempty"`
	Value            decimal.Decimal  `json:"value"`
	ReadingDate      time.Time        `json:"readingDate"`
	ValidationStatus ValidationStatus `json:"validationStatus"`
	InputMethod      InputMethod      `json:"inputMethod"`
	PhotoPath        string           `json:"photoPath,omitempty"`
	EnteredBy        *uuid.UUID       `json:"enteredBy,omitempty"`
	Notes            string           `json:"notes,omitempty"`
}

// ZoneOrDefault returns the reading zone, or DefaultZone when none is set
func (r MeterReading) ZoneOrDefault() string {
	if r.Zone == "" {
		return DefaultZone
	}
	return r.Zone
}

// IsValidated reports whether the reading may contribute to consumption
func (r MeterReading) IsValidated() bool {
	return r.ValidationStatus == ValidationStatusValidated
}

// IsEstimated reports whether the value was estimated instead of read
func (r MeterReading) IsEstimated() bool {
	return r.InputMethod == InputMethodEstimated
}

// HasPhoto reports whether photo evidence is attached
func (r MeterReading) HasPhoto() bool {
	return r.PhotoPath != ""
}

// ElapsedDays returns the whole days between previous and r
func (r MeterReading) ElapsedDays(previous MeterReading) int {
	return int(dateOf(r.ReadingDate).Sub(dateOf(previous.ReadingDate)).Hours() / 24)
}
