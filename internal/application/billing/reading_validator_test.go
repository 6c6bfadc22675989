package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/erp/utility-billing/internal/domain/billing"
	"github.com/erp/utility-billing/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type readingCase struct {
	meter    *billing.Meter
	config   *billing.ServiceConfiguration
	previous *billing.MeterReading
	history  []billing.MeterReading
	settings *ValidationConfig
}

func (rc readingCase) run(t *testing.T, reading billing.MeterReading) (*ReadingReport, *countingMetrics, error) {
	t.Helper()
	meters := &mockMeterReader{}
	meters.On("FindByID", mock.Anything, rc.meter.ID).Return(rc.meter, nil)

	readings := &mockReadingReader{}
	if rc.previous != nil {
		readings.On("FindPreviousValidated", mock.Anything, rc.meter.ID, mock.Anything, mock.Anything).Return(rc.previous, nil)
	} else {
		readings.On("FindPreviousValidated", mock.Anything, rc.meter.ID, mock.Anything, mock.Anything).Return(nil, nil)
	}
	readings.On("FindValidatedHistory", mock.Anything, rc.meter.ID, mock.Anything).Return(rc.history, nil)

	configs := &mockConfigReader{}
	if rc.config != nil {
		configs.On("FindByID", mock.Anything, rc.config.ID).Return(rc.config, nil)
	}

	settings := DefaultValidationConfig()
	if rc.settings != nil {
		settings = *rc.settings
	}
	metrics := newCountingMetrics()
	v := NewValidationEngine(configs, nil, meters, readings, newAdjuster(t), shared.FixedClock(testNow), zap.NewNop(), metrics, settings)

	report, err := v.ValidateReading(context.Background(), reading)
	return report, metrics, err
}

func newMeter(meterType billing.MeterType) *billing.Meter {
	return &billing.Meter{ID: uuid.New(), PropertyID: uuid.New(), Type: meterType, IsActive: true}
}

func readingOf(meter *billing.Meter, value string, d time.Time) billing.MeterReading {
	r := validated(meter.ID, value, d)
	r.ValidationStatus = billing.ValidationStatusPending
	return r
}

func previousOf(meter *billing.Meter, value string, d time.Time) *billing.MeterReading {
	r := validated(meter.ID, value, d)
	return &r
}

func rejectionOf(t *testing.T, err error) *ReadingRejection {
	t.Helper()
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrValidationFailed))
	var rejection *ReadingRejection
	require.True(t, errors.As(err, &rejection))
	return rejection
}

func TestValidateReading_Accepted(t *testing.T) {
	meter := newMeter(billing.MeterTypeElectricity)
	rc := readingCase{meter: meter, previous: previousOf(meter, "1000", date(2024, time.February, 13))}

	report, metrics, err := rc.run(t, readingOf(meter, "1300", date(2024, time.March, 14)))
	require.NoError(t, err)

	assert.Equal(t, billing.ValidationStatusValidated, report.Status)
	assert.Equal(t, "300.00", report.Consumption.StringFixed(2))
	assert.Equal(t, "10.00", report.DailyRate.StringFixed(2))
	assert.Equal(t, 30, report.ElapsedDays)
	assert.Empty(t, report.Warnings)
	assert.Equal(t, 1, metrics.readings[OutcomeValid])
}

func TestValidateReading_Rejections(t *testing.T) {
	electricity := newMeter(billing.MeterTypeElectricity)
	feb13 := date(2024, time.February, 13)
	mar14 := date(2024, time.March, 14)

	noEstimates := DefaultValidationConfig()
	noEstimates.AllowEstimated = false

	limitedID := uuid.New()
	limitedMeter := newMeter(billing.MeterTypeElectricity)
	limitedMeter.ServiceConfigurationID = &limitedID
	limitedConfig := &billing.ServiceConfiguration{ID: limitedID, ConsumptionLimits: &billing.ConsumptionLimits{MaxDaily: ptr("5")}}

	tests := []struct {
		name     string
		rc       readingCase
		reading  func() billing.MeterReading
		wantRule string
		wantCode string
	}{
		{
			name:     "negative value",
			rc:       readingCase{meter: electricity},
			reading:  func() billing.MeterReading { return readingOf(electricity, "-1", mar14) },
			wantRule: ReadingRuleConsumptionLimit,
			wantCode: "NEGATIVE_VALUE",
		},
		{
			name:     "value above the sanity bound",
			rc:       readingCase{meter: electricity},
			reading:  func() billing.MeterReading { return readingOf(electricity, "1000000", mar14) },
			wantRule: ReadingRuleConsumptionLimit,
			wantCode: "VALUE_OUT_OF_RANGE",
		},
		{
			name:     "reading below the previous one",
			rc:       readingCase{meter: electricity, previous: previousOf(electricity, "1300", feb13)},
			reading:  func() billing.MeterReading { return readingOf(electricity, "1000", mar14) },
			wantRule: ReadingRuleConsumptionLimit,
			wantCode: "NEGATIVE_CONSUMPTION",
		},
		{
			name:     "daily consumption above the global limit",
			rc:       readingCase{meter: electricity, previous: previousOf(electricity, "1000", feb13)},
			reading:  func() billing.MeterReading { return readingOf(electricity, "40000", mar14) },
			wantRule: ReadingRuleConsumptionLimit,
			wantCode: "EXCEEDS_MAX_DAILY",
		},
		{
			name:     "daily consumption above the configured limit",
			rc:       readingCase{meter: limitedMeter, config: limitedConfig, previous: previousOf(limitedMeter, "1000", feb13)},
			reading:  func() billing.MeterReading { return readingOf(limitedMeter, "1300", mar14) },
			wantRule: ReadingRuleConsumptionLimit,
			wantCode: "EXCEEDS_MAX_DAILY",
		},
		{
			name:     "second reading on the same day",
			rc:       readingCase{meter: electricity, previous: previousOf(electricity, "1000", mar14)},
			reading:  func() billing.MeterReading { return readingOf(electricity, "1000", mar14) },
			wantRule: ReadingRuleReadingFrequency,
			wantCode: "DUPLICATE_READING",
		},
		{
			name:     "too many decimal places",
			rc:       readingCase{meter: electricity, previous: previousOf(electricity, "1000", feb13)},
			reading:  func() billing.MeterReading { return readingOf(electricity, "1300.1234", mar14) },
			wantRule: ReadingRuleDataQuality,
			wantCode: "TOO_MANY_DECIMALS",
		},
		{
			name:     "reading date in the future",
			rc:       readingCase{meter: electricity, previous: previousOf(electricity, "1000", feb13)},
			reading:  func() billing.MeterReading { return readingOf(electricity, "1300", date(2024, time.March, 20)) },
			wantRule: ReadingRuleDataQuality,
			wantCode: "FUTURE_DATE",
		},
		{
			name: "zone on a single-register meter",
			rc:   readingCase{meter: electricity},
			reading: func() billing.MeterReading {
				r := readingOf(electricity, "10", mar14)
				r.Zone = "night"
				return r
			},
			wantRule: ReadingRuleDataQuality,
			wantCode: "ZONE_NOT_SUPPORTED",
		},
		{
			name: "estimates disabled",
			rc:   readingCase{meter: electricity, previous: previousOf(electricity, "1000", feb13), settings: &noEstimates},
			reading: func() billing.MeterReading {
				r := readingOf(electricity, "1300", mar14)
				r.InputMethod = billing.InputMethodEstimated
				return r
			},
			wantRule: ReadingRuleDataQuality,
			wantCode: "ESTIMATED_NOT_ALLOWED",
		},
		{
			name: "photo OCR without photo",
			rc:   readingCase{meter: electricity, previous: previousOf(electricity, "1000", feb13)},
			reading: func() billing.MeterReading {
				r := readingOf(electricity, "1300", mar14)
				r.InputMethod = billing.InputMethodPhotoOCR
				return r
			},
			wantRule: ReadingRuleDataQuality,
			wantCode: "PHOTO_REQUIRED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report, metrics, err := tt.rc.run(t, tt.reading())
			assert.Nil(t, report)

			rejection := rejectionOf(t, err)
			assert.Equal(t, tt.wantRule, rejection.Rule)
			assert.Equal(t, tt.wantCode, rejection.Code)
			assert.Equal(t, 1, metrics.readings[OutcomeRejected])
		})
	}
}

func TestValidateReading_Warnings(t *testing.T) {
	electricity := newMeter(billing.MeterTypeElectricity)
	feb13 := date(2024, time.February, 13)
	mar14 := date(2024, time.March, 14)

	minID := uuid.New()
	minMeter := newMeter(billing.MeterTypeElectricity)
	minMeter.ServiceConfigurationID = &minID
	minConfig := &billing.ServiceConfiguration{ID: minID, ConsumptionLimits: &billing.ConsumptionLimits{MinDaily: ptr("20")}}

	heating := newMeter(billing.MeterTypeHeating)
	hotWater := newMeter(billing.MeterTypeHotWater)

	tests := []struct {
		name      string
		rc        readingCase
		reading   func() billing.MeterReading
		wantCodes []string
	}{
		{
			name:      "first reading of a meter",
			rc:        readingCase{meter: electricity},
			reading:   func() billing.MeterReading { return readingOf(electricity, "1300", mar14) },
			wantCodes: []string{"FIRST_READING"},
		},
		{
			name:      "meter rollover",
			rc:        readingCase{meter: electricity, previous: previousOf(electricity, "999000", feb13)},
			reading:   func() billing.MeterReading { return readingOf(electricity, "50", mar14) },
			wantCodes: []string{"METER_ROLLOVER"},
		},
		{
			name:      "below the configured minimum",
			rc:        readingCase{meter: minMeter, config: minConfig, previous: previousOf(minMeter, "1000", feb13)},
			reading:   func() billing.MeterReading { return readingOf(minMeter, "1300", mar14) },
			wantCodes: []string{"BELOW_MIN_DAILY"},
		},
		{
			name: "deviation from the historical average",
			rc: readingCase{
				meter:    electricity,
				previous: previousOf(electricity, "1000", feb13),
				history: []billing.MeterReading{
					validated(electricity.ID, "850", date(2024, time.January, 14)),
					validated(electricity.ID, "1000", feb13),
				},
			},
			reading:   func() billing.MeterReading { return readingOf(electricity, "1300", mar14) },
			wantCodes: []string{"HIGH_VARIANCE"},
		},
		{
			name:      "long gap since the previous reading",
			rc:        readingCase{meter: electricity, previous: previousOf(electricity, "1000", date(2024, time.January, 14))},
			reading:   func() billing.MeterReading { return readingOf(electricity, "1300", mar14) },
			wantCodes: []string{"INTERVAL_EXCEEDED"},
		},
		{
			name: "estimate not flagged for review",
			rc:   readingCase{meter: electricity, previous: previousOf(electricity, "1000", feb13)},
			reading: func() billing.MeterReading {
				r := readingOf(electricity, "1300", mar14)
				r.InputMethod = billing.InputMethodEstimated
				return r
			},
			wantCodes: []string{"ESTIMATE_NOT_FLAGGED"},
		},
		{
			name:      "heating below the winter expectation",
			rc:        readingCase{meter: heating, previous: previousOf(heating, "1000", feb13)},
			reading:   func() billing.MeterReading { return readingOf(heating, "1060", mar14) },
			wantCodes: []string{"BELOW_SEASONAL_RANGE"},
		},
		{
			name:      "hot water above the winter expectation",
			rc:        readingCase{meter: hotWater, previous: previousOf(hotWater, "100", feb13)},
			reading:   func() billing.MeterReading { return readingOf(hotWater, "400", mar14) },
			wantCodes: []string{"ABOVE_SEASONAL_RANGE"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report, metrics, err := tt.rc.run(t, tt.reading())
			require.NoError(t, err)

			codes := make([]string, 0, len(report.Warnings))
			for _, w := range report.Warnings {
				codes = append(codes, w.Code)
			}
			assert.Equal(t, tt.wantCodes, codes)
			assert.Equal(t, billing.ValidationStatusRequiresReview, report.Status)
			assert.Equal(t, 1, metrics.readings[OutcomeWarning])
		})
	}

	t.Run("rollover consumption wraps around the register", func(t *testing.T) {
		rc := readingCase{meter: electricity, previous: previousOf(electricity, "999000", feb13)}
		report, _, err := rc.run(t, readingOf(electricity, "50", mar14))
		require.NoError(t, err)
		assert.Equal(t, "1049.99", report.Consumption.StringFixed(2))
	})
}

func TestValidateReading_Lookups(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown meter", func(t *testing.T) {
		id := uuid.New()
		meters := &mockMeterReader{}
		meters.On("FindByID", mock.Anything, id).Return(nil, shared.ErrNotFound)

		v := NewValidationEngine(nil, nil, meters, &mockReadingReader{}, newAdjuster(t), shared.FixedClock(testNow), zap.NewNop(), nil, DefaultValidationConfig())
		_, err := v.ValidateReading(ctx, billing.MeterReading{ID: uuid.New(), MeterID: id, Value: dec("1"), ReadingDate: testNow})

		rejection := rejectionOf(t, err)
		assert.Equal(t, "METER_NOT_FOUND", rejection.Code)
	})

	t.Run("repository failure is not a rejection", func(t *testing.T) {
		meter := newMeter(billing.MeterTypeGas)
		meters := &mockMeterReader{}
		meters.On("FindByID", mock.Anything, meter.ID).Return(meter, nil)
		readings := &mockReadingReader{}
		readings.On("FindPreviousValidated", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("connection reset"))

		v := NewValidationEngine(nil, nil, meters, readings, newAdjuster(t), shared.FixedClock(testNow), zap.NewNop(), nil, DefaultValidationConfig())
		_, err := v.ValidateReading(ctx, readingOf(meter, "1", testNow))

		require.Error(t, err)
		assert.False(t, errors.Is(err, shared.ErrValidationFailed))
		assert.ErrorContains(t, err, "connection reset")
	})

	t.Run("repositories are required", func(t *testing.T) {
		v := newValidationEngine(t, nil, nil, nil, nil)
		_, err := v.ValidateReading(ctx, billing.MeterReading{})
		assert.ErrorIs(t, err, shared.ErrInvalidConfiguration)
	})
}

func TestAverageDailyRate(t *testing.T) {
	id := uuid.New()
	history := []billing.MeterReading{
		validated(id, "100", date(2024, time.January, 1)),
		validated(id, "400", date(2024, time.January, 31)),
		validated(id, "1000", date(2024, time.March, 1)),
	}
	night := validated(id, "5", date(2024, time.January, 15))
	night.Zone = "night"
	history = append(history, night)

	avg, ok := averageDailyRate(history, billing.DefaultZone)
	require.True(t, ok)
	// (300/30 + 600/30) / 2
	assert.Equal(t, "15", avg.String())

	_, ok = averageDailyRate(history[:1], billing.DefaultZone)
	assert.False(t, ok)
}

func TestDecimalPlaces(t *testing.T) {
	assert.Equal(t, 0, decimalPlaces(dec("12")))
	assert.Equal(t, 3, decimalPlaces(dec("12.345")))
	assert.Equal(t, 1, decimalPlaces(dec("12.10")))
}
