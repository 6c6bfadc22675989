package billing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
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

func TestValidateBatch(t *testing.T) {
	ctx := context.Background()
	feb13 := date(2024, time.February, 13)
	mar14 := date(2024, time.March, 14)

	first := newMeter(billing.MeterTypeElectricity)
	second := newMeter(billing.MeterTypeGas)
	unknown := uuid.New()

	readingsIn := []billing.MeterReading{
		readingOf(first, "1300", mar14),
		readingOf(second, "20", mar14),
		{ID: uuid.New(), MeterID: unknown, Value: dec("5"), ReadingDate: mar14, InputMethod: billing.InputMethodManual},
		readingOf(first, "-4", mar14),
	}

	newEngine := func(t *testing.T, batchSize int) (*ValidationEngine, *mockMeterReader) {
		meters := &mockMeterReader{}
		meters.On("FindByIDs", mock.Anything, mock.Anything).Return(map[uuid.UUID]*billing.Meter{first.ID: first, second.ID: second}, nil)

		readings := &mockReadingReader{}
		readings.On("FindPreviousValidatedBulk", mock.Anything, mock.Anything, mock.Anything).Return(map[uuid.UUID][]billing.MeterReading{
			first.ID: {validated(first.ID, "1000", feb13)},
		}, nil)
		readings.On("FindValidatedHistoryBulk", mock.Anything, mock.Anything, mock.Anything).Return(map[uuid.UUID][]billing.MeterReading{}, nil)

		cfg := DefaultValidationConfig()
		cfg.MaxBatchSize = batchSize
		return NewValidationEngine(nil, nil, meters, readings, newAdjuster(t), shared.FixedClock(testNow), zap.NewNop(), nil, cfg), meters
	}

	t.Run("mixed batch", func(t *testing.T) {
		v, meters := newEngine(t, 100)

		result, err := v.ValidateBatch(ctx, readingsIn)
		require.NoError(t, err)
		require.Len(t, result.Items, 4)

		assert.True(t, result.Items[0].Valid)
		assert.Empty(t, result.Items[0].Report.Warnings)
		assert.Equal(t, "300.00", result.Items[0].Report.Consumption.StringFixed(2))

		assert.True(t, result.Items[1].Valid)
		require.Len(t, result.Items[1].Report.Warnings, 1)
		assert.Equal(t, "FIRST_READING", result.Items[1].Report.Warnings[0].Code)

		assert.False(t, result.Items[2].Valid)
		assert.Equal(t, "METER_NOT_FOUND", result.Items[2].Rejection.Code)

		assert.False(t, result.Items[3].Valid)
		assert.Equal(t, "NEGATIVE_VALUE", result.Items[3].Rejection.Code)
		assert.Equal(t, 3, result.Items[3].Index)

		s := result.Summary
		assert.Equal(t, 4, s.Total)
		assert.Equal(t, 2, s.Valid)
		assert.Equal(t, 2, s.Invalid)
		assert.Equal(t, 1, s.WithWarnings)
		assert.Equal(t, "50", s.ValidationRate.String())
		assert.Equal(t, "0.25", s.AverageWarnings.String())

		meters.AssertNumberOfCalls(t, "FindByIDs", 1)
	})

	t.Run("one preload per chunk", func(t *testing.T) {
		v, meters := newEngine(t, 2)

		result, err := v.ValidateBatch(ctx, readingsIn)
		require.NoError(t, err)

		assert.Len(t, result.Items, 4)
		meters.AssertNumberOfCalls(t, "FindByIDs", 2)
	})

	t.Run("preload failure aborts the batch", func(t *testing.T) {
		meters := &mockMeterReader{}
		meters.On("FindByIDs", mock.Anything, mock.Anything).Return(nil, errors.New("db unavailable"))
		readings := &mockReadingReader{}
		readings.On("FindPreviousValidatedBulk", mock.Anything, mock.Anything, mock.Anything).Return(map[uuid.UUID][]billing.MeterReading{}, nil)
		readings.On("FindValidatedHistoryBulk", mock.Anything, mock.Anything, mock.Anything).Return(map[uuid.UUID][]billing.MeterReading{}, nil)

		v := NewValidationEngine(nil, nil, meters, readings, newAdjuster(t), shared.FixedClock(testNow), zap.NewNop(), nil, DefaultValidationConfig())
		_, err := v.ValidateBatch(ctx, readingsIn)
		assert.ErrorContains(t, err, "db unavailable")
	})

	t.Run("empty batch", func(t *testing.T) {
		v, _ := newEngine(t, 100)
		result, err := v.ValidateBatch(ctx, nil)
		require.NoError(t, err)
		assert.Zero(t, result.Summary.Total)
		assert.True(t, result.Summary.ValidationRate.IsZero())
	})
}

// memoryReadings is an in-memory billing.MeterReadingReader with the query
// semantics of the GORM repository
type memoryReadings struct {
	all []billing.MeterReading
}

func newMemoryReadings(readings ...billing.MeterReading) *memoryReadings {
	sorted := append([]billing.MeterReading(nil), readings...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ReadingDate.Before(sorted[j].ReadingDate) })
	return &memoryReadings{all: sorted}
}

func (m *memoryReadings) FindInPeriod(_ context.Context, meterID uuid.UUID, period billing.BillingPeriod) ([]billing.MeterReading, error) {
	var out []billing.MeterReading
	for _, r := range m.all {
		if r.MeterID == meterID && period.Contains(r.ReadingDate) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memoryReadings) FindPreviousValidated(_ context.Context, meterID uuid.UUID, zone string, before time.Time) (*billing.MeterReading, error) {
	if zone == "" {
		zone = billing.DefaultZone
	}
	var best *billing.MeterReading
	for i, r := range m.all {
		if r.MeterID == meterID && r.ZoneOrDefault() == zone && r.IsValidated() && r.ReadingDate.Before(before) {
			best = &m.all[i]
		}
	}
	if best == nil {
		return nil, nil
	}
	found := *best
	return &found, nil
}

func (m *memoryReadings) FindPreviousValidatedBulk(ctx context.Context, meterIDs []uuid.UUID, before time.Time) (map[uuid.UUID][]billing.MeterReading, error) {
	out := make(map[uuid.UUID][]billing.MeterReading, len(meterIDs))
	for _, id := range meterIDs {
		zones := map[string]bool{}
		for _, r := range m.all {
			if r.MeterID == id {
				zones[r.ZoneOrDefault()] = true
			}
		}
		for zone := range zones {
			prev, _ := m.FindPreviousValidated(ctx, id, zone, before)
			if prev != nil {
				out[id] = append(out[id], *prev)
			}
		}
	}
	return out, nil
}

func (m *memoryReadings) FindValidatedHistory(_ context.Context, meterID uuid.UUID, since time.Time) ([]billing.MeterReading, error) {
	var out []billing.MeterReading
	for _, r := range m.all {
		if r.MeterID == meterID && r.IsValidated() && !r.ReadingDate.Before(since) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memoryReadings) FindValidatedHistoryBulk(ctx context.Context, meterIDs []uuid.UUID, since time.Time) (map[uuid.UUID][]billing.MeterReading, error) {
	out := make(map[uuid.UUID][]billing.MeterReading, len(meterIDs))
	for _, id := range meterIDs {
		h, _ := m.FindValidatedHistory(ctx, id, since)
		if len(h) > 0 {
			out[id] = h
		}
	}
	return out, nil
}

// outcome renders a validation result so batch and single runs can be compared
func outcome(report *ReadingReport, rejection *ReadingRejection) string {
	if rejection != nil {
		return "rejected:" + rejection.Code
	}
	codes := make([]string, len(report.Warnings))
	for i, w := range report.Warnings {
		codes[i] = w.Code
	}
	return fmt.Sprintf("%s:%s", report.Status, strings.Join(codes, ","))
}

func TestValidateBatch_MatchesSingleValidation(t *testing.T) {
	ctx := context.Background()
	first := newMeter(billing.MeterTypeElectricity)
	second := newMeter(billing.MeterTypeElectricity)

	store := newMemoryReadings(
		validated(first.ID, "100", date(2024, time.January, 10)),
		validated(first.ID, "300", date(2024, time.March, 10)),
		validated(second.ID, "10", date(2022, time.January, 5)),
		validated(second.ID, "5000", date(2024, time.March, 10)),
	)
	meters := &mockMeterReader{}
	meters.On("FindByID", mock.Anything, first.ID).Return(first, nil)
	meters.On("FindByID", mock.Anything, second.ID).Return(second, nil)
	meters.On("FindByIDs", mock.Anything, mock.Anything).Return(map[uuid.UUID]*billing.Meter{first.ID: first, second.ID: second}, nil)

	v := NewValidationEngine(nil, nil, meters, store, newAdjuster(t), shared.FixedClock(testNow), zap.NewNop(), nil, DefaultValidationConfig())

	tests := []struct {
		name     string
		reading  billing.MeterReading
		expected string
	}{
		{"back-dated below the earlier reading", readingOf(first, "50", date(2024, time.February, 10)), "rejected:NEGATIVE_CONSUMPTION"},
		{"back-dated between readings", readingOf(first, "150", date(2024, time.February, 10)), ""},
		{"before every stored reading", readingOf(first, "90", date(2024, time.January, 1)), "requires_review:FIRST_READING"},
		{"after the latest reading", readingOf(first, "310", date(2024, time.March, 14)), ""},
		{"same day as a stored reading", readingOf(first, "120", date(2024, time.March, 10)), ""},
		{"predecessor outside the history window", readingOf(second, "20", date(2023, time.June, 1)), ""},
		{"out of order with a later stored reading", readingOf(second, "30", date(2024, time.February, 1)), ""},
	}

	batch := make([]billing.MeterReading, len(tests))
	for i, tt := range tests {
		batch[i] = tt.reading
	}
	result, err := v.ValidateBatch(ctx, batch)
	require.NoError(t, err)
	require.Len(t, result.Items, len(tests))

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report, err := v.ValidateReading(ctx, tt.reading)
			var rejection *ReadingRejection
			if err != nil {
				require.ErrorAs(t, err, &rejection)
			}
			single := outcome(report, rejection)

			item := result.Items[i]
			assert.Equal(t, single, outcome(item.Report, item.Rejection))
			assert.Equal(t, rejection == nil, item.Valid)
			if tt.expected != "" {
				assert.Equal(t, tt.expected, single)
			}
		})
	}
}

func TestPreviousFrom(t *testing.T) {
	id := uuid.New()
	night := validated(id, "40", date(2024, time.March, 1))
	night.Zone = "night"
	latest := []billing.MeterReading{
		validated(id, "10", date(2024, time.January, 1)),
		validated(id, "30", date(2024, time.March, 1)),
		validated(id, "20", date(2024, time.February, 1)),
		night,
	}

	prev := previousFrom(latest, billing.MeterReading{MeterID: id, ReadingDate: date(2024, time.February, 20)})
	require.NotNil(t, prev)
	assert.Equal(t, "20", prev.Value.String())

	prev = previousFrom(latest, billing.MeterReading{MeterID: id, Zone: "night", ReadingDate: date(2024, time.April, 1)})
	require.NotNil(t, prev)
	assert.Equal(t, "40", prev.Value.String())

	assert.Nil(t, previousFrom(latest, billing.MeterReading{MeterID: id, ReadingDate: date(2023, time.December, 1)}))
}

func TestUniqueMeterIDs(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	ids := uniqueMeterIDs([]billing.MeterReading{{MeterID: a}, {MeterID: b}, {MeterID: a}})
	assert.Len(t, ids, 2)
	assert.ElementsMatch(t, []uuid.UUID{a, b}, ids)
}
