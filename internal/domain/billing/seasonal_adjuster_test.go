package billing

import (
	"testing"
	"time"

	"github.com/erp/utility-billing/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDefaultAdjuster(t *testing.T) *SeasonalAdjuster {
	t.Helper()
	a, err := NewSeasonalAdjuster(DefaultSeasonConfig())
	require.NoError(t, err)
	return a
}

func TestNewSeasonalAdjuster_RejectsMonthsOutOfRange(t *testing.T) {
	tests := []struct {
		name string
		cfg  SeasonConfig
	}{
		{"heating start zero", SeasonConfig{HeatingStartMonth: 0, HeatingEndMonth: 4, SummerStartMonth: 5, SummerEndMonth: 9}},
		{"heating end thirteen", SeasonConfig{HeatingStartMonth: 10, HeatingEndMonth: 13, SummerStartMonth: 5, SummerEndMonth: 9}},
		{"summer start negative", SeasonConfig{HeatingStartMonth: 10, HeatingEndMonth: 4, SummerStartMonth: -1, SummerEndMonth: 9}},
		{"summer end missing", SeasonConfig{HeatingStartMonth: 10, HeatingEndMonth: 4, SummerStartMonth: 5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := NewSeasonalAdjuster(tt.cfg)
			assert.Nil(t, a)
			assert.ErrorIs(t, err, shared.ErrInvalidConfiguration)
		})
	}
}

func TestSeasonalAdjuster_Season(t *testing.T) {
	a := newDefaultAdjuster(t)

	winter := []time.Month{time.October, time.November, time.December, time.January, time.February, time.March, time.April}
	for _, m := range winter {
		assert.Equal(t, SeasonWinter, a.Season(date(2024, m, 15)), "month %s", m)
		assert.True(t, a.IsHeatingSeason(m))
		assert.False(t, a.IsSummer(m))
	}
	summer := []time.Month{time.May, time.June, time.July, time.August, time.September}
	for _, m := range summer {
		assert.Equal(t, SeasonSummer, a.Season(date(2024, m, 15)), "month %s", m)
		assert.False(t, a.IsHeatingSeason(m))
		assert.True(t, a.IsSummer(m))
	}
}

func TestSeasonalAdjuster_NonWrappingRange(t *testing.T) {
	a, err := NewSeasonalAdjuster(SeasonConfig{HeatingStartMonth: 1, HeatingEndMonth: 3, SummerStartMonth: 6, SummerEndMonth: 8})
	require.NoError(t, err)

	assert.True(t, a.IsHeatingSeason(time.February))
	assert.False(t, a.IsHeatingSeason(time.April))
	assert.False(t, a.IsHeatingSeason(time.December))
	assert.False(t, a.IsSummer(time.May))
	assert.True(t, a.IsSummer(time.June))
}

func TestSeasonalAdjuster_Multiplier(t *testing.T) {
	a := newDefaultAdjuster(t)
	adj := &SeasonalAdjustments{WinterMultiplier: DecimalPtr(dec("1.5"))}

	assert.True(t, a.Multiplier(adj, date(2024, time.January, 1)).Equal(dec("1.5")))
	assert.True(t, a.Multiplier(adj, date(2024, time.July, 1)).Equal(dec("1")), "absent summer multiplier defaults to 1")
	assert.True(t, a.Multiplier(nil, date(2024, time.January, 1)).Equal(dec("1")))

	adjusted := a.Adjust(dec("20"), adj, date(2024, time.January, 1))
	assert.True(t, adjusted.Equal(dec("30")), "got %s", adjusted)
}

func TestSeasonalAdjuster_Prorate(t *testing.T) {
	a := newDefaultAdjuster(t)

	t.Run("full month is a no-op", func(t *testing.T) {
		for _, m := range []time.Month{time.January, time.February, time.April} {
			p := FullMonth(2023, m)
			assert.True(t, a.ProrationFactor(p).Equal(dec("1")))
			assert.True(t, a.Prorate(dec("123.45"), p).Equal(dec("123.45")))
		}
	})

	t.Run("half of January", func(t *testing.T) {
		p, err := NewBillingPeriod(date(2024, time.January, 1), date(2024, time.January, 15))
		require.NoError(t, err)

		got := a.Prorate(dec("20"), p).Round(2)
		assert.True(t, got.Equal(dec("9.68")), "got %s", got)
	})

	t.Run("factor for ten days of April", func(t *testing.T) {
		p, err := NewBillingPeriod(date(2024, time.April, 11), date(2024, time.April, 20))
		require.NoError(t, err)

		factor := a.ProrationFactor(p)
		assert.True(t, factor.Round(4).Equal(dec("0.3333")), "got %s", factor)
	})
}
