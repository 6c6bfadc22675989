package pricing

import (
	"testing"
	"time"

	"github.com/erp/utility-billing/internal/domain/billing"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func ptr(s string) *decimal.Decimal {
	return billing.DecimalPtr(dec(s))
}

func newInput(t *testing.T, schedule billing.RateSchedule, consumption map[string]decimal.Decimal, period billing.BillingPeriod) billing.PricingInput {
	t.Helper()
	adjuster, err := billing.NewSeasonalAdjuster(billing.DefaultSeasonConfig())
	require.NoError(t, err)
	data, err := billing.NewConsumptionData(consumption)
	require.NoError(t, err)
	return billing.PricingInput{
		Configuration: &billing.ServiceConfiguration{
			ID:            uuid.New(),
			PricingModel:  schedule.Model(),
			RateSchedule:  schedule,
			EffectiveFrom: time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
			IsActive:      true,
		},
		Consumption: data,
		Period:      period,
		Adjuster:    adjuster,
	}
}

func total(c string) map[string]decimal.Decimal {
	return map[string]decimal.Decimal{billing.DefaultZone: dec(c)}
}

func outcomeTotal(o *billing.PricingOutcome) decimal.Decimal {
	sum := o.ConsumptionAmount.Add(o.FixedAmount)
	for _, a := range o.Adjustments {
		sum = sum.Add(a.Amount)
	}
	return sum
}
