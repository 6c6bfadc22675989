package billing

import (
	"sort"

	"github.com/erp/utility-billing/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// ConsumptionAggregator turns meter readings into consumption for a period.
// Missing data degrades to zero and is never an error.
type ConsumptionAggregator struct{}

// NewConsumptionAggregator creates an aggregator
func NewConsumptionAggregator() *ConsumptionAggregator {
	return &ConsumptionAggregator{}
}

// validatedInPeriod returns the validated readings within period, ordered by date
func validatedInPeriod(readings []MeterReading, period BillingPeriod) []MeterReading {
	out := make([]MeterReading, 0, len(readings))
	for _, r := range readings {
		if r.IsValidated() && period.Contains(r.ReadingDate) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ReadingDate.Before(out[j].ReadingDate)
	})
	return out
}

// MeterConsumption returns max(0, last - first) over the validated readings
// of a single register in period, or 0 with fewer than two of them
func (a *ConsumptionAggregator) MeterConsumption(readings []MeterReading, period BillingPeriod) decimal.Decimal {
	valid := validatedInPeriod(readings, period)
	if len(valid) < 2 {
		return decimal.Zero
	}
	delta := valid[len(valid)-1].Value.Sub(valid[0].Value)
	if delta.IsNegative() {
		return decimal.Zero
	}
	return valueobject.RoundConsumption(delta)
}

// AggregateZones computes per-zone consumption and the total
func (a *ConsumptionAggregator) AggregateZones(readingsByZone map[string][]MeterReading, period BillingPeriod) ConsumptionData {
	out := ConsumptionData{Zones: make(map[string]decimal.Decimal, len(readingsByZone)), Total: decimal.Zero}
	for _, zone := range sortedKeys(readingsByZone) {
		v := a.MeterConsumption(readingsByZone[zone], period)
		out.Zones[zone] = v
		out.Total = out.Total.Add(v)
	}
	return out
}

// AggregateMeter groups one meter's readings by zone and aggregates them
func (a *ConsumptionAggregator) AggregateMeter(readings []MeterReading, period BillingPeriod) ConsumptionData {
	byZone := make(map[string][]MeterReading)
	for _, r := range readings {
		zone := r.ZoneOrDefault()
		byZone[zone] = append(byZone[zone], r)
	}
	return a.AggregateZones(byZone, period)
}

// TotalAcrossMeters sums the consumption of several meters
func (a *ConsumptionAggregator) TotalAcrossMeters(readingsByMeter [][]MeterReading, period BillingPeriod) decimal.Decimal {
	total := decimal.Zero
	for _, readings := range readingsByMeter {
		total = total.Add(a.AggregateMeter(readings, period).Total)
	}
	return total
}
