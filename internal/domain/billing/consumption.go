package billing

import (
	"fmt"

	"github.com/erp/utility-billing/internal/domain/shared"
	"github.com/erp/utility-billing/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// ConsumptionData holds per-zone consumption for a period and its total
type ConsumptionData struct {
	Zones map[string]decimal.Decimal `json:"zones"`
	Total decimal.Decimal            `json:"total"`
}

// NewConsumptionData builds consumption from zone totals. Values are rounded
// to consumption precision; negative values are rejected.
func NewConsumptionData(zones map[string]decimal.Decimal) (ConsumptionData, error) {
	out := ConsumptionData{Zones: make(map[string]decimal.Decimal, len(zones)), Total: decimal.Zero}
	for _, zone := range sortedKeys(zones) {
		v := zones[zone]
		if v.IsNegative() {
			return ConsumptionData{}, fmt.Errorf("%w: consumption for zone %q is negative (%s)", shared.ErrInvalidInput, zone, v)
		}
		v = valueobject.RoundConsumption(v)
		out.Zones[zone] = v
		out.Total = out.Total.Add(v)
	}
	return out, nil
}

// SingleZoneConsumption builds consumption with one default zone
func SingleZoneConsumption(total decimal.Decimal) (ConsumptionData, error) {
	return NewConsumptionData(map[string]decimal.Decimal{DefaultZone: total})
}

// ZoneNames returns the zone names in sorted order
func (c ConsumptionData) ZoneNames() []string {
	return sortedKeys(c.Zones)
}

// CheckBounds fails with shared.ErrConsumptionOutOfRange unless min <= Total <= max
func (c ConsumptionData) CheckBounds(min, max decimal.Decimal) error {
	if c.Total.LessThan(min) {
		return fmt.Errorf("%w: consumption %s is below the minimum %s", shared.ErrConsumptionOutOfRange, c.Total, min)
	}
	if c.Total.GreaterThan(max) {
		return fmt.Errorf("%w: consumption %s exceeds the maximum %s", shared.ErrConsumptionOutOfRange, c.Total, max)
	}
	for zone, v := range c.Zones {
		if v.IsNegative() {
			return fmt.Errorf("%w: consumption for zone %q is negative", shared.ErrConsumptionOutOfRange, zone)
		}
	}
	return nil
}
