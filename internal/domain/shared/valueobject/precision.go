package valueobject

import "github.com/shopspring/decimal"

// Rounding precision for billing figures. Every rounding goes through
// decimal.Round, which rounds half away from zero.
const (
	MoneyPlaces       int32 = 2
	ConsumptionPlaces int32 = 3
)

// MinorUnit is the smallest representable money amount (one cent)
var MinorUnit = decimal.New(1, -MoneyPlaces)

// RoundMoney rounds an amount to minor units
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

// RoundConsumption rounds a consumption quantity to three places
func RoundConsumption(d decimal.Decimal) decimal.Decimal {
	return d.Round(ConsumptionPlaces)
}

// WithinMinorUnit reports whether a and b differ by at most one minor unit
func WithinMinorUnit(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(MinorUnit)
}
