package formula

import (
	"github.com/shopspring/decimal"
)

const (
	maxExponent    = 64
	maxRoundPlaces = 10
	sqrtPrecision  = 16
	sqrtIterations = 100

	// MaxMagnitudeExponent bounds every value a formula can produce to 1e30
	MaxMagnitudeExponent = 30
	// MaxScale is the number of fractional digits kept on intermediate values
	MaxScale = 40
	// MaxLiteralExponent bounds the exponent of scientific-notation literals
	MaxLiteralExponent = 30
)

var maxMagnitude = decimal.New(1, MaxMagnitudeExponent)

// bounded rejects values beyond the magnitude bound and trims fractional
// digits past MaxScale, so operand sizes stay small across a whole evaluation
func bounded(v decimal.Decimal) (decimal.Decimal, error) {
	if v.Abs().GreaterThan(maxMagnitude) {
		return decimal.Zero, evalError("value exceeds the allowed magnitude 1e%d", MaxMagnitudeExponent)
	}
	if v.Exponent() < -MaxScale {
		v = v.Round(MaxScale)
	}
	return v, nil
}

type function struct {
	name    string
	minArgs int
	maxArgs int
	apply   func(args []decimal.Decimal) (decimal.Decimal, error)
}

// functions is the closed allow-list of callable functions
var functions = map[string]function{
	"abs": {name: "abs", minArgs: 1, maxArgs: 1, apply: func(a []decimal.Decimal) (decimal.Decimal, error) {
		return a[0].Abs(), nil
	}},
	"ceil": {name: "ceil", minArgs: 1, maxArgs: 1, apply: func(a []decimal.Decimal) (decimal.Decimal, error) {
		return a[0].Ceil(), nil
	}},
	"floor": {name: "floor", minArgs: 1, maxArgs: 1, apply: func(a []decimal.Decimal) (decimal.Decimal, error) {
		return a[0].Floor(), nil
	}},
	"sqrt": {name: "sqrt", minArgs: 1, maxArgs: 1, apply: func(a []decimal.Decimal) (decimal.Decimal, error) {
		return sqrt(a[0])
	}},
	"round": {name: "round", minArgs: 1, maxArgs: 2, apply: func(a []decimal.Decimal) (decimal.Decimal, error) {
		places := int64(0)
		if len(a) == 2 {
			if !a[1].IsInteger() || a[1].IsNegative() || a[1].GreaterThan(decimal.NewFromInt(maxRoundPlaces)) {
				return decimal.Zero, evalError("round precision must be an integer between 0 and %d", maxRoundPlaces)
			}
			places = a[1].IntPart()
		}
		return a[0].Round(int32(places)), nil
	}},
	"pow": {name: "pow", minArgs: 2, maxArgs: 2, apply: func(a []decimal.Decimal) (decimal.Decimal, error) {
		return power(a[0], a[1])
	}},
	"min": {name: "min", minArgs: 2, maxArgs: 16, apply: func(a []decimal.Decimal) (decimal.Decimal, error) {
		return decimal.Min(a[0], a[1:]...), nil
	}},
	"max": {name: "max", minArgs: 2, maxArgs: 16, apply: func(a []decimal.Decimal) (decimal.Decimal, error) {
		return decimal.Max(a[0], a[1:]...), nil
	}},
	"clamp": {name: "clamp", minArgs: 3, maxArgs: 3, apply: func(a []decimal.Decimal) (decimal.Decimal, error) {
		return decimal.Max(a[1], decimal.Min(a[2], a[0])), nil
	}},
}

// AllowedFunctions returns the names of the callable functions
func AllowedFunctions() []string {
	names := make([]string, 0, len(functions))
	for name := range functions {
		names = append(names, name)
	}
	return names
}

// power raises base to an integer exponent by repeated multiplication.
// Negative exponents multiply the reciprocal.
func power(base, exponent decimal.Decimal) (decimal.Decimal, error) {
	if !exponent.IsInteger() {
		return decimal.Zero, evalError("exponent must be an integer, got %s", exponent)
	}
	if exponent.Abs().GreaterThan(decimal.NewFromInt(maxExponent)) {
		return decimal.Zero, evalError("exponent %s exceeds the allowed magnitude %d", exponent, maxExponent)
	}
	n := exponent.IntPart()
	if n < 0 {
		if base.IsZero() {
			return decimal.Zero, evalError("division by zero")
		}
		base = decimal.NewFromInt(1).Div(base)
		n = -n
	}
	result := decimal.NewFromInt(1)
	for range n {
		var err error
		if result, err = bounded(result.Mul(base)); err != nil {
			return decimal.Zero, err
		}
	}
	return result, nil
}

// order returns the decimal order of magnitude of a positive x
func order(x decimal.Decimal) int32 {
	return x.Exponent() + int32(len(x.Coefficient().String())) - 1
}

// sqrt computes a square root with Newton iterations. The seed and the working
// precision both follow the magnitude of x, so tiny and huge inputs converge.
func sqrt(x decimal.Decimal) (decimal.Decimal, error) {
	if x.IsNegative() {
		return decimal.Zero, evalError("square root of negative number %s", x)
	}
	if x.IsZero() {
		return decimal.Zero, nil
	}

	mag := order(x)
	places := int32(sqrtPrecision)
	if mag < 0 {
		places += -mag/2 + 1
	}
	work := places + 4
	if mag < 0 {
		work += -mag
	}

	two := decimal.NewFromInt(2)
	epsilon := decimal.New(1, -work)
	guess := decimal.New(1, mag/2)
	for range sqrtIterations {
		next := guess.Add(x.DivRound(guess, work)).DivRound(two, work)
		if next.Sub(guess).Abs().LessThanOrEqual(epsilon) {
			guess = next
			break
		}
		guess = next
	}
	return guess.Round(places), nil
}
