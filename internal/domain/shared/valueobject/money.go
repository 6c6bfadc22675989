package valueobject

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// Currency represents a currency code (ISO 4217)
type Currency string

const (
	EUR Currency = "EUR" // Euro (default)
	USD Currency = "USD" // US Dollar
	GBP Currency = "GBP" // British Pound
)

// DefaultCurrency is the default currency for the system
const DefaultCurrency = EUR

// ErrCurrencyMismatch is returned when combining amounts of different currencies
var ErrCurrencyMismatch = errors.New("currency mismatch")

// ErrNonPositiveWeights is returned by SplitByWeights when the weights sum to zero or less
var ErrNonPositiveWeights = errors.New("weights must sum to a positive value")

// Money is a value object representing monetary amounts
// It is immutable - all operations return new Money instances
type Money struct {
	amount   decimal.Decimal
	currency Currency
}

// NewMoney creates a new Money with the specified amount and currency
func NewMoney(amount decimal.Decimal, currency Currency) (Money, error) {
	if currency == "" {
		return Money{}, errors.New("currency cannot be empty")
	}
	return Money{
		amount:   amount,
		currency: currency,
	}, nil
}

// NewMoneyFromString creates Money from a string representation
func NewMoneyFromString(amount string, currency Currency) (Money, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return Money{}, fmt.Errorf("invalid amount string: %w", err)
	}
	return NewMoney(d, currency)
}

// NewMoneyEUR creates Money in EUR
func NewMoneyEUR(amount decimal.Decimal) Money {
	return Money{amount: amount, currency: EUR}
}

// Zero returns zero money in the given currency
func Zero(currency Currency) Money {
	return Money{amount: decimal.Zero, currency: currency}
}

// Amount returns the decimal amount
func (m Money) Amount() decimal.Decimal {
	return m.amount
}

// Currency returns the currency
func (m Money) Currency() Currency {
	return m.currency
}

// IsZero returns true if amount is zero
func (m Money) IsZero() bool {
	return m.amount.IsZero()
}

// IsPositive returns true if amount is greater than zero
func (m Money) IsPositive() bool {
	return m.amount.IsPositive()
}

// IsNegative returns true if amount is less than zero
func (m Money) IsNegative() bool {
	return m.amount.IsNegative()
}

// Add returns the sum of two Money values
func (m Money) Add(other Money) (Money, error) {
	if m.currency != other.currency {
		return Money{}, fmt.Errorf("%w: %s and %s", ErrCurrencyMismatch, m.currency, other.currency)
	}
	return Money{amount: m.amount.Add(other.amount), currency: m.currency}, nil
}

// Subtract returns the difference of two Money values
func (m Money) Subtract(other Money) (Money, error) {
	if m.currency != other.currency {
		return Money{}, fmt.Errorf("%w: %s and %s", ErrCurrencyMismatch, m.currency, other.currency)
	}
	return Money{amount: m.amount.Sub(other.amount), currency: m.currency}, nil
}

// Multiply returns Money multiplied by a decimal factor
func (m Money) Multiply(factor decimal.Decimal) Money {
	return Money{amount: m.amount.Mul(factor), currency: m.currency}
}

// Round rounds to the given decimal places, half away from zero
func (m Money) Round(places int32) Money {
	return Money{amount: m.amount.Round(places), currency: m.currency}
}

// Equals returns true if both amount and currency match
func (m Money) Equals(other Money) bool {
	return m.currency == other.currency && m.amount.Equal(other.amount)
}

// String returns a string representation
func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.currency, m.amount.StringFixed(MoneyPlaces))
}

// MarshalJSON implements json.Marshaler
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Amount   string   `json:"amount"`
		Currency Currency `json:"currency"`
	}{
		Amount:   m.amount.StringFixed(MoneyPlaces),
		Currency: m.currency,
	})
}

// UnmarshalJSON implements json.Unmarshaler
func (m *Money) UnmarshalJSON(data []byte) error {
	var v struct {
		Amount   string   `json:"amount"`
		Currency Currency `json:"currency"`
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	amount, err := decimal.NewFromString(v.Amount)
	if err != nil {
		return fmt.Errorf("invalid amount: %w", err)
	}
	if v.Currency == "" {
		v.Currency = DefaultCurrency
	}
	m.amount = amount
	m.currency = v.Currency
	return nil
}

// SplitEqual divides money into n equal parts of whole minor units.
// Each part is the quotient truncated to minor units; the remainder is
// added to the last part so the parts always sum to the rounded total.
func (m Money) SplitEqual(n int) ([]Money, error) {
	if n <= 0 {
		return nil, errors.New("parts must be positive")
	}
	total := RoundMoney(m.amount)
	if n == 1 {
		return []Money{{amount: total, currency: m.currency}}, nil
	}

	count := decimal.NewFromInt(int64(n))
	base := total.Div(count).Truncate(MoneyPlaces)
	remainder := total.Sub(base.Mul(count))

	parts := make([]Money, n)
	for i := range n {
		parts[i] = Money{amount: base, currency: m.currency}
	}
	parts[n-1] = Money{amount: base.Add(remainder), currency: m.currency}
	return parts, nil
}

// SplitByWeights divides money proportionally to weights using the largest
// remainder method. Each part is floored to minor units, then the leftover
// units go one at a time to the parts with the largest discarded fraction,
// earlier parts first on ties. Parts sum to the rounded total, never have the
// opposite sign of it, and differ from the exact share by less than one unit.
func (m Money) SplitByWeights(weights []decimal.Decimal) ([]Money, error) {
	if len(weights) == 0 {
		return nil, errors.New("weights cannot be empty")
	}
	sum := decimal.Zero
	for _, w := range weights {
		if w.IsNegative() {
			return nil, fmt.Errorf("weight cannot be negative: %s", w)
		}
		sum = sum.Add(w)
	}
	if !sum.IsPositive() {
		return nil, ErrNonPositiveWeights
	}

	total := RoundMoney(m.amount)
	sign := decimal.NewFromInt(1)
	if total.IsNegative() {
		sign = sign.Neg()
	}
	units := total.Abs().Shift(MoneyPlaces)

	type share struct {
		index    int
		fraction decimal.Decimal
	}
	floors := make([]decimal.Decimal, len(weights))
	shares := make([]share, len(weights))
	allocated := decimal.Zero
	for i, w := range weights {
		exact := units.Mul(w).DivRound(sum, 16)
		floors[i] = exact.Floor()
		shares[i] = share{index: i, fraction: exact.Sub(floors[i])}
		allocated = allocated.Add(floors[i])
	}

	sort.SliceStable(shares, func(a, b int) bool {
		return shares[a].fraction.GreaterThan(shares[b].fraction)
	})
	leftover := units.Sub(allocated).IntPart()
	for k := int64(0); k < leftover && k < int64(len(shares)); k++ {
		idx := shares[k].index
		floors[idx] = floors[idx].Add(decimal.NewFromInt(1))
	}

	parts := make([]Money, len(weights))
	for i, f := range floors {
		parts[i] = Money{amount: f.Shift(-MoneyPlaces).Mul(sign), currency: m.currency}
	}
	return parts, nil
}

// Sum adds up a slice of money values of the same currency
func Sum(currency Currency, values []Money) (Money, error) {
	total := Zero(currency)
	for _, v := range values {
		var err error
		total, err = total.Add(v)
		if err != nil {
			return Money{}, err
		}
	}
	return total, nil
}
