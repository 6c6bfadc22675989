package valueobject

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMoney(t *testing.T) {
	t.Run("creates money with valid amount and currency", func(t *testing.T) {
		m, err := NewMoney(decimal.RequireFromString("100.50"), EUR)
		require.NoError(t, err)
		assert.Equal(t, EUR, m.Currency())
		assert.True(t, m.Amount().Equal(decimal.RequireFromString("100.50")))
	})

	t.Run("returns error for empty currency", func(t *testing.T) {
		_, err := NewMoney(decimal.NewFromInt(100), "")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "currency cannot be empty")
	})

	t.Run("invalid string", func(t *testing.T) {
		_, err := NewMoneyFromString("not-a-number", EUR)
		assert.Error(t, err)
	})
}

func TestMoney_AddSubtract(t *testing.T) {
	a := NewMoneyEUR(decimal.RequireFromString("10.25"))
	b := NewMoneyEUR(decimal.RequireFromString("0.75"))

	sum, err := a.Add(b)
	require.NoError(t, err)
	assert.True(t, sum.Amount().Equal(decimal.NewFromInt(11)))

	diff, err := a.Subtract(b)
	require.NoError(t, err)
	assert.True(t, diff.Amount().Equal(decimal.RequireFromString("9.5")))

	usd, _ := NewMoney(decimal.NewFromInt(1), USD)
	_, err = a.Add(usd)
	assert.ErrorIs(t, err, ErrCurrencyMismatch)
}

func TestMoney_Round(t *testing.T) {
	tests := []struct {
		in       string
		expected string
	}{
		{"261.675", "261.68"},
		{"0.005", "0.01"},
		{"-0.005", "-0.01"},
		{"2.344", "2.34"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			m := NewMoneyEUR(decimal.RequireFromString(tt.in)).Round(MoneyPlaces)
			expected := decimal.RequireFromString(tt.expected)
			assert.True(t, expected.Equal(m.Amount()), "expected %s, got %s", expected, m.Amount())
		})
	}
}

func TestMoney_SplitEqual(t *testing.T) {
	t.Run("remainder goes to the last part", func(t *testing.T) {
		parts, err := NewMoneyEUR(decimal.NewFromInt(100)).SplitEqual(3)
		require.NoError(t, err)
		require.Len(t, parts, 3)
		assert.Equal(t, "33.33", parts[0].Amount().StringFixed(2))
		assert.Equal(t, "33.33", parts[1].Amount().StringFixed(2))
		assert.Equal(t, "33.34", parts[2].Amount().StringFixed(2))
	})

	t.Run("single part keeps the total", func(t *testing.T) {
		parts, err := NewMoneyEUR(decimal.RequireFromString("12.34")).SplitEqual(1)
		require.NoError(t, err)
		assert.Equal(t, "12.34", parts[0].Amount().StringFixed(2))
	})

	t.Run("rejects non-positive part count", func(t *testing.T) {
		_, err := NewMoneyEUR(decimal.NewFromInt(1)).SplitEqual(0)
		assert.Error(t, err)
	})

	t.Run("parts always reconcile", func(t *testing.T) {
		totals := []string{"0.01", "0.02", "1", "99.99", "100", "1234.57", "738.32"}
		for _, total := range totals {
			for n := 1; n <= 17; n++ {
				m := NewMoneyEUR(decimal.RequireFromString(total))
				parts, err := m.SplitEqual(n)
				require.NoError(t, err)
				sum, err := Sum(EUR, parts)
				require.NoError(t, err)
				assert.True(t, sum.Amount().Equal(m.Amount()), "total %s split %d: got %s", total, n, sum.Amount())
			}
		}
	})
}

func TestMoney_SplitByWeights(t *testing.T) {
	t.Run("proportional split", func(t *testing.T) {
		weights := []decimal.Decimal{decimal.NewFromInt(50), decimal.NewFromInt(30), decimal.NewFromInt(20)}
		parts, err := NewMoneyEUR(decimal.NewFromInt(200)).SplitByWeights(weights)
		require.NoError(t, err)
		assert.Equal(t, "100.00", parts[0].Amount().StringFixed(2))
		assert.Equal(t, "60.00", parts[1].Amount().StringFixed(2))
		assert.Equal(t, "40.00", parts[2].Amount().StringFixed(2))
	})

	t.Run("zero weights are rejected", func(t *testing.T) {
		_, err := NewMoneyEUR(decimal.NewFromInt(10)).SplitByWeights([]decimal.Decimal{decimal.Zero, decimal.Zero})
		assert.ErrorIs(t, err, ErrNonPositiveWeights)
	})

	t.Run("negative weight is rejected", func(t *testing.T) {
		_, err := NewMoneyEUR(decimal.NewFromInt(10)).SplitByWeights([]decimal.Decimal{decimal.NewFromInt(-1), decimal.NewFromInt(2)})
		assert.Error(t, err)
	})

	t.Run("parts always reconcile", func(t *testing.T) {
		weights := []decimal.Decimal{
			decimal.RequireFromString("45.5"),
			decimal.RequireFromString("61.2"),
			decimal.RequireFromString("33.3"),
			decimal.RequireFromString("78.9"),
			decimal.RequireFromString("52.1"),
			decimal.RequireFromString("0"),
		}
		for _, total := range []string{"0.05", "100", "738.32", "1000.01"} {
			m := NewMoneyEUR(decimal.RequireFromString(total))
			parts, err := m.SplitByWeights(weights)
			require.NoError(t, err)
			sum, err := Sum(EUR, parts)
			require.NoError(t, err)
			assert.True(t, sum.Amount().Equal(m.Amount()), fmt.Sprintf("total %s: got %s", total, sum.Amount()))
		}
	})
}

func TestMoney_SplitByWeights_LargestRemainder(t *testing.T) {
	equal := func(n int) []decimal.Decimal {
		w := make([]decimal.Decimal, n)
		for i := range w {
			w[i] = decimal.NewFromInt(1)
		}
		return w
	}

	tests := []struct {
		name     string
		total    string
		weights  []decimal.Decimal
		expected []string
	}{
		{"one cent across many equal weights", "1.00", equal(200), nil},
		{"spread goes to the earliest parts", "10.02", equal(4), []string{"2.51", "2.51", "2.50", "2.50"}},
		{"largest fraction wins", "100", []decimal.Decimal{decimal.NewFromInt(50), decimal.NewFromInt(60)}, []string{"45.45", "54.55"}},
		{"zero weight gets nothing", "0.05", []decimal.Decimal{decimal.NewFromInt(1), decimal.Zero, decimal.NewFromInt(1)}, []string{"0.03", "0.00", "0.02"}},
		{"negative total keeps its sign", "-10.02", equal(4), []string{"-2.51", "-2.51", "-2.50", "-2.50"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewMoneyFromString(tt.total, GBP)
			require.NoError(t, err)
			parts, err := m.SplitByWeights(tt.weights)
			require.NoError(t, err)
			require.Len(t, parts, len(tt.weights))

			sum, err := Sum(GBP, parts)
			require.NoError(t, err)
			assert.True(t, sum.Amount().Equal(m.Amount()), "sum %s", sum.Amount())

			weightSum := decimal.Zero
			for _, w := range tt.weights {
				weightSum = weightSum.Add(w)
			}
			for i, p := range parts {
				assert.Equal(t, GBP, p.Currency())
				if m.IsPositive() {
					assert.False(t, p.IsNegative(), "part %d is %s", i, p.Amount())
				}
				exact := m.Amount().Mul(tt.weights[i]).Div(weightSum)
				assert.True(t, p.Amount().Sub(exact).Abs().LessThan(MinorUnit), "part %d: %s vs exact %s", i, p.Amount(), exact)
			}
			if tt.expected != nil {
				got := make([]string, len(parts))
				for i, p := range parts {
					got[i] = p.Amount().StringFixed(2)
				}
				assert.Equal(t, tt.expected, got)
			}
		})
	}
}

func TestMoney_SplitKeepsCurrency(t *testing.T) {
	m, err := NewMoneyFromString("9.99", USD)
	require.NoError(t, err)

	equal, err := m.SplitEqual(3)
	require.NoError(t, err)
	weighted, err := m.SplitByWeights([]decimal.Decimal{decimal.NewFromInt(1), decimal.NewFromInt(2)})
	require.NoError(t, err)

	for _, p := range append(equal, weighted...) {
		assert.Equal(t, USD, p.Currency())
	}
}

func TestMoney_JSON(t *testing.T) {
	m := NewMoneyEUR(decimal.RequireFromString("5.5"))
	data, err := json.Marshal(m)
	require.NoError(t, err)
	assert.JSONEq(t, `{"amount":"5.50","currency":"EUR"}`, string(data))

	var back Money
	require.NoError(t, json.Unmarshal([]byte(`{"amount":"7.25"}`), &back))
	assert.Equal(t, EUR, back.Currency())
	assert.True(t, back.Amount().Equal(decimal.RequireFromString("7.25")))
}

func TestWithinMinorUnit(t *testing.T) {
	assert.True(t, WithinMinorUnit(decimal.RequireFromString("1.00"), decimal.RequireFromString("1.01")))
	assert.False(t, WithinMinorUnit(decimal.RequireFromString("1.00"), decimal.RequireFromString("1.02")))
}
