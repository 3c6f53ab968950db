// Package money implements decimal-safe arithmetic for prices, discounts and
// order totals.
package money

import "github.com/shopspring/decimal"

// Scale is the number of fractional digits amounts are rounded to.
const Scale = 2

var hundred = decimal.NewFromInt(100)

// Zero is the zero amount.
var Zero = decimal.Zero

// LineTotal returns unit * qty.
func LineTotal(unit decimal.Decimal, qty int) decimal.Decimal {
	return unit.Mul(decimal.NewFromInt(int64(qty)))
}

// Sum adds all amounts.
func Sum(amounts ...decimal.Decimal) decimal.Decimal {
	total := Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}

// Percentage returns amount * pct / 100 rounded to Scale.
func Percentage(amount, pct decimal.Decimal) decimal.Decimal {
	return amount.Mul(pct).Div(hundred).Round(Scale)
}

// Min returns the smaller of a and b.
func Min(a, b decimal.Decimal) decimal.Decimal {
	return decimal.Min(a, b)
}

// FloorAtZero clamps negative values to zero.
func FloorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return Zero
	}
	return d
}

// IsPositive reports whether d > 0.
func IsPositive(d decimal.Decimal) bool {
	return d.Sign() > 0
}

// InScale reports whether d has at most Scale fractional digits.
func InScale(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(Scale))
}

// Format renders d with exactly Scale fractional digits, e.g. "19000.00".
func Format(d decimal.Decimal) string {
	return d.StringFixed(Scale)
}

// Parse parses a decimal amount.
func Parse(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(s)
}
