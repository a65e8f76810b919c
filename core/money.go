package core

import "github.com/shopspring/decimal"

// Epsilon absorbs rounding noise when comparing amounts.
var Epsilon = decimal.New(1, -6)

func init() {
	decimal.MarshalJSONWithoutQuotes = true
}

// MaxZero returns d, or zero when d is negative.
func MaxZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// ExceedsWithTolerance reports whether amount > limit + Epsilon.
func ExceedsWithTolerance(amount, limit decimal.Decimal) bool {
	return amount.GreaterThan(limit.Add(Epsilon))
}

// Sum adds up amounts.
func Sum(amounts ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}
