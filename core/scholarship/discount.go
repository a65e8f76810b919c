package scholarship

import (
	"github.com/shopspring/decimal"

	"github.com/chaima229/fraisScolaire-backend-sub000/core"
)

var hundred = decimal.NewFromInt(100)

// FeeAmounts is the yearly amount due for a student, split by fee type.
type FeeAmounts struct {
	Tuition   decimal.Decimal `json:"scolarite"`
	OtherFees decimal.Decimal `json:"autres_frais"`
}

// ApplyDiscount returns the tuition left to pay once `s` is applied.
// Only one discount applies: full exemption, else percentage, else fixed amount.
func ApplyDiscount(tuition decimal.Decimal, s *Scholarship) decimal.Decimal {
	switch {
	case s == nil:
		return tuition
	case s.IsExempt:
		return decimal.Zero
	case s.Percentage.IsPositive():
		return core.MaxZero(tuition.Mul(decimal.NewFromInt(1).Sub(s.Percentage.Div(hundred))))
	case s.FixedAmount.IsPositive():
		return core.MaxZero(tuition.Sub(s.FixedAmount))
	default:
		return tuition
	}
}

// Cap is the total a student may pay for the year.
func Cap(fees FeeAmounts, s *Scholarship) decimal.Decimal {
	return ApplyDiscount(fees.Tuition, s).Add(fees.OtherFees)
}
