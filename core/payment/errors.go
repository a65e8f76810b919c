package payment

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// CapExceededError is returned when a payment would take a student past the amount due for the year.
type CapExceededError struct {
	Cap         decimal.Decimal
	AlreadyPaid decimal.Decimal
	Attempted   decimal.Decimal
}

func (err CapExceededError) Error() string {
	return fmt.Sprintf(
		"payment exceeds the amount due: cap %s, already paid %s, attempted %s",
		err.Cap.StringFixed(2), err.AlreadyPaid.StringFixed(2), err.Attempted.StringFixed(2),
	)
}

// Remaining is what the student may still pay.
func (err CapExceededError) Remaining() decimal.Decimal {
	rem := err.Cap.Sub(err.AlreadyPaid)
	if rem.IsNegative() {
		return decimal.Zero
	}
	return rem
}

// TransitionError is returned when a dispute or refund cannot move to the requested status.
type TransitionError struct {
	Case string // "dispute" or "refund"
	From string
	To   string
}

func (err TransitionError) Error() string {
	return fmt.Sprintf("invalid %s transition: %s -> %s", err.Case, err.From, err.To)
}
