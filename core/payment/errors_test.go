package payment

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to string
		want     bool
	}{
		{from: CaseNone, to: CasePending, want: true},
		{from: "", to: CasePending, want: true},
		{from: CaseNone, to: CaseResolved, want: false},
		{from: CaseNone, to: CaseRejected, want: false},
		{from: CasePending, to: CaseResolved, want: true},
		{from: CasePending, to: CaseRejected, want: true},
		{from: CasePending, to: CasePending, want: false},
		{from: CasePending, to: CaseNone, want: false},
		{from: CaseResolved, to: CasePending, want: false},
		{from: CaseResolved, to: CaseRejected, want: false},
		{from: CaseRejected, to: CasePending, want: false},
		{from: CaseRejected, to: CaseResolved, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.from+"->"+tt.to, func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestCapExceededError(t *testing.T) {
	err := CapExceededError{
		Cap:         decimal.NewFromInt(56800),
		AlreadyPaid: decimal.NewFromInt(50000),
		Attempted:   decimal.RequireFromString("7000.5"),
	}
	assert.Equal(t, "payment exceeds the amount due: cap 56800.00, already paid 50000.00, attempted 7000.50", err.Error())
	assert.True(t, decimal.NewFromInt(6800).Equal(err.Remaining()))

	err.AlreadyPaid = decimal.NewFromInt(60000)
	assert.True(t, err.Remaining().IsZero())
}

func TestTransitionError(t *testing.T) {
	err := TransitionError{Case: "refund", From: CaseResolved, To: CasePending}
	assert.Equal(t, "invalid refund transition: resolved -> pending", err.Error())
}

func TestPayment_HasPendingCase(t *testing.T) {
	assert.False(t, Payment{DisputeStatus: CaseNone, RefundStatus: CaseResolved}.HasPendingCase())
	assert.True(t, Payment{DisputeStatus: CasePending, RefundStatus: CaseNone}.HasPendingCase())
	assert.True(t, Payment{DisputeStatus: CaseRejected, RefundStatus: CasePending}.HasPendingCase())
}
