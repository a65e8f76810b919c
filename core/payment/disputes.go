package payment

import (
	"context"

	"github.com/pkg/errors"

	"github.com/chaima229/fraisScolaire-backend-sub000/core"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/audit"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/outbox"
)

// caseKind describes one of the two independent state machines of a payment.
type caseKind struct {
	name         string
	action       string
	openedEvent  string
	closedEvent  string
	statusFields func(p *Payment) (status, reason *string)
}

var (
	disputeCase = caseKind{
		name:        "dispute",
		action:      audit.ActionDispute,
		openedEvent: outbox.PaymentDisputeOpened,
		closedEvent: outbox.PaymentDisputeResolved,
		statusFields: func(p *Payment) (*string, *string) {
			return &p.DisputeStatus, &p.DisputeReason
		},
	}
	refundCase = caseKind{
		name:        "refund",
		action:      audit.ActionRefund,
		openedEvent: outbox.PaymentRefundRequested,
		closedEvent: outbox.PaymentRefundResolved,
		statusFields: func(p *Payment) (*string, *string) {
			return &p.RefundStatus, &p.RefundReason
		},
	}
)

// CanTransition reports whether a dispute or refund may move from `from` to `to`:
// none -> pending -> resolved|rejected.
func CanTransition(from, to string) bool {
	switch from {
	case CaseNone, "":
		return to == CasePending
	case CasePending:
		return to == CaseResolved || to == CaseRejected
	default:
		return false
	}
}

func (l *Ledger) OpenDispute(ctx context.Context, id string, oc OpenCase, actor core.Actor) (Payment, error) {
	return l.transition(ctx, id, disputeCase, CasePending, oc.Reason, actor)
}

func (l *Ledger) ResolveDispute(ctx context.Context, id string, cc CloseCase, actor core.Actor) (Payment, error) {
	return l.transition(ctx, id, disputeCase, cc.Decision, cc.Note, actor)
}

func (l *Ledger) RequestRefund(ctx context.Context, id string, oc OpenCase, actor core.Actor) (Payment, error) {
	return l.transition(ctx, id, refundCase, CasePending, oc.Reason, actor)
}

// ResolveRefund settles a refund request. Amounts are left as is: a refunded payment
// is removed through Delete.
func (l *Ledger) ResolveRefund(ctx context.Context, id string, cc CloseCase, actor core.Actor) (Payment, error) {
	return l.transition(ctx, id, refundCase, cc.Decision, cc.Note, actor)
}

func (l *Ledger) transition(ctx context.Context, id string, kind caseKind, to, note string, actor core.Actor) (Payment, error) {
	orig, err := l.repo.GetPaymentByID(ctx, id)
	if err != nil {
		return Payment{}, err
	}
	unlock, orig, err := l.lockPayment(ctx, orig)
	if err != nil {
		return Payment{}, err
	}
	defer unlock()

	p := orig
	status, reason := kind.statusFields(&p)
	from := *status
	if from == "" {
		from = CaseNone
	}
	if !CanTransition(from, to) {
		return Payment{}, &TransitionError{Case: kind.name, From: from, To: to}
	}
	*status = to
	if to == CasePending {
		*reason = note
	}
	p.UpdatedAt = nowFunc().UTC()

	event := kind.closedEvent
	if to == CasePending {
		event = kind.openedEvent
	}
	details := map[string]interface{}{"from": from, "to": to}
	if note != "" {
		details["note"] = note
	}

	err = l.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		if p, err = l.repo.UpdatePayment(ctx, p, exec); err != nil {
			return errors.Wrapf(err, "updating %s status", kind.name)
		}
		return l.trail.Record(ctx, audit.Activity{
			Actor:      actor,
			Action:     kind.action,
			EntityType: EntityType,
			EntityID:   p.ID,
			Details:    details,
			After:      p,
			Event:      event,
		}, exec)
	})
	return p, err
}
