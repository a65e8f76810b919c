package outbox

import "github.com/samber/lo"

// Event types
const (
	AllEvents = "*"

	ClassCreated = "class.created"
	ClassUpdated = "class.updated"
	ClassDeleted = "class.deleted"

	StudentCreated = "student.created"
	StudentUpdated = "student.updated"
	StudentDeleted = "student.deleted"

	ParentCreated = "parent.created"
	ParentUpdated = "parent.updated"
	ParentDeleted = "parent.deleted"

	TariffCreated = "tariff.created"
	TariffRetired = "tariff.retired"

	ScholarshipCreated = "scholarship.created"
	ScholarshipUpdated = "scholarship.updated"
	ScholarshipDeleted = "scholarship.deleted"

	PaymentCreated         = "payment.created"
	PaymentUpdated         = "payment.updated"
	PaymentDeleted         = "payment.deleted"
	PaymentDisputeOpened   = "payment.dispute.opened"
	PaymentDisputeResolved = "payment.dispute.resolved"
	PaymentRefundRequested = "payment.refund.requested"
	PaymentRefundResolved  = "payment.refund.resolved"

	InvoiceCreated   = "invoice.created"
	InvoiceUpdated   = "invoice.updated"
	InvoiceCancelled = "invoice.cancelled"
	InvoiceCorrected = "invoice.corrected"

	ReminderSent = "reminder.sent"

	WebhookCreated  = "webhook.created"
	WebhookUpdated  = "webhook.updated"
	WebhookDeleted  = "webhook.deleted"
	WebhookReceived = "webhook.received"
)

var EventTypes = []string{
	ClassCreated, ClassUpdated, ClassDeleted,
	StudentCreated, StudentUpdated, StudentDeleted,
	ParentCreated, ParentUpdated, ParentDeleted,
	TariffCreated, TariffRetired,
	ScholarshipCreated, ScholarshipUpdated, ScholarshipDeleted,
	PaymentCreated, PaymentUpdated, PaymentDeleted,
	PaymentDisputeOpened, PaymentDisputeResolved, PaymentRefundRequested, PaymentRefundResolved,
	InvoiceCreated, InvoiceUpdated, InvoiceCancelled, InvoiceCorrected,
	ReminderSent,
	WebhookCreated, WebhookUpdated, WebhookDeleted, WebhookReceived,
}

// IsKnownEvent reports whether typ can be subscribed to.
func IsKnownEvent(typ string) bool {
	return typ == AllEvents || lo.Contains(EventTypes, typ)
}
