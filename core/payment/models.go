package payment

import (
	"context"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/chaima229/fraisScolaire-backend-sub000/core"
)

const EntityType = "payment"

// Methods
const (
	MethodCash        = "especes"
	MethodCheque      = "cheque"
	MethodTransfer    = "virement"
	MethodCard        = "carte"
	MethodMobileMoney = "mobile_money"
)

var Methods = []string{MethodCash, MethodCheque, MethodTransfer, MethodCard, MethodMobileMoney}

// Dispute and refund statuses
const (
	CaseNone     = "none"
	CasePending  = "pending"
	CaseResolved = "resolved"
	CaseRejected = "rejected"
)

type (
	Payment struct {
		ID           string          `json:"id"`
		StudentID    string          `json:"etudiant_id"`
		Amount       decimal.Decimal `json:"montantPaye"`
		Method       string          `json:"methode"`
		Payer        string          `json:"payeur"`
		RecordedBy   string          `json:"enregistre_par"`
		AcademicYear string          `json:"annee_scolaire"`
		InvoiceIDs   []string        `json:"facture_ids"`
		ReceiptURL   string          `json:"justificatif_url,omitempty"`
		Details      string          `json:"details,omitempty"`

		// snapshot at the time of the payment
		Due       decimal.Decimal `json:"montant_du"`
		Paid      decimal.Decimal `json:"montant_payee"`
		Remaining decimal.Decimal `json:"montant_restant"`

		DisputeStatus string `json:"statut_litige"`
		DisputeReason string `json:"motif_litige,omitempty"`
		RefundStatus  string `json:"statut_remboursement"`
		RefundReason  string `json:"motif_remboursement,omitempty"`

		CreatedAt time.Time `json:"created_at"`
		UpdatedAt time.Time `json:"updated_at"`
	}

	// Balance is the situation of a student for an academic year.
	Balance struct {
		StudentID    string          `json:"etudiant_id"`
		AcademicYear string          `json:"annee_scolaire"`
		Due          decimal.Decimal `json:"montant_du"`
		Paid         decimal.Decimal `json:"montant_paye"`
		Remaining    decimal.Decimal `json:"montant_restant"`
	}

	Repository interface {
		CreatePayment(ctx context.Context, p Payment, exec ...core.DBExecutor) (Payment, error)
		QueryPayments(ctx context.Context, filter QueryFilter, orderings ...core.DBOrdering) ([]Payment, error)
		GetPaymentByID(ctx context.Context, id string) (Payment, error)
		UpdatePayment(ctx context.Context, p Payment, exec ...core.DBExecutor) (Payment, error)
		DeletePayment(ctx context.Context, id string, exec ...core.DBExecutor) error
		// SumByStudent adds up the amounts of the payments of a student for `academicYear`,
		// except those in `excludedIDs`.
		SumByStudent(ctx context.Context, studentID, academicYear string, excludedIDs ...string) (decimal.Decimal, error)
		CountByStudent(ctx context.Context, studentID string) (int, error)
		SumByInvoice(ctx context.Context, invoiceID string) (decimal.Decimal, error)
		RelinkInvoice(ctx context.Context, fromID, toID string, exec ...core.DBExecutor) (int, error)
	}

	QueryFilter struct {
		StudentID     string `query:"etudiant_id"`
		InvoiceID     string `query:"facture_id"`
		Method        string `query:"methode"`
		AcademicYear  string `query:"annee_scolaire"`
		DisputeStatus string `query:"statut_litige"`
		RefundStatus  string `query:"statut_remboursement"`
	}
)

var OrderingFields = []string{"created_at", "montantPaye", "methode"}

// HasPendingCase reports whether a dispute or a refund awaits a decision.
func (p Payment) HasPendingCase() bool {
	return p.DisputeStatus == CasePending || p.RefundStatus == CasePending
}

func (qf *QueryFilter) Clean() {
	qf.StudentID = core.CleanString(qf.StudentID)
	qf.InvoiceID = core.CleanString(qf.InvoiceID)
	qf.Method = core.CleanString(qf.Method, true /* lower */)
	qf.AcademicYear = core.CleanString(qf.AcademicYear)
	qf.DisputeStatus = core.CleanString(qf.DisputeStatus, true /* lower */)
	qf.RefundStatus = core.CleanString(qf.RefundStatus, true /* lower */)
}

func (qf QueryFilter) Match(p Payment) bool {
	return (qf.StudentID == "" || p.StudentID == qf.StudentID) &&
		(qf.InvoiceID == "" || lo.Contains(p.InvoiceIDs, qf.InvoiceID)) &&
		(qf.Method == "" || p.Method == qf.Method) &&
		(qf.AcademicYear == "" || p.AcademicYear == qf.AcademicYear) &&
		(qf.DisputeStatus == "" || p.DisputeStatus == qf.DisputeStatus) &&
		(qf.RefundStatus == "" || p.RefundStatus == qf.RefundStatus)
}

// NewPayment contains information needed to record a Payment.
type NewPayment struct {
	StudentID  string          `json:"etudiant_id" validate:"required"`
	Amount     decimal.Decimal `json:"montantPaye" validate:"gt=0,cents"`
	Method     string          `json:"methode" validate:"required,payment_method"`
	Payer      string          `json:"payeur"`
	InvoiceIDs []string        `json:"facture_ids" validate:"omitempty,dive,required"`
	ReceiptURL string          `json:"justificatif_url" validate:"omitempty,url"`
	Details    string          `json:"details"`
}

func (np *NewPayment) Clean() {
	np.StudentID = core.CleanString(np.StudentID)
	np.Method = core.CleanString(np.Method, true /* lower */)
	np.Payer = core.CleanString(np.Payer)
	np.InvoiceIDs = cleanIDs(np.InvoiceIDs)
	np.ReceiptURL = core.CleanString(np.ReceiptURL)
	np.Details = core.CleanString(np.Details)
}

// UpdatePayment defines what may be changed on an existing Payment.
// A non-nil InvoiceIDs replaces the links of the payment.
type UpdatePayment struct {
	Amount     *decimal.Decimal `json:"montantPaye" validate:"omitempty,gt=0,cents"`
	Method     string           `json:"methode" validate:"omitempty,payment_method"`
	Payer      *string          `json:"payeur"`
	InvoiceIDs []string         `json:"facture_ids" validate:"omitempty,dive,required"`
	ReceiptURL *string          `json:"justificatif_url" validate:"omitempty,url"`
	Details    *string          `json:"details"`
}

func (up *UpdatePayment) Clean() {
	up.Method = core.CleanString(up.Method, true /* lower */)
	if up.Payer != nil {
		payer := core.CleanString(*up.Payer)
		up.Payer = &payer
	}
	if up.InvoiceIDs != nil {
		up.InvoiceIDs = cleanIDs(up.InvoiceIDs)
	}
	if up.ReceiptURL != nil {
		u := core.CleanString(*up.ReceiptURL)
		up.ReceiptURL = &u
	}
	if up.Details != nil {
		d := core.CleanString(*up.Details)
		up.Details = &d
	}
}

// OpenCase starts a dispute or a refund request.
type OpenCase struct {
	Reason string `json:"motif" validate:"required"`
}

func (oc *OpenCase) Clean() {
	oc.Reason = core.CleanString(oc.Reason)
}

// CloseCase settles a pending dispute or refund request.
type CloseCase struct {
	Decision string `json:"decision" validate:"required,oneof=resolved rejected"`
	Note     string `json:"note"`
}

func (cc *CloseCase) Clean() {
	cc.Decision = core.CleanString(cc.Decision, true /* lower */)
	cc.Note = core.CleanString(cc.Note)
}

func cleanIDs(ids []string) []string {
	cleaned := lo.Map(ids, func(s string, _ int) string { return core.CleanString(s) })
	return lo.Uniq(lo.Without(cleaned, ""))
}
