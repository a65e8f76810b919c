package invoice

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/chaima229/fraisScolaire-backend-sub000/core"
)

const EntityType = "invoice"

// Kinds
const (
	KindStandard   = "facture"
	KindCorrective = "rectificative"
)

// Statuses
const (
	StatusUnpaid    = "impayée"
	StatusPartial   = "partielle"
	StatusPaid      = "payée"
	StatusCancelled = "annulée"
	StatusPending   = "en_attente"
)

var Statuses = []string{StatusUnpaid, StatusPartial, StatusPaid, StatusCancelled, StatusPending}

type (
	LineItem struct {
		Label   string          `json:"libelle" validate:"required"`
		FeeType string          `json:"type_frais"`
		Amount  decimal.Decimal `json:"montant" validate:"gte=0,cents"`
	}

	Invoice struct {
		ID           string          `json:"id"`
		Number       string          `json:"numero"`
		StudentID    string          `json:"etudiant_id"`
		Kind         string          `json:"type"`
		OriginalID   string          `json:"facture_originale_id,omitempty"`
		Total        decimal.Decimal `json:"montantTotal"`
		Paid         decimal.Decimal `json:"montantPaye"`
		Remaining    decimal.Decimal `json:"montantRestant"`
		Status       string          `json:"statut"`
		Lines        []LineItem      `json:"lignes"`
		AcademicYear string          `json:"annee_scolaire"`
		Draft        bool            `json:"brouillon"`
		Cancelled    bool            `json:"annulee"`
		IssuedAt     *time.Time      `json:"date_emission,omitempty"`
		CreatedAt    time.Time       `json:"created_at"`
		UpdatedAt    time.Time       `json:"updated_at"`
	}

	Repository interface {
		CreateInvoice(ctx context.Context, inv Invoice, exec ...core.DBExecutor) (Invoice, error)
		QueryInvoices(ctx context.Context, filter QueryFilter, orderings ...core.DBOrdering) ([]Invoice, error)
		GetInvoiceByID(ctx context.Context, id string) (Invoice, error)
		GetInvoicesByIDs(ctx context.Context, ids ...string) ([]Invoice, error)
		NumberExists(ctx context.Context, number string) (bool, error)
		UpdateInvoice(ctx context.Context, inv Invoice, exec ...core.DBExecutor) (Invoice, error)
		CountByStudent(ctx context.Context, studentID string) (int, error)
	}

	// PaymentLinks gives access to the payments referencing an invoice.
	PaymentLinks interface {
		// SumByInvoice adds up the amounts of all payments whose invoice ids contain `invoiceID`.
		SumByInvoice(ctx context.Context, invoiceID string) (decimal.Decimal, error)
		// RelinkInvoice replaces `fromID` with `toID` in the invoice ids of every payment.
		RelinkInvoice(ctx context.Context, fromID, toID string, exec ...core.DBExecutor) (int, error)
	}

	QueryFilter struct {
		StudentID    string `query:"etudiant_id"`
		Status       string `query:"statut"`
		AcademicYear string `query:"annee_scolaire"`
		Kind         string `query:"type"`
	}
)

var OrderingFields = []string{"created_at", "numero", "montantTotal", "date_emission"}

// DeriveStatus computes the status of `inv` from its flags and amounts.
func DeriveStatus(inv Invoice) string {
	switch {
	case inv.Cancelled:
		return StatusCancelled
	case inv.Draft:
		return StatusPending
	case !inv.Paid.IsPositive():
		return StatusUnpaid
	case !inv.Paid.LessThan(inv.Total.Sub(core.Epsilon)):
		return StatusPaid
	default:
		return StatusPartial
	}
}

// ApplyPaid sets the paid amount and every field derived from it.
func (inv *Invoice) ApplyPaid(paid decimal.Decimal) {
	inv.Paid = paid
	inv.Remaining = core.MaxZero(inv.Total.Sub(paid))
	inv.Status = DeriveStatus(*inv)
}

// IsOpen reports whether payments may still be linked to the invoice.
func (inv Invoice) IsOpen() bool {
	return !inv.Cancelled && !inv.Draft
}

func TotalOf(lines []LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Amount)
	}
	return total
}

func (qf *QueryFilter) Clean() {
	qf.StudentID = core.CleanString(qf.StudentID)
	qf.Status = core.CleanString(qf.Status, true /* lower */)
	qf.AcademicYear = core.CleanString(qf.AcademicYear)
	qf.Kind = core.CleanString(qf.Kind, true /* lower */)
}

func (qf QueryFilter) Match(inv Invoice) bool {
	return (qf.StudentID == "" || inv.StudentID == qf.StudentID) &&
		(qf.Status == "" || inv.Status == qf.Status) &&
		(qf.AcademicYear == "" || inv.AcademicYear == qf.AcademicYear) &&
		(qf.Kind == "" || inv.Kind == qf.Kind)
}

// GenerateRequest describes the payment an invoice is generated for.
type GenerateRequest struct {
	StudentID    string
	AcademicYear string
	AmountPaid   decimal.Decimal
	Method       string
	Payer        string
	RecordedBy   string
	Lines        []LineItem // amounts due, by fee type
}

// NewInvoice contains information needed to create an Invoice manually.
type NewInvoice struct {
	StudentID    string     `json:"etudiant_id" validate:"required,uuid"`
	Number       string     `json:"numero"`
	AcademicYear string     `json:"annee_scolaire" validate:"required,academic_year"`
	Lines        []LineItem `json:"lignes" validate:"required,min=1,dive"`
	Draft        bool       `json:"brouillon"`
}

func (ni *NewInvoice) Clean() {
	ni.StudentID = core.CleanString(ni.StudentID)
	ni.Number = core.CleanString(ni.Number)
	ni.AcademicYear = core.CleanString(ni.AcademicYear)
	cleanLines(ni.Lines)
}

// CorrectInvoice holds the lines of the corrective invoice replacing an existing one.
type CorrectInvoice struct {
	Lines  []LineItem `json:"lignes" validate:"required,min=1,dive"`
	Reason string     `json:"motif" validate:"required"`
}

func (ci *CorrectInvoice) Clean() {
	ci.Reason = core.CleanString(ci.Reason)
	cleanLines(ci.Lines)
}

func cleanLines(lines []LineItem) {
	for i := range lines {
		lines[i].Label = core.CleanString(lines[i].Label)
		lines[i].FeeType = core.CleanString(lines[i].FeeType)
	}
}
