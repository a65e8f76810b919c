package sqlxrepos

import (
	"context"
	"encoding/json"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/chaima229/fraisScolaire-backend-sub000/core"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/invoice"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/payment"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/school"
)

// Payments

var paymentColumns = []string{
	"id", "etudiant_id", "montant_paye", "methode", "payeur", "enregistre_par", "annee_scolaire", "facture_ids",
	"justificatif_url", "details", "montant_du", "montant_payee", "montant_restant",
	"statut_litige", "motif_litige", "statut_remboursement", "motif_remboursement", "created_at", "updated_at",
}

type paymentRow struct {
	ID            string          `db:"id"`
	StudentID     string          `db:"etudiant_id"`
	Amount        decimal.Decimal `db:"montant_paye"`
	Method        string          `db:"methode"`
	Payer         string          `db:"payeur"`
	RecordedBy    string          `db:"enregistre_par"`
	AcademicYear  string          `db:"annee_scolaire"`
	InvoiceIDs    pq.StringArray  `db:"facture_ids"`
	ReceiptURL    string          `db:"justificatif_url"`
	Details       string          `db:"details"`
	Due           decimal.Decimal `db:"montant_du"`
	Paid          decimal.Decimal `db:"montant_payee"`
	Remaining     decimal.Decimal `db:"montant_restant"`
	DisputeStatus string          `db:"statut_litige"`
	DisputeReason string          `db:"motif_litige"`
	RefundStatus  string          `db:"statut_remboursement"`
	RefundReason  string          `db:"motif_remboursement"`
	CreatedAt     time.Time       `db:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at"`
}

func (row paymentRow) payment() payment.Payment {
	return payment.Payment{
		ID:            row.ID,
		StudentID:     row.StudentID,
		Amount:        row.Amount,
		Method:        row.Method,
		Payer:         row.Payer,
		RecordedBy:    row.RecordedBy,
		AcademicYear:  row.AcademicYear,
		InvoiceIDs:    append([]string{}, row.InvoiceIDs...),
		ReceiptURL:    row.ReceiptURL,
		Details:       row.Details,
		Due:           row.Due,
		Paid:          row.Paid,
		Remaining:     row.Remaining,
		DisputeStatus: row.DisputeStatus,
		DisputeReason: row.DisputeReason,
		RefundStatus:  row.RefundStatus,
		RefundReason:  row.RefundReason,
		CreatedAt:     row.CreatedAt,
		UpdatedAt:     row.UpdatedAt,
	}
}

func newPaymentRow(p payment.Payment) paymentRow {
	return paymentRow{
		ID:            p.ID,
		StudentID:     p.StudentID,
		Amount:        p.Amount,
		Method:        p.Method,
		Payer:         p.Payer,
		RecordedBy:    p.RecordedBy,
		AcademicYear:  p.AcademicYear,
		InvoiceIDs:    append(pq.StringArray{}, p.InvoiceIDs...),
		ReceiptURL:    p.ReceiptURL,
		Details:       p.Details,
		Due:           p.Due,
		Paid:          p.Paid,
		Remaining:     p.Remaining,
		DisputeStatus: p.DisputeStatus,
		DisputeReason: p.DisputeReason,
		RefundStatus:  p.RefundStatus,
		RefundReason:  p.RefundReason,
		CreatedAt:     p.CreatedAt.UTC(),
		UpdatedAt:     p.UpdatedAt.UTC(),
	}
}

type PaymentRepository struct {
	repo
}

var (
	_ payment.Repository    = (*PaymentRepository)(nil)
	_ invoice.PaymentLinks  = (*PaymentRepository)(nil)
	_ school.StudentRecords = (*PaymentRepository)(nil)
)

func NewPaymentRepository(exec core.DBExecutor) *PaymentRepository {
	return &PaymentRepository{repo{exec: exec}}
}

func (r *PaymentRepository) CreatePayment(ctx context.Context, p payment.Payment, exec ...core.DBExecutor) (payment.Payment, error) {
	if err := insertRow(ctx, r.getExec(exec), "payments", paymentColumns, newPaymentRow(p)); err != nil {
		return payment.Payment{}, errors.Wrap(err, "inserting payment")
	}
	return p, nil
}

func (r *PaymentRepository) QueryPayments(ctx context.Context, filter payment.QueryFilter, orderings ...core.DBOrdering) ([]payment.Payment, error) {
	b := psql.Select(paymentColumns...).From("payments")
	if filter.StudentID != "" {
		b = b.Where(eqID("etudiant_id", filter.StudentID))
	}
	if filter.InvoiceID != "" {
		b = b.Where("? = ANY(facture_ids)", filter.InvoiceID)
	}
	if filter.Method != "" {
		b = b.Where(sq.Eq{"methode": filter.Method})
	}
	if filter.AcademicYear != "" {
		b = b.Where(sq.Eq{"annee_scolaire": filter.AcademicYear})
	}
	if filter.DisputeStatus != "" {
		b = b.Where(sq.Eq{"statut_litige": filter.DisputeStatus})
	}
	if filter.RefundStatus != "" {
		b = b.Where(sq.Eq{"statut_remboursement": filter.RefundStatus})
	}
	b = orderBy(b, orderings, map[string]string{
		"created_at":  "created_at",
		"montantPaye": "montant_paye",
		"methode":     "methode",
	}, "created_at ASC")

	var rows []paymentRow
	if err := r.selectAll(ctx, r.exec, &rows, b); err != nil {
		return nil, errors.Wrap(err, "querying payments")
	}
	payments := make([]payment.Payment, 0, len(rows))
	for _, row := range rows {
		payments = append(payments, row.payment())
	}
	return payments, nil
}

func (r *PaymentRepository) GetPaymentByID(ctx context.Context, id string) (payment.Payment, error) {
	if !validID(id) {
		return payment.Payment{}, payment.ErrNotFound
	}
	var row paymentRow
	if err := r.get(ctx, r.exec, &row, psql.Select(paymentColumns...).From("payments").Where(sq.Eq{"id": id})); err != nil {
		return payment.Payment{}, trapNoRows(err, payment.ErrNotFound, "getting payment")
	}
	return row.payment(), nil
}

func (r *PaymentRepository) UpdatePayment(ctx context.Context, p payment.Payment, exec ...core.DBExecutor) (payment.Payment, error) {
	found, err := updateRow(ctx, r.getExec(exec), "payments", paymentColumns, newPaymentRow(p))
	if err != nil {
		return payment.Payment{}, errors.Wrap(err, "updating payment")
	}
	if !found {
		return payment.Payment{}, payment.ErrNotFound
	}
	return p, nil
}

func (r *PaymentRepository) DeletePayment(ctx context.Context, id string, exec ...core.DBExecutor) error {
	_, err := r.run(ctx, r.getExec(exec), psql.Delete("payments").Where(sq.Eq{"id": id}))
	return errors.Wrap(err, "deleting payment")
}

func (r *PaymentRepository) SumByStudent(ctx context.Context, studentID, academicYear string, excludedIDs ...string) (decimal.Decimal, error) {
	var sum decimal.Decimal
	b := psql.Select("COALESCE(SUM(montant_paye), 0)").From("payments").
		Where(eqID("etudiant_id", studentID)).
		Where(sq.Eq{"annee_scolaire": academicYear})
	if excluded := validIDs(excludedIDs); len(excluded) > 0 {
		b = b.Where(sq.NotEq{"id": excluded})
	}
	err := r.get(ctx, r.exec, &sum, b)
	return sum, errors.Wrap(err, "summing student payments")
}

func (r *PaymentRepository) CountByStudent(ctx context.Context, studentID string) (int, error) {
	n, err := r.count(ctx, psql.Select("COUNT(*)").From("payments").Where(eqID("etudiant_id", studentID)))
	return n, errors.Wrap(err, "counting student payments")
}

func (r *PaymentRepository) SumByInvoice(ctx context.Context, invoiceID string) (decimal.Decimal, error) {
	var sum decimal.Decimal
	b := psql.Select("COALESCE(SUM(montant_paye), 0)").From("payments").Where("? = ANY(facture_ids)", invoiceID)
	err := r.get(ctx, r.exec, &sum, b)
	return sum, errors.Wrap(err, "summing invoice payments")
}

func (r *PaymentRepository) RelinkInvoice(ctx context.Context, fromID, toID string, exec ...core.DBExecutor) (int, error) {
	n, err := r.run(ctx, r.getExec(exec), psql.Update("payments").
		Set("facture_ids", sq.Expr("array_replace(facture_ids, ?, ?)", fromID, toID)).
		Set("updated_at", time.Now().UTC()).
		Where("? = ANY(facture_ids)", fromID))
	return n, errors.Wrap(err, "relinking payments")
}

// Invoices

var invoiceColumns = []string{
	"id", "numero", "etudiant_id", "type", "facture_originale_id", "montant_total", "montant_paye", "montant_restant",
	"statut", "lignes", "annee_scolaire", "brouillon", "annulee", "date_emission", "created_at", "updated_at",
}

type invoiceRow struct {
	ID           string          `db:"id"`
	Number       string          `db:"numero"`
	StudentID    string          `db:"etudiant_id"`
	Kind         string          `db:"type"`
	OriginalID   null.String     `db:"facture_originale_id"`
	Total        decimal.Decimal `db:"montant_total"`
	Paid         decimal.Decimal `db:"montant_paye"`
	Remaining    decimal.Decimal `db:"montant_restant"`
	Status       string          `db:"statut"`
	Lines        string          `db:"lignes"` // JSONB
	AcademicYear string          `db:"annee_scolaire"`
	Draft        bool            `db:"brouillon"`
	Cancelled    bool            `db:"annulee"`
	IssuedAt     null.Time       `db:"date_emission"`
	CreatedAt    time.Time       `db:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at"`
}

func (row invoiceRow) invoice() (invoice.Invoice, error) {
	lines := make([]invoice.LineItem, 0)
	if err := json.Unmarshal([]byte(row.Lines), &lines); err != nil {
		return invoice.Invoice{}, errors.Wrap(err, "decoding invoice lines")
	}
	return invoice.Invoice{
		ID:           row.ID,
		Number:       row.Number,
		StudentID:    row.StudentID,
		Kind:         row.Kind,
		OriginalID:   row.OriginalID.String,
		Total:        row.Total,
		Paid:         row.Paid,
		Remaining:    row.Remaining,
		Status:       row.Status,
		Lines:        lines,
		AcademicYear: row.AcademicYear,
		Draft:        row.Draft,
		Cancelled:    row.Cancelled,
		IssuedAt:     row.IssuedAt.Ptr(),
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
	}, nil
}

func newInvoiceRow(inv invoice.Invoice) (invoiceRow, error) {
	lines := inv.Lines
	if lines == nil {
		lines = []invoice.LineItem{}
	}
	b, err := json.Marshal(lines)
	if err != nil {
		return invoiceRow{}, errors.Wrap(err, "encoding invoice lines")
	}
	return invoiceRow{
		ID:           inv.ID,
		Number:       inv.Number,
		StudentID:    inv.StudentID,
		Kind:         inv.Kind,
		OriginalID:   nullString(inv.OriginalID),
		Total:        inv.Total,
		Paid:         inv.Paid,
		Remaining:    inv.Remaining,
		Status:       inv.Status,
		Lines:        string(b),
		AcademicYear: inv.AcademicYear,
		Draft:        inv.Draft,
		Cancelled:    inv.Cancelled,
		IssuedAt:     nullTime(inv.IssuedAt),
		CreatedAt:    inv.CreatedAt.UTC(),
		UpdatedAt:    inv.UpdatedAt.UTC(),
	}, nil
}

func invoicesOf(rows []invoiceRow) ([]invoice.Invoice, error) {
	invoices := make([]invoice.Invoice, 0, len(rows))
	for _, row := range rows {
		inv, err := row.invoice()
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, nil
}

type InvoiceRepository struct {
	repo
}

var (
	_ invoice.Repository    = (*InvoiceRepository)(nil)
	_ school.StudentRecords = (*InvoiceRepository)(nil)
)

func NewInvoiceRepository(exec core.DBExecutor) *InvoiceRepository {
	return &InvoiceRepository{repo{exec: exec}}
}

func (r *InvoiceRepository) CreateInvoice(ctx context.Context, inv invoice.Invoice, exec ...core.DBExecutor) (invoice.Invoice, error) {
	row, err := newInvoiceRow(inv)
	if err != nil {
		return invoice.Invoice{}, err
	}
	if err = insertRow(ctx, r.getExec(exec), "invoices", invoiceColumns, row); err != nil {
		return invoice.Invoice{}, errors.Wrap(err, "inserting invoice")
	}
	return inv, nil
}

func (r *InvoiceRepository) QueryInvoices(ctx context.Context, filter invoice.QueryFilter, orderings ...core.DBOrdering) ([]invoice.Invoice, error) {
	b := psql.Select(invoiceColumns...).From("invoices")
	if filter.StudentID != "" {
		b = b.Where(eqID("etudiant_id", filter.StudentID))
	}
	if filter.Status != "" {
		b = b.Where(sq.Eq{"statut": filter.Status})
	}
	if filter.AcademicYear != "" {
		b = b.Where(sq.Eq{"annee_scolaire": filter.AcademicYear})
	}
	if filter.Kind != "" {
		b = b.Where(sq.Eq{"type": filter.Kind})
	}
	b = orderBy(b, orderings, map[string]string{
		"created_at":    "created_at",
		"numero":        "numero",
		"montantTotal":  "montant_total",
		"date_emission": "date_emission",
	}, "created_at ASC")

	var rows []invoiceRow
	if err := r.selectAll(ctx, r.exec, &rows, b); err != nil {
		return nil, errors.Wrap(err, "querying invoices")
	}
	return invoicesOf(rows)
}

func (r *InvoiceRepository) GetInvoiceByID(ctx context.Context, id string) (invoice.Invoice, error) {
	if !validID(id) {
		return invoice.Invoice{}, invoice.ErrNotFound
	}
	var row invoiceRow
	if err := r.get(ctx, r.exec, &row, psql.Select(invoiceColumns...).From("invoices").Where(sq.Eq{"id": id})); err != nil {
		return invoice.Invoice{}, trapNoRows(err, invoice.ErrNotFound, "getting invoice")
	}
	return row.invoice()
}

func (r *InvoiceRepository) GetInvoicesByIDs(ctx context.Context, ids ...string) ([]invoice.Invoice, error) {
	ids = validIDs(ids)
	if len(ids) == 0 {
		return []invoice.Invoice{}, nil
	}
	var rows []invoiceRow
	b := psql.Select(invoiceColumns...).From("invoices").Where(sq.Eq{"id": ids}).OrderBy("created_at ASC")
	if err := r.selectAll(ctx, r.exec, &rows, b); err != nil {
		return nil, errors.Wrap(err, "getting invoices")
	}
	return invoicesOf(rows)
}

func (r *InvoiceRepository) NumberExists(ctx context.Context, number string) (bool, error) {
	exists, err := r.exists(ctx, psql.Select("1").From("invoices").Where(sq.Eq{"numero": number}))
	return exists, errors.Wrap(err, "checking invoice number")
}

func (r *InvoiceRepository) UpdateInvoice(ctx context.Context, inv invoice.Invoice, exec ...core.DBExecutor) (invoice.Invoice, error) {
	row, err := newInvoiceRow(inv)
	if err != nil {
		return invoice.Invoice{}, err
	}
	found, err := updateRow(ctx, r.getExec(exec), "invoices", invoiceColumns, row)
	if err != nil {
		return invoice.Invoice{}, errors.Wrap(err, "updating invoice")
	}
	if !found {
		return invoice.Invoice{}, invoice.ErrNotFound
	}
	return inv, nil
}

func (r *InvoiceRepository) CountByStudent(ctx context.Context, studentID string) (int, error) {
	n, err := r.count(ctx, psql.Select("COUNT(*)").From("invoices").Where(eqID("etudiant_id", studentID)))
	return n, errors.Wrap(err, "counting student invoices")
}
