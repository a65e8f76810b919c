package inmemdb

import (
	"context"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/chaima229/fraisScolaire-backend-sub000/core"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/invoice"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/payment"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/school"
)

var (
	paymentKeys = map[string]func(payment.Payment) interface{}{
		"created_at":  func(p payment.Payment) interface{} { return p.CreatedAt },
		"montantPaye": func(p payment.Payment) interface{} { return p.Amount },
		"methode":     func(p payment.Payment) interface{} { return p.Method },
	}
	invoiceKeys = map[string]func(invoice.Invoice) interface{}{
		"created_at":    func(i invoice.Invoice) interface{} { return i.CreatedAt },
		"numero":        func(i invoice.Invoice) interface{} { return i.Number },
		"montantTotal":  func(i invoice.Invoice) interface{} { return i.Total },
		"date_emission": func(i invoice.Invoice) interface{} { return i.IssuedAt },
	}
)

// Payments

type PaymentRepository struct {
	db *DB
}

var (
	_ payment.Repository    = (*PaymentRepository)(nil)
	_ invoice.PaymentLinks  = (*PaymentRepository)(nil)
	_ school.StudentRecords = (*PaymentRepository)(nil)
)

func NewPaymentRepository(db *DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func clonePayment(p payment.Payment) payment.Payment {
	p.InvoiceIDs = cloneStrings(p.InvoiceIDs)
	return p
}

func (repo *PaymentRepository) CreatePayment(_ context.Context, p payment.Payment, _ ...core.DBExecutor) (payment.Payment, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	p = clonePayment(p)
	insert(repo.db, repo.db.payments, p.ID, p)
	return clonePayment(p), nil
}

func (repo *PaymentRepository) QueryPayments(_ context.Context, filter payment.QueryFilter, orderings ...core.DBOrdering) ([]payment.Payment, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	payments := selectRows(repo.db.payments, filter.Match, orderings, paymentKeys)
	return lo.Map(payments, func(p payment.Payment, _ int) payment.Payment { return clonePayment(p) }), nil
}

func (repo *PaymentRepository) GetPaymentByID(_ context.Context, id string) (payment.Payment, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	if r, ok := repo.db.payments[id]; ok {
		return clonePayment(r.val), nil
	}
	return payment.Payment{}, payment.ErrNotFound
}

func (repo *PaymentRepository) UpdatePayment(_ context.Context, p payment.Payment, _ ...core.DBExecutor) (payment.Payment, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	p = clonePayment(p)
	if !replace(repo.db.payments, p.ID, p) {
		return payment.Payment{}, payment.ErrNotFound
	}
	return clonePayment(p), nil
}

func (repo *PaymentRepository) DeletePayment(_ context.Context, id string, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	delete(repo.db.payments, id)
	return nil
}

func (repo *PaymentRepository) SumByStudent(_ context.Context, studentID, academicYear string, excludedIDs ...string) (decimal.Decimal, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	sum := decimal.Zero
	for id, r := range repo.db.payments {
		if r.val.StudentID == studentID && r.val.AcademicYear == academicYear && !lo.Contains(excludedIDs, id) {
			sum = sum.Add(r.val.Amount)
		}
	}
	return sum, nil
}

func (repo *PaymentRepository) CountByStudent(_ context.Context, studentID string) (int, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	count := 0
	for _, r := range repo.db.payments {
		if r.val.StudentID == studentID {
			count++
		}
	}
	return count, nil
}

func (repo *PaymentRepository) SumByInvoice(_ context.Context, invoiceID string) (decimal.Decimal, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	sum := decimal.Zero
	for _, r := range repo.db.payments {
		if lo.Contains(r.val.InvoiceIDs, invoiceID) {
			sum = sum.Add(r.val.Amount)
		}
	}
	return sum, nil
}

func (repo *PaymentRepository) RelinkInvoice(_ context.Context, fromID, toID string, _ ...core.DBExecutor) (int, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	count := 0
	for id, r := range repo.db.payments {
		if !lo.Contains(r.val.InvoiceIDs, fromID) {
			continue
		}
		ids := lo.Map(r.val.InvoiceIDs, func(s string, _ int) string {
			if s == fromID {
				return toID
			}
			return s
		})
		r.val.InvoiceIDs = lo.Uniq(ids)
		repo.db.payments[id] = r
		count++
	}
	return count, nil
}

// Invoices

type InvoiceRepository struct {
	db *DB
}

var (
	_ invoice.Repository    = (*InvoiceRepository)(nil)
	_ school.StudentRecords = (*InvoiceRepository)(nil)
)

func NewInvoiceRepository(db *DB) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

func cloneInvoice(inv invoice.Invoice) invoice.Invoice {
	inv.Lines = append([]invoice.LineItem{}, inv.Lines...)
	return inv
}

func (repo *InvoiceRepository) CreateInvoice(_ context.Context, inv invoice.Invoice, _ ...core.DBExecutor) (invoice.Invoice, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	inv = cloneInvoice(inv)
	insert(repo.db, repo.db.invoices, inv.ID, inv)
	return cloneInvoice(inv), nil
}

func (repo *InvoiceRepository) QueryInvoices(_ context.Context, filter invoice.QueryFilter, orderings ...core.DBOrdering) ([]invoice.Invoice, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	invoices := selectRows(repo.db.invoices, filter.Match, orderings, invoiceKeys)
	return lo.Map(invoices, func(inv invoice.Invoice, _ int) invoice.Invoice { return cloneInvoice(inv) }), nil
}

func (repo *InvoiceRepository) GetInvoiceByID(_ context.Context, id string) (invoice.Invoice, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	if r, ok := repo.db.invoices[id]; ok {
		return cloneInvoice(r.val), nil
	}
	return invoice.Invoice{}, invoice.ErrNotFound
}

func (repo *InvoiceRepository) GetInvoicesByIDs(_ context.Context, ids ...string) ([]invoice.Invoice, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	invoices := selectRows(repo.db.invoices, func(inv invoice.Invoice) bool { return lo.Contains(ids, inv.ID) }, nil, nil)
	return lo.Map(invoices, func(inv invoice.Invoice, _ int) invoice.Invoice { return cloneInvoice(inv) }), nil
}

func (repo *InvoiceRepository) NumberExists(_ context.Context, number string) (bool, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	for _, r := range repo.db.invoices {
		if r.val.Number == number {
			return true, nil
		}
	}
	return false, nil
}

func (repo *InvoiceRepository) UpdateInvoice(_ context.Context, inv invoice.Invoice, _ ...core.DBExecutor) (invoice.Invoice, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	inv = cloneInvoice(inv)
	if !replace(repo.db.invoices, inv.ID, inv) {
		return invoice.Invoice{}, invoice.ErrNotFound
	}
	return cloneInvoice(inv), nil
}

func (repo *InvoiceRepository) CountByStudent(_ context.Context, studentID string) (int, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	count := 0
	for _, r := range repo.db.invoices {
		if r.val.StudentID == studentID {
			count++
		}
	}
	return count, nil
}
