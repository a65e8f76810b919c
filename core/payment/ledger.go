package payment

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/chaima229/fraisScolaire-backend-sub000/core"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/audit"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/invoice"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/outbox"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/scholarship"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/school"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/tariff"
)

var (
	// errors
	ErrNotFound    = core.NewNotFoundError("payment")
	ErrPendingCase = core.NewConflictError("payment has a pending dispute or refund")
)

var nowFunc = time.Now // mockable

type (
	// CapResolver returns the undiscounted yearly fees of a student.
	CapResolver interface {
		ResolveCap(ctx context.Context, q tariff.CapQuery) (scholarship.FeeAmounts, error)
		Defaults() tariff.Defaults
	}

	// Invoicer keeps the invoices linked to payments up to date.
	Invoicer interface {
		GenerateAfterPayment(ctx context.Context, req invoice.GenerateRequest, actor core.Actor) (invoice.Invoice, error)
		Reconcile(ctx context.Context, actor core.Actor, ids ...string) error
		GetByIDs(ctx context.Context, ids ...string) ([]invoice.Invoice, error)
	}

	Deps struct {
		Repo           Repository
		Students       school.StudentRepository
		Scholarships   scholarship.Repository
		Tariffs        CapResolver
		Invoices       Invoicer
		Locker         core.Locker
		Tx             core.TxRunner
		Trail          *audit.Trail
		Logger         core.Logger
		YearStartMonth time.Month
	}

	// Due is what a student owes for an academic year, discounts and exemptions applied.
	Due struct {
		Tuition   decimal.Decimal `json:"scolarite"`
		OtherFees decimal.Decimal `json:"autres_frais"`
		Cap       decimal.Decimal `json:"total"`
	}
)

// Ledger records payments without ever letting a student pay more than is due.
type Ledger struct {
	repo         Repository
	students     school.StudentRepository
	scholarships scholarship.Repository
	tariffs      CapResolver
	invoices     Invoicer
	locker       core.Locker
	tx           core.TxRunner
	trail        *audit.Trail
	logger       core.Logger
	yearStart    time.Month
}

func NewLedger(deps Deps) *Ledger {
	yearStart := deps.YearStartMonth
	if yearStart == 0 {
		yearStart = time.September
	}
	return &Ledger{
		repo:         deps.Repo,
		students:     deps.Students,
		scholarships: deps.Scholarships,
		tariffs:      deps.Tariffs,
		invoices:     deps.Invoices,
		locker:       deps.Locker,
		tx:           deps.Tx,
		trail:        deps.Trail,
		logger:       deps.Logger,
		yearStart:    yearStart,
	}
}

func lockKey(studentID string) string {
	return "payment:student:" + studentID
}

// CurrentYear returns the academic year payments are recorded for.
func (l *Ledger) CurrentYear() string {
	return core.AcademicYear(nowFunc(), l.yearStart)
}

// DueFor computes what `s` owes for `academicYear`.
func (l *Ledger) DueFor(ctx context.Context, s school.Student, academicYear string) (Due, error) {
	fees, err := l.tariffs.ResolveCap(ctx, tariff.CapQuery{
		ClassID:       s.ClassID,
		AcademicYear:  academicYear,
		Nationality:   s.Nationality,
		ScholarshipID: s.ScholarshipID,
	})
	if err != nil {
		return Due{}, errors.Wrap(err, "resolving cap")
	}

	var sch *scholarship.Scholarship
	if s.ScholarshipID != "" {
		found, err := l.scholarships.GetScholarshipByID(ctx, s.ScholarshipID)
		switch {
		case err == nil:
			sch = &found
		case core.IsNotFound(err):
			l.logger.Warn("payment: scholarship "+s.ScholarshipID+" of student "+s.ID+" not found, no discount applied", err)
		default:
			return Due{}, errors.Wrap(err, "finding scholarship")
		}
	}

	labels := l.tariffs.Defaults()
	due := Due{
		Tuition:   scholarship.ApplyDiscount(fees.Tuition, sch),
		OtherFees: fees.OtherFees,
	}
	if s.IsExemptFrom(labels.TuitionType) {
		due.Tuition = decimal.Zero
	}
	if s.IsExemptFrom(labels.OtherFeesType) {
		due.OtherFees = decimal.Zero
	}
	due.Cap = due.Tuition.Add(due.OtherFees)
	return due, nil
}

func (l *Ledger) lines(due Due) []invoice.LineItem {
	labels := l.tariffs.Defaults()
	return []invoice.LineItem{
		{Label: labels.TuitionType, FeeType: labels.TuitionType, Amount: due.Tuition},
		{Label: labels.OtherFeesType, FeeType: labels.OtherFeesType, Amount: due.OtherFees},
	}
}

// checkInvoices makes sure every id names an invoice of the student.
func (l *Ledger) checkInvoices(ctx context.Context, studentID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	invoices, err := l.invoices.GetByIDs(ctx, ids...)
	if err != nil {
		return errors.Wrap(err, "finding invoices")
	}
	owned := lo.Filter(invoices, func(inv invoice.Invoice, _ int) bool { return inv.StudentID == studentID })
	if len(owned) != len(ids) {
		return core.NewValidationError(nil, core.FieldError{Field: "facture_ids", Error: "unknown invoice for this student"})
	}
	return nil
}

// Record validates and persists a new payment, then links it to an invoice.
func (l *Ledger) Record(ctx context.Context, np NewPayment, actor core.Actor) (Payment, error) {
	student, err := l.students.GetStudentByID(ctx, np.StudentID)
	if err != nil {
		return Payment{}, err
	}
	if err = l.checkInvoices(ctx, student.ID, np.InvoiceIDs); err != nil {
		return Payment{}, err
	}

	unlock, err := l.locker.Lock(ctx, lockKey(student.ID))
	if err != nil {
		return Payment{}, errors.Wrap(err, "locking student payments")
	}
	defer unlock()

	year := l.CurrentYear()
	due, err := l.DueFor(ctx, student, year)
	if err != nil {
		return Payment{}, err
	}
	alreadyPaid, err := l.repo.SumByStudent(ctx, student.ID, year)
	if err != nil {
		return Payment{}, errors.Wrap(err, "summing payments")
	}
	total := alreadyPaid.Add(np.Amount)
	if core.ExceedsWithTolerance(total, due.Cap) {
		return Payment{}, &CapExceededError{Cap: due.Cap, AlreadyPaid: alreadyPaid, Attempted: np.Amount}
	}

	now := nowFunc().UTC()
	invoiceIDs := np.InvoiceIDs
	if invoiceIDs == nil {
		invoiceIDs = []string{}
	}
	p := Payment{
		ID:            uuid.NewString(),
		StudentID:     student.ID,
		Amount:        np.Amount,
		Method:        np.Method,
		Payer:         np.Payer,
		RecordedBy:    actor.ID,
		AcademicYear:  year,
		InvoiceIDs:    invoiceIDs,
		ReceiptURL:    np.ReceiptURL,
		Details:       np.Details,
		Due:           due.Cap,
		Paid:          np.Amount,
		Remaining:     core.MaxZero(due.Cap.Sub(total)),
		DisputeStatus: CaseNone,
		RefundStatus:  CaseNone,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err = l.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		if p, err = l.repo.CreatePayment(ctx, p, exec); err != nil {
			return errors.Wrap(err, "creating payment")
		}
		return l.trail.Record(ctx, audit.Activity{
			Actor:      actor,
			Action:     audit.ActionCreate,
			EntityType: EntityType,
			EntityID:   p.ID,
			After:      p,
			Event:      outbox.PaymentCreated,
		}, exec)
	})
	if err != nil {
		return Payment{}, err
	}

	return l.linkInvoice(ctx, p, due, actor), nil
}

// linkInvoice attaches a generated invoice to `p` when it names none, then reconciles its invoices.
// Failures are logged: the payment stands.
func (l *Ledger) linkInvoice(ctx context.Context, p Payment, due Due, actor core.Actor) Payment {
	if len(p.InvoiceIDs) == 0 {
		inv, err := l.invoices.GenerateAfterPayment(ctx, invoice.GenerateRequest{
			StudentID:    p.StudentID,
			AcademicYear: p.AcademicYear,
			AmountPaid:   p.Amount,
			Method:       p.Method,
			Payer:        p.Payer,
			RecordedBy:   p.RecordedBy,
			Lines:        l.lines(due),
		}, actor)
		if err != nil {
			l.logger.Error("payment: generating invoice for payment "+p.ID, err, actor)
			return p
		}

		linked := p
		linked.InvoiceIDs = []string{inv.ID}
		if linked, err = l.repo.UpdatePayment(ctx, linked); err != nil {
			l.logger.Error("payment: linking invoice "+inv.ID+" to payment "+p.ID, err, actor)
			return p
		}
		p = linked
	}

	if err := l.invoices.Reconcile(ctx, actor, p.InvoiceIDs...); err != nil {
		l.logger.Error("payment: reconciling invoices of payment "+p.ID, err, actor)
	}
	return p
}

// Update changes a payment. A new amount goes through the same cap check as a new payment.
func (l *Ledger) Update(ctx context.Context, id string, up UpdatePayment, actor core.Actor) (Payment, error) {
	orig, err := l.repo.GetPaymentByID(ctx, id)
	if err != nil {
		return Payment{}, err
	}
	student, err := l.students.GetStudentByID(ctx, orig.StudentID)
	if err != nil {
		return Payment{}, errors.Wrap(err, "finding student")
	}
	if up.InvoiceIDs != nil {
		if err = l.checkInvoices(ctx, student.ID, up.InvoiceIDs); err != nil {
			return Payment{}, err
		}
	}

	unlock, orig, err := l.lockPayment(ctx, orig)
	if err != nil {
		return Payment{}, err
	}
	defer unlock()
	if orig.HasPendingCase() {
		return Payment{}, ErrPendingCase
	}

	p := orig
	if up.Method != "" {
		p.Method = up.Method
	}
	if up.Payer != nil {
		p.Payer = *up.Payer
	}
	if up.InvoiceIDs != nil {
		p.InvoiceIDs = up.InvoiceIDs
	}
	if up.ReceiptURL != nil {
		p.ReceiptURL = *up.ReceiptURL
	}
	if up.Details != nil {
		p.Details = *up.Details
	}
	if up.Amount != nil && !up.Amount.Equal(orig.Amount) {
		due, err := l.DueFor(ctx, student, orig.AcademicYear)
		if err != nil {
			return Payment{}, err
		}
		others, err := l.repo.SumByStudent(ctx, student.ID, orig.AcademicYear, orig.ID)
		if err != nil {
			return Payment{}, errors.Wrap(err, "summing payments")
		}
		total := others.Add(*up.Amount)
		if core.ExceedsWithTolerance(total, due.Cap) {
			return Payment{}, &CapExceededError{Cap: due.Cap, AlreadyPaid: others, Attempted: *up.Amount}
		}
		p.Amount = *up.Amount
		p.Due = due.Cap
		p.Paid = *up.Amount
		p.Remaining = core.MaxZero(due.Cap.Sub(total))
	}
	p.UpdatedAt = nowFunc().UTC()

	err = l.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		if p, err = l.repo.UpdatePayment(ctx, p, exec); err != nil {
			return errors.Wrap(err, "updating payment")
		}
		return l.trail.Record(ctx, audit.Activity{
			Actor:      actor,
			Action:     audit.ActionUpdate,
			EntityType: EntityType,
			EntityID:   p.ID,
			Before:     orig,
			After:      p,
			Event:      outbox.PaymentUpdated,
		}, exec)
	})
	if err != nil {
		return Payment{}, err
	}

	if err = l.invoices.Reconcile(ctx, actor, lo.Union(orig.InvoiceIDs, p.InvoiceIDs)...); err != nil {
		l.logger.Error("payment: reconciling invoices of payment "+p.ID, err, actor)
	}
	return p, nil
}

// Delete removes a payment for good and reconciles the invoices it was linked to.
func (l *Ledger) Delete(ctx context.Context, id string, actor core.Actor) error {
	p, err := l.repo.GetPaymentByID(ctx, id)
	if err != nil {
		return err
	}
	unlock, p, err := l.lockPayment(ctx, p)
	if err != nil {
		return err
	}
	defer unlock()
	if p.HasPendingCase() {
		return ErrPendingCase
	}

	err = l.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		if err := l.repo.DeletePayment(ctx, id, exec); err != nil {
			return errors.Wrap(err, "deleting payment")
		}
		return l.trail.Record(ctx, audit.Activity{
			Actor:      actor,
			Action:     audit.ActionDelete,
			EntityType: EntityType,
			EntityID:   id,
			Event:      outbox.PaymentDeleted,
			Payload:    p,
		}, exec)
	})
	if err != nil {
		return err
	}

	if err = l.invoices.Reconcile(ctx, actor, p.InvoiceIDs...); err != nil {
		l.logger.Error("payment: reconciling invoices of deleted payment "+id, err, actor)
	}
	return nil
}

// lockPayment takes the lock of the student of `p` and returns `p` as stored once the lock is held.
func (l *Ledger) lockPayment(ctx context.Context, p Payment) (func(), Payment, error) {
	unlock, err := l.locker.Lock(ctx, lockKey(p.StudentID))
	if err != nil {
		return nil, Payment{}, errors.Wrap(err, "locking student payments")
	}
	fresh, err := l.repo.GetPaymentByID(ctx, p.ID)
	if err != nil {
		unlock()
		return nil, Payment{}, err
	}
	return unlock, fresh, nil
}

// Balance returns what a student owes for the current academic year and what was paid so far.
func (l *Ledger) Balance(ctx context.Context, studentID string) (Balance, error) {
	student, err := l.students.GetStudentByID(ctx, studentID)
	if err != nil {
		return Balance{}, err
	}
	return l.BalanceOf(ctx, student)
}

func (l *Ledger) BalanceOf(ctx context.Context, student school.Student) (Balance, error) {
	year := l.CurrentYear()
	due, err := l.DueFor(ctx, student, year)
	if err != nil {
		return Balance{}, err
	}
	paid, err := l.repo.SumByStudent(ctx, student.ID, year)
	if err != nil {
		return Balance{}, errors.Wrap(err, "summing payments")
	}
	return Balance{
		StudentID:    student.ID,
		AcademicYear: year,
		Due:          due.Cap,
		Paid:         paid,
		Remaining:    core.MaxZero(due.Cap.Sub(paid)),
	}, nil
}

func (l *Ledger) Query(ctx context.Context, filter QueryFilter, orderings ...core.DBOrdering) ([]Payment, error) {
	return l.repo.QueryPayments(ctx, filter, core.FilterOrderings(orderings, OrderingFields...)...)
}

func (l *Ledger) GetByID(ctx context.Context, id string) (Payment, error) {
	return l.repo.GetPaymentByID(ctx, id)
}
