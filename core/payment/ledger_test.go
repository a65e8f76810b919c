package payment_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaima229/fraisScolaire-backend-sub000/core"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/audit"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/invoice"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/outbox"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/payment"
	locksvc "github.com/chaima229/fraisScolaire-backend-sub000/services/lock"
	"github.com/chaima229/fraisScolaire-backend-sub000/testutil"
)

func newPayment(studentID string, amount decimal.Decimal, invoiceIDs ...string) payment.NewPayment {
	return payment.NewPayment{
		StudentID:  studentID,
		Amount:     amount,
		Method:     payment.MethodTransfer,
		Payer:      "Jeanne",
		InvoiceIDs: invoiceIDs,
	}
}

func getInvoice(t *testing.T, env *testutil.Env, id string) invoice.Invoice {
	t.Helper()
	inv, err := env.Invoices.GetByID(env.Ctx(), id)
	require.NoError(t, err)
	return inv
}

func assertAmount(t *testing.T, want int64, got decimal.Decimal) {
	t.Helper()
	assert.True(t, testutil.Amount(want).Equal(got), "want %d, got %s", want, got)
}

func TestLedger_DueFor(t *testing.T) {
	env := testutil.NewEnv(t)
	class := testutil.CreateClass(t, env, "6e A")
	half := testutil.CreateScholarship(t, env, "Moitié", 50, 0, false)
	fixed := testutil.CreateScholarship(t, env, "Fixe", 0, 6000, false)
	exempt := testutil.CreateScholarship(t, env, "Exonération", 80, 1000, true)
	both := testutil.CreateScholarship(t, env, "Double", 10, 6000, false)

	tests := []struct {
		name    string
		opts    []testutil.StudentOption
		wantCap int64
	}{
		{name: "no scholarship", wantCap: 56800},
		{name: "percentage", opts: []testutil.StudentOption{testutil.WithScholarship(half.ID)}, wantCap: 28800},
		{name: "fixed amount", opts: []testutil.StudentOption{testutil.WithScholarship(fixed.ID)}, wantCap: 50800},
		{name: "exemption wins", opts: []testutil.StudentOption{testutil.WithScholarship(exempt.ID)}, wantCap: 800},
		{name: "percentage wins over fixed amount", opts: []testutil.StudentOption{testutil.WithScholarship(both.ID)}, wantCap: 51200},
		{name: "exempt from other fees", opts: []testutil.StudentOption{testutil.WithExemptions("Autres frais")}, wantCap: 56000},
		{name: "exempt from everything", opts: []testutil.StudentOption{testutil.WithExemptions("Autres frais", "Scolarité")}, wantCap: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := testutil.CreateStudent(t, env, class.ID, tt.name, tt.opts...)
			due, err := env.Ledger.DueFor(env.Ctx(), s, testutil.CurrentYear())
			require.NoError(t, err)
			assertAmount(t, tt.wantCap, due.Cap)
			assert.True(t, due.Tuition.Add(due.OtherFees).Equal(due.Cap))

			bal, err := env.Ledger.BalanceOf(env.Ctx(), s)
			require.NoError(t, err)
			assertAmount(t, tt.wantCap, bal.Remaining)
		})
	}
}

func TestLedger_Record(t *testing.T) {
	env := testutil.NewEnv(t)
	class := testutil.CreateClass(t, env, "6e A")
	student := testutil.CreateStudent(t, env, class.ID, "Mbemba")
	other := testutil.CreateStudent(t, env, class.ID, "Kouka")

	p1, err := env.Ledger.Record(env.Ctx(), newPayment(student.ID, testutil.Amount(10000)), testutil.Accountant)
	require.NoError(t, err)
	assert.Equal(t, testutil.Accountant.ID, p1.RecordedBy)
	assert.Equal(t, testutil.CurrentYear(), p1.AcademicYear)
	assert.Equal(t, payment.CaseNone, p1.DisputeStatus)
	assert.Equal(t, payment.CaseNone, p1.RefundStatus)
	assertAmount(t, 56800, p1.Due)
	assertAmount(t, 10000, p1.Paid)
	assertAmount(t, 46800, p1.Remaining)

	// an invoice is generated and reconciled
	require.Len(t, p1.InvoiceIDs, 1)
	inv := getInvoice(t, env, p1.InvoiceIDs[0])
	assert.Equal(t, invoice.StatusPartial, inv.Status)
	assertAmount(t, 56800, inv.Total)
	assertAmount(t, 10000, inv.Paid)
	assertAmount(t, 46800, inv.Remaining)

	stored, err := env.Ledger.GetByID(env.Ctx(), p1.ID)
	require.NoError(t, err)
	assert.Equal(t, p1.InvoiceIDs, stored.InvoiceIDs)

	// the open invoice is reused
	p2, err := env.Ledger.Record(env.Ctx(), newPayment(student.ID, testutil.Amount(46800)), testutil.Accountant)
	require.NoError(t, err)
	assert.Equal(t, p1.InvoiceIDs, p2.InvoiceIDs)
	assertAmount(t, 0, p2.Remaining)
	inv = getInvoice(t, env, p1.InvoiceIDs[0])
	assert.Equal(t, invoice.StatusPaid, inv.Status)

	t.Run("cap reached", func(t *testing.T) {
		_, err := env.Ledger.Record(env.Ctx(), newPayment(student.ID, decimal.RequireFromString("0.01")), testutil.Accountant)
		var capErr *payment.CapExceededError
		require.ErrorAs(t, err, &capErr)
		assertAmount(t, 56800, capErr.Cap)
		assertAmount(t, 56800, capErr.AlreadyPaid)
		assert.True(t, decimal.RequireFromString("0.01").Equal(capErr.Attempted))
		assert.True(t, capErr.Remaining().IsZero())
	})

	t.Run("unknown student", func(t *testing.T) {
		_, err := env.Ledger.Record(env.Ctx(), newPayment("nope", testutil.Amount(1)), testutil.Accountant)
		assert.True(t, core.IsNotFound(err))
	})

	t.Run("invoice of another student", func(t *testing.T) {
		_, err := env.Ledger.Record(env.Ctx(), newPayment(other.ID, testutil.Amount(1), p1.InvoiceIDs[0]), testutil.Accountant)
		var verr *core.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "facture_ids", verr.Fields[0].Field)
	})

	entries, err := env.Trail.Query(env.Ctx(), audit.QueryFilter{EntityType: payment.EntityType, Action: audit.ActionCreate})
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestLedger_Record_tolerance(t *testing.T) {
	env := testutil.NewEnv(t)
	class := testutil.CreateClass(t, env, "6e A")
	student := testutil.CreateStudent(t, env, class.ID, "Mbemba")

	_, err := env.Ledger.Record(env.Ctx(), newPayment(student.ID, decimal.RequireFromString("56800.0000009")), testutil.Accountant)
	require.NoError(t, err, "rounding noise below epsilon is accepted")

	_, err = env.Ledger.Record(env.Ctx(), newPayment(student.ID, decimal.RequireFromString("0.000001")), testutil.Accountant)
	var capErr *payment.CapExceededError
	assert.ErrorAs(t, err, &capErr)
}

func TestLedger_Record_concurrent(t *testing.T) {
	env := testutil.NewEnv(t)
	class := testutil.CreateClass(t, env, "6e A")
	student := testutil.CreateStudent(t, env, class.ID, "Mbemba")

	const attempts = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.Ledger.Record(context.Background(), newPayment(student.ID, testutil.Amount(10000)), testutil.Accountant)
			mu.Lock()
			defer mu.Unlock()
			var capErr *payment.CapExceededError
			switch {
			case err == nil:
				succeeded++
			case errors.As(err, &capErr):
				rejected++
			default:
				t.Errorf("Record() unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, succeeded)
	assert.Equal(t, 5, rejected)

	bal, err := env.Ledger.Balance(env.Ctx(), student.ID)
	require.NoError(t, err)
	assertAmount(t, 50000, bal.Paid)
	assertAmount(t, 6800, bal.Remaining)

	invoices, err := env.Invoices.Query(env.Ctx(), invoice.QueryFilter{StudentID: student.ID})
	require.NoError(t, err)
	assert.Len(t, invoices, 1, "a single invoice is generated for the student")
}

type failingLocker struct{}

func (failingLocker) Lock(context.Context, string) (func(), error) {
	return nil, core.ErrLockTimeout
}

// brokenInvoicer cannot generate invoices.
type brokenInvoicer struct {
	payment.Invoicer
}

func (brokenInvoicer) GenerateAfterPayment(context.Context, invoice.GenerateRequest, core.Actor) (invoice.Invoice, error) {
	return invoice.Invoice{}, errors.New("numbering service down")
}

func ledgerWith(env *testutil.Env, locker core.Locker, invoicer payment.Invoicer) *payment.Ledger {
	return payment.NewLedger(payment.Deps{
		Repo:         env.Store.Payments,
		Students:     env.Store.Students,
		Scholarships: env.Store.Scholarships,
		Tariffs:      env.Tariffs,
		Invoices:     invoicer,
		Locker:       locker,
		Tx:           env.Store.Tx,
		Trail:        env.Trail,
		Logger:       env.Logger,
	})
}

func TestLedger_Record_lockTimeout(t *testing.T) {
	env := testutil.NewEnv(t)
	class := testutil.CreateClass(t, env, "6e A")
	student := testutil.CreateStudent(t, env, class.ID, "Mbemba")

	_, err := ledgerWith(env, failingLocker{}, env.Invoices).Record(env.Ctx(), newPayment(student.ID, testutil.Amount(100)), testutil.Accountant)
	assert.Equal(t, core.ErrLockTimeout, pkgerrors.Cause(err))

	payments, err := env.Ledger.Query(env.Ctx(), payment.QueryFilter{StudentID: student.ID})
	require.NoError(t, err)
	assert.Empty(t, payments)
}

func TestLedger_Record_invoiceFailureKeepsPayment(t *testing.T) {
	env := testutil.NewEnv(t)
	class := testutil.CreateClass(t, env, "6e A")
	student := testutil.CreateStudent(t, env, class.ID, "Mbemba")

	ledger := ledgerWith(env, locksvc.NewMemoryLocker(env.Conf.Redis.LockWait), brokenInvoicer{Invoicer: env.Invoices})
	p, err := ledger.Record(env.Ctx(), newPayment(student.ID, testutil.Amount(100)), testutil.Accountant)
	require.NoError(t, err)
	assert.Empty(t, p.InvoiceIDs)

	stored, err := env.Ledger.GetByID(env.Ctx(), p.ID)
	require.NoError(t, err)
	assertAmount(t, 100, stored.Amount)
}

func TestLedger_Record_newAcademicYear(t *testing.T) {
	env := testutil.NewEnv(t)
	class := testutil.CreateClass(t, env, "6e A")
	student := testutil.CreateStudent(t, env, class.ID, "Mbemba")

	restore := payment.SetNow(time.Date(2025, time.October, 1, 9, 0, 0, 0, time.UTC))
	defer restore()
	last := testutil.RecordPayment(t, env, student.ID, 56800)
	assert.Equal(t, "2025-2026", last.AcademicYear)

	_, err := env.Ledger.Record(env.Ctx(), newPayment(student.ID, testutil.Amount(1)), testutil.Accountant)
	var capErr *payment.CapExceededError
	require.ErrorAs(t, err, &capErr)

	payment.SetNow(time.Date(2026, time.September, 2, 9, 0, 0, 0, time.UTC))

	bal, err := env.Ledger.Balance(env.Ctx(), student.ID)
	require.NoError(t, err)
	assert.Equal(t, "2026-2027", bal.AcademicYear)
	assertAmount(t, 0, bal.Paid)
	assertAmount(t, 56800, bal.Remaining)

	p, err := env.Ledger.Record(env.Ctx(), newPayment(student.ID, testutil.Amount(1000)), testutil.Accountant)
	require.NoError(t, err)
	assert.Equal(t, "2026-2027", p.AcademicYear)
	assertAmount(t, 55800, p.Remaining)

	// last year's payment is still checked against last year's payments only
	amount := testutil.Amount(56000)
	updated, err := env.Ledger.Update(env.Ctx(), last.ID, payment.UpdatePayment{Amount: &amount}, testutil.Accountant)
	require.NoError(t, err)
	assertAmount(t, 800, updated.Remaining)
}

// interleavingLocker runs `before` once, right before the lock is taken.
type interleavingLocker struct {
	core.Locker
	before func()
}

func (l *interleavingLocker) Lock(ctx context.Context, key string) (func(), error) {
	if before := l.before; before != nil {
		l.before = nil
		before()
	}
	return l.Locker.Lock(ctx, key)
}

func TestLedger_caseOpenedWhileWaitingForLock(t *testing.T) {
	env := testutil.NewEnv(t)
	class := testutil.CreateClass(t, env, "6e A")
	student := testutil.CreateStudent(t, env, class.ID, "Mbemba")
	p := testutil.RecordPayment(t, env, student.ID, 10000)

	locker := &interleavingLocker{Locker: locksvc.NewMemoryLocker(env.Conf.Redis.LockWait)}
	ledger := ledgerWith(env, locker, env.Invoices)

	t.Run("update", func(t *testing.T) {
		locker.before = func() {
			_, err := env.Ledger.OpenDispute(env.Ctx(), p.ID, payment.OpenCase{Reason: "double débit"}, testutil.Accountant)
			require.NoError(t, err)
		}
		payer := "Paul"
		_, err := ledger.Update(env.Ctx(), p.ID, payment.UpdatePayment{Payer: &payer}, testutil.Accountant)
		assert.Equal(t, payment.ErrPendingCase, err)

		stored, err := env.Ledger.GetByID(env.Ctx(), p.ID)
		require.NoError(t, err)
		assert.Equal(t, payment.CasePending, stored.DisputeStatus)
		assert.Equal(t, "Parent", stored.Payer)
	})

	t.Run("delete", func(t *testing.T) {
		locker.before = func() {
			_, err := env.Ledger.RequestRefund(env.Ctx(), p.ID, payment.OpenCase{Reason: "départ"}, testutil.Accountant)
			require.NoError(t, err)
		}
		_, err := env.Ledger.ResolveDispute(env.Ctx(), p.ID, payment.CloseCase{Decision: payment.CaseRejected}, testutil.Accountant)
		require.NoError(t, err)

		assert.Equal(t, payment.ErrPendingCase, ledger.Delete(env.Ctx(), p.ID, testutil.Accountant))
		stored, err := env.Ledger.GetByID(env.Ctx(), p.ID)
		require.NoError(t, err)
		assert.Equal(t, payment.CasePending, stored.RefundStatus)
	})
}

func TestLedger_Update(t *testing.T) {
	env := testutil.NewEnv(t)
	class := testutil.CreateClass(t, env, "6e A")
	student := testutil.CreateStudent(t, env, class.ID, "Mbemba")
	p1 := testutil.RecordPayment(t, env, student.ID, 10000)
	testutil.RecordPayment(t, env, student.ID, 46800)
	invoiceID := p1.InvoiceIDs[0]

	t.Run("over the cap", func(t *testing.T) {
		amount := testutil.Amount(10001)
		_, err := env.Ledger.Update(env.Ctx(), p1.ID, payment.UpdatePayment{Amount: &amount}, testutil.Accountant)
		var capErr *payment.CapExceededError
		require.ErrorAs(t, err, &capErr)
		// the payment itself is left out
		assertAmount(t, 46800, capErr.AlreadyPaid)
	})

	amount := testutil.Amount(5000)
	payer := "Paul"
	updated, err := env.Ledger.Update(env.Ctx(), p1.ID, payment.UpdatePayment{Amount: &amount, Payer: &payer, Method: payment.MethodCheque}, testutil.Accountant)
	require.NoError(t, err)
	assertAmount(t, 5000, updated.Amount)
	assertAmount(t, 5000, updated.Paid)
	assertAmount(t, 5000, updated.Remaining)
	assert.Equal(t, "Paul", updated.Payer)
	assert.Equal(t, payment.MethodCheque, updated.Method)

	inv := getInvoice(t, env, invoiceID)
	assert.Equal(t, invoice.StatusPartial, inv.Status)
	assertAmount(t, 51800, inv.Paid)

	entries, err := env.Trail.Query(env.Ctx(), audit.QueryFilter{EntityID: p1.ID, Action: audit.ActionUpdate})
	require.NoError(t, err)
	if assert.Len(t, entries, 1) {
		assert.Contains(t, string(entries[0].Details), "diff")
	}

	_, err = env.Ledger.Update(env.Ctx(), "nope", payment.UpdatePayment{}, testutil.Accountant)
	assert.Equal(t, payment.ErrNotFound, err)
}

func TestLedger_Delete(t *testing.T) {
	env := testutil.NewEnv(t)
	class := testutil.CreateClass(t, env, "6e A")
	student := testutil.CreateStudent(t, env, class.ID, "Mbemba")
	p1 := testutil.RecordPayment(t, env, student.ID, 56800)
	invoiceID := p1.InvoiceIDs[0]
	assert.Equal(t, invoice.StatusPaid, getInvoice(t, env, invoiceID).Status)

	require.NoError(t, env.Ledger.Delete(env.Ctx(), p1.ID, testutil.Accountant))

	_, err := env.Ledger.GetByID(env.Ctx(), p1.ID)
	assert.Equal(t, payment.ErrNotFound, err)
	inv := getInvoice(t, env, invoiceID)
	assert.Equal(t, invoice.StatusUnpaid, inv.Status)
	assertAmount(t, 56800, inv.Remaining)

	events, err := env.Store.Outbox.Query(env.Ctx(), outbox.StatusPending)
	require.NoError(t, err)
	var deleted int
	for _, evt := range events {
		if evt.Type == outbox.PaymentDeleted && evt.EntityID == p1.ID {
			deleted++
		}
	}
	assert.Equal(t, 1, deleted)

	assert.Equal(t, payment.ErrNotFound, env.Ledger.Delete(env.Ctx(), p1.ID, testutil.Accountant))
}

func TestLedger_cases(t *testing.T) {
	env := testutil.NewEnv(t)
	class := testutil.CreateClass(t, env, "6e A")
	student := testutil.CreateStudent(t, env, class.ID, "Mbemba")
	p := testutil.RecordPayment(t, env, student.ID, 10000)
	ctx := env.Ctx()
	actor := testutil.Accountant

	assertTransitionErr := func(t *testing.T, err error, kind, from, to string) {
		t.Helper()
		var terr *payment.TransitionError
		if assert.ErrorAs(t, err, &terr) {
			assert.Equal(t, payment.TransitionError{Case: kind, From: from, To: to}, *terr)
		}
	}

	_, err := env.Ledger.ResolveDispute(ctx, p.ID, payment.CloseCase{Decision: payment.CaseResolved}, actor)
	assertTransitionErr(t, err, "dispute", payment.CaseNone, payment.CaseResolved)

	disputed, err := env.Ledger.OpenDispute(ctx, p.ID, payment.OpenCase{Reason: "double débit"}, actor)
	require.NoError(t, err)
	assert.Equal(t, payment.CasePending, disputed.DisputeStatus)
	assert.Equal(t, "double débit", disputed.DisputeReason)

	_, err = env.Ledger.OpenDispute(ctx, p.ID, payment.OpenCase{Reason: "again"}, actor)
	assertTransitionErr(t, err, "dispute", payment.CasePending, payment.CasePending)

	// no change while a case is pending
	amount := testutil.Amount(1)
	_, err = env.Ledger.Update(ctx, p.ID, payment.UpdatePayment{Amount: &amount}, actor)
	assert.Equal(t, payment.ErrPendingCase, err)
	assert.Equal(t, payment.ErrPendingCase, env.Ledger.Delete(ctx, p.ID, actor))

	// refunds are independent from disputes
	refund, err := env.Ledger.RequestRefund(ctx, p.ID, payment.OpenCase{Reason: "départ"}, actor)
	require.NoError(t, err)
	assert.Equal(t, payment.CasePending, refund.RefundStatus)
	assert.Equal(t, payment.CasePending, refund.DisputeStatus)

	closed, err := env.Ledger.ResolveDispute(ctx, p.ID, payment.CloseCase{Decision: payment.CaseRejected, Note: "justifié"}, actor)
	require.NoError(t, err)
	assert.Equal(t, payment.CaseRejected, closed.DisputeStatus)
	assert.Equal(t, "double débit", closed.DisputeReason, "the reason is kept once closed")

	_, err = env.Ledger.ResolveDispute(ctx, p.ID, payment.CloseCase{Decision: payment.CaseResolved}, actor)
	assertTransitionErr(t, err, "dispute", payment.CaseRejected, payment.CaseResolved)

	refunded, err := env.Ledger.ResolveRefund(ctx, p.ID, payment.CloseCase{Decision: payment.CaseResolved}, actor)
	require.NoError(t, err)
	assert.Equal(t, payment.CaseResolved, refunded.RefundStatus)
	assertAmount(t, 10000, refunded.Amount)

	_, err = env.Ledger.RequestRefund(ctx, p.ID, payment.OpenCase{Reason: "encore"}, actor)
	assertTransitionErr(t, err, "refund", payment.CaseResolved, payment.CasePending)

	// settled cases no longer block changes
	require.NoError(t, env.Ledger.Delete(ctx, p.ID, actor))

	disputes, err := env.Trail.Query(ctx, audit.QueryFilter{EntityID: p.ID, Action: audit.ActionDispute})
	require.NoError(t, err)
	assert.Len(t, disputes, 2)
	refunds, err := env.Trail.Query(ctx, audit.QueryFilter{EntityID: p.ID, Action: audit.ActionRefund})
	require.NoError(t, err)
	assert.Len(t, refunds, 2)

	_, err = env.Ledger.OpenDispute(ctx, "nope", payment.OpenCase{Reason: "x"}, actor)
	assert.Equal(t, payment.ErrNotFound, err)
}
