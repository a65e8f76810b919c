package invoice

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/chaima229/fraisScolaire-backend-sub000/core"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/audit"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/outbox"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/school"
)

var (
	// errors
	ErrNotFound     = core.NewNotFoundError("invoice")
	ErrNumberExists = core.NewConflictError("an invoice with this number already exists")
	ErrNotDraft     = core.NewConflictError("invoice is not a draft")
	ErrCancelled    = core.NewConflictError("invoice is cancelled")
)

var nowFunc = time.Now // mockable

type Service struct {
	repo     Repository
	payments PaymentLinks
	students school.StudentRepository
	tx       core.TxRunner
	trail    *audit.Trail
	numbers  *snowflake.Node
}

func NewService(
	repo Repository,
	payments PaymentLinks,
	students school.StudentRepository,
	tx core.TxRunner,
	trail *audit.Trail,
	numbers *snowflake.Node,
) *Service {
	return &Service{
		repo:     repo,
		payments: payments,
		students: students,
		tx:       tx,
		trail:    trail,
		numbers:  numbers,
	}
}

// NewNumberNode returns the snowflake node invoice numbers are drawn from.
// Every running instance needs its own node id.
func NewNumberNode(nodeID int64) (*snowflake.Node, error) {
	return snowflake.NewNode(nodeID)
}

func (svc *Service) nextNumber(now time.Time) string {
	return fmt.Sprintf("FAC-%d-%s", now.Year(), svc.numbers.Generate().Base36())
}

func (svc *Service) create(ctx context.Context, inv Invoice, actor core.Actor, details map[string]interface{}) (Invoice, error) {
	err := svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		var err error
		if inv, err = svc.repo.CreateInvoice(ctx, inv, exec); err != nil {
			return errors.Wrap(err, "creating invoice")
		}
		return svc.trail.Record(ctx, audit.Activity{
			Actor:      actor,
			Action:     audit.ActionCreate,
			EntityType: EntityType,
			EntityID:   inv.ID,
			Details:    details,
			After:      inv,
			Event:      outbox.InvoiceCreated,
		}, exec)
	})
	return inv, err
}

func (svc *Service) newInvoice(studentID, academicYear, number string, lines []LineItem, draft bool) Invoice {
	now := nowFunc().UTC()
	if number == "" {
		number = svc.nextNumber(now)
	}
	inv := Invoice{
		ID:           uuid.NewString(),
		Number:       number,
		StudentID:    studentID,
		Kind:         KindStandard,
		Total:        TotalOf(lines),
		Lines:        lines,
		AcademicYear: academicYear,
		Draft:        draft,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if !draft {
		inv.IssuedAt = &now
	}
	inv.ApplyPaid(inv.Paid)
	return inv
}

// GenerateAfterPayment returns the invoice a new payment of the student should be linked to.
// The latest open invoice of the academic year is reused; otherwise one is issued for the amounts due.
// Linking and reconciliation are up to the caller.
func (svc *Service) GenerateAfterPayment(ctx context.Context, req GenerateRequest, actor core.Actor) (Invoice, error) {
	invoices, err := svc.repo.QueryInvoices(
		ctx,
		QueryFilter{StudentID: req.StudentID, AcademicYear: req.AcademicYear},
		core.DBOrdering{Field: "created_at", Ascending: false},
	)
	if err != nil {
		return Invoice{}, errors.Wrap(err, "finding open invoices")
	}
	if inv, ok := lo.Find(invoices, func(inv Invoice) bool { return inv.IsOpen() }); ok {
		return inv, nil
	}

	inv := svc.newInvoice(req.StudentID, req.AcademicYear, "", req.Lines, false)
	return svc.create(ctx, inv, actor, map[string]interface{}{
		"montantPaye":    req.AmountPaid,
		"methode":        req.Method,
		"payeur":         req.Payer,
		"enregistre_par": req.RecordedBy,
	})
}

// Reconcile recomputes the paid amount of every given invoice from the payments referencing it.
func (svc *Service) Reconcile(ctx context.Context, actor core.Actor, ids ...string) error {
	ids = lo.Uniq(lo.Without(ids, ""))
	if len(ids) == 0 {
		return nil
	}
	invoices, err := svc.repo.GetInvoicesByIDs(ctx, ids...)
	if err != nil {
		return errors.Wrap(err, "finding invoices")
	}

	for _, orig := range invoices {
		paid, err := svc.payments.SumByInvoice(ctx, orig.ID)
		if err != nil {
			return errors.Wrapf(err, "summing payments of invoice %s", orig.ID)
		}
		inv := orig
		inv.ApplyPaid(paid)
		if inv.Paid.Equal(orig.Paid) && inv.Status == orig.Status {
			continue
		}
		inv.UpdatedAt = nowFunc().UTC()

		err = svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
			if _, err := svc.repo.UpdateInvoice(ctx, inv, exec); err != nil {
				return errors.Wrap(err, "updating invoice")
			}
			return svc.trail.Record(ctx, audit.Activity{
				Actor:      actor,
				Action:     audit.ActionUpdate,
				EntityType: EntityType,
				EntityID:   inv.ID,
				Before:     orig,
				After:      inv,
				Event:      outbox.InvoiceUpdated,
			}, exec)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (svc *Service) Create(ctx context.Context, ni NewInvoice, actor core.Actor) (Invoice, error) {
	if _, err := svc.students.GetStudentByID(ctx, ni.StudentID); err != nil {
		if core.IsNotFound(err) {
			return Invoice{}, core.NewValidationError(nil, core.FieldError{Field: "etudiant_id", Error: "unknown student"})
		}
		return Invoice{}, errors.Wrap(err, "finding student")
	}
	if ni.Number != "" {
		exists, err := svc.repo.NumberExists(ctx, ni.Number)
		if err != nil {
			return Invoice{}, errors.Wrap(err, "checking invoice number")
		}
		if exists {
			return Invoice{}, ErrNumberExists
		}
	}

	inv := svc.newInvoice(ni.StudentID, ni.AcademicYear, ni.Number, ni.Lines, ni.Draft)
	return svc.create(ctx, inv, actor, nil)
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter, orderings ...core.DBOrdering) ([]Invoice, error) {
	return svc.repo.QueryInvoices(ctx, filter, core.FilterOrderings(orderings, OrderingFields...)...)
}

func (svc *Service) GetByID(ctx context.Context, id string) (Invoice, error) {
	return svc.repo.GetInvoiceByID(ctx, id)
}

// GetByIDs returns the invoices with the given ids; unknown ids are skipped.
func (svc *Service) GetByIDs(ctx context.Context, ids ...string) ([]Invoice, error) {
	return svc.repo.GetInvoicesByIDs(ctx, ids...)
}

// Issue turns a draft into an issued invoice.
func (svc *Service) Issue(ctx context.Context, id string, actor core.Actor) (Invoice, error) {
	orig, err := svc.repo.GetInvoiceByID(ctx, id)
	if err != nil {
		return Invoice{}, err
	}
	if orig.Cancelled {
		return Invoice{}, ErrCancelled
	}
	if !orig.Draft {
		return Invoice{}, ErrNotDraft
	}
	paid, err := svc.payments.SumByInvoice(ctx, id)
	if err != nil {
		return Invoice{}, errors.Wrap(err, "summing payments")
	}

	now := nowFunc().UTC()
	inv := orig
	inv.Draft = false
	inv.IssuedAt = &now
	inv.UpdatedAt = now
	inv.ApplyPaid(paid)

	err = svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		if inv, err = svc.repo.UpdateInvoice(ctx, inv, exec); err != nil {
			return errors.Wrap(err, "issuing invoice")
		}
		return svc.trail.Record(ctx, audit.Activity{
			Actor:      actor,
			Action:     audit.ActionIssue,
			EntityType: EntityType,
			EntityID:   id,
			Before:     orig,
			After:      inv,
			Event:      outbox.InvoiceUpdated,
		}, exec)
	})
	return inv, err
}

// Cancel marks the invoice as cancelled. Payments keep referencing it.
func (svc *Service) Cancel(ctx context.Context, id string, actor core.Actor) (Invoice, error) {
	orig, err := svc.repo.GetInvoiceByID(ctx, id)
	if err != nil {
		return Invoice{}, err
	}
	if orig.Cancelled {
		return Invoice{}, ErrCancelled
	}

	var inv Invoice
	err = svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		inv, err = svc.cancel(ctx, orig, actor, nil, exec)
		return err
	})
	return inv, err
}

func (svc *Service) cancel(ctx context.Context, orig Invoice, actor core.Actor, details map[string]interface{}, exec core.DBExecutor) (Invoice, error) {
	inv := orig
	inv.Cancelled = true
	inv.UpdatedAt = nowFunc().UTC()
	inv.Status = DeriveStatus(inv)

	inv, err := svc.repo.UpdateInvoice(ctx, inv, exec)
	if err != nil {
		return Invoice{}, errors.Wrap(err, "cancelling invoice")
	}
	err = svc.trail.Record(ctx, audit.Activity{
		Actor:      actor,
		Action:     audit.ActionCancel,
		EntityType: EntityType,
		EntityID:   inv.ID,
		Details:    details,
		Before:     orig,
		After:      inv,
		Event:      outbox.InvoiceCancelled,
	}, exec)
	return inv, err
}

// Correct replaces an invoice with a corrective one: payments move to the new invoice
// and the original is cancelled.
func (svc *Service) Correct(ctx context.Context, id string, ci CorrectInvoice, actor core.Actor) (Invoice, error) {
	orig, err := svc.repo.GetInvoiceByID(ctx, id)
	if err != nil {
		return Invoice{}, err
	}
	if orig.Cancelled {
		return Invoice{}, ErrCancelled
	}

	corr := svc.newInvoice(orig.StudentID, orig.AcademicYear, "", ci.Lines, false)
	corr.Kind = KindCorrective
	corr.OriginalID = orig.ID

	err = svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		if corr, err = svc.repo.CreateInvoice(ctx, corr, exec); err != nil {
			return errors.Wrap(err, "creating corrective invoice")
		}
		moved, err := svc.payments.RelinkInvoice(ctx, orig.ID, corr.ID, exec)
		if err != nil {
			return errors.Wrap(err, "moving payments")
		}
		details := map[string]interface{}{"motif": ci.Reason, "facture_rectificative_id": corr.ID, "paiements": moved}
		if _, err = svc.cancel(ctx, orig, actor, details, exec); err != nil {
			return err
		}
		return svc.trail.Record(ctx, audit.Activity{
			Actor:      actor,
			Action:     audit.ActionCorrect,
			EntityType: EntityType,
			EntityID:   corr.ID,
			Details:    map[string]interface{}{"motif": ci.Reason, "facture_originale_id": orig.ID},
			After:      corr,
			Event:      outbox.InvoiceCorrected,
		}, exec)
	})
	if err != nil {
		return Invoice{}, err
	}

	if err = svc.Reconcile(ctx, actor, orig.ID, corr.ID); err != nil {
		return Invoice{}, err
	}
	return svc.repo.GetInvoiceByID(ctx, corr.ID)
}

func (ni *NewInvoice) Validate(validate *validator.Validate) error {
	ni.Clean()
	return validate.Struct(ni)
}

func (ci *CorrectInvoice) Validate(validate *validator.Validate) error {
	ci.Clean()
	return validate.Struct(ci)
}
