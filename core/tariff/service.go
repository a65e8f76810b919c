package tariff

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/chaima229/fraisScolaire-backend-sub000/core"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/audit"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/outbox"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/scholarship"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/school"
)

var (
	// errors
	ErrNotFound = core.NewNotFoundError("tariff")
	ErrInactive = core.NewConflictError("tariff is no longer active")
)

var nowFunc = time.Now // mockable

// Defaults are the amounts and fee type labels used when no tariff applies.
type Defaults struct {
	Tuition       decimal.Decimal
	OtherFees     decimal.Decimal
	TuitionType   string
	OtherFeesType string
}

// DefaultsFromConfig extracts the tariff defaults of `conf`.
func DefaultsFromConfig(conf *core.Config) Defaults {
	return Defaults{
		Tuition:       conf.Fees.DefaultTuition,
		OtherFees:     conf.Fees.DefaultOtherFees,
		TuitionType:   conf.Fees.TuitionType,
		OtherFeesType: conf.Fees.OtherFeesType,
	}
}

type Service struct {
	repo     Repository
	classes  school.ClassRepository
	tx       core.TxRunner
	trail    *audit.Trail
	logger   core.Logger
	defaults Defaults
}

func NewService(
	repo Repository,
	classes school.ClassRepository,
	tx core.TxRunner,
	trail *audit.Trail,
	logger core.Logger,
	defaults Defaults,
) *Service {
	return &Service{
		repo:     repo,
		classes:  classes,
		tx:       tx,
		trail:    trail,
		logger:   logger,
		defaults: defaults,
	}
}

func (svc *Service) Defaults() Defaults { return svc.defaults }

// ResolveCap returns the undiscounted yearly fees of a student.
// Lookup failures never block a payment: they are logged and the defaults apply.
func (svc *Service) ResolveCap(ctx context.Context, q CapQuery) (scholarship.FeeAmounts, error) {
	return scholarship.FeeAmounts{
		Tuition:   svc.resolve(ctx, q, svc.defaults.TuitionType, svc.defaults.Tuition),
		OtherFees: svc.resolve(ctx, q, svc.defaults.OtherFeesType, svc.defaults.OtherFees),
	}, nil
}

func (svc *Service) resolve(ctx context.Context, q CapQuery, feeType string, fallback decimal.Decimal) decimal.Decimal {
	active := true
	tariffs, err := svc.repo.QueryTariffs(ctx, QueryFilter{
		ClassID:      q.ClassID,
		AcademicYear: q.AcademicYear,
		FeeType:      feeType,
		Active:       &active,
		ActiveAt:     nowFunc(),
	})
	if err != nil {
		svc.logger.Warn(fmt.Sprintf("tariff: resolving %q for class %s, using default", feeType, q.ClassID), err)
		return fallback
	}
	// a scholarship tariff only applies to its holders, who fall back to the general ones
	if q.ScholarshipID != "" {
		if t, ok := pick(forScholarship(tariffs, q.ScholarshipID), q.Nationality); ok {
			return t.Amount
		}
	}
	if t, ok := pick(forScholarship(tariffs, ""), q.Nationality); ok {
		return t.Amount
	}
	return fallback
}

func forScholarship(tariffs []Tariff, scholarshipID string) []Tariff {
	return lo.Filter(tariffs, func(t Tariff, _ int) bool { return t.ScholarshipID == scholarshipID })
}

// pick prefers the tariff of the student's nationality, then one for any nationality, then the first one.
func pick(tariffs []Tariff, nationality string) (Tariff, bool) {
	if len(tariffs) == 0 {
		return Tariff{}, false
	}
	if t, ok := lo.Find(tariffs, func(t Tariff) bool { return nationality != "" && t.Nationality == nationality }); ok {
		return t, true
	}
	if t, ok := lo.Find(tariffs, func(t Tariff) bool { return t.Nationality == "" }); ok {
		return t, true
	}
	return tariffs[0], true
}

// Create inserts a new tariff and supersedes the active one of the same tuple, if any.
func (svc *Service) Create(ctx context.Context, nt NewTariff, actor core.Actor) (Tariff, error) {
	if _, err := svc.classes.GetClassByID(ctx, nt.ClassID); err != nil {
		if core.IsNotFound(err) {
			return Tariff{}, core.NewValidationError(nil, core.FieldError{Field: "classe_id", Error: "unknown class"})
		}
		return Tariff{}, errors.Wrap(err, "finding class")
	}

	now := nowFunc().UTC()
	t := Tariff{
		ID:            uuid.NewString(),
		Amount:        nt.Amount,
		ClassID:       nt.ClassID,
		Nationality:   nt.Nationality,
		AcademicYear:  nt.AcademicYear,
		FeeType:       nt.FeeType,
		ScholarshipID: nt.ScholarshipID,
		EndDate:       nt.EndDate,
		CreatedAt:     now,
	}

	err := svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		scholarshipID := t.ScholarshipID
		if scholarshipID == "" {
			scholarshipID = NoScholarship
		}
		tuple, err := svc.repo.QueryTariffs(ctx, QueryFilter{
			ClassID:       t.ClassID,
			AcademicYear:  t.AcademicYear,
			FeeType:       t.FeeType,
			Nationality:   t.Nationality,
			ScholarshipID: scholarshipID,
		})
		if err != nil {
			return errors.Wrap(err, "finding current tariffs")
		}

		// expired tariffs are superseded too, so that the tuple keeps a single live row
		var superseded []string
		for _, old := range lo.Filter(tuple, func(o Tariff, _ int) bool { return o.SameTuple(t) && o.SupersededBy == "" && o.RetiredAt == nil }) {
			if err = svc.repo.MarkSuperseded(ctx, old.ID, t.ID, now, exec); err != nil {
				return errors.Wrap(err, "superseding tariff")
			}
			superseded = append(superseded, old.ID)
		}

		if t, err = svc.repo.CreateTariff(ctx, t, exec); err != nil {
			return errors.Wrap(err, "creating tariff")
		}

		act := audit.Activity{
			Actor:      actor,
			Action:     audit.ActionCreate,
			EntityType: EntityType,
			EntityID:   t.ID,
			After:      t,
			Event:      outbox.TariffCreated,
		}
		if len(superseded) > 0 {
			act.Details = map[string]interface{}{"superseded": superseded}
		}
		return svc.trail.Record(ctx, act, exec)
	})
	return t, err
}

// Retire ends an active tariff without replacement.
func (svc *Service) Retire(ctx context.Context, id string, actor core.Actor) (Tariff, error) {
	t, err := svc.repo.GetTariffByID(ctx, id)
	if err != nil {
		return Tariff{}, err
	}
	now := nowFunc().UTC()
	if !t.IsActive(now) {
		return Tariff{}, ErrInactive
	}

	err = svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		if err := svc.repo.MarkRetired(ctx, id, now, exec); err != nil {
			return errors.Wrap(err, "retiring tariff")
		}
		t.RetiredAt = &now
		return svc.trail.Record(ctx, audit.Activity{
			Actor:      actor,
			Action:     audit.ActionRetire,
			EntityType: EntityType,
			EntityID:   id,
			Event:      outbox.TariffRetired,
			Payload:    t,
		}, exec)
	})
	return t, err
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter, orderings ...core.DBOrdering) ([]Tariff, error) {
	return svc.repo.QueryTariffs(ctx, filter, core.FilterOrderings(orderings, OrderingFields...)...)
}

func (svc *Service) GetByID(ctx context.Context, id string) (Tariff, error) {
	return svc.repo.GetTariffByID(ctx, id)
}

func (nt *NewTariff) Validate(validate *validator.Validate) error {
	nt.Clean()
	return validate.Struct(nt)
}
