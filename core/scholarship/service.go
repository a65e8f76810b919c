package scholarship

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/chaima229/fraisScolaire-backend-sub000/core"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/audit"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/outbox"
)

var (
	// errors
	ErrNotFound   = core.NewNotFoundError("scholarship")
	ErrNameExists = core.NewConflictError("a scholarship with this name already exists")
	ErrInUse      = core.NewConflictError("scholarship is assigned to students")
)

type Service struct {
	repo     Repository
	students StudentCounter
	tx       core.TxRunner
	trail    *audit.Trail
}

func NewService(repo Repository, students StudentCounter, tx core.TxRunner, trail *audit.Trail) *Service {
	return &Service{repo: repo, students: students, tx: tx, trail: trail}
}

func (svc *Service) checkName(ctx context.Context, name, excludedID string) error {
	exists, err := svc.repo.ScholarshipNameExists(ctx, name, excludedID)
	if err != nil {
		return errors.Wrap(err, "checking name uniqueness")
	}
	if exists {
		return ErrNameExists
	}
	return nil
}

func (svc *Service) Create(ctx context.Context, ns NewScholarship, actor core.Actor) (Scholarship, error) {
	if err := svc.checkName(ctx, ns.Name, ""); err != nil {
		return Scholarship{}, err
	}

	now := time.Now().UTC()
	s := Scholarship{
		ID:          uuid.NewString(),
		Name:        ns.Name,
		Percentage:  ns.Percentage,
		FixedAmount: ns.FixedAmount,
		IsExempt:    ns.IsExempt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err := svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		var err error
		if s, err = svc.repo.CreateScholarship(ctx, s, exec); err != nil {
			return errors.Wrap(err, "creating scholarship")
		}
		return svc.trail.Record(ctx, audit.Activity{
			Actor:      actor,
			Action:     audit.ActionCreate,
			EntityType: EntityType,
			EntityID:   s.ID,
			After:      s,
			Event:      outbox.ScholarshipCreated,
		}, exec)
	})
	return s, err
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter, orderings ...core.DBOrdering) ([]Scholarship, error) {
	return svc.repo.QueryScholarships(ctx, filter, core.FilterOrderings(orderings, OrderingFields...)...)
}

func (svc *Service) GetByID(ctx context.Context, id string) (Scholarship, error) {
	return svc.repo.GetScholarshipByID(ctx, id)
}

func (svc *Service) Update(ctx context.Context, id string, us UpdateScholarship, actor core.Actor) (Scholarship, error) {
	orig, err := svc.repo.GetScholarshipByID(ctx, id)
	if err != nil {
		return Scholarship{}, err
	}

	s := orig
	if us.Name != "" && us.Name != orig.Name {
		if err = svc.checkName(ctx, us.Name, id); err != nil {
			return Scholarship{}, err
		}
		s.Name = us.Name
	}
	if us.Percentage != nil {
		s.Percentage = *us.Percentage
	}
	if us.FixedAmount != nil {
		s.FixedAmount = *us.FixedAmount
	}
	if us.IsExempt != nil {
		s.IsExempt = *us.IsExempt
	}
	s.UpdatedAt = time.Now().UTC()

	err = svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		if s, err = svc.repo.UpdateScholarship(ctx, s, exec); err != nil {
			return errors.Wrap(err, "updating scholarship")
		}
		return svc.trail.Record(ctx, audit.Activity{
			Actor:      actor,
			Action:     audit.ActionUpdate,
			EntityType: EntityType,
			EntityID:   s.ID,
			Before:     orig,
			After:      s,
			Event:      outbox.ScholarshipUpdated,
		}, exec)
	})
	return s, err
}

func (svc *Service) Delete(ctx context.Context, id string, actor core.Actor) error {
	s, err := svc.repo.GetScholarshipByID(ctx, id)
	if err != nil {
		return err
	}
	n, err := svc.students.CountStudentsWithScholarship(ctx, id)
	if err != nil {
		return errors.Wrap(err, "counting students")
	}
	if n > 0 {
		return ErrInUse
	}

	return svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		if err := svc.repo.DeleteScholarship(ctx, id, exec); err != nil {
			return errors.Wrap(err, "deleting scholarship")
		}
		return svc.trail.Record(ctx, audit.Activity{
			Actor:      actor,
			Action:     audit.ActionDelete,
			EntityType: EntityType,
			EntityID:   id,
			Event:      outbox.ScholarshipDeleted,
			Payload:    s,
		}, exec)
	})
}

func (ns *NewScholarship) Validate(validate *validator.Validate) error {
	ns.Clean()
	return validate.Struct(ns)
}

func (us *UpdateScholarship) Validate(validate *validator.Validate) error {
	us.Clean()
	return validate.Struct(us)
}
