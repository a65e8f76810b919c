package school

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/chaima229/fraisScolaire-backend-sub000/core"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/audit"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/outbox"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/scholarship"
)

var (
	// errors
	ErrClassNotFound   = core.NewNotFoundError("class")
	ErrStudentNotFound = core.NewNotFoundError("student")
	ErrParentNotFound  = core.NewNotFoundError("parent")

	ErrClassExists       = core.NewConflictError("a class with this name already exists for this academic year")
	ErrClassHasStudents  = core.NewConflictError("class still has students")
	ErrStudentHasRecords = core.NewConflictError("student has payments or invoices")
	ErrParentHasStudents = core.NewConflictError("parent is linked to students")
)

type Service struct {
	classes      ClassRepository
	students     StudentRepository
	parents      ParentRepository
	scholarships scholarship.Repository
	records      []StudentRecords
	tx           core.TxRunner
	trail        *audit.Trail
}

func NewService(
	classes ClassRepository,
	students StudentRepository,
	parents ParentRepository,
	scholarships scholarship.Repository,
	tx core.TxRunner,
	trail *audit.Trail,
	records ...StudentRecords,
) *Service {
	return &Service{
		classes:      classes,
		students:     students,
		parents:      parents,
		scholarships: scholarships,
		records:      records,
		tx:           tx,
		trail:        trail,
	}
}

// record runs `write` and audits its result within one transaction.
func (svc *Service) record(ctx context.Context, act audit.Activity, write func(exec core.DBExecutor) (interface{}, error)) error {
	return svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		after, err := write(exec)
		if err != nil {
			return err
		}
		if act.After == nil && act.Payload == nil {
			act.After = after
		}
		return svc.trail.Record(ctx, act, exec)
	})
}

// Classes

func (svc *Service) checkClassName(ctx context.Context, name, year, excludedID string) error {
	exists, err := svc.classes.ClassNameExists(ctx, name, year, excludedID)
	if err != nil {
		return errors.Wrap(err, "checking class name")
	}
	if exists {
		return ErrClassExists
	}
	return nil
}

func (svc *Service) withEnrolled(ctx context.Context, c Class) (Class, error) {
	n, err := svc.students.CountStudents(ctx, StudentFilter{ClassID: c.ID})
	if err != nil {
		return Class{}, errors.Wrap(err, "counting students")
	}
	c.Enrolled = n
	return c, nil
}

func (svc *Service) CreateClass(ctx context.Context, nc NewClass, actor core.Actor) (Class, error) {
	if err := svc.checkClassName(ctx, nc.Name, nc.AcademicYear, ""); err != nil {
		return Class{}, err
	}

	now := time.Now().UTC()
	c := Class{
		ID:           uuid.NewString(),
		Name:         nc.Name,
		Level:        nc.Level,
		Capacity:     nc.Capacity,
		AcademicYear: nc.AcademicYear,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	act := audit.Activity{Actor: actor, Action: audit.ActionCreate, EntityType: ClassEntity, EntityID: c.ID, Event: outbox.ClassCreated}
	err := svc.record(ctx, act, func(exec core.DBExecutor) (interface{}, error) {
		var err error
		c, err = svc.classes.CreateClass(ctx, c, exec)
		return c, errors.Wrap(err, "creating class")
	})
	return c, err
}

func (svc *Service) QueryClasses(ctx context.Context, filter ClassFilter, orderings ...core.DBOrdering) ([]Class, error) {
	classes, err := svc.classes.QueryClasses(ctx, filter, core.FilterOrderings(orderings, ClassOrderingFields...)...)
	if err != nil {
		return nil, err
	}
	for i := range classes {
		if classes[i], err = svc.withEnrolled(ctx, classes[i]); err != nil {
			return nil, err
		}
	}
	return classes, nil
}

func (svc *Service) GetClassByID(ctx context.Context, id string) (Class, error) {
	c, err := svc.classes.GetClassByID(ctx, id)
	if err != nil {
		return Class{}, err
	}
	return svc.withEnrolled(ctx, c)
}

func (svc *Service) UpdateClass(ctx context.Context, id string, uc UpdateClass, actor core.Actor) (Class, error) {
	orig, err := svc.classes.GetClassByID(ctx, id)
	if err != nil {
		return Class{}, err
	}

	c := orig
	if uc.Name != "" {
		c.Name = uc.Name
	}
	if uc.Level != "" {
		c.Level = uc.Level
	}
	if uc.Capacity != nil {
		c.Capacity = *uc.Capacity
	}
	if uc.AcademicYear != "" {
		c.AcademicYear = uc.AcademicYear
	}
	if c.Name != orig.Name || c.AcademicYear != orig.AcademicYear {
		if err = svc.checkClassName(ctx, c.Name, c.AcademicYear, id); err != nil {
			return Class{}, err
		}
	}
	c.UpdatedAt = time.Now().UTC()

	act := audit.Activity{Actor: actor, Action: audit.ActionUpdate, EntityType: ClassEntity, EntityID: id, Before: orig, Event: outbox.ClassUpdated}
	err = svc.record(ctx, act, func(exec core.DBExecutor) (interface{}, error) {
		c, err = svc.classes.UpdateClass(ctx, c, exec)
		return c, errors.Wrap(err, "updating class")
	})
	if err != nil {
		return Class{}, err
	}
	return svc.withEnrolled(ctx, c)
}

func (svc *Service) DeleteClass(ctx context.Context, id string, actor core.Actor) error {
	c, err := svc.GetClassByID(ctx, id)
	if err != nil {
		return err
	}
	if c.Enrolled > 0 {
		return ErrClassHasStudents
	}

	act := audit.Activity{Actor: actor, Action: audit.ActionDelete, EntityType: ClassEntity, EntityID: id, Event: outbox.ClassDeleted, Payload: c}
	return svc.record(ctx, act, func(exec core.DBExecutor) (interface{}, error) {
		return nil, errors.Wrap(svc.classes.DeleteClass(ctx, id, exec), "deleting class")
	})
}

// Students

func (svc *Service) checkStudentRefs(ctx context.Context, classID, scholarshipID string, parentIDs []string) error {
	if classID != "" {
		if _, err := svc.classes.GetClassByID(ctx, classID); err != nil {
			if core.IsNotFound(err) {
				return core.NewValidationError(nil, core.FieldError{Field: "classe_id", Error: "unknown class"})
			}
			return errors.Wrap(err, "finding class")
		}
	}
	if scholarshipID != "" {
		if _, err := svc.scholarships.GetScholarshipByID(ctx, scholarshipID); err != nil {
			if core.IsNotFound(err) {
				return core.NewValidationError(nil, core.FieldError{Field: "bourse_id", Error: "unknown scholarship"})
			}
			return errors.Wrap(err, "finding scholarship")
		}
	}
	if len(parentIDs) > 0 {
		parents, err := svc.parents.GetParentsByIDs(ctx, parentIDs...)
		if err != nil {
			return errors.Wrap(err, "finding parents")
		}
		if len(parents) != len(parentIDs) {
			return core.NewValidationError(nil, core.FieldError{Field: "parent_ids", Error: "unknown parent"})
		}
	}
	return nil
}

func (svc *Service) CreateStudent(ctx context.Context, ns NewStudent, actor core.Actor) (Student, error) {
	if err := svc.checkStudentRefs(ctx, ns.ClassID, ns.ScholarshipID, ns.ParentIDs); err != nil {
		return Student{}, err
	}

	now := time.Now().UTC()
	s := Student{
		ID:            uuid.NewString(),
		LastName:      ns.LastName,
		FirstName:     ns.FirstName,
		ClassID:       ns.ClassID,
		Nationality:   ns.Nationality,
		ScholarshipID: ns.ScholarshipID,
		Exemptions:    ns.Exemptions,
		ParentIDs:     ns.ParentIDs,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	act := audit.Activity{Actor: actor, Action: audit.ActionCreate, EntityType: StudentEntity, EntityID: s.ID, Event: outbox.StudentCreated}
	err := svc.record(ctx, act, func(exec core.DBExecutor) (interface{}, error) {
		var err error
		s, err = svc.students.CreateStudent(ctx, s, exec)
		return s, errors.Wrap(err, "creating student")
	})
	return s, err
}

func (svc *Service) QueryStudents(ctx context.Context, filter StudentFilter, orderings ...core.DBOrdering) ([]Student, error) {
	return svc.students.QueryStudents(ctx, filter, core.FilterOrderings(orderings, StudentOrderingFields...)...)
}

func (svc *Service) GetStudentByID(ctx context.Context, id string) (Student, error) {
	return svc.students.GetStudentByID(ctx, id)
}

func (svc *Service) UpdateStudent(ctx context.Context, id string, us UpdateStudent, actor core.Actor) (Student, error) {
	orig, err := svc.students.GetStudentByID(ctx, id)
	if err != nil {
		return Student{}, err
	}

	var scholarshipID string
	if us.ScholarshipID != nil {
		scholarshipID = *us.ScholarshipID
	}
	if err = svc.checkStudentRefs(ctx, us.ClassID, scholarshipID, us.ParentIDs); err != nil {
		return Student{}, err
	}

	s := orig
	if us.LastName != "" {
		s.LastName = us.LastName
	}
	if us.FirstName != "" {
		s.FirstName = us.FirstName
	}
	if us.ClassID != "" {
		s.ClassID = us.ClassID
	}
	if us.Nationality != "" {
		s.Nationality = us.Nationality
	}
	if us.ScholarshipID != nil {
		s.ScholarshipID = scholarshipID
	}
	if us.Exemptions != nil {
		s.Exemptions = us.Exemptions
	}
	if us.ParentIDs != nil {
		s.ParentIDs = us.ParentIDs
	}
	s.UpdatedAt = time.Now().UTC()

	act := audit.Activity{Actor: actor, Action: audit.ActionUpdate, EntityType: StudentEntity, EntityID: id, Before: orig, Event: outbox.StudentUpdated}
	err = svc.record(ctx, act, func(exec core.DBExecutor) (interface{}, error) {
		s, err = svc.students.UpdateStudent(ctx, s, exec)
		return s, errors.Wrap(err, "updating student")
	})
	return s, err
}

func (svc *Service) DeleteStudent(ctx context.Context, id string, actor core.Actor) error {
	s, err := svc.students.GetStudentByID(ctx, id)
	if err != nil {
		return err
	}
	for _, records := range svc.records {
		n, err := records.CountByStudent(ctx, id)
		if err != nil {
			return errors.Wrap(err, "counting student records")
		}
		if n > 0 {
			return ErrStudentHasRecords
		}
	}

	act := audit.Activity{Actor: actor, Action: audit.ActionDelete, EntityType: StudentEntity, EntityID: id, Event: outbox.StudentDeleted, Payload: s}
	return svc.record(ctx, act, func(exec core.DBExecutor) (interface{}, error) {
		return nil, errors.Wrap(svc.students.DeleteStudent(ctx, id, exec), "deleting student")
	})
}

// StudentParents returns the parents of a student.
func (svc *Service) StudentParents(ctx context.Context, s Student) ([]Parent, error) {
	if len(s.ParentIDs) == 0 {
		return []Parent{}, nil
	}
	return svc.parents.GetParentsByIDs(ctx, s.ParentIDs...)
}

// Parents

func (svc *Service) CreateParent(ctx context.Context, np NewParent, actor core.Actor) (Parent, error) {
	now := time.Now().UTC()
	p := Parent{
		ID:        uuid.NewString(),
		Name:      np.Name,
		Email:     np.Email,
		Phone:     np.Phone,
		CreatedAt: now,
		UpdatedAt: now,
	}
	act := audit.Activity{Actor: actor, Action: audit.ActionCreate, EntityType: ParentEntity, EntityID: p.ID, Event: outbox.ParentCreated}
	err := svc.record(ctx, act, func(exec core.DBExecutor) (interface{}, error) {
		var err error
		p, err = svc.parents.CreateParent(ctx, p, exec)
		return p, errors.Wrap(err, "creating parent")
	})
	return p, err
}

func (svc *Service) QueryParents(ctx context.Context, filter ParentFilter, orderings ...core.DBOrdering) ([]Parent, error) {
	return svc.parents.QueryParents(ctx, filter, core.FilterOrderings(orderings, ParentOrderingFields...)...)
}

func (svc *Service) GetParentByID(ctx context.Context, id string) (Parent, error) {
	return svc.parents.GetParentByID(ctx, id)
}

func (svc *Service) UpdateParent(ctx context.Context, id string, up UpdateParent, actor core.Actor) (Parent, error) {
	orig, err := svc.parents.GetParentByID(ctx, id)
	if err != nil {
		return Parent{}, err
	}

	p := orig
	if up.Name != "" {
		p.Name = up.Name
	}
	if up.Email != nil {
		p.Email = *up.Email
	}
	if up.Phone != nil {
		p.Phone = *up.Phone
	}
	p.UpdatedAt = time.Now().UTC()

	act := audit.Activity{Actor: actor, Action: audit.ActionUpdate, EntityType: ParentEntity, EntityID: id, Before: orig, Event: outbox.ParentUpdated}
	err = svc.record(ctx, act, func(exec core.DBExecutor) (interface{}, error) {
		p, err = svc.parents.UpdateParent(ctx, p, exec)
		return p, errors.Wrap(err, "updating parent")
	})
	return p, err
}

func (svc *Service) DeleteParent(ctx context.Context, id string, actor core.Actor) error {
	p, err := svc.parents.GetParentByID(ctx, id)
	if err != nil {
		return err
	}
	n, err := svc.students.CountStudents(ctx, StudentFilter{ParentID: id})
	if err != nil {
		return errors.Wrap(err, "counting students")
	}
	if n > 0 {
		return ErrParentHasStudents
	}

	act := audit.Activity{Actor: actor, Action: audit.ActionDelete, EntityType: ParentEntity, EntityID: id, Event: outbox.ParentDeleted, Payload: p}
	return svc.record(ctx, act, func(exec core.DBExecutor) (interface{}, error) {
		return nil, errors.Wrap(svc.parents.DeleteParent(ctx, id, exec), "deleting parent")
	})
}

// Validation

func (nc *NewClass) Validate(validate *validator.Validate) error {
	nc.Clean()
	return validate.Struct(nc)
}

func (uc *UpdateClass) Validate(validate *validator.Validate) error {
	uc.Clean()
	return validate.Struct(uc)
}

func (ns *NewStudent) Validate(validate *validator.Validate) error {
	ns.Clean()
	return validate.Struct(ns)
}

func (us *UpdateStudent) Validate(validate *validator.Validate) error {
	us.Clean()
	return validate.Struct(us)
}

func (np *NewParent) Validate(validate *validator.Validate) error {
	np.Clean()
	return validate.Struct(np)
}

func (up *UpdateParent) Validate(validate *validator.Validate) error {
	up.Clean()
	return validate.Struct(up)
}
