package school

import (
	"context"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/chaima229/fraisScolaire-backend-sub000/core"
)

// Entity types
const (
	ClassEntity   = "class"
	StudentEntity = "student"
	ParentEntity  = "parent"
)

type Class struct {
	ID           string    `json:"id"`
	Name         string    `json:"nom"`
	Level        string    `json:"niveau"`
	Capacity     int       `json:"capacite"`
	AcademicYear string    `json:"annee_scolaire"`
	Enrolled     int       `json:"effectif"` // computed
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// IsFull is advisory only: enrolling in a full class is allowed.
func (c Class) IsFull() bool {
	return c.Capacity > 0 && c.Enrolled >= c.Capacity
}

type Student struct {
	ID            string    `json:"id"`
	LastName      string    `json:"nom"`
	FirstName     string    `json:"prenom"`
	ClassID       string    `json:"classe_id"`
	Nationality   string    `json:"nationalite"`
	ScholarshipID string    `json:"bourse_id,omitempty"`
	Exemptions    []string  `json:"exemptions"` // exempted fee types
	ParentIDs     []string  `json:"parent_ids"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (s Student) FullName() string {
	return strings.TrimSpace(s.FirstName + " " + s.LastName)
}

func (s Student) IsExemptFrom(feeType string) bool {
	return lo.Contains(s.Exemptions, feeType)
}

type Parent struct {
	ID        string    `json:"id"`
	Name      string    `json:"nom"`
	Email     string    `json:"email"`
	Phone     string    `json:"telephone"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type (
	ClassRepository interface {
		CreateClass(ctx context.Context, c Class, exec ...core.DBExecutor) (Class, error)
		QueryClasses(ctx context.Context, filter ClassFilter, orderings ...core.DBOrdering) ([]Class, error)
		GetClassByID(ctx context.Context, id string) (Class, error)
		ClassNameExists(ctx context.Context, name, academicYear, excludedID string) (bool, error)
		UpdateClass(ctx context.Context, c Class, exec ...core.DBExecutor) (Class, error)
		DeleteClass(ctx context.Context, id string, exec ...core.DBExecutor) error
	}

	StudentRepository interface {
		CreateStudent(ctx context.Context, s Student, exec ...core.DBExecutor) (Student, error)
		QueryStudents(ctx context.Context, filter StudentFilter, orderings ...core.DBOrdering) ([]Student, error)
		CountStudents(ctx context.Context, filter StudentFilter) (int, error)
		GetStudentByID(ctx context.Context, id string) (Student, error)
		UpdateStudent(ctx context.Context, s Student, exec ...core.DBExecutor) (Student, error)
		DeleteStudent(ctx context.Context, id string, exec ...core.DBExecutor) error
		CountStudentsWithScholarship(ctx context.Context, scholarshipID string) (int, error)
	}

	ParentRepository interface {
		CreateParent(ctx context.Context, p Parent, exec ...core.DBExecutor) (Parent, error)
		QueryParents(ctx context.Context, filter ParentFilter, orderings ...core.DBOrdering) ([]Parent, error)
		GetParentByID(ctx context.Context, id string) (Parent, error)
		GetParentsByIDs(ctx context.Context, ids ...string) ([]Parent, error)
		UpdateParent(ctx context.Context, p Parent, exec ...core.DBExecutor) (Parent, error)
		DeleteParent(ctx context.Context, id string, exec ...core.DBExecutor) error
	}

	// StudentRecords is implemented by stores holding records that reference a student (payments, invoices).
	StudentRecords interface {
		CountByStudent(ctx context.Context, studentID string) (int, error)
	}
)

var (
	ClassOrderingFields   = []string{"nom", "niveau", "annee_scolaire", "created_at"}
	StudentOrderingFields = []string{"nom", "prenom", "created_at"}
	ParentOrderingFields  = []string{"nom", "created_at"}
)

type ClassFilter struct {
	AcademicYear string `query:"annee_scolaire"`
	Level        string `query:"niveau"`
	Search       string `query:"search"`
}

func (qf *ClassFilter) Clean() {
	qf.AcademicYear = core.CleanString(qf.AcademicYear)
	qf.Level = core.CleanString(qf.Level)
	qf.Search = core.CleanString(qf.Search)
}

func (qf ClassFilter) Match(c Class) bool {
	return (qf.AcademicYear == "" || c.AcademicYear == qf.AcademicYear) &&
		(qf.Level == "" || strings.EqualFold(c.Level, qf.Level)) &&
		(qf.Search == "" || containsFold(c.Name, qf.Search))
}

type StudentFilter struct {
	ClassID       string `query:"classe_id"`
	ScholarshipID string `query:"bourse_id"`
	ParentID      string `query:"parent_id"`
	Search        string `query:"search"`
}

func (qf *StudentFilter) Clean() {
	qf.ClassID = core.CleanString(qf.ClassID)
	qf.ScholarshipID = core.CleanString(qf.ScholarshipID)
	qf.ParentID = core.CleanString(qf.ParentID)
	qf.Search = core.CleanString(qf.Search)
}

func (qf StudentFilter) Match(s Student) bool {
	return (qf.ClassID == "" || s.ClassID == qf.ClassID) &&
		(qf.ScholarshipID == "" || s.ScholarshipID == qf.ScholarshipID) &&
		(qf.ParentID == "" || lo.Contains(s.ParentIDs, qf.ParentID)) &&
		(qf.Search == "" || containsFold(s.LastName, qf.Search) || containsFold(s.FirstName, qf.Search))
}

type ParentFilter struct {
	Search string `query:"search"`
}

func (qf *ParentFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}

func (qf ParentFilter) Match(p Parent) bool {
	return qf.Search == "" || containsFold(p.Name, qf.Search) || containsFold(p.Email, qf.Search)
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// NewClass contains information needed to create a Class.
type NewClass struct {
	Name         string `json:"nom" validate:"required"`
	Level        string `json:"niveau" validate:"required"`
	Capacity     int    `json:"capacite" validate:"gte=0"`
	AcademicYear string `json:"annee_scolaire" validate:"required,academic_year"`
}

func (nc *NewClass) Clean() {
	nc.Name = core.CleanString(nc.Name)
	nc.Level = core.CleanString(nc.Level)
	nc.AcademicYear = core.CleanString(nc.AcademicYear)
}

// UpdateClass defines what may be changed on an existing Class.
type UpdateClass struct {
	Name         string `json:"nom"`
	Level        string `json:"niveau"`
	Capacity     *int   `json:"capacite" validate:"omitempty,gte=0"`
	AcademicYear string `json:"annee_scolaire" validate:"omitempty,academic_year"`
}

func (uc *UpdateClass) Clean() {
	uc.Name = core.CleanString(uc.Name)
	uc.Level = core.CleanString(uc.Level)
	uc.AcademicYear = core.CleanString(uc.AcademicYear)
}

// NewStudent contains information needed to create a Student.
type NewStudent struct {
	LastName      string   `json:"nom" validate:"required"`
	FirstName     string   `json:"prenom" validate:"required"`
	ClassID       string   `json:"classe_id" validate:"required,uuid"`
	Nationality   string   `json:"nationalite" validate:"required"`
	ScholarshipID string   `json:"bourse_id" validate:"omitempty,uuid"`
	Exemptions    []string `json:"exemptions" validate:"dive,required"`
	ParentIDs     []string `json:"parent_ids" validate:"dive,uuid"`
}

func (ns *NewStudent) Clean() {
	ns.LastName = core.CleanString(ns.LastName)
	ns.FirstName = core.CleanString(ns.FirstName)
	ns.ClassID = core.CleanString(ns.ClassID)
	ns.Nationality = core.CleanString(ns.Nationality)
	ns.ScholarshipID = core.CleanString(ns.ScholarshipID)
	ns.Exemptions = cleanList(ns.Exemptions)
	ns.ParentIDs = cleanList(ns.ParentIDs)
}

// UpdateStudent defines what may be changed on an existing Student.
// An empty (non-nil) ScholarshipID removes the scholarship.
type UpdateStudent struct {
	LastName      string   `json:"nom"`
	FirstName     string   `json:"prenom"`
	ClassID       string   `json:"classe_id" validate:"omitempty,uuid"`
	Nationality   string   `json:"nationalite"`
	ScholarshipID *string  `json:"bourse_id" validate:"omitempty"`
	Exemptions    []string `json:"exemptions" validate:"omitempty,dive,required"`
	ParentIDs     []string `json:"parent_ids" validate:"omitempty,dive,uuid"`
}

func (us *UpdateStudent) Clean() {
	us.LastName = core.CleanString(us.LastName)
	us.FirstName = core.CleanString(us.FirstName)
	us.ClassID = core.CleanString(us.ClassID)
	us.Nationality = core.CleanString(us.Nationality)
	if us.ScholarshipID != nil {
		id := core.CleanString(*us.ScholarshipID)
		us.ScholarshipID = &id
	}
	if us.Exemptions != nil {
		us.Exemptions = cleanList(us.Exemptions)
	}
	if us.ParentIDs != nil {
		us.ParentIDs = cleanList(us.ParentIDs)
	}
}

// NewParent contains information needed to create a Parent.
type NewParent struct {
	Name  string `json:"nom" validate:"required"`
	Email string `json:"email" validate:"omitempty,email"`
	Phone string `json:"telephone"`
}

func (np *NewParent) Clean() {
	np.Name = core.CleanString(np.Name)
	np.Email = core.CleanString(np.Email, true /* lower */)
	np.Phone = core.CleanString(np.Phone)
}

// UpdateParent defines what may be changed on an existing Parent.
type UpdateParent struct {
	Name  string  `json:"nom"`
	Email *string `json:"email" validate:"omitempty,email"`
	Phone *string `json:"telephone"`
}

func (up *UpdateParent) Clean() {
	up.Name = core.CleanString(up.Name)
	if up.Email != nil {
		email := core.CleanString(*up.Email, true /* lower */)
		up.Email = &email
	}
	if up.Phone != nil {
		phone := core.CleanString(*up.Phone)
		up.Phone = &phone
	}
}

func cleanList(items []string) []string {
	cleaned := lo.Map(items, func(s string, _ int) string { return core.CleanString(s) })
	return lo.Uniq(lo.Without(cleaned, ""))
}
