package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/chaima229/fraisScolaire-backend-sub000/core"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/school"
)

// Classes

var classColumns = []string{"id", "nom", "niveau", "capacite", "annee_scolaire", "created_at", "updated_at"}

type classRow struct {
	ID           string    `db:"id"`
	Name         string    `db:"nom"`
	Level        string    `db:"niveau"`
	Capacity     int       `db:"capacite"`
	AcademicYear string    `db:"annee_scolaire"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func (row classRow) class() school.Class {
	return school.Class{
		ID:           row.ID,
		Name:         row.Name,
		Level:        row.Level,
		Capacity:     row.Capacity,
		AcademicYear: row.AcademicYear,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
	}
}

func newClassRow(c school.Class) classRow {
	return classRow{
		ID:           c.ID,
		Name:         c.Name,
		Level:        c.Level,
		Capacity:     c.Capacity,
		AcademicYear: c.AcademicYear,
		CreatedAt:    c.CreatedAt.UTC(),
		UpdatedAt:    c.UpdatedAt.UTC(),
	}
}

type ClassRepository struct {
	repo
}

var _ school.ClassRepository = (*ClassRepository)(nil)

func NewClassRepository(exec core.DBExecutor) *ClassRepository {
	return &ClassRepository{repo{exec: exec}}
}

func (r *ClassRepository) CreateClass(ctx context.Context, c school.Class, exec ...core.DBExecutor) (school.Class, error) {
	if err := insertRow(ctx, r.getExec(exec), "classes", classColumns, newClassRow(c)); err != nil {
		return school.Class{}, errors.Wrap(err, "inserting class")
	}
	return c, nil
}

func (r *ClassRepository) QueryClasses(ctx context.Context, filter school.ClassFilter, orderings ...core.DBOrdering) ([]school.Class, error) {
	b := psql.Select(classColumns...).From("classes")
	if filter.AcademicYear != "" {
		b = b.Where(sq.Eq{"annee_scolaire": filter.AcademicYear})
	}
	if filter.Level != "" {
		b = b.Where(sq.ILike{"niveau": filter.Level})
	}
	if filter.Search != "" {
		b = b.Where(sq.ILike{"nom": ilike(filter.Search)})
	}
	b = orderBy(b, orderings, map[string]string{
		"nom":            "nom",
		"niveau":         "niveau",
		"annee_scolaire": "annee_scolaire",
		"created_at":     "created_at",
	}, "created_at ASC")

	var rows []classRow
	if err := r.selectAll(ctx, r.exec, &rows, b); err != nil {
		return nil, errors.Wrap(err, "querying classes")
	}
	classes := make([]school.Class, 0, len(rows))
	for _, row := range rows {
		classes = append(classes, row.class())
	}
	return classes, nil
}

func (r *ClassRepository) GetClassByID(ctx context.Context, id string) (school.Class, error) {
	if !validID(id) {
		return school.Class{}, school.ErrClassNotFound
	}
	var row classRow
	if err := r.get(ctx, r.exec, &row, psql.Select(classColumns...).From("classes").Where(sq.Eq{"id": id})); err != nil {
		return school.Class{}, trapNoRows(err, school.ErrClassNotFound, "getting class")
	}
	return row.class(), nil
}

func (r *ClassRepository) ClassNameExists(ctx context.Context, name, academicYear, excludedID string) (bool, error) {
	b := psql.Select("1").From("classes").
		Where("LOWER(nom) = LOWER(?)", name).
		Where(sq.Eq{"annee_scolaire": academicYear})
	if excludedID != "" {
		b = b.Where(sq.NotEq{"id::text": excludedID})
	}
	exists, err := r.exists(ctx, b)
	return exists, errors.Wrap(err, "checking class name")
}

func (r *ClassRepository) UpdateClass(ctx context.Context, c school.Class, exec ...core.DBExecutor) (school.Class, error) {
	found, err := updateRow(ctx, r.getExec(exec), "classes", classColumns, newClassRow(c))
	if err != nil {
		return school.Class{}, errors.Wrap(err, "updating class")
	}
	if !found {
		return school.Class{}, school.ErrClassNotFound
	}
	return c, nil
}

func (r *ClassRepository) DeleteClass(ctx context.Context, id string, exec ...core.DBExecutor) error {
	_, err := r.run(ctx, r.getExec(exec), psql.Delete("classes").Where(sq.Eq{"id": id}))
	return errors.Wrap(err, "deleting class")
}

// Students

var studentColumns = []string{
	"id", "nom", "prenom", "classe_id", "nationalite", "bourse_id", "exemptions", "parent_ids", "created_at", "updated_at",
}

type studentRow struct {
	ID            string         `db:"id"`
	LastName      string         `db:"nom"`
	FirstName     string         `db:"prenom"`
	ClassID       string         `db:"classe_id"`
	Nationality   string         `db:"nationalite"`
	ScholarshipID null.String    `db:"bourse_id"`
	Exemptions    pq.StringArray `db:"exemptions"`
	ParentIDs     pq.StringArray `db:"parent_ids"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
}

func (row studentRow) student() school.Student {
	return school.Student{
		ID:            row.ID,
		LastName:      row.LastName,
		FirstName:     row.FirstName,
		ClassID:       row.ClassID,
		Nationality:   row.Nationality,
		ScholarshipID: row.ScholarshipID.String,
		Exemptions:    append([]string{}, row.Exemptions...),
		ParentIDs:     append([]string{}, row.ParentIDs...),
		CreatedAt:     row.CreatedAt,
		UpdatedAt:     row.UpdatedAt,
	}
}

func newStudentRow(s school.Student) studentRow {
	return studentRow{
		ID:            s.ID,
		LastName:      s.LastName,
		FirstName:     s.FirstName,
		ClassID:       s.ClassID,
		Nationality:   s.Nationality,
		ScholarshipID: nullString(s.ScholarshipID),
		Exemptions:    append(pq.StringArray{}, s.Exemptions...),
		ParentIDs:     append(pq.StringArray{}, s.ParentIDs...),
		CreatedAt:     s.CreatedAt.UTC(),
		UpdatedAt:     s.UpdatedAt.UTC(),
	}
}

type StudentRepository struct {
	repo
}

var _ school.StudentRepository = (*StudentRepository)(nil)

func NewStudentRepository(exec core.DBExecutor) *StudentRepository {
	return &StudentRepository{repo{exec: exec}}
}

func studentWhere(b sq.SelectBuilder, filter school.StudentFilter) sq.SelectBuilder {
	if filter.ClassID != "" {
		b = b.Where(eqID("classe_id", filter.ClassID))
	}
	if filter.ScholarshipID != "" {
		b = b.Where(eqID("bourse_id", filter.ScholarshipID))
	}
	if filter.ParentID != "" {
		b = b.Where("? = ANY(parent_ids)", filter.ParentID)
	}
	if filter.Search != "" {
		val := ilike(filter.Search)
		b = b.Where(sq.Or{sq.ILike{"nom": val}, sq.ILike{"prenom": val}})
	}
	return b
}

func (r *StudentRepository) CreateStudent(ctx context.Context, s school.Student, exec ...core.DBExecutor) (school.Student, error) {
	if err := insertRow(ctx, r.getExec(exec), "students", studentColumns, newStudentRow(s)); err != nil {
		return school.Student{}, errors.Wrap(err, "inserting student")
	}
	return s, nil
}

func (r *StudentRepository) QueryStudents(ctx context.Context, filter school.StudentFilter, orderings ...core.DBOrdering) ([]school.Student, error) {
	b := studentWhere(psql.Select(studentColumns...).From("students"), filter)
	b = orderBy(b, orderings, map[string]string{
		"nom":        "nom",
		"prenom":     "prenom",
		"created_at": "created_at",
	}, "created_at ASC")

	var rows []studentRow
	if err := r.selectAll(ctx, r.exec, &rows, b); err != nil {
		return nil, errors.Wrap(err, "querying students")
	}
	students := make([]school.Student, 0, len(rows))
	for _, row := range rows {
		students = append(students, row.student())
	}
	return students, nil
}

func (r *StudentRepository) CountStudents(ctx context.Context, filter school.StudentFilter) (int, error) {
	n, err := r.count(ctx, studentWhere(psql.Select("COUNT(*)").From("students"), filter))
	return n, errors.Wrap(err, "counting students")
}

func (r *StudentRepository) CountStudentsWithScholarship(ctx context.Context, scholarshipID string) (int, error) {
	return r.CountStudents(ctx, school.StudentFilter{ScholarshipID: scholarshipID})
}

func (r *StudentRepository) GetStudentByID(ctx context.Context, id string) (school.Student, error) {
	if !validID(id) {
		return school.Student{}, school.ErrStudentNotFound
	}
	var row studentRow
	if err := r.get(ctx, r.exec, &row, psql.Select(studentColumns...).From("students").Where(sq.Eq{"id": id})); err != nil {
		return school.Student{}, trapNoRows(err, school.ErrStudentNotFound, "getting student")
	}
	return row.student(), nil
}

func (r *StudentRepository) UpdateStudent(ctx context.Context, s school.Student, exec ...core.DBExecutor) (school.Student, error) {
	found, err := updateRow(ctx, r.getExec(exec), "students", studentColumns, newStudentRow(s))
	if err != nil {
		return school.Student{}, errors.Wrap(err, "updating student")
	}
	if !found {
		return school.Student{}, school.ErrStudentNotFound
	}
	return s, nil
}

func (r *StudentRepository) DeleteStudent(ctx context.Context, id string, exec ...core.DBExecutor) error {
	_, err := r.run(ctx, r.getExec(exec), psql.Delete("students").Where(sq.Eq{"id": id}))
	return errors.Wrap(err, "deleting student")
}

// Parents

var parentColumns = []string{"id", "nom", "email", "telephone", "created_at", "updated_at"}

type parentRow struct {
	ID        string    `db:"id"`
	Name      string    `db:"nom"`
	Email     string    `db:"email"`
	Phone     string    `db:"telephone"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (row parentRow) parent() school.Parent {
	return school.Parent{
		ID:        row.ID,
		Name:      row.Name,
		Email:     row.Email,
		Phone:     row.Phone,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
}

func newParentRow(p school.Parent) parentRow {
	return parentRow{
		ID:        p.ID,
		Name:      p.Name,
		Email:     p.Email,
		Phone:     p.Phone,
		CreatedAt: p.CreatedAt.UTC(),
		UpdatedAt: p.UpdatedAt.UTC(),
	}
}

func parentsOf(rows []parentRow) []school.Parent {
	parents := make([]school.Parent, 0, len(rows))
	for _, row := range rows {
		parents = append(parents, row.parent())
	}
	return parents
}

type ParentRepository struct {
	repo
}

var _ school.ParentRepository = (*ParentRepository)(nil)

func NewParentRepository(exec core.DBExecutor) *ParentRepository {
	return &ParentRepository{repo{exec: exec}}
}

func (r *ParentRepository) CreateParent(ctx context.Context, p school.Parent, exec ...core.DBExecutor) (school.Parent, error) {
	if err := insertRow(ctx, r.getExec(exec), "parents", parentColumns, newParentRow(p)); err != nil {
		return school.Parent{}, errors.Wrap(err, "inserting parent")
	}
	return p, nil
}

func (r *ParentRepository) QueryParents(ctx context.Context, filter school.ParentFilter, orderings ...core.DBOrdering) ([]school.Parent, error) {
	b := psql.Select(parentColumns...).From("parents")
	if filter.Search != "" {
		val := ilike(filter.Search)
		b = b.Where(sq.Or{sq.ILike{"nom": val}, sq.ILike{"email": val}})
	}
	b = orderBy(b, orderings, map[string]string{"nom": "nom", "created_at": "created_at"}, "created_at ASC")

	var rows []parentRow
	if err := r.selectAll(ctx, r.exec, &rows, b); err != nil {
		return nil, errors.Wrap(err, "querying parents")
	}
	return parentsOf(rows), nil
}

func (r *ParentRepository) GetParentByID(ctx context.Context, id string) (school.Parent, error) {
	if !validID(id) {
		return school.Parent{}, school.ErrParentNotFound
	}
	var row parentRow
	if err := r.get(ctx, r.exec, &row, psql.Select(parentColumns...).From("parents").Where(sq.Eq{"id": id})); err != nil {
		return school.Parent{}, trapNoRows(err, school.ErrParentNotFound, "getting parent")
	}
	return row.parent(), nil
}

func (r *ParentRepository) GetParentsByIDs(ctx context.Context, ids ...string) ([]school.Parent, error) {
	ids = validIDs(ids)
	if len(ids) == 0 {
		return []school.Parent{}, nil
	}
	var rows []parentRow
	b := psql.Select(parentColumns...).From("parents").Where(sq.Eq{"id": ids}).OrderBy("created_at ASC")
	if err := r.selectAll(ctx, r.exec, &rows, b); err != nil {
		return nil, errors.Wrap(err, "getting parents")
	}
	return parentsOf(rows), nil
}

func (r *ParentRepository) UpdateParent(ctx context.Context, p school.Parent, exec ...core.DBExecutor) (school.Parent, error) {
	found, err := updateRow(ctx, r.getExec(exec), "parents", parentColumns, newParentRow(p))
	if err != nil {
		return school.Parent{}, errors.Wrap(err, "updating parent")
	}
	if !found {
		return school.Parent{}, school.ErrParentNotFound
	}
	return p, nil
}

func (r *ParentRepository) DeleteParent(ctx context.Context, id string, exec ...core.DBExecutor) error {
	_, err := r.run(ctx, r.getExec(exec), psql.Delete("parents").Where(sq.Eq{"id": id}))
	return errors.Wrap(err, "deleting parent")
}
