package inmemdb

import (
	"context"

	"github.com/samber/lo"

	"github.com/chaima229/fraisScolaire-backend-sub000/core"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/school"
)

var (
	classKeys = map[string]func(school.Class) interface{}{
		"nom":            func(c school.Class) interface{} { return c.Name },
		"niveau":         func(c school.Class) interface{} { return c.Level },
		"annee_scolaire": func(c school.Class) interface{} { return c.AcademicYear },
		"created_at":     func(c school.Class) interface{} { return c.CreatedAt },
	}
	studentKeys = map[string]func(school.Student) interface{}{
		"nom":        func(s school.Student) interface{} { return s.LastName },
		"prenom":     func(s school.Student) interface{} { return s.FirstName },
		"created_at": func(s school.Student) interface{} { return s.CreatedAt },
	}
	parentKeys = map[string]func(school.Parent) interface{}{
		"nom":        func(p school.Parent) interface{} { return p.Name },
		"created_at": func(p school.Parent) interface{} { return p.CreatedAt },
	}
)

// Classes

type ClassRepository struct {
	db *DB
}

var _ school.ClassRepository = (*ClassRepository)(nil)

func NewClassRepository(db *DB) *ClassRepository {
	return &ClassRepository{db: db}
}

func (repo *ClassRepository) CreateClass(_ context.Context, c school.Class, _ ...core.DBExecutor) (school.Class, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	insert(repo.db, repo.db.classes, c.ID, c)
	return c, nil
}

func (repo *ClassRepository) QueryClasses(_ context.Context, filter school.ClassFilter, orderings ...core.DBOrdering) ([]school.Class, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	return selectRows(repo.db.classes, filter.Match, orderings, classKeys), nil
}

func (repo *ClassRepository) GetClassByID(_ context.Context, id string) (school.Class, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	if r, ok := repo.db.classes[id]; ok {
		return r.val, nil
	}
	return school.Class{}, school.ErrClassNotFound
}

func (repo *ClassRepository) ClassNameExists(_ context.Context, name, academicYear, excludedID string) (bool, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	for id, r := range repo.db.classes {
		if id != excludedID && compare(r.val.Name, name) == 0 && r.val.AcademicYear == academicYear {
			return true, nil
		}
	}
	return false, nil
}

func (repo *ClassRepository) UpdateClass(_ context.Context, c school.Class, _ ...core.DBExecutor) (school.Class, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	if !replace(repo.db.classes, c.ID, c) {
		return school.Class{}, school.ErrClassNotFound
	}
	return c, nil
}

func (repo *ClassRepository) DeleteClass(_ context.Context, id string, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	delete(repo.db.classes, id)
	return nil
}

// Students

type StudentRepository struct {
	db *DB
}

var _ school.StudentRepository = (*StudentRepository)(nil)

func NewStudentRepository(db *DB) *StudentRepository {
	return &StudentRepository{db: db}
}

func cloneStudent(s school.Student) school.Student {
	s.Exemptions = cloneStrings(s.Exemptions)
	s.ParentIDs = cloneStrings(s.ParentIDs)
	return s
}

func (repo *StudentRepository) CreateStudent(_ context.Context, s school.Student, _ ...core.DBExecutor) (school.Student, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	s = cloneStudent(s)
	insert(repo.db, repo.db.students, s.ID, s)
	return cloneStudent(s), nil
}

func (repo *StudentRepository) QueryStudents(_ context.Context, filter school.StudentFilter, orderings ...core.DBOrdering) ([]school.Student, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	students := selectRows(repo.db.students, filter.Match, orderings, studentKeys)
	return lo.Map(students, func(s school.Student, _ int) school.Student { return cloneStudent(s) }), nil
}

func (repo *StudentRepository) CountStudents(_ context.Context, filter school.StudentFilter) (int, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	return len(selectRows(repo.db.students, filter.Match, nil, nil)), nil
}

func (repo *StudentRepository) CountStudentsWithScholarship(ctx context.Context, scholarshipID string) (int, error) {
	return repo.CountStudents(ctx, school.StudentFilter{ScholarshipID: scholarshipID})
}

func (repo *StudentRepository) GetStudentByID(_ context.Context, id string) (school.Student, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	if r, ok := repo.db.students[id]; ok {
		return cloneStudent(r.val), nil
	}
	return school.Student{}, school.ErrStudentNotFound
}

func (repo *StudentRepository) UpdateStudent(_ context.Context, s school.Student, _ ...core.DBExecutor) (school.Student, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	s = cloneStudent(s)
	if !replace(repo.db.students, s.ID, s) {
		return school.Student{}, school.ErrStudentNotFound
	}
	return cloneStudent(s), nil
}

func (repo *StudentRepository) DeleteStudent(_ context.Context, id string, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	delete(repo.db.students, id)
	return nil
}

// Parents

type ParentRepository struct {
	db *DB
}

var _ school.ParentRepository = (*ParentRepository)(nil)

func NewParentRepository(db *DB) *ParentRepository {
	return &ParentRepository{db: db}
}

func (repo *ParentRepository) CreateParent(_ context.Context, p school.Parent, _ ...core.DBExecutor) (school.Parent, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	insert(repo.db, repo.db.parents, p.ID, p)
	return p, nil
}

func (repo *ParentRepository) QueryParents(_ context.Context, filter school.ParentFilter, orderings ...core.DBOrdering) ([]school.Parent, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	return selectRows(repo.db.parents, filter.Match, orderings, parentKeys), nil
}

func (repo *ParentRepository) GetParentByID(_ context.Context, id string) (school.Parent, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	if r, ok := repo.db.parents[id]; ok {
		return r.val, nil
	}
	return school.Parent{}, school.ErrParentNotFound
}

// GetParentsByIDs skips unknown ids.
func (repo *ParentRepository) GetParentsByIDs(_ context.Context, ids ...string) ([]school.Parent, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	return selectRows(repo.db.parents, func(p school.Parent) bool { return lo.Contains(ids, p.ID) }, nil, nil), nil
}

func (repo *ParentRepository) UpdateParent(_ context.Context, p school.Parent, _ ...core.DBExecutor) (school.Parent, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	if !replace(repo.db.parents, p.ID, p) {
		return school.Parent{}, school.ErrParentNotFound
	}
	return p, nil
}

func (repo *ParentRepository) DeleteParent(_ context.Context, id string, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	delete(repo.db.parents, id)
	return nil
}
