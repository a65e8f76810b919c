package inmemdb

import (
	"context"
	"strings"
	"time"

	"github.com/chaima229/fraisScolaire-backend-sub000/core"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/scholarship"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/tariff"
)

var (
	scholarshipKeys = map[string]func(scholarship.Scholarship) interface{}{
		"nom":        func(s scholarship.Scholarship) interface{} { return s.Name },
		"created_at": func(s scholarship.Scholarship) interface{} { return s.CreatedAt },
	}
	tariffKeys = map[string]func(tariff.Tariff) interface{}{
		"created_at":     func(t tariff.Tariff) interface{} { return t.CreatedAt },
		"montant":        func(t tariff.Tariff) interface{} { return t.Amount },
		"annee_scolaire": func(t tariff.Tariff) interface{} { return t.AcademicYear },
		"type_frais":     func(t tariff.Tariff) interface{} { return t.FeeType },
	}
)

// Scholarships

type ScholarshipRepository struct {
	db *DB
}

var _ scholarship.Repository = (*ScholarshipRepository)(nil)

func NewScholarshipRepository(db *DB) *ScholarshipRepository {
	return &ScholarshipRepository{db: db}
}

func (repo *ScholarshipRepository) CreateScholarship(_ context.Context, s scholarship.Scholarship, _ ...core.DBExecutor) (scholarship.Scholarship, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	insert(repo.db, repo.db.scholarships, s.ID, s)
	return s, nil
}

func (repo *ScholarshipRepository) QueryScholarships(_ context.Context, filter scholarship.QueryFilter, orderings ...core.DBOrdering) ([]scholarship.Scholarship, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	search := strings.ToLower(filter.Search)
	match := func(s scholarship.Scholarship) bool {
		return search == "" || strings.Contains(strings.ToLower(s.Name), search)
	}
	return selectRows(repo.db.scholarships, match, orderings, scholarshipKeys), nil
}

func (repo *ScholarshipRepository) GetScholarshipByID(_ context.Context, id string) (scholarship.Scholarship, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	if r, ok := repo.db.scholarships[id]; ok {
		return r.val, nil
	}
	return scholarship.Scholarship{}, scholarship.ErrNotFound
}

func (repo *ScholarshipRepository) ScholarshipNameExists(_ context.Context, name string, excludedID string) (bool, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	for id, r := range repo.db.scholarships {
		if id != excludedID && compare(r.val.Name, name) == 0 {
			return true, nil
		}
	}
	return false, nil
}

func (repo *ScholarshipRepository) UpdateScholarship(_ context.Context, s scholarship.Scholarship, _ ...core.DBExecutor) (scholarship.Scholarship, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	if !replace(repo.db.scholarships, s.ID, s) {
		return scholarship.Scholarship{}, scholarship.ErrNotFound
	}
	return s, nil
}

func (repo *ScholarshipRepository) DeleteScholarship(_ context.Context, id string, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	delete(repo.db.scholarships, id)
	return nil
}

// Tariffs

type TariffRepository struct {
	db *DB
}

var _ tariff.Repository = (*TariffRepository)(nil)

func NewTariffRepository(db *DB) *TariffRepository {
	return &TariffRepository{db: db}
}

func (repo *TariffRepository) CreateTariff(_ context.Context, t tariff.Tariff, _ ...core.DBExecutor) (tariff.Tariff, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	insert(repo.db, repo.db.tariffs, t.ID, t)
	return t, nil
}

func (repo *TariffRepository) QueryTariffs(_ context.Context, filter tariff.QueryFilter, orderings ...core.DBOrdering) ([]tariff.Tariff, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	return selectRows(repo.db.tariffs, filter.Match, orderings, tariffKeys), nil
}

func (repo *TariffRepository) GetTariffByID(_ context.Context, id string) (tariff.Tariff, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	if r, ok := repo.db.tariffs[id]; ok {
		return r.val, nil
	}
	return tariff.Tariff{}, tariff.ErrNotFound
}

func (repo *TariffRepository) MarkSuperseded(_ context.Context, id, supersededBy string, at time.Time, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	r, ok := repo.db.tariffs[id]
	if !ok {
		return tariff.ErrNotFound
	}
	r.val.SupersededBy = supersededBy
	r.val.SupersededAt = &at
	repo.db.tariffs[id] = r
	return nil
}

func (repo *TariffRepository) MarkRetired(_ context.Context, id string, at time.Time, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	r, ok := repo.db.tariffs[id]
	if !ok {
		return tariff.ErrNotFound
	}
	r.val.RetiredAt = &at
	repo.db.tariffs[id] = r
	return nil
}
