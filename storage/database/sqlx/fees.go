package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/chaima229/fraisScolaire-backend-sub000/core"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/scholarship"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/tariff"
)

// Scholarships

var scholarshipColumns = []string{
	"id", "nom", "pourcentage_remise", "montant_remise", "exoneration", "created_at", "updated_at",
}

type scholarshipRow struct {
	ID          string          `db:"id"`
	Name        string          `db:"nom"`
	Percentage  decimal.Decimal `db:"pourcentage_remise"`
	FixedAmount decimal.Decimal `db:"montant_remise"`
	IsExempt    bool            `db:"exoneration"`
	CreatedAt   time.Time       `db:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at"`
}

func (row scholarshipRow) scholarship() scholarship.Scholarship {
	return scholarship.Scholarship(row)
}

func newScholarshipRow(s scholarship.Scholarship) scholarshipRow {
	row := scholarshipRow(s)
	row.CreatedAt = row.CreatedAt.UTC()
	row.UpdatedAt = row.UpdatedAt.UTC()
	return row
}

type ScholarshipRepository struct {
	repo
}

var _ scholarship.Repository = (*ScholarshipRepository)(nil)

func NewScholarshipRepository(exec core.DBExecutor) *ScholarshipRepository {
	return &ScholarshipRepository{repo{exec: exec}}
}

func (r *ScholarshipRepository) CreateScholarship(ctx context.Context, s scholarship.Scholarship, exec ...core.DBExecutor) (scholarship.Scholarship, error) {
	if err := insertRow(ctx, r.getExec(exec), "scholarships", scholarshipColumns, newScholarshipRow(s)); err != nil {
		return scholarship.Scholarship{}, errors.Wrap(err, "inserting scholarship")
	}
	return s, nil
}

func (r *ScholarshipRepository) QueryScholarships(ctx context.Context, filter scholarship.QueryFilter, orderings ...core.DBOrdering) ([]scholarship.Scholarship, error) {
	b := psql.Select(scholarshipColumns...).From("scholarships")
	if filter.Search != "" {
		b = b.Where(sq.ILike{"nom": ilike(filter.Search)})
	}
	b = orderBy(b, orderings, map[string]string{"nom": "nom", "created_at": "created_at"}, "created_at ASC")

	var rows []scholarshipRow
	if err := r.selectAll(ctx, r.exec, &rows, b); err != nil {
		return nil, errors.Wrap(err, "querying scholarships")
	}
	scholarships := make([]scholarship.Scholarship, 0, len(rows))
	for _, row := range rows {
		scholarships = append(scholarships, row.scholarship())
	}
	return scholarships, nil
}

func (r *ScholarshipRepository) GetScholarshipByID(ctx context.Context, id string) (scholarship.Scholarship, error) {
	if !validID(id) {
		return scholarship.Scholarship{}, scholarship.ErrNotFound
	}
	var row scholarshipRow
	if err := r.get(ctx, r.exec, &row, psql.Select(scholarshipColumns...).From("scholarships").Where(sq.Eq{"id": id})); err != nil {
		return scholarship.Scholarship{}, trapNoRows(err, scholarship.ErrNotFound, "getting scholarship")
	}
	return row.scholarship(), nil
}

func (r *ScholarshipRepository) ScholarshipNameExists(ctx context.Context, name string, excludedID string) (bool, error) {
	b := psql.Select("1").From("scholarships").Where("LOWER(nom) = LOWER(?)", name)
	if excludedID != "" {
		b = b.Where(sq.NotEq{"id::text": excludedID})
	}
	exists, err := r.exists(ctx, b)
	return exists, errors.Wrap(err, "checking scholarship name")
}

func (r *ScholarshipRepository) UpdateScholarship(ctx context.Context, s scholarship.Scholarship, exec ...core.DBExecutor) (scholarship.Scholarship, error) {
	found, err := updateRow(ctx, r.getExec(exec), "scholarships", scholarshipColumns, newScholarshipRow(s))
	if err != nil {
		return scholarship.Scholarship{}, errors.Wrap(err, "updating scholarship")
	}
	if !found {
		return scholarship.Scholarship{}, scholarship.ErrNotFound
	}
	return s, nil
}

func (r *ScholarshipRepository) DeleteScholarship(ctx context.Context, id string, exec ...core.DBExecutor) error {
	_, err := r.run(ctx, r.getExec(exec), psql.Delete("scholarships").Where(sq.Eq{"id": id}))
	return errors.Wrap(err, "deleting scholarship")
}

// Tariffs

var tariffColumns = []string{
	"id", "montant", "classe_id", "nationalite", "annee_scolaire", "type_frais", "bourse_id",
	"date_fin", "remplace_par", "remplace_le", "retire_le", "created_at",
}

type tariffRow struct {
	ID            string          `db:"id"`
	Amount        decimal.Decimal `db:"montant"`
	ClassID       string          `db:"classe_id"`
	Nationality   string          `db:"nationalite"`
	AcademicYear  string          `db:"annee_scolaire"`
	FeeType       string          `db:"type_frais"`
	ScholarshipID null.String     `db:"bourse_id"`
	EndDate       null.Time       `db:"date_fin"`
	SupersededBy  null.String     `db:"remplace_par"`
	SupersededAt  null.Time       `db:"remplace_le"`
	RetiredAt     null.Time       `db:"retire_le"`
	CreatedAt     time.Time       `db:"created_at"`
}

func (row tariffRow) tariff() tariff.Tariff {
	return tariff.Tariff{
		ID:            row.ID,
		Amount:        row.Amount,
		ClassID:       row.ClassID,
		Nationality:   row.Nationality,
		AcademicYear:  row.AcademicYear,
		FeeType:       row.FeeType,
		ScholarshipID: row.ScholarshipID.String,
		EndDate:       row.EndDate.Ptr(),
		SupersededBy:  row.SupersededBy.String,
		SupersededAt:  row.SupersededAt.Ptr(),
		RetiredAt:     row.RetiredAt.Ptr(),
		CreatedAt:     row.CreatedAt,
	}
}

func newTariffRow(t tariff.Tariff) tariffRow {
	return tariffRow{
		ID:            t.ID,
		Amount:        t.Amount,
		ClassID:       t.ClassID,
		Nationality:   t.Nationality,
		AcademicYear:  t.AcademicYear,
		FeeType:       t.FeeType,
		ScholarshipID: nullString(t.ScholarshipID),
		EndDate:       nullTime(t.EndDate),
		SupersededBy:  nullString(t.SupersededBy),
		SupersededAt:  nullTime(t.SupersededAt),
		RetiredAt:     nullTime(t.RetiredAt),
		CreatedAt:     t.CreatedAt.UTC(),
	}
}

type TariffRepository struct {
	repo
}

var _ tariff.Repository = (*TariffRepository)(nil)

func NewTariffRepository(exec core.DBExecutor) *TariffRepository {
	return &TariffRepository{repo{exec: exec}}
}

func (r *TariffRepository) CreateTariff(ctx context.Context, t tariff.Tariff, exec ...core.DBExecutor) (tariff.Tariff, error) {
	if err := insertRow(ctx, r.getExec(exec), "tariffs", tariffColumns, newTariffRow(t)); err != nil {
		return tariff.Tariff{}, errors.Wrap(err, "inserting tariff")
	}
	return t, nil
}

func (r *TariffRepository) QueryTariffs(ctx context.Context, filter tariff.QueryFilter, orderings ...core.DBOrdering) ([]tariff.Tariff, error) {
	b := psql.Select(tariffColumns...).From("tariffs")
	if filter.ClassID != "" {
		b = b.Where(eqID("classe_id", filter.ClassID))
	}
	if filter.AcademicYear != "" {
		b = b.Where(sq.Eq{"annee_scolaire": filter.AcademicYear})
	}
	if filter.FeeType != "" {
		b = b.Where(sq.Eq{"type_frais": filter.FeeType})
	}
	if filter.Nationality != "" {
		b = b.Where(sq.Eq{"nationalite": filter.Nationality})
	}
	switch filter.ScholarshipID {
	case "":
	case tariff.NoScholarship:
		b = b.Where(sq.Eq{"bourse_id": nil})
	default:
		b = b.Where(eqID("bourse_id", filter.ScholarshipID))
	}
	if filter.Active != nil {
		now := filter.ActiveAt
		if now.IsZero() {
			now = time.Now()
		}
		active := sq.And{
			sq.Eq{"remplace_par": nil},
			sq.Eq{"retire_le": nil},
			sq.Or{sq.Eq{"date_fin": nil}, sq.Gt{"date_fin": now.UTC()}},
		}
		if *filter.Active {
			b = b.Where(active)
		} else {
			b = b.Where(sq.Expr("NOT (?)", active))
		}
	}
	b = orderBy(b, orderings, map[string]string{
		"created_at":     "created_at",
		"montant":        "montant",
		"annee_scolaire": "annee_scolaire",
		"type_frais":     "type_frais",
	}, "created_at ASC")

	var rows []tariffRow
	if err := r.selectAll(ctx, r.exec, &rows, b); err != nil {
		return nil, errors.Wrap(err, "querying tariffs")
	}
	tariffs := make([]tariff.Tariff, 0, len(rows))
	for _, row := range rows {
		tariffs = append(tariffs, row.tariff())
	}
	return tariffs, nil
}

func (r *TariffRepository) GetTariffByID(ctx context.Context, id string) (tariff.Tariff, error) {
	if !validID(id) {
		return tariff.Tariff{}, tariff.ErrNotFound
	}
	var row tariffRow
	if err := r.get(ctx, r.exec, &row, psql.Select(tariffColumns...).From("tariffs").Where(sq.Eq{"id": id})); err != nil {
		return tariff.Tariff{}, trapNoRows(err, tariff.ErrNotFound, "getting tariff")
	}
	return row.tariff(), nil
}

func (r *TariffRepository) MarkSuperseded(ctx context.Context, id, supersededBy string, at time.Time, exec ...core.DBExecutor) error {
	n, err := r.run(ctx, r.getExec(exec), psql.Update("tariffs").
		Set("remplace_par", supersededBy).
		Set("remplace_le", at.UTC()).
		Where(sq.Eq{"id": id}))
	if err != nil {
		return errors.Wrap(err, "superseding tariff")
	}
	if n == 0 {
		return tariff.ErrNotFound
	}
	return nil
}

func (r *TariffRepository) MarkRetired(ctx context.Context, id string, at time.Time, exec ...core.DBExecutor) error {
	n, err := r.run(ctx, r.getExec(exec), psql.Update("tariffs").Set("retire_le", at.UTC()).Where(sq.Eq{"id": id}))
	if err != nil {
		return errors.Wrap(err, "retiring tariff")
	}
	if n == 0 {
		return tariff.ErrNotFound
	}
	return nil
}
