package tariff

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/chaima229/fraisScolaire-backend-sub000/core"
)

const EntityType = "tariff"

type (
	// Tariff is immutable once created: a new tariff for the same tuple supersedes it.
	Tariff struct {
		ID            string          `json:"id"`
		Amount        decimal.Decimal `json:"montant"`
		ClassID       string          `json:"classe_id"`
		Nationality   string          `json:"nationalite"`
		AcademicYear  string          `json:"annee_scolaire"`
		FeeType       string          `json:"type_frais"`
		ScholarshipID string          `json:"bourse_id,omitempty"`
		EndDate       *time.Time      `json:"date_fin,omitempty"`
		SupersededBy  string          `json:"remplace_par,omitempty"`
		SupersededAt  *time.Time      `json:"remplace_le,omitempty"`
		RetiredAt     *time.Time      `json:"retire_le,omitempty"`
		CreatedAt     time.Time       `json:"created_at"`
	}

	Repository interface {
		CreateTariff(ctx context.Context, t Tariff, exec ...core.DBExecutor) (Tariff, error)
		// QueryTariffs returns matching tariffs, oldest first unless orderings say otherwise.
		QueryTariffs(ctx context.Context, filter QueryFilter, orderings ...core.DBOrdering) ([]Tariff, error)
		GetTariffByID(ctx context.Context, id string) (Tariff, error)
		// MarkSuperseded and MarkRetired only touch lifecycle columns.
		MarkSuperseded(ctx context.Context, id, supersededBy string, at time.Time, exec ...core.DBExecutor) error
		MarkRetired(ctx context.Context, id string, at time.Time, exec ...core.DBExecutor) error
	}

	QueryFilter struct {
		ClassID      string `query:"classe_id"`
		AcademicYear string `query:"annee_scolaire"`
		FeeType      string `query:"type_frais"`
		Nationality  string `query:"nationalite"`

		// ScholarshipID filters on the tariff's scholarship; NoScholarship selects general tariffs only.
		ScholarshipID string `query:"bourse_id"`
		Active        *bool  `query:"-"`

		// ActiveAt is the instant Active is evaluated at; zero means now.
		ActiveAt time.Time `query:"-"`
	}
)

var OrderingFields = []string{"created_at", "montant", "annee_scolaire", "type_frais"}

// IsActive reports whether the tariff applies at `now`.
func (t Tariff) IsActive(now time.Time) bool {
	return t.SupersededBy == "" && t.RetiredAt == nil && (t.EndDate == nil || t.EndDate.After(now))
}

// NoScholarship is the QueryFilter.ScholarshipID value matching tariffs without a scholarship.
const NoScholarship = "-"

// SameTuple reports whether both tariffs share (class, year, nationality, fee type, scholarship).
// At most one tariff per tuple is active.
func (t Tariff) SameTuple(o Tariff) bool {
	return t.ClassID == o.ClassID &&
		t.AcademicYear == o.AcademicYear &&
		t.Nationality == o.Nationality &&
		t.FeeType == o.FeeType &&
		t.ScholarshipID == o.ScholarshipID
}

func (qf *QueryFilter) Clean() {
	qf.ClassID = core.CleanString(qf.ClassID)
	qf.AcademicYear = core.CleanString(qf.AcademicYear)
	qf.FeeType = core.CleanString(qf.FeeType)
	qf.Nationality = core.CleanString(qf.Nationality)
	qf.ScholarshipID = core.CleanString(qf.ScholarshipID)
}

func (qf QueryFilter) Match(t Tariff) bool {
	now := qf.ActiveAt
	if now.IsZero() {
		now = time.Now()
	}
	return (qf.ClassID == "" || t.ClassID == qf.ClassID) &&
		(qf.AcademicYear == "" || t.AcademicYear == qf.AcademicYear) &&
		(qf.FeeType == "" || t.FeeType == qf.FeeType) &&
		(qf.Nationality == "" || t.Nationality == qf.Nationality) &&
		qf.matchScholarship(t) &&
		(qf.Active == nil || t.IsActive(now) == *qf.Active)
}

func (qf QueryFilter) matchScholarship(t Tariff) bool {
	switch qf.ScholarshipID {
	case "":
		return true
	case NoScholarship:
		return t.ScholarshipID == ""
	default:
		return t.ScholarshipID == qf.ScholarshipID
	}
}

// CapQuery identifies the student a cap is resolved for.
type CapQuery struct {
	ClassID       string
	AcademicYear  string
	Nationality   string
	ScholarshipID string
}

// NewTariff contains information needed to create a Tariff.
type NewTariff struct {
	Amount        decimal.Decimal `json:"montant" validate:"gte=0,cents"`
	ClassID       string          `json:"classe_id" validate:"required,uuid"`
	Nationality   string          `json:"nationalite"`
	AcademicYear  string          `json:"annee_scolaire" validate:"required,academic_year"`
	FeeType       string          `json:"type_frais" validate:"required"`
	ScholarshipID string          `json:"bourse_id" validate:"omitempty,uuid"`
	EndDate       *time.Time      `json:"date_fin"`
}

func (nt *NewTariff) Clean() {
	nt.ClassID = core.CleanString(nt.ClassID)
	nt.Nationality = core.CleanString(nt.Nationality)
	nt.AcademicYear = core.CleanString(nt.AcademicYear)
	nt.FeeType = core.CleanString(nt.FeeType)
	nt.ScholarshipID = core.CleanString(nt.ScholarshipID)
}
