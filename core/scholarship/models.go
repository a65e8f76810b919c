package scholarship

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/chaima229/fraisScolaire-backend-sub000/core"
)

const EntityType = "scholarship"

type (
	Scholarship struct {
		ID          string          `json:"id"`
		Name        string          `json:"nom"`
		Percentage  decimal.Decimal `json:"pourcentage_remise"`
		FixedAmount decimal.Decimal `json:"montant_remise"`
		IsExempt    bool            `json:"exoneration"`
		CreatedAt   time.Time       `json:"created_at"`
		UpdatedAt   time.Time       `json:"updated_at"`
	}

	Repository interface {
		CreateScholarship(ctx context.Context, s Scholarship, exec ...core.DBExecutor) (Scholarship, error)
		QueryScholarships(ctx context.Context, filter QueryFilter, orderings ...core.DBOrdering) ([]Scholarship, error)
		GetScholarshipByID(ctx context.Context, id string) (Scholarship, error)
		ScholarshipNameExists(ctx context.Context, name string, excludedID string) (bool, error)
		UpdateScholarship(ctx context.Context, s Scholarship, exec ...core.DBExecutor) (Scholarship, error)
		DeleteScholarship(ctx context.Context, id string, exec ...core.DBExecutor) error
	}

	// StudentCounter reports how many students hold a scholarship.
	StudentCounter interface {
		CountStudentsWithScholarship(ctx context.Context, scholarshipID string) (int, error)
	}

	QueryFilter struct {
		Search string `query:"search"`
	}
)

var OrderingFields = []string{"nom", "created_at"}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}

// NewScholarship contains information needed to create a Scholarship.
type NewScholarship struct {
	Name        string          `json:"nom" validate:"required"`
	Percentage  decimal.Decimal `json:"pourcentage_remise" validate:"gte=0,lte=100,cents"`
	FixedAmount decimal.Decimal `json:"montant_remise" validate:"gte=0,cents"`
	IsExempt    bool            `json:"exoneration"`
}

func (ns *NewScholarship) Clean() {
	ns.Name = core.CleanString(ns.Name)
}

// UpdateScholarship defines what may be changed on an existing Scholarship.
type UpdateScholarship struct {
	Name        string           `json:"nom"`
	Percentage  *decimal.Decimal `json:"pourcentage_remise" validate:"omitempty,gte=0,lte=100,cents"`
	FixedAmount *decimal.Decimal `json:"montant_remise" validate:"omitempty,gte=0,cents"`
	IsExempt    *bool            `json:"exoneration"`
}

func (us *UpdateScholarship) Clean() {
	us.Name = core.CleanString(us.Name)
}
