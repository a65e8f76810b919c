package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/chaima229/fraisScolaire-backend-sub000/core"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/payment"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/scholarship"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/school"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/tariff"
)

var (
	Admin      = core.Actor{ID: "admin-1", Name: "Admin", Email: "admin@test.cd", Roles: []string{core.RoleAdmin}}
	Accountant = core.Actor{ID: "compta-1", Name: "Comptable", Email: "compta@test.cd", Roles: []string{core.RoleAccountant}}
	Secretary  = core.Actor{ID: "secr-1", Name: "Secretaire", Email: "secr@test.cd", Roles: []string{core.RoleSecretary}}
)

// CurrentYear is the academic year payments recorded now belong to.
func CurrentYear() string {
	return core.AcademicYear(time.Now(), time.September)
}

func Amount(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

func CreateClass(t *testing.T, env *Env, name string) school.Class {
	t.Helper()
	c, err := env.School.CreateClass(context.Background(), school.NewClass{
		Name:         name,
		Level:        "6e",
		Capacity:     30,
		AcademicYear: CurrentYear(),
	}, Admin)
	if err != nil {
		t.Fatalf("CreateClass() failed: %v", err)
	}
	return c
}

func CreateParent(t *testing.T, env *Env, name, email string) school.Parent {
	t.Helper()
	p, err := env.School.CreateParent(context.Background(), school.NewParent{Name: name, Email: email}, Admin)
	if err != nil {
		t.Fatalf("CreateParent() failed: %v", err)
	}
	return p
}

// StudentOption customizes the student created by CreateStudent.
type StudentOption func(ns *school.NewStudent)

func WithScholarship(id string) StudentOption {
	return func(ns *school.NewStudent) { ns.ScholarshipID = id }
}

func WithParents(ids ...string) StudentOption {
	return func(ns *school.NewStudent) { ns.ParentIDs = ids }
}

func WithNationality(nationality string) StudentOption {
	return func(ns *school.NewStudent) { ns.Nationality = nationality }
}

func WithExemptions(feeTypes ...string) StudentOption {
	return func(ns *school.NewStudent) { ns.Exemptions = feeTypes }
}

func CreateStudent(t *testing.T, env *Env, classID, lastName string, opts ...StudentOption) school.Student {
	t.Helper()
	ns := school.NewStudent{
		LastName:    lastName,
		FirstName:   "Test",
		ClassID:     classID,
		Nationality: "Congolaise",
	}
	for _, opt := range opts {
		opt(&ns)
	}
	s, err := env.School.CreateStudent(context.Background(), ns, Admin)
	if err != nil {
		t.Fatalf("CreateStudent() failed: %v", err)
	}
	return s
}

func CreateScholarship(t *testing.T, env *Env, name string, pct, fixed int64, exempt bool) scholarship.Scholarship {
	t.Helper()
	s, err := env.Scholarships.Create(context.Background(), scholarship.NewScholarship{
		Name:        name,
		Percentage:  decimal.NewFromInt(pct),
		FixedAmount: decimal.NewFromInt(fixed),
		IsExempt:    exempt,
	}, Admin)
	if err != nil {
		t.Fatalf("CreateScholarship() failed: %v", err)
	}
	return s
}

func CreateTariff(t *testing.T, env *Env, classID, nationality, feeType string, amount int64) tariff.Tariff {
	t.Helper()
	tr, err := env.Tariffs.Create(context.Background(), tariff.NewTariff{
		Amount:       decimal.NewFromInt(amount),
		ClassID:      classID,
		Nationality:  nationality,
		AcademicYear: CurrentYear(),
		FeeType:      feeType,
	}, Admin)
	if err != nil {
		t.Fatalf("CreateTariff() failed: %v", err)
	}
	return tr
}

func RecordPayment(t *testing.T, env *Env, studentID string, amount int64, invoiceIDs ...string) payment.Payment {
	t.Helper()
	p, err := env.Ledger.Record(context.Background(), payment.NewPayment{
		StudentID:  studentID,
		Amount:     decimal.NewFromInt(amount),
		Method:     payment.MethodCash,
		Payer:      "Parent",
		InvoiceIDs: invoiceIDs,
	}, Accountant)
	if err != nil {
		t.Fatalf("RecordPayment() failed: %v", err)
	}
	return p
}
