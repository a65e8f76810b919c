package tariff

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestTariff_IsActive(t *testing.T) {
	now := time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name string
		t    Tariff
		want bool
	}{
		{name: "live", t: Tariff{}, want: true},
		{name: "ends later", t: Tariff{EndDate: &future}, want: true},
		{name: "ended", t: Tariff{EndDate: &past}, want: false},
		{name: "ends now", t: Tariff{EndDate: &now}, want: false},
		{name: "superseded", t: Tariff{SupersededBy: "t2"}, want: false},
		{name: "retired", t: Tariff{RetiredAt: &past}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.t.IsActive(now))
		})
	}
}

func TestTariff_SameTuple(t *testing.T) {
	base := Tariff{ClassID: "c1", AcademicYear: "2024-2025", Nationality: "", FeeType: "Scolarité"}

	other := base
	other.Amount = decimal.NewFromInt(1)
	assert.True(t, base.SameTuple(other))

	other.Nationality = "Belge"
	assert.False(t, base.SameTuple(other))

	other = base
	other.AcademicYear = "2025-2026"
	assert.False(t, base.SameTuple(other))

	other = base
	other.ScholarshipID = "b1"
	assert.False(t, base.SameTuple(other))
}

func Test_pick(t *testing.T) {
	first := Tariff{ID: "first", Nationality: "Belge"}
	local := Tariff{ID: "local", Nationality: "Congolaise"}
	generic := Tariff{ID: "any"}

	tests := []struct {
		name        string
		tariffs     []Tariff
		nationality string
		wantID      string
		wantOk      bool
	}{
		{name: "none", wantOk: false},
		{name: "nationality first", tariffs: []Tariff{first, generic, local}, nationality: "Congolaise", wantID: "local", wantOk: true},
		{name: "any nationality next", tariffs: []Tariff{first, generic}, nationality: "Congolaise", wantID: "any", wantOk: true},
		{name: "first one last", tariffs: []Tariff{first, local}, nationality: "Française", wantID: "first", wantOk: true},
		{name: "no nationality never matches a specific one", tariffs: []Tariff{first, generic}, wantID: "any", wantOk: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := pick(tt.tariffs, tt.nationality)
			assert.Equal(t, tt.wantOk, ok)
			assert.Equal(t, tt.wantID, got.ID)
		})
	}
}

func TestQueryFilter_Match(t *testing.T) {
	now := time.Now()
	active, inactive := true, false
	past := now.Add(-time.Minute)
	live := Tariff{ClassID: "c1", AcademicYear: "2024-2025", FeeType: "Scolarité"}
	retired := Tariff{ClassID: "c1", AcademicYear: "2024-2025", FeeType: "Scolarité", RetiredAt: &past}

	assert.True(t, QueryFilter{}.Match(live))
	assert.True(t, QueryFilter{ClassID: "c1", Active: &active}.Match(live))
	assert.False(t, QueryFilter{Active: &active}.Match(retired))
	assert.True(t, QueryFilter{Active: &inactive}.Match(retired))
	assert.False(t, QueryFilter{FeeType: "Autres frais"}.Match(live))
	assert.False(t, QueryFilter{Nationality: "Belge"}.Match(live))

	funded := live
	funded.ScholarshipID = "b1"
	assert.True(t, QueryFilter{ScholarshipID: NoScholarship}.Match(live))
	assert.False(t, QueryFilter{ScholarshipID: NoScholarship}.Match(funded))
	assert.True(t, QueryFilter{ScholarshipID: "b1"}.Match(funded))
	assert.False(t, QueryFilter{ScholarshipID: "b1"}.Match(live))
}
