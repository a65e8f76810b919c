package echoapi_test

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/chaima229/fraisScolaire-backend-sub000/apps/api/echo"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/invoice"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/school"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/tariff"
	"github.com/chaima229/fraisScolaire-backend-sub000/testutil"
)

func Test_schoolApi(t *testing.T) {
	app, env := setup(t)
	secrToken := getToken(t, env, testutil.Secretary)
	comptaToken := getToken(t, env, testutil.Accountant)
	classBody := marchallObj(t, map[string]interface{}{
		"nom": "1ère A", "niveau": "1ère", "capacite": 1, "annee_scolaire": testutil.CurrentYear(),
	})

	tests := []httpTest{
		{name: "Accountant cannot create", method: http.MethodPost, path: "/v1/classes", token: comptaToken, body: classBody, wantCode: http.StatusForbidden},
		{
			name: "bad academic year", method: http.MethodPost, path: "/v1/classes", token: secrToken,
			body:     marchallObj(t, map[string]interface{}{"nom": "X", "niveau": "X", "annee_scolaire": "2024"}),
			wantCode: http.StatusBadRequest,
		},
		{name: "Secretary creates", method: http.MethodPost, path: "/v1/classes", token: secrToken, body: classBody, wantCode: http.StatusCreated},
		{name: "duplicate", method: http.MethodPost, path: "/v1/classes", token: secrToken, body: classBody, wantCode: http.StatusConflict},
		{name: "Accountant reads", path: "/v1/classes", token: comptaToken, wantCode: http.StatusOK},
	}
	runHTTPTests(t, app, tests)

	classes, err := env.School.QueryClasses(env.Ctx(), school.ClassFilter{})
	require.NoError(t, err)
	require.Len(t, classes, 1)
	class := classes[0]
	parent := testutil.CreateParent(t, env, "Maman Kabila", "maman@test.cd")

	req, rec := newAuthRequest(http.MethodPost, "/v1/etudiants", secrToken, marchallObj(t, map[string]interface{}{
		"nom": "Kabila", "prenom": "Joseph", "classe_id": class.ID, "nationalite": "Congolaise",
		"parent_ids": []string{parent.ID},
	}))
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var student school.Student
	unmarshallObj(t, rec, &student)

	testutil.RecordPayment(t, env, student.ID, 6800)

	req, rec = newAuthRequest(http.MethodGet, "/v1/etudiants/"+student.ID+"/situation", comptaToken)
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var situation SituationResponse
	unmarshallObj(t, rec, &situation)
	assert.Equal(t, student.ID, situation.Student.ID)
	assert.True(t, situation.Balance.Due.Equal(decimal.NewFromInt(56800)))
	assert.True(t, situation.Balance.Paid.Equal(decimal.NewFromInt(6800)))
	assert.True(t, situation.Balance.Remaining.Equal(decimal.NewFromInt(50000)))
	require.Len(t, situation.Parents, 1)
	assert.Equal(t, parent.ID, situation.Parents[0].ID)

	tests = []httpTest{
		{name: "class has students", method: http.MethodDelete, path: "/v1/classes/" + class.ID, token: secrToken, wantCode: http.StatusConflict},
		{name: "parent is linked", method: http.MethodDelete, path: "/v1/parents/" + parent.ID, token: secrToken, wantCode: http.StatusConflict},
		{name: "student has payments", method: http.MethodDelete, path: "/v1/etudiants/" + student.ID, token: secrToken, wantCode: http.StatusConflict},
		{name: "unknown student", path: "/v1/etudiants/4b7e1a7e-1f3e-4c1e-9d5e-0c1f2a3b4c5d/situation", token: comptaToken, wantCode: http.StatusNotFound},
	}
	runHTTPTests(t, app, tests)
}

func Test_feesApi_tariffs(t *testing.T) {
	app, env := setup(t)
	adminToken := getToken(t, env, testutil.Admin)
	class := testutil.CreateClass(t, env, "Terminale")
	local := testutil.CreateStudent(t, env, class.ID, "Local")
	foreign := testutil.CreateStudent(t, env, class.ID, "Foreign", testutil.WithNationality("Belge"))
	tuition := env.Conf.Fees.TuitionType

	postTariff := func(nationality string, amount int64) tariff.Tariff {
		req, rec := newAuthRequest(http.MethodPost, "/v1/tarifs", adminToken, marchallObj(t, map[string]interface{}{
			"montant": amount, "classe_id": class.ID, "nationalite": nationality,
			"annee_scolaire": testutil.CurrentYear(), "type_frais": tuition,
		}))
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var tr tariff.Tariff
		unmarshallObj(t, rec, &tr)
		return tr
	}
	dueOf := func(studentID string) decimal.Decimal {
		bal, err := env.Ledger.Balance(env.Ctx(), studentID)
		require.NoError(t, err)
		return bal.Due
	}

	tests := []httpTest{
		{
			name: "Admin required", method: http.MethodPost, path: "/v1/tarifs", token: getToken(t, env, testutil.Accountant),
			body: []byte(`{}`), wantCode: http.StatusForbidden,
		},
		{
			name: "negative amount", method: http.MethodPost, path: "/v1/tarifs", token: adminToken,
			body: marchallObj(t, map[string]interface{}{
				"montant": -1, "classe_id": class.ID, "annee_scolaire": testutil.CurrentYear(), "type_frais": tuition,
			}),
			wantCode: http.StatusBadRequest,
		},
		{
			name: "unknown class", method: http.MethodPost, path: "/v1/tarifs", token: adminToken,
			body: marchallObj(t, map[string]interface{}{
				"montant": 1, "classe_id": "4b7e1a7e-1f3e-4c1e-9d5e-0c1f2a3b4c5d", "annee_scolaire": testutil.CurrentYear(), "type_frais": tuition,
			}),
			wantCode: http.StatusBadRequest,
		},
	}
	runHTTPTests(t, app, tests)

	assert.True(t, dueOf(local.ID).Equal(decimal.NewFromInt(56800)), "defaults apply without tariff")

	first := postTariff("", 40000)
	second := postTariff("", 45000)
	assert.True(t, dueOf(local.ID).Equal(decimal.NewFromInt(45800)))
	assert.True(t, dueOf(foreign.ID).Equal(decimal.NewFromInt(45800)))

	req, rec := newAuthRequest(http.MethodGet, "/v1/tarifs/"+first.ID, adminToken)
	app.ServeHTTP(rec, req)
	var superseded tariff.Tariff
	unmarshallObj(t, rec, &superseded)
	assert.Equal(t, second.ID, superseded.SupersededBy)
	assert.NotNil(t, superseded.SupersededAt)
	assert.True(t, superseded.Amount.Equal(decimal.NewFromInt(40000)), "superseded tariffs are kept as is")

	v := url.Values{"classe_id": {class.ID}, "actif": {"true"}}
	req, rec = newAuthRequest(http.MethodGet, "/v1/tarifs?"+v.Encode(), adminToken)
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var active []tariff.Tariff
	unmarshallObj(t, rec, &active)
	require.Len(t, active, 1)
	assert.Equal(t, second.ID, active[0].ID)

	postTariff("Belge", 90000)
	assert.True(t, dueOf(foreign.ID).Equal(decimal.NewFromInt(90800)), "nationality match first")
	assert.True(t, dueOf(local.ID).Equal(decimal.NewFromInt(45800)), "then any nationality")

	req, rec = newAuthRequest(http.MethodDelete, "/v1/tarifs/"+second.ID, adminToken)
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, dueOf(local.ID).Equal(decimal.NewFromInt(90800)), "then the first live tariff")

	tests = []httpTest{
		{name: "retire twice", method: http.MethodDelete, path: "/v1/tarifs/" + second.ID, token: adminToken, wantCode: http.StatusConflict},
		{name: "retire superseded", method: http.MethodDelete, path: "/v1/tarifs/" + first.ID, token: adminToken, wantCode: http.StatusConflict},
	}
	runHTTPTests(t, app, tests)
}

func Test_invoiceApi(t *testing.T) {
	app, env := setup(t)
	token := getToken(t, env, testutil.Accountant)
	class := testutil.CreateClass(t, env, "2nde")
	student := testutil.CreateStudent(t, env, class.ID, "Mpiana")

	do := func(method, path string, body []byte, wantCode int) invoice.Invoice {
		t.Helper()
		req, rec := newAuthRequest(method, path, token, body)
		app.ServeHTTP(rec, req)
		require.Equal(t, wantCode, rec.Code, rec.Body.String())
		var inv invoice.Invoice
		if rec.Code < 300 {
			unmarshallObj(t, rec, &inv)
		}
		return inv
	}

	draft := do(http.MethodPost, "/v1/factures", marchallObj(t, map[string]interface{}{
		"etudiant_id": student.ID, "annee_scolaire": testutil.CurrentYear(), "brouillon": true,
		"lignes": []map[string]interface{}{{"libelle": "Scolarité", "type_frais": "Scolarité", "montant": 30000}},
	}), http.StatusCreated)
	assert.Equal(t, invoice.StatusPending, draft.Status)
	assert.Regexp(t, `^FAC-\d{4}-[0-9a-z]+$`, draft.Number)

	issued := do(http.MethodPost, "/v1/factures/"+draft.ID+"/emettre", nil, http.StatusOK)
	assert.Equal(t, invoice.StatusUnpaid, issued.Status)
	assert.NotNil(t, issued.IssuedAt)
	do(http.MethodPost, "/v1/factures/"+draft.ID+"/emettre", nil, http.StatusConflict)

	testutil.RecordPayment(t, env, student.ID, 10000, draft.ID)
	partial := do(http.MethodGet, "/v1/factures/"+draft.ID, nil, http.StatusOK)
	assert.Equal(t, invoice.StatusPartial, partial.Status)
	assert.True(t, partial.Remaining.Equal(decimal.NewFromInt(20000)))

	corr := do(http.MethodPost, "/v1/factures/"+draft.ID+"/rectifier", marchallObj(t, map[string]interface{}{
		"motif":  "erreur de montant",
		"lignes": []map[string]interface{}{{"libelle": "Scolarité", "type_frais": "Scolarité", "montant": 10000}},
	}), http.StatusCreated)
	assert.Equal(t, invoice.KindCorrective, corr.Kind)
	assert.Equal(t, draft.ID, corr.OriginalID)
	assert.Equal(t, invoice.StatusPaid, corr.Status)
	assert.True(t, corr.Paid.Equal(decimal.NewFromInt(10000)))

	orig := do(http.MethodGet, "/v1/factures/"+draft.ID, nil, http.StatusOK)
	assert.Equal(t, invoice.StatusCancelled, orig.Status)
	do(http.MethodPost, "/v1/factures/"+draft.ID+"/annuler", nil, http.StatusConflict)
	do(http.MethodPost, "/v1/factures/"+draft.ID+"/rectifier", marchallObj(t, map[string]interface{}{
		"motif": "encore", "lignes": []map[string]interface{}{{"libelle": "X", "montant": 1}},
	}), http.StatusConflict)

	// the payment followed the corrective invoice
	payments, err := env.Ledger.Query(env.Ctx(), paymentFilter(corr.ID))
	require.NoError(t, err)
	assert.Len(t, payments, 1)

	v := url.Values{"etudiant_id": {student.ID}, "statut": {invoice.StatusCancelled}}
	req, rec := newAuthRequest(http.MethodGet, "/v1/factures?"+v.Encode(), token)
	app.ServeHTTP(rec, req)
	var cancelled []invoice.Invoice
	unmarshallObj(t, rec, &cancelled)
	require.Len(t, cancelled, 1)
	assert.Equal(t, draft.ID, cancelled[0].ID)
}
