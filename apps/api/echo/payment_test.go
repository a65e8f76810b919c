package echoapi_test

import (
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/chaima229/fraisScolaire-backend-sub000/apps/api/echo"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/invoice"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/payment"
	"github.com/chaima229/fraisScolaire-backend-sub000/testutil"
)

type capErr struct {
	Error     string          `json:"error"`
	Due       decimal.Decimal `json:"montant_du"`
	Paid      decimal.Decimal `json:"montant_payee"`
	Remaining decimal.Decimal `json:"montant_restant"`
}

func paymentBody(t *testing.T, studentID string, amount int64, invoiceIDs ...string) []byte {
	return marchallObj(t, map[string]interface{}{
		"etudiant_id": studentID,
		"montantPaye": amount,
		"methode":     payment.MethodCash,
		"payeur":      "Parent",
		"facture_ids": invoiceIDs,
	})
}

func postPayment(t *testing.T, app *Server, token string, body []byte) (PaymentResponse, int, []byte) {
	req, rec := newAuthRequest(http.MethodPost, "/v1/paiements", token, body)
	app.ServeHTTP(rec, req)
	var res PaymentResponse
	if rec.Code == http.StatusCreated {
		unmarshallObj(t, rec, &res)
	}
	return res, rec.Code, rec.Body.Bytes()
}

func Test_paymentApi_access(t *testing.T) {
	app, env := setup(t)
	class := testutil.CreateClass(t, env, "6e A")
	student := testutil.CreateStudent(t, env, class.ID, "Kabila")

	tests := []httpTest{
		{name: "Auth required", path: "/v1/paiements", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "Bad token", path: "/v1/paiements", token: "not-a-token", wantCode: http.StatusUnauthorized,
		},
		{
			name: "Secretary forbidden", path: "/v1/paiements", token: getToken(t, env, testutil.Secretary),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "Secretary cannot record", method: http.MethodPost, path: "/v1/paiements",
			body: paymentBody(t, student.ID, 1000), token: getToken(t, env, testutil.Secretary),
			wantCode: http.StatusForbidden,
		},
		{
			name: "Accountant allowed", path: "/v1/paiements", token: getToken(t, env, testutil.Accountant),
			wantCode: http.StatusOK, wantData: []byte("[]"),
		},
	}
	runHTTPTests(t, app, tests)
}

func Test_paymentApi_create(t *testing.T) {
	app, env := setup(t)
	token := getToken(t, env, testutil.Accountant)
	class := testutil.CreateClass(t, env, "6e A")
	student := testutil.CreateStudent(t, env, class.ID, "Lumumba")

	tests := []httpTest{
		{
			name: "invalid method", method: http.MethodPost, path: "/v1/paiements", token: token,
			body: marchallObj(t, map[string]interface{}{
				"etudiant_id": student.ID, "montantPaye": 100, "methode": "bitcoin",
			}),
			wantCode: http.StatusBadRequest,
		},
		{
			name: "zero amount", method: http.MethodPost, path: "/v1/paiements", token: token,
			body: paymentBody(t, student.ID, 0), wantCode: http.StatusBadRequest,
		},
		{
			name: "missing student", method: http.MethodPost, path: "/v1/paiements", token: token,
			body: marchallObj(t, map[string]interface{}{"montantPaye": 100, "methode": payment.MethodCash}),
			wantCode: http.StatusBadRequest,
		},
		{
			name: "unknown student", method: http.MethodPost, path: "/v1/paiements", token: token,
			body: paymentBody(t, "4b7e1a7e-1f3e-4c1e-9d5e-0c1f2a3b4c5d", 100), wantCode: http.StatusNotFound,
		},
		{
			name: "unknown invoice", method: http.MethodPost, path: "/v1/paiements", token: token,
			body: paymentBody(t, student.ID, 100, "4b7e1a7e-1f3e-4c1e-9d5e-0c1f2a3b4c5d"), wantCode: http.StatusBadRequest,
		},
		{
			name: "malformed body", method: http.MethodPost, path: "/v1/paiements", token: token,
			body: []byte(`{"montantPaye":`), wantCode: http.StatusBadRequest,
		},
	}
	runHTTPTests(t, app, tests)

	t.Run("default cap is 56800", func(t *testing.T) {
		res, code, body := postPayment(t, app, token, paymentBody(t, student.ID, 56800))
		require.Equal(t, http.StatusCreated, code, string(body))
		require.NotNil(t, res.InvoiceID)
		assert.True(t, res.Payment.Due.Equal(decimal.NewFromInt(56800)))
		assert.True(t, res.Payment.Remaining.IsZero())
		assert.Equal(t, []string{*res.InvoiceID}, res.Payment.InvoiceIDs)

		inv, err := env.Invoices.GetByID(env.Ctx(), *res.InvoiceID)
		require.NoError(t, err)
		assert.Equal(t, invoice.StatusPaid, inv.Status)
		assert.True(t, inv.Total.Equal(decimal.NewFromInt(56800)))

		_, code, body = postPayment(t, app, token, paymentBody(t, student.ID, 1))
		require.Equal(t, http.StatusBadRequest, code, string(body))
		var cerr capErr
		require.NoError(t, jsonUnmarshal(body, &cerr))
		assert.NotEmpty(t, cerr.Error)
		assert.True(t, cerr.Due.Equal(decimal.NewFromInt(56800)))
		assert.True(t, cerr.Paid.Equal(decimal.NewFromInt(56800)))
		assert.True(t, cerr.Remaining.IsZero())
	})
}

func Test_paymentApi_create_scholarship(t *testing.T) {
	app, env := setup(t)
	token := getToken(t, env, testutil.Accountant)
	class := testutil.CreateClass(t, env, "5e B")

	half := testutil.CreateScholarship(t, env, "Mérite 50%", 50, 0, false)
	fixed := testutil.CreateScholarship(t, env, "Forfait", 0, 6000, false)
	exempt := testutil.CreateScholarship(t, env, "Exonération", 80, 0, true)

	tests := []struct {
		name    string
		student func() string
		wantCap int64
	}{
		{"percentage", func() string { return testutil.CreateStudent(t, env, class.ID, "A", testutil.WithScholarship(half.ID)).ID }, 28800},
		{"fixed", func() string { return testutil.CreateStudent(t, env, class.ID, "B", testutil.WithScholarship(fixed.ID)).ID }, 50800},
		{"exempt wins", func() string { return testutil.CreateStudent(t, env, class.ID, "C", testutil.WithScholarship(exempt.ID)).ID }, 800},
		{
			"exempt from other fees",
			func() string {
				return testutil.CreateStudent(t, env, class.ID, "D", testutil.WithExemptions(env.Conf.Fees.OtherFeesType)).ID
			},
			56000,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			studentID := tt.student()

			_, code, body := postPayment(t, app, token, paymentBody(t, studentID, tt.wantCap+1))
			require.Equal(t, http.StatusBadRequest, code, string(body))
			var cerr capErr
			require.NoError(t, jsonUnmarshal(body, &cerr))
			assert.True(t, cerr.Due.Equal(decimal.NewFromInt(tt.wantCap)), "cap = %s", cerr.Due)
			assert.True(t, cerr.Remaining.Equal(decimal.NewFromInt(tt.wantCap)))

			res, code, body := postPayment(t, app, token, paymentBody(t, studentID, tt.wantCap))
			require.Equal(t, http.StatusCreated, code, string(body))
			assert.True(t, res.Payment.Remaining.IsZero())
		})
	}
}

func Test_paymentApi_cases(t *testing.T) {
	app, env := setup(t)
	token := getToken(t, env, testutil.Accountant)
	class := testutil.CreateClass(t, env, "4e")
	student := testutil.CreateStudent(t, env, class.ID, "Tshisekedi")
	p := testutil.RecordPayment(t, env, student.ID, 10000)
	path := "/v1/paiements/" + p.ID

	reason := marchallObj(t, map[string]string{"motif": "montant contesté"})
	resolved := marchallObj(t, map[string]string{"decision": payment.CaseResolved})
	rejected := marchallObj(t, map[string]string{"decision": payment.CaseRejected})
	update := marchallObj(t, map[string]interface{}{"montantPaye": 5000})

	// order matters: each step moves the state machines forward
	tests := []httpTest{
		{name: "resolve without dispute", method: http.MethodPost, path: path + "/litige/resolution", token: token, body: resolved, wantCode: http.StatusBadRequest},
		{name: "reason required", method: http.MethodPost, path: path + "/litige", token: token, body: []byte(`{}`), wantCode: http.StatusBadRequest},
		{name: "open dispute", method: http.MethodPost, path: path + "/litige", token: token, body: reason, wantCode: http.StatusOK},
		{name: "open dispute twice", method: http.MethodPost, path: path + "/litige", token: token, body: reason, wantCode: http.StatusBadRequest},
		{name: "update while pending", method: http.MethodPut, path: path, token: token, body: update, wantCode: http.StatusConflict},
		{name: "delete while pending", method: http.MethodDelete, path: path, token: token, wantCode: http.StatusConflict},
		{
			name: "unknown decision", method: http.MethodPost, path: path + "/litige/resolution", token: token,
			body: marchallObj(t, map[string]string{"decision": "pending"}), wantCode: http.StatusBadRequest,
		},
		{name: "resolve dispute", method: http.MethodPost, path: path + "/litige/resolution", token: token, body: resolved, wantCode: http.StatusOK},
		{name: "resolve dispute twice", method: http.MethodPost, path: path + "/litige/resolution", token: token, body: rejected, wantCode: http.StatusBadRequest},
		{name: "reopen dispute", method: http.MethodPost, path: path + "/litige", token: token, body: reason, wantCode: http.StatusBadRequest},
		{name: "update once settled", method: http.MethodPut, path: path, token: token, body: update, wantCode: http.StatusOK},
		{name: "request refund", method: http.MethodPost, path: path + "/remboursement", token: token, body: reason, wantCode: http.StatusOK},
		{name: "reject refund", method: http.MethodPost, path: path + "/remboursement/resolution", token: token, body: rejected, wantCode: http.StatusOK},
		{name: "delete", method: http.MethodDelete, path: path, token: token, wantCode: http.StatusNoContent},
		{name: "gone", path: path, token: token, wantCode: http.StatusNotFound},
		{name: "malformed id", path: "/v1/paiements/lol", token: token, wantCode: http.StatusNotFound},
	}
	runHTTPTests(t, app, tests)

	entries, err := env.Trail.Query(env.Ctx(), auditFilter(p.ID))
	require.NoError(t, err)
	assert.Len(t, entries, 7) // create, dispute x2, update, refund x2, delete
}

func Test_paymentApi_update_cap(t *testing.T) {
	app, env := setup(t)
	token := getToken(t, env, testutil.Accountant)
	class := testutil.CreateClass(t, env, "3e")
	student := testutil.CreateStudent(t, env, class.ID, "Mobutu")
	p1 := testutil.RecordPayment(t, env, student.ID, 40000)
	testutil.RecordPayment(t, env, student.ID, 10000)

	tests := []httpTest{
		{
			name: "above cap", method: http.MethodPut, path: "/v1/paiements/" + p1.ID, token: token,
			body: marchallObj(t, map[string]interface{}{"montantPaye": 46801}), wantCode: http.StatusBadRequest,
		},
		{
			name: "up to the cap", method: http.MethodPut, path: "/v1/paiements/" + p1.ID, token: token,
			body: marchallObj(t, map[string]interface{}{"montantPaye": 46800}), wantCode: http.StatusOK,
		},
	}
	runHTTPTests(t, app, tests)

	bal, err := env.Ledger.Balance(env.Ctx(), student.ID)
	require.NoError(t, err)
	assert.True(t, bal.Remaining.IsZero())
}
