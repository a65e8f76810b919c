package echoapi_test

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/chaima229/fraisScolaire-backend-sub000/apps/api/echo"
	"github.com/chaima229/fraisScolaire-backend-sub000/core"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/audit"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/outbox"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/payment"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/webhook"
	"github.com/chaima229/fraisScolaire-backend-sub000/testutil"
)

const receiverPath = "/v1/webhooks/recepteur"

func Test_webhookApi_receive(t *testing.T) {
	app, env := setup(t)
	class := testutil.CreateClass(t, env, "CM2")
	student := testutil.CreateStudent(t, env, class.ID, "Mulele")
	secret := env.Conf.Webhook.InboundSecret
	header := env.Conf.Webhook.SignatureHeader

	send := func(body []byte, signature string) (int, []byte) {
		req, rec := newRequest(http.MethodPost, receiverPath, body)
		if signature != "" {
			req.Header.Set(header, signature)
		}
		app.ServeHTTP(rec, req)
		return rec.Code, rec.Body.Bytes()
	}

	other := marchallObj(t, webhook.InboundEvent{ID: "evt-1", Event: "bank.statement", Data: json.RawMessage(`{"ok":true}`)})
	paymentData := marchallObj(t, map[string]interface{}{
		"etudiant_id": student.ID,
		"montantPaye": 20000,
		"methode":     payment.MethodTransfer,
		"payeur":      "Banque",
	})
	received := marchallObj(t, webhook.InboundEvent{ID: "evt-2", Event: webhook.InboundPaymentReceived, Data: paymentData})
	tooMuch := marchallObj(t, webhook.InboundEvent{
		ID:    "evt-3",
		Event: webhook.InboundPaymentReceived,
		Data: marchallObj(t, map[string]interface{}{
			"etudiant_id": student.ID, "montantPaye": 40000, "methode": payment.MethodTransfer,
		}),
	})

	t.Run("missing signature", func(t *testing.T) {
		code, body := send(other, "")
		assert.Equal(t, http.StatusForbidden, code)
		assert.JSONEq(t, `{"error":"invalid webhook signature"}`, string(body))
	})
	t.Run("wrong secret", func(t *testing.T) {
		code, _ := send(other, webhook.Sign(other, "not-the-inbound-secret"))
		assert.Equal(t, http.StatusForbidden, code)
	})
	t.Run("tampered body", func(t *testing.T) {
		code, _ := send(received, webhook.Sign(other, secret))
		assert.Equal(t, http.StatusForbidden, code)
	})
	t.Run("malformed body", func(t *testing.T) {
		body := []byte(`{"event":`)
		code, _ := send(body, webhook.Sign(body, secret))
		assert.Equal(t, http.StatusBadRequest, code)
	})
	t.Run("event required", func(t *testing.T) {
		body := []byte(`{"id":"evt-0"}`)
		code, _ := send(body, webhook.Sign(body, secret))
		assert.Equal(t, http.StatusBadRequest, code)
	})

	t.Run("other event is audited", func(t *testing.T) {
		code, body := send(other, webhook.Sign(other, secret))
		require.Equal(t, http.StatusAccepted, code, string(body))
		assert.JSONEq(t, `{"status":"accepted"}`, string(body))

		entries, err := env.Trail.Query(env.Ctx(), audit.QueryFilter{EntityType: webhook.EntityType, Action: audit.ActionReceive})
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "evt-1", entries[0].EntityID)
		assert.Equal(t, core.WebhookActor.ID, entries[0].UserID)
	})

	t.Run("payment received", func(t *testing.T) {
		code, body := send(received, webhook.Sign(received, secret))
		require.Equal(t, http.StatusCreated, code, string(body))

		var res PaymentResponse
		require.NoError(t, json.Unmarshal(body, &res))
		require.NotNil(t, res.InvoiceID)
		assert.Equal(t, core.WebhookActor.ID, res.Payment.RecordedBy)
		assert.True(t, res.Payment.Amount.Equal(decimal.NewFromInt(20000)))
		assert.True(t, res.Payment.Remaining.Equal(decimal.NewFromInt(36800)))
	})

	t.Run("payment over the cap", func(t *testing.T) {
		code, body := send(tooMuch, webhook.Sign(tooMuch, secret))
		require.Equal(t, http.StatusBadRequest, code, string(body))
		var cerr capErr
		require.NoError(t, json.Unmarshal(body, &cerr))
		assert.True(t, cerr.Remaining.Equal(decimal.NewFromInt(36800)))

		// a rejected event may be sent again
		code, _ = send(tooMuch, webhook.Sign(tooMuch, secret))
		assert.Equal(t, http.StatusBadRequest, code)
	})

	t.Run("replays are ignored", func(t *testing.T) {
		for _, body := range [][]byte{received, other} {
			code, res := send(body, webhook.Sign(body, secret))
			require.Equal(t, http.StatusOK, code, string(res))
			assert.JSONEq(t, `{"status":"duplicate"}`, string(res))
		}

		payments, err := env.Ledger.Query(env.Ctx(), payment.QueryFilter{StudentID: student.ID})
		require.NoError(t, err)
		assert.Len(t, payments, 1)
	})

	t.Run("body too large", func(t *testing.T) {
		body := []byte(`{"id":"evt-big","event":"bank.statement","data":"` + strings.Repeat("x", 300*1024) + `"}`)
		code, _ := send(body, webhook.Sign(body, secret))
		assert.Equal(t, http.StatusRequestEntityTooLarge, code)
	})
}

func Test_webhookApi_subscriptions(t *testing.T) {
	app, env := setup(t)
	adminToken := getToken(t, env, testutil.Admin)

	tests := []httpTest{
		{name: "Auth required", path: "/v1/webhooks", wantCode: http.StatusUnauthorized},
		{name: "Admin required", path: "/v1/webhooks", token: getToken(t, env, testutil.Accountant), wantCode: http.StatusForbidden},
		{
			name: "unknown event", method: http.MethodPost, path: "/v1/webhooks", token: adminToken,
			body:     marchallObj(t, map[string]interface{}{"url": "https://erp.test/hook", "events": []string{"lol"}}),
			wantCode: http.StatusBadRequest,
		},
		{
			name: "invalid url", method: http.MethodPost, path: "/v1/webhooks", token: adminToken,
			body:     marchallObj(t, map[string]interface{}{"url": "not a url", "events": []string{outbox.PaymentCreated}}),
			wantCode: http.StatusBadRequest,
		},
		{name: "unknown subscription", path: "/v1/webhooks/4b7e1a7e-1f3e-4c1e-9d5e-0c1f2a3b4c5d", token: adminToken, wantCode: http.StatusNotFound},
	}
	runHTTPTests(t, app, tests)

	req, rec := newAuthRequest(http.MethodPost, "/v1/webhooks", adminToken, marchallObj(t, map[string]interface{}{
		"url":    "https://erp.test/hook",
		"events": []string{outbox.PaymentCreated, outbox.InvoiceCreated},
	}))
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var sub webhook.Subscription
	unmarshallObj(t, rec, &sub)
	assert.NotEmpty(t, sub.Secret)
	assert.True(t, sub.Active)

	req, rec = newAuthRequest(http.MethodGet, "/v1/webhooks/"+sub.ID, adminToken)
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var got webhook.Subscription
	unmarshallObj(t, rec, &got)
	assert.Empty(t, got.Secret)

	// a payment queues payment.created and invoice.created for the subscription
	class := testutil.CreateClass(t, env, "CE1")
	student := testutil.CreateStudent(t, env, class.ID, "Kimbangu")
	testutil.RecordPayment(t, env, student.ID, 1000)

	n, err := env.Outbox.Drain(env.Ctx())
	require.NoError(t, err)
	assert.Positive(t, n)

	events := make([]string, 0)
	for _, d := range env.Sender.Deliveries() {
		assert.Equal(t, sub.ID, d.SubscriptionID)
		events = append(events, d.Event)
	}
	assert.ElementsMatch(t, []string{outbox.PaymentCreated, outbox.InvoiceCreated}, events)

	req, rec = newAuthRequest(http.MethodDelete, "/v1/webhooks/"+sub.ID, adminToken)
	app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	req, rec = newAuthRequest(http.MethodGet, "/v1/webhooks", adminToken)
	app.ServeHTTP(rec, req)
	assert.JSONEq(t, "[]", rec.Body.String())
}
