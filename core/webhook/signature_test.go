package webhook

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/chaima229/fraisScolaire-backend-sub000/core/outbox"
)

const fox = "The quick brown fox jumps over the lazy dog"

func TestSign(t *testing.T) {
	assert.Equal(t,
		"sha256=f7bc83f430538424b13298e6aa6fb143ef4d59a14946175997479dbc2d1a3cd8",
		Sign([]byte(fox), "key"),
	)
}

func TestVerify(t *testing.T) {
	body := []byte(`{"event":"payment.received"}`)
	valid := Sign(body, "s3cr3t")

	tests := []struct {
		name      string
		body      []byte
		secret    string
		signature string
		wantErr   error
	}{
		{name: "valid", body: body, secret: "s3cr3t", signature: valid},
		{name: "no signature", body: body, secret: "s3cr3t", signature: "", wantErr: ErrInvalidSignature},
		{name: "no prefix", body: body, secret: "s3cr3t", signature: valid[len(signaturePrefix):], wantErr: ErrInvalidSignature},
		{name: "not hex", body: body, secret: "s3cr3t", signature: "sha256=zz", wantErr: ErrInvalidSignature},
		{name: "other secret", body: body, secret: "other", signature: valid, wantErr: ErrInvalidSignature},
		{name: "tampered body", body: []byte(`{"event":"payment.receivee"}`), secret: "s3cr3t", signature: valid, wantErr: ErrInvalidSignature},
		{name: "no secret configured", body: body, secret: "", signature: Sign(body, ""), wantErr: ErrInvalidSignature},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantErr, Verify(tt.body, tt.secret, tt.signature))
		})
	}
}

func Test_generateSecret(t *testing.T) {
	a, err := generateSecret()
	assert.NoError(t, err)
	b, err := generateSecret()
	assert.NoError(t, err)
	assert.Len(t, a, 48)
	assert.NotEqual(t, a, b)
}

func TestSubscription_Wants(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name string
		sub  Subscription
		want bool
	}{
		{name: "subscribed", sub: Subscription{Active: true, Events: []string{outbox.PaymentCreated}}, want: true},
		{name: "wildcard", sub: Subscription{Active: true, Events: []string{outbox.AllEvents}}, want: true},
		{name: "other event", sub: Subscription{Active: true, Events: []string{outbox.InvoiceCreated}}, want: false},
		{name: "inactive", sub: Subscription{Events: []string{outbox.PaymentCreated}}, want: false},
		{name: "deleted", sub: Subscription{Active: true, DeletedAt: &now, Events: []string{outbox.PaymentCreated}}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.sub.Wants(outbox.PaymentCreated))
		})
	}
}
