package webhooksvc

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaima229/fraisScolaire-backend-sub000/core"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/webhook"
	logsvc "github.com/chaima229/fraisScolaire-backend-sub000/services/logger"
)

func newTestSender(delays *[]time.Duration) *HTTPSender {
	conf := &core.Config{}
	conf.Webhook.Timeout = 5 * time.Second
	conf.Webhook.MaxRetries = 3
	conf.Webhook.BaseDelay = 100 * time.Millisecond

	s := NewHTTPSender(conf, logsvc.NewSilentLogger())
	s.sleep = func(_ context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
	return s
}

func TestHTTPSender_Send(t *testing.T) {
	body := []byte(`{"event":"payment.created"}`)
	sub := webhook.Subscription{ID: "sub-1", Secret: "0123456789abcdef"}

	t.Run("signs and succeeds after retries", func(t *testing.T) {
		var calls int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			n := atomic.AddInt32(&calls, 1)

			got, _ := io.ReadAll(r.Body)
			assert.Equal(t, body, got)
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "payment.created", r.Header.Get(EventHeader))
			assert.NoError(t, webhook.Verify(got, sub.Secret, r.Header.Get("X-Webhook-Signature")))

			if n < 3 {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		}))
		defer srv.Close()

		var delays []time.Duration
		s := newTestSender(&delays)
		sub := sub
		sub.URL = srv.URL

		require.NoError(t, s.Send(context.Background(), sub, "payment.created", body))
		assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
		assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, delays)
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		var calls int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		var delays []time.Duration
		s := newTestSender(&delays)
		sub := sub
		sub.URL = srv.URL

		err := s.Send(context.Background(), sub, "payment.created", body)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "502")
		assert.EqualValues(t, 4, atomic.LoadInt32(&calls))
		assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond}, delays)
	})
}
