// Package webhooksvc delivers signed webhook payloads over HTTP.
package webhooksvc

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/sendgrid/rest"

	"github.com/chaima229/fraisScolaire-backend-sub000/core"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/webhook"
)

const EventHeader = "X-Webhook-Event"

// HTTPSender POSTs payloads to subscribers and retries failed attempts with exponential backoff.
type HTTPSender struct {
	client          *rest.Client
	signatureHeader string
	maxRetries      int
	baseDelay       time.Duration
	logger          core.Logger
	sleep           func(ctx context.Context, d time.Duration) error
}

var _ webhook.Sender = (*HTTPSender)(nil)

func NewHTTPSender(conf *core.Config, logger core.Logger) *HTTPSender {
	header := conf.Webhook.SignatureHeader
	if header == "" {
		header = "X-Webhook-Signature"
	}
	return &HTTPSender{
		client:          &rest.Client{HTTPClient: &http.Client{Timeout: conf.Webhook.Timeout}},
		signatureHeader: header,
		maxRetries:      conf.Webhook.MaxRetries,
		baseDelay:       conf.Webhook.BaseDelay,
		logger:          logger,
		sleep:           sleep,
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Send makes one attempt plus up to maxRetries retries, waiting base, base·2, base·4... in between.
func (s *HTTPSender) Send(ctx context.Context, sub webhook.Subscription, eventType string, body []byte) error {
	req := rest.Request{
		Method:  rest.Post,
		BaseURL: sub.URL,
		Headers: map[string]string{
			"Content-Type":    "application/json",
			"User-Agent":      "frais-scolaires-webhooks",
			s.signatureHeader: webhook.Sign(body, sub.Secret),
			EventHeader:       eventType,
		},
		Body: body,
	}

	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			delay := s.baseDelay << (attempt - 1)
			if err := s.sleep(ctx, delay); err != nil {
				return errors.Wrap(err, "waiting before retry")
			}
		}

		res, err := s.post(ctx, req)
		switch {
		case err != nil:
			lastErr = errors.Wrap(err, "posting webhook")
		case res.StatusCode < 200 || res.StatusCode >= 300:
			lastErr = errors.Errorf("unexpected status %d", res.StatusCode)
		default:
			return nil
		}
		s.logger.Debug(fmt.Sprintf("webhook: attempt %d to %s failed", attempt+1, sub.URL), lastErr)
	}
	return errors.Wrapf(lastErr, "giving up after %d attempts", s.maxRetries+1)
}

func (s *HTTPSender) post(ctx context.Context, req rest.Request) (*rest.Response, error) {
	httpReq, err := rest.BuildRequestObject(req)
	if err != nil {
		return nil, errors.Wrap(err, "building request")
	}
	res, err := s.client.MakeRequest(httpReq.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	return rest.BuildResponse(res)
}
