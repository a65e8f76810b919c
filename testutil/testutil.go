// Package testutil wires the app over the in-memory store and provides fixtures for package tests.
package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/chaima229/fraisScolaire-backend-sub000/apps/shared"
	"github.com/chaima229/fraisScolaire-backend-sub000/core"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/invoice"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/webhook"
	appfs "github.com/chaima229/fraisScolaire-backend-sub000/fs"
	emailsvc "github.com/chaima229/fraisScolaire-backend-sub000/services/email"
	locksvc "github.com/chaima229/fraisScolaire-backend-sub000/services/lock"
	logsvc "github.com/chaima229/fraisScolaire-backend-sub000/services/logger"
	inmemdb "github.com/chaima229/fraisScolaire-backend-sub000/storage/database/inmem"
)

const SecretKey = "test-secret-key"

var templatesOnce sync.Once

// Config returns the configuration tests run with: the production defaults, no external service.
func Config() *core.Config {
	conf := &core.Config{
		Env:             "TEST",
		TestMode:        true,
		AppName:         "Frais Scolaires",
		SecretKey:       SecretKey,
		FrontendBaseURL: "http://front.test",
	}
	conf.Server.JWTExpirationDelta = time.Hour
	conf.Server.DisableReqLogs = true
	conf.Fees.DefaultTuition = decimal.NewFromInt(56000)
	conf.Fees.DefaultOtherFees = decimal.NewFromInt(800)
	conf.Fees.TuitionType = "Scolarité"
	conf.Fees.OtherFeesType = "Autres frais"
	conf.Fees.YearStartMonth = time.September
	conf.Fees.ReminderInterval = 7 * 24 * time.Hour
	conf.Webhook.InboundSecret = "inbound-secret-0123456789"
	conf.Webhook.SignatureHeader = "X-Webhook-Signature"
	conf.Webhook.Timeout = 5 * time.Second
	conf.Webhook.MaxRetries = 3
	conf.Webhook.BaseDelay = time.Millisecond
	conf.Scheduler.OutboxBatch = 10
	conf.Redis.LockTTL = 30 * time.Second
	conf.Redis.LockWait = 5 * time.Second
	return conf
}

// Env is a fully wired app over a fresh in-memory store.
type Env struct {
	Conf       *core.Config
	Logger     core.Logger
	DB         *inmemdb.DB
	Store      shared.Store
	Mailer     *emailsvc.ConsoleServiceMock
	Sender     *FakeSender
	Validate   *validator.Validate
	Translator ut.Translator
	*shared.Services
}

func NewEnv(t *testing.T) *Env {
	t.Helper()

	conf := Config()
	logger := logsvc.NewSilentLogger()
	templatesOnce.Do(func() {
		core.ParseEmailTemplates(appfs.FS, appfs.EmailTemplatesDir, logger, true)
	})

	numbers, err := invoice.NewNumberNode(1)
	if err != nil {
		t.Fatalf("NewEnv() failed: %v", err)
	}

	db := inmemdb.NewDB()
	store := shared.NewMemoryStore(db)
	mailer := emailsvc.NewConsoleServiceMock(conf, logger)
	sender := new(FakeSender)
	validate, translator := shared.NewValidator()

	return &Env{
		Conf:       conf,
		Logger:     logger,
		DB:         db,
		Store:      store,
		Mailer:     mailer,
		Sender:     sender,
		Validate:   validate,
		Translator: translator,
		Services: shared.NewServices(shared.Deps{
			Conf:    conf,
			Logger:  logger,
			Store:   store,
			Locker:  locksvc.NewMemoryLocker(conf.Redis.LockWait),
			Mailer:  mailer,
			Sender:  sender,
			Numbers: numbers,
		}),
	}
}

func (env *Env) Ctx() context.Context {
	return context.Background()
}

// Delivery is a webhook body handed to the FakeSender.
type Delivery struct {
	SubscriptionID string
	Event          string
	Body           []byte
}

// FakeSender records deliveries instead of POSTing them. Err, when set, fails every delivery.
type FakeSender struct {
	mu         sync.Mutex
	deliveries []Delivery
	Err        error
}

var _ webhook.Sender = (*FakeSender)(nil)

func (s *FakeSender) Send(_ context.Context, sub webhook.Subscription, eventType string, body []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deliveries = append(s.deliveries, Delivery{SubscriptionID: sub.ID, Event: eventType, Body: body})
	return s.Err
}

func (s *FakeSender) Deliveries() []Delivery {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Delivery(nil), s.deliveries...)
}
