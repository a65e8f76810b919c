package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/chaima229/fraisScolaire-backend-sub000/core"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/audit"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/invoice"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/payment"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/reminder"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/scholarship"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/school"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/tariff"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/webhook"
)

type (
	ServerDeps struct {
		Conf       *core.Config
		Logger     core.Logger
		Validate   *validator.Validate
		Translator ut.Translator

		SchoolSvc      *school.Service
		ScholarshipSvc *scholarship.Service
		TariffSvc      *tariff.Service
		Ledger         *payment.Ledger
		InvoiceSvc     *invoice.Service
		WebhookSvc     *webhook.Service
		ReminderSvc    *reminder.Service
		Trail          *audit.Trail
	}

	Server struct {
		deps     ServerDeps
		app      *echo.Echo
		errors   chan error
		shutdown chan os.Signal
	}
)

func NewServer(deps ServerDeps) *Server {
	s := &Server{
		deps:     deps,
		app:      echo.New(),
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *Server) setup() {
	conf := s.deps.Conf

	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !conf.Server.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.deps.Translator, s.signalShutdown)
	s.app.Debug = conf.Debug

	s.app.GET("/", s.home)

	v1 := s.app.Group("/v1")
	jwt := middleware.JWTWithConfig(jwtConfig(conf.SecretKey))

	registerSchoolAPI(v1, jwt, s.deps.SchoolSvc, s.deps.Ledger, s.deps.Validate)
	registerFeesAPI(v1, jwt, s.deps.TariffSvc, s.deps.ScholarshipSvc, s.deps.Validate)
	registerPaymentAPI(v1, jwt, s.deps.Ledger, s.deps.Validate)
	registerInvoiceAPI(v1, jwt, s.deps.InvoiceSvc, s.deps.Validate)
	registerWebhookAPI(v1, jwt, s.deps.WebhookSvc, s.deps.Ledger, s.deps.Validate, conf.Webhook.SignatureHeader)
	registerAuditAPI(v1, jwt, s.deps.Trail, s.deps.ReminderSvc)
}

// Start blocks until the server stops. Errors other than a regular shutdown are sent to Errors().
func (s *Server) Start() {
	s.deps.Logger.Info("API listening on " + s.deps.Conf.Server.Address)
	if err := s.app.Start(s.deps.Conf.Server.Address); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *Server) Errors() <-chan error {
	return s.errors
}

func (s *Server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

func (s *Server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default:
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *Server) home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to "+s.deps.Conf.AppName+" API!")
}
