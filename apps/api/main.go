package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"

	echoapi "github.com/chaima229/fraisScolaire-backend-sub000/apps/api/echo"
	"github.com/chaima229/fraisScolaire-backend-sub000/apps/shared"
	"github.com/chaima229/fraisScolaire-backend-sub000/core"
	appfs "github.com/chaima229/fraisScolaire-backend-sub000/fs"
	logsvc "github.com/chaima229/fraisScolaire-backend-sub000/services/logger"
	"github.com/chaima229/fraisScolaire-backend-sub000/services/scheduler"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	dbLogger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	dbLogger.Enable(!conf.Debug)

	workerLogger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "WORKER : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	workerLogger.Enable(!conf.Debug)

	if conf.Webhook.InboundSecret == "" {
		logger.Warn("no inbound webhook secret configured, every inbound webhook will be rejected")
	}

	// set up backends & services
	deps, cleanup, err := shared.Bootstrap(conf, logger, dbLogger)
	defer cleanup()
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up dependencies: %v", err), err)
	}
	svcs := shared.NewServices(deps)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate, translator := shared.NewValidator()

	core.ParseEmailTemplates(appfs.FS, appfs.EmailTemplatesDir, logger, false)

	// =========================================================================
	// Start Scheduler

	sched := scheduler.New(workerLogger)
	if err = sched.Add("outbox", conf.Scheduler.OutboxSpec, scheduler.DrainOutbox(svcs.Outbox, workerLogger)); err != nil {
		logger.Fatal(fmt.Sprintf("scheduling outbox: %v", err), err)
	}
	if err = sched.Add("reminders", conf.Scheduler.ReminderSpec, scheduler.SendReminders(svcs.Reminders, workerLogger)); err != nil {
		logger.Fatal(fmt.Sprintf("scheduling reminders: %v", err), err)
	}
	sched.Start()

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:           conf,
			Logger:         logger,
			Validate:       validate,
			Translator:     translator,
			SchoolSvc:      svcs.School,
			ScholarshipSvc: svcs.Scholarships,
			TariffSvc:      svcs.Tariffs,
			Ledger:         svcs.Ledger,
			InvoiceSvc:     svcs.Invoices,
			WebhookSvc:     svcs.Webhooks,
			ReminderSvc:    svcs.Reminders,
			Trail:          svcs.Trail,
		},
	)

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Error(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))
	}

	// give outstanding requests and jobs a deadline for completion
	ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
	defer cancel()

	sched.Stop(ctx)

	// asking listener to shutdown and shed load
	if err = server.Shutdown(ctx); err != nil {
		logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

		if err = server.Close(); err != nil {
			logger.Error(fmt.Sprintf("could not force stop server: %v", err), err)
		}
	}
}
