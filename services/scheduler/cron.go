// Package scheduler runs the periodic jobs of the app: outbox draining and payment reminders.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/chaima229/fraisScolaire-backend-sub000/core"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/outbox"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/reminder"
)

// JobFunc is a unit of scheduled work. ctx is cancelled when the scheduler stops.
type JobFunc func(ctx context.Context) error

type Scheduler struct {
	cron   *cron.Cron
	logger core.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

func New(logger core.Logger) *Scheduler {
	cl := cronLogger{logger}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Add registers `job` on a standard cron spec ("0 8 * * 1") or a descriptor ("@every 5s").
func (s *Scheduler) Add(name, spec string, job JobFunc) error {
	_, err := s.cron.AddFunc(spec, func() {
		start := time.Now()
		if err := job(s.ctx); err != nil {
			s.logger.Error(fmt.Sprintf("scheduler: %s failed", name), err)
			return
		}
		s.logger.Debug(fmt.Sprintf("scheduler: %s done in %s", name, time.Since(start)))
	})
	return errors.Wrapf(err, "scheduling %s", name)
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop prevents new runs, cancels running jobs and waits for them until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	s.cancel()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn("scheduler: jobs still running at shutdown")
	}
}

func DrainOutbox(w *outbox.Worker, logger core.Logger) JobFunc {
	return func(ctx context.Context) error {
		n, err := w.Drain(ctx)
		if n > 0 {
			logger.Info(fmt.Sprintf("outbox: %d events handled", n))
		}
		return err
	}
}

func SendReminders(svc *reminder.Service, logger core.Logger) JobFunc {
	return func(ctx context.Context) error {
		sent, err := svc.SendDue(ctx, time.Now(), core.SystemActor)
		if len(sent) > 0 {
			logger.Info(fmt.Sprintf("reminders: %d sent", len(sent)))
		}
		return err
	}
}

// cronLogger adapts core.Logger to cron.Logger.
type cronLogger struct {
	logger core.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append([]interface{}{err}, keysAndValues...)...)
}
