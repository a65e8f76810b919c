package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/chaima229/fraisScolaire-backend-sub000/core"
)

var nowFunc = time.Now // mockable

// Worker drains the outbox: every pending event is handed once to the Notifier.
// Deliveries are best-effort; a failed event is kept with its error and not retried.
type Worker struct {
	repo       Repository
	notifier   Notifier
	logger     core.Logger
	batch      int
	staleAfter time.Duration
}

func NewWorker(repo Repository, notifier Notifier, logger core.Logger, batch int) *Worker {
	if batch <= 0 {
		batch = 50
	}
	return &Worker{
		repo:       repo,
		notifier:   notifier,
		logger:     logger,
		batch:      batch,
		staleAfter: 5 * time.Minute,
	}
}

// Drain processes pending events until none is left or ctx is done.
// It returns the number of events handed to the Notifier.
func (w *Worker) Drain(ctx context.Context) (int, error) {
	if n, err := w.repo.ReleaseStale(ctx, nowFunc().Add(-w.staleAfter)); err != nil {
		return 0, errors.Wrap(err, "releasing stale events")
	} else if n > 0 {
		w.logger.Warn(fmt.Sprintf("outbox: released %d stale events", n))
	}

	var total int
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		events, err := w.repo.ClaimPending(ctx, w.batch)
		if err != nil {
			return total, errors.Wrap(err, "claiming pending events")
		}
		for _, evt := range events {
			w.process(ctx, evt)
			total++
		}
		if len(events) < w.batch {
			return total, nil
		}
	}
}

func (w *Worker) process(ctx context.Context, evt Event) {
	if err := w.notifier.Notify(ctx, evt); err != nil {
		w.logger.Warn(fmt.Sprintf("outbox: delivering %s %s", evt.Type, evt.ID), err)
		if err = w.repo.MarkFailed(ctx, evt.ID, err.Error()); err != nil {
			w.logger.Error("outbox: marking event failed", errors.Wrap(err, evt.ID))
		}
		return
	}
	if err := w.repo.MarkProcessed(ctx, evt.ID); err != nil {
		w.logger.Error("outbox: marking event processed", errors.Wrap(err, evt.ID))
	}
}
