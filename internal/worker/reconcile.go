// Package worker runs background jobs alongside the HTTP server.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"folio/internal/middleware"
	"folio/internal/service"
)

// ReconcileRunner performs one full reconciliation pass.
type ReconcileRunner interface {
	ReconcileAll(ctx context.Context, trigger string) (*service.ReconcileSummary, error)
}

// ReconcileWorker periodically recomputes denormalized counters.
type ReconcileWorker struct {
	runner   ReconcileRunner
	interval time.Duration
}

// NewReconcileWorker returns a worker that runs every interval. A zero or
// negative interval disables it.
func NewReconcileWorker(runner ReconcileRunner, interval time.Duration) *ReconcileWorker {
	return &ReconcileWorker{runner: runner, interval: interval}
}

// Run blocks until ctx is cancelled, running one pass per tick. A pass that
// is still running when the next tick fires delays it rather than overlapping.
func (w *ReconcileWorker) Run(ctx context.Context) {
	if w.interval <= 0 {
		middleware.Logger.InfoContext(ctx, "Periodic reconciliation disabled")
		return
	}
	middleware.Logger.InfoContext(ctx, "Periodic reconciliation started",
		slog.Duration("interval", w.interval))

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.RunOnce(ctx); err != nil {
				middleware.Logger.WarnContext(ctx, "Periodic reconciliation failed",
					slog.String("error", err.Error()))
			}
		}
	}
}

// RunOnce runs a single pass. A panic inside the pass is turned into an error
// so the worker survives it.
func (w *ReconcileWorker) RunOnce(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("reconcile panic: %v", r)
		}
	}()
	_, err = w.runner.ReconcileAll(ctx, service.TriggerPeriodic)
	return err
}
