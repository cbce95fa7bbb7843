package reminder

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bissquit/message-garden/internal/pkg/ctxlog"
)

// Runner drives the scheduler on a fixed interval: one scheduling pass
// per tenant with open form accesses, then one firing pass over the due
// logs. Runs never overlap within a process.
type Runner struct {
	interval  time.Duration
	scheduler *Scheduler
	entities  EntitySource

	running atomic.Bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewRunner creates a reminder runner.
func NewRunner(interval time.Duration, scheduler *Scheduler, entities EntitySource) *Runner {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Runner{
		interval:  interval,
		scheduler: scheduler,
		entities:  entities,
		stopCh:    make(chan struct{}),
	}
}

// Start launches the reminder loop.
func (r *Runner) Start(ctx context.Context) {
	slog.Info("starting reminder runner", "interval", r.interval)

	r.wg.Add(1)
	go r.run(ctx)
}

// Stop gracefully stops the runner.
func (r *Runner) Stop() {
	close(r.stopCh)
	r.wg.Wait()
	slog.Info("reminder runner stopped")
}

func (r *Runner) run(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce performs one schedule-then-fire pass. A pass already in
// flight makes the call a no-op.
func (r *Runner) RunOnce(ctx context.Context) {
	if !r.running.CompareAndSwap(false, true) {
		slog.Warn("previous reminder run still in flight, skipping")
		return
	}
	defer r.running.Store(false)

	logger := ctxlog.FromContext(ctx)

	tenants, err := r.entities.ListTenantsWithOpenAccesses(ctx)
	if err != nil {
		logger.Error("failed to list tenants for reminder run", "error", err)
		return
	}

	for _, tenantID := range tenants {
		if err := r.scheduler.ScheduleReminders(ctx, tenantID); err != nil {
			logger.Error("scheduling pass failed", "tenant_id", tenantID, "error", err)
		}
	}

	fired, skipped, err := r.scheduler.ProcessPendingReminders(ctx)
	if err != nil {
		logger.Error("reminder firing pass failed", "error", err)
		return
	}
	if fired > 0 || skipped > 0 {
		logger.Info("reminder run complete", "fired", fired, "skipped", skipped)
	}
}
