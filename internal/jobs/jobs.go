package jobs

import (
	"context"
	"log"

	"anoa.com/notifhub/internal/service"
)

// ScheduledSweepJob delivers notifications whose deferral has elapsed.
type ScheduledSweepJob struct {
	Sweeps service.SweepService
	Cron   string
}

func (j *ScheduledSweepJob) Name() string     { return "scheduled-sweep" }
func (j *ScheduledSweepJob) Schedule() string { return j.Cron }

func (j *ScheduledSweepJob) Run(ctx context.Context) error {
	n, err := j.Sweeps.SweepScheduled(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		log.Printf("✅ [scheduled-sweep] dispatched %d due notifications", n)
	}
	return nil
}

// BatchSweepJob flushes due and stale notification batches.
type BatchSweepJob struct {
	Sweeps service.SweepService
	Cron   string
}

func (j *BatchSweepJob) Name() string     { return "batch-sweep" }
func (j *BatchSweepJob) Schedule() string { return j.Cron }

func (j *BatchSweepJob) Run(ctx context.Context) error {
	n, err := j.Sweeps.SweepBatches(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		log.Printf("✅ [batch-sweep] flushed %d batches", n)
	}
	return nil
}

// RetryJob re-dispatches failed email sends under backoff.
type RetryJob struct {
	Sweeps service.SweepService
	Cron   string
}

func (j *RetryJob) Name() string     { return "email-retry" }
func (j *RetryJob) Schedule() string { return j.Cron }

func (j *RetryJob) Run(ctx context.Context) error {
	n, err := j.Sweeps.RetryFailedEmails(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		log.Printf("✅ [email-retry] retried %d failed sends", n)
	}
	return nil
}

// CleanupJob prunes old notifications and processed batches.
type CleanupJob struct {
	Sweeps service.SweepService
	Cron   string
}

func (j *CleanupJob) Name() string     { return "retention-cleanup" }
func (j *CleanupJob) Schedule() string { return j.Cron }

func (j *CleanupJob) Run(ctx context.Context) error {
	log.Println("🧹 running retention cleanup...")
	notifs, err := j.Sweeps.CleanupNotifications(ctx)
	if err != nil {
		return err
	}
	batches, err := j.Sweeps.CleanupBatches(ctx)
	if err != nil {
		return err
	}
	log.Printf("✅ [retention-cleanup] removed %d notifications, %d batches", notifs, batches)
	return nil
}
