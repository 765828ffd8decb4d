package service

import (
	"context"
	"errors"
	"log"
	"time"

	"anoa.com/notifhub/internal/model"
	"anoa.com/notifhub/internal/repository"
	"anoa.com/notifhub/pkg/apperror"
	"github.com/google/uuid"
)

// SweepService runs the periodic maintenance passes. Each pass is stateless,
// bounded per run, and isolates failures per item.
type SweepService interface {
	// SweepScheduled dispatches notifications whose deferral has elapsed.
	SweepScheduled(ctx context.Context) (int, error)
	// SweepBatches flushes due batches at or above the minimum size, plus
	// stale under-minimum batches past the max age.
	SweepBatches(ctx context.Context) (int, error)
	// RetryFailedEmails re-dispatches failed sends under exponential backoff,
	// bounded by the retry ceiling and the lookback window.
	RetryFailedEmails(ctx context.Context) (int, error)
	CleanupNotifications(ctx context.Context) (int64, error)
	CleanupBatches(ctx context.Context) (int64, error)
}

type sweepService struct {
	notifRepo repository.NotificationRepository
	batchRepo repository.BatchRepository
	batches   BatchService
	dispatch  DispatchService
	cfg       Config
}

func NewSweepService(
	notifRepo repository.NotificationRepository,
	batchRepo repository.BatchRepository,
	batches BatchService,
	dispatch DispatchService,
	cfg Config,
) SweepService {
	return &sweepService{
		notifRepo: notifRepo,
		batchRepo: batchRepo,
		batches:   batches,
		dispatch:  dispatch,
		cfg:       cfg,
	}
}

func (s *sweepService) SweepScheduled(ctx context.Context) (int, error) {
	due, err := s.notifRepo.FindDueScheduled(ctx, time.Now(), s.cfg.ScheduledSweepLimit)
	if err != nil {
		return 0, err
	}

	processed := 0
	for i := range due {
		n := &due[i]
		// Claim before dispatch so an overlapping sweep skips it.
		claimed, err := s.notifRepo.ClearScheduledFor(ctx, n.ID)
		if err != nil {
			log.Printf("failed to claim scheduled notification %s: %v", n.ID, err)
			continue
		}
		if !claimed {
			continue
		}
		if err := s.dispatch.Dispatch(ctx, n); err != nil {
			log.Printf("scheduled dispatch failed for %s: %v", n.ID, err)
		}
		processed++
	}
	return processed, nil
}

func (s *sweepService) SweepBatches(ctx context.Context) (int, error) {
	now := time.Now()
	due, err := s.batchRepo.FindDue(ctx,
		now.Add(-s.cfg.BatchWindow), now.Add(-s.cfg.DigestWindow),
		s.cfg.MinBatchSize, s.cfg.BatchSweepLimit)
	if err != nil {
		return 0, err
	}

	stale, err := s.batchRepo.FindStale(ctx, now.Add(-s.cfg.StaleBatchAge), s.cfg.BatchSweepLimit)
	if err != nil {
		return 0, err
	}

	seen := make(map[uuid.UUID]bool)
	processed := 0
	for _, b := range append(due, stale...) {
		if seen[b.ID] {
			continue
		}
		seen[b.ID] = true

		err := s.batches.Flush(ctx, b.ID)
		if errors.Is(err, apperror.ErrBatchProcessed) {
			continue
		}
		if err != nil {
			log.Printf("batch flush failed for %s: %v", b.ID, err)
			continue
		}
		processed++
	}
	return processed, nil
}

func (s *sweepService) RetryFailedEmails(ctx context.Context) (int, error) {
	now := time.Now()
	candidates, err := s.notifRepo.FindFailedEmail(ctx,
		now.Add(-s.cfg.RetryLookback), s.cfg.MaxEmailRetries, s.cfg.RetrySweepLimit)
	if err != nil {
		return 0, err
	}

	retried := 0
	for i := range candidates {
		n := &candidates[i]
		st := n.ChannelStatusFor(model.ChannelEmail)
		if st == nil || st.ErrorAt == nil {
			continue
		}

		// Pure exponential backoff, no jitter: 2^retryCount hours.
		backoff := time.Duration(1<<uint(st.RetryCount)) * time.Hour
		if now.Sub(*st.ErrorAt) < backoff {
			continue
		}

		if err := s.dispatch.SendEmail(ctx, n); err != nil {
			log.Printf("email retry failed for %s: %v", n.ID, err)
		}
		retried++
	}
	return retried, nil
}

func (s *sweepService) CleanupNotifications(ctx context.Context) (int64, error) {
	return s.notifRepo.DeleteOlderThan(ctx, time.Now().Add(-s.cfg.NotificationRetention))
}

func (s *sweepService) CleanupBatches(ctx context.Context) (int64, error) {
	return s.batchRepo.DeleteProcessedOlderThan(ctx, time.Now().Add(-s.cfg.BatchRetention))
}
