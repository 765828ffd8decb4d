package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"anoa.com/notifhub/internal/model"
	"anoa.com/notifhub/internal/repository"
	"anoa.com/notifhub/pkg/apperror"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type BatchService interface {
	// Add merges the notification into the open (user, type) window, opening
	// a new batch when none exists and flushing first when the window is at
	// capacity. Safe under concurrent callers for the same window.
	Add(ctx context.Context, n *model.Notification, mode model.BatchingMode) error
	// Flush processes a batch into one summary notification and marks it
	// processed. Returns apperror.ErrBatchProcessed on a batch that already
	// was; no mutation happens in that case.
	Flush(ctx context.Context, batchID uuid.UUID) error
}

type batchService struct {
	batchRepo repository.BatchRepository
	notifRepo repository.NotificationRepository
	userRepo  repository.UserRepository
	dispatch  DispatchService
	content   *ContentGenerator
	analytics AnalyticsRecorder
	cfg       Config
}

func NewBatchService(
	batchRepo repository.BatchRepository,
	notifRepo repository.NotificationRepository,
	userRepo repository.UserRepository,
	dispatch DispatchService,
	content *ContentGenerator,
	analytics AnalyticsRecorder,
	cfg Config,
) BatchService {
	return &batchService{
		batchRepo: batchRepo,
		notifRepo: notifRepo,
		userRepo:  userRepo,
		dispatch:  dispatch,
		content:   content,
		analytics: analytics,
		cfg:       cfg,
	}
}

func (s *batchService) Add(ctx context.Context, n *model.Notification, mode model.BatchingMode) error {
	window, maxSize := s.cfg.windowFor(mode == model.BatchingDigest)

	// Bounded retry: losing the append race means someone else grew or
	// flushed the batch, so re-read and decide again.
	for attempt := 0; attempt < 3; attempt++ {
		open, err := s.batchRepo.FindOpen(ctx, n.UserID, n.Type, time.Now().Add(-window))
		if errors.Is(err, apperror.ErrNotFound) {
			return s.startBatch(ctx, n, mode)
		}
		if err != nil {
			return err
		}

		if open.BatchCount+1 > maxSize {
			// Window full: flush it so nothing is lost, then start a fresh
			// batch holding only the new notification.
			if err := s.Flush(ctx, open.ID); err != nil && !errors.Is(err, apperror.ErrBatchProcessed) {
				return err
			}
			return s.startBatch(ctx, n, mode)
		}

		members := make([]uuid.UUID, 0, open.BatchCount+1)
		members = append(members, open.Notifications...)
		members = append(members, n.ID)

		ok, err := s.batchRepo.AppendMember(ctx, open.ID, open.BatchCount, members)
		if err != nil {
			return err
		}
		if ok {
			return s.notifRepo.Patch(ctx, n.ID, map[string]any{"batch_id": open.ID})
		}
	}
	return fmt.Errorf("batch merge contention for user %s type %s", n.UserID, n.Type)
}

func (s *batchService) startBatch(ctx context.Context, n *model.Notification, mode model.BatchingMode) error {
	b := &model.NotificationBatch{
		UserID:        n.UserID,
		Type:          n.Type,
		Notifications: datatypes.NewJSONSlice([]uuid.UUID{n.ID}),
		BatchCount:    1,
		Category:      n.Category,
		Priority:      n.Priority,
		BatchingMode:  mode,
	}
	if err := s.batchRepo.Create(ctx, b); err != nil {
		return err
	}
	return s.notifRepo.Patch(ctx, n.ID, map[string]any{"batch_id": b.ID})
}

func (s *batchService) Flush(ctx context.Context, batchID uuid.UUID) error {
	b, err := s.batchRepo.FindByID(ctx, batchID)
	if err != nil {
		return err
	}
	if b.Processed {
		return apperror.ErrBatchProcessed
	}

	members, err := s.notifRepo.FindByIDs(ctx, b.Notifications)
	if err != nil {
		return err
	}

	now := time.Now()
	if len(members) == 0 {
		// Every member was deleted while the batch sat open; close it with
		// no summary.
		log.Printf("batch %s has no valid notifications, closing without summary", b.ID)
		ok, err := s.batchRepo.MarkProcessed(ctx, b.ID, nil, now)
		if err != nil {
			return err
		}
		if !ok {
			return apperror.ErrBatchProcessed
		}
		return nil
	}

	title, message := s.content.ComposeBatch(b.Type, s.actorNames(ctx, members), len(members))

	channels := []model.Channel{model.ChannelInApp}
	summary := &model.Notification{
		UserID:           b.UserID,
		Type:             model.BatchTypeID(b.Type),
		Title:            title,
		Message:          message,
		Category:         b.Category,
		Priority:         b.Priority,
		DeliveryChannels: datatypes.NewJSONSlice(channels),
		DeliveryStatus:   datatypes.NewJSONType(model.NewDeliveryStatus(channels, now)),
		BatchID:          &b.ID,
		BatchCount:       len(members),
	}
	if err := s.notifRepo.Create(ctx, summary); err != nil {
		return err
	}
	s.dispatch.PublishInApp(ctx, summary)
	s.analytics.Record(ctx, AnalyticsEvent{
		Event: "delivered", NotificationID: summary.ID, UserID: summary.UserID,
		Type: summary.Type, Channel: model.ChannelInApp, At: now,
	})

	// Members stay queryable for analytics but leave the main feed.
	for _, m := range members {
		err := s.notifRepo.Patch(ctx, m.ID, map[string]any{
			"hidden_from_feed": true,
			"batched_into":     summary.ID,
		})
		if err != nil {
			log.Printf("failed to fold notification %s into summary %s: %v", m.ID, summary.ID, err)
		}
	}

	if err := s.dispatch.SendBatchEmail(ctx, summary, members); err != nil {
		// recorded on the members, the retry supervisor takes it from here
		log.Printf("batch email for %s failed: %v", b.ID, err)
	}

	ok, err := s.batchRepo.MarkProcessed(ctx, b.ID, &summary.ID, now)
	if err != nil {
		return err
	}
	if !ok {
		return apperror.ErrBatchProcessed
	}
	return nil
}

// actorNames collects distinct actor display names in insertion order,
// falling back per member when the actor account is gone.
func (s *batchService) actorNames(ctx context.Context, members []model.Notification) []string {
	var names []string
	seen := make(map[uuid.UUID]bool)
	for _, m := range members {
		if m.ActorID == nil || seen[*m.ActorID] {
			continue
		}
		seen[*m.ActorID] = true
		if actor, err := s.userRepo.FindByID(ctx, *m.ActorID); err == nil {
			names = append(names, actor.DisplayName())
		}
	}
	return names
}
