package service

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"anoa.com/notifhub/internal/model"
	"anoa.com/notifhub/internal/repository"
	"anoa.com/notifhub/pkg/apperror"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Skip reasons: terminal-but-successful outcomes, not errors.
const (
	SkipSameUser     = "SameUser"
	SkipUserDisabled = "UserDisabled"
	SkipNoChannels   = "NoChannels"
	SkipDuplicate    = "Duplicate"
)

// EventRequest is one validated inbound domain event.
type EventRequest struct {
	Type               string
	RecipientID        uuid.UUID
	ActorID            *uuid.UUID
	RelatedContentType string
	RelatedContentID   *uuid.UUID
	Metadata           map[string]any
	Priority           model.Priority // optional override
	ForceImmediate     bool
}

type ProcessResult struct {
	Success        bool       `json:"success"`
	NotificationID *uuid.UUID `json:"notification_id,omitempty"`
	Batched        bool       `json:"batched,omitempty"`
	Skipped        string     `json:"skipped,omitempty"`
	Error          string     `json:"error,omitempty"`
}

type BulkResult struct {
	Results   []ProcessResult `json:"results"`
	Succeeded int             `json:"succeeded"`
	Failed    int             `json:"failed"`
}

// ContentResolver looks up display titles for related content owned by the
// external content stores. Content may be deleted by the time a notification
// renders, so NotFound is a legitimate answer and callers fall back to a
// generic label.
type ContentResolver interface {
	ResolveTitle(ctx context.Context, contentType string, id uuid.UUID) (string, error)
}

type noopContentResolver struct{}

// NewNoopContentResolver never resolves; copy falls back to generic labels.
func NewNoopContentResolver() ContentResolver {
	return noopContentResolver{}
}

func (noopContentResolver) ResolveTitle(context.Context, string, uuid.UUID) (string, error) {
	return "", apperror.ErrNotFound
}

type EventService interface {
	// Process validates one event and either creates a notification
	// (batched, scheduled, or dispatched) or reports why it was skipped.
	// Only validation problems surface as errors; delivery failures are
	// recorded on the notification and retried asynchronously.
	Process(ctx context.Context, req EventRequest) (*ProcessResult, error)
	// ProcessBulk isolates failures per event.
	ProcessBulk(ctx context.Context, reqs []EventRequest) (*BulkResult, error)
}

type eventService struct {
	registry     *model.TypeRegistry
	userRepo     repository.UserRepository
	settingsRepo repository.SettingsRepository
	notifRepo    repository.NotificationRepository
	batches      BatchService
	dispatch     DispatchService
	oracle       TimingOracle
	content      *ContentGenerator
	resolver     ContentResolver
	analytics    AnalyticsRecorder
	cfg          Config
}

func NewEventService(
	registry *model.TypeRegistry,
	userRepo repository.UserRepository,
	settingsRepo repository.SettingsRepository,
	notifRepo repository.NotificationRepository,
	batches BatchService,
	dispatch DispatchService,
	oracle TimingOracle,
	content *ContentGenerator,
	resolver ContentResolver,
	analytics AnalyticsRecorder,
	cfg Config,
) EventService {
	return &eventService{
		registry:     registry,
		userRepo:     userRepo,
		settingsRepo: settingsRepo,
		notifRepo:    notifRepo,
		batches:      batches,
		dispatch:     dispatch,
		oracle:       oracle,
		content:      content,
		resolver:     resolver,
		analytics:    analytics,
		cfg:          cfg,
	}
}

func (s *eventService) Process(ctx context.Context, req EventRequest) (*ProcessResult, error) {
	nt, ok := s.registry.Get(req.Type)
	if !ok {
		return nil, apperror.ErrInvalidType
	}

	if _, err := s.userRepo.FindByID(ctx, req.RecipientID); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.ErrRecipientNotFound
		}
		return nil, err
	}

	// No self-notifications.
	if req.ActorID != nil && *req.ActorID == req.RecipientID {
		return &ProcessResult{Success: true, Skipped: SkipSameUser}, nil
	}

	settings, err := s.settingsRepo.GetOrCreate(ctx, model.DefaultSettings(req.RecipientID, nt))
	if err != nil {
		return nil, err
	}
	if !settings.Enabled {
		return &ProcessResult{Success: true, Skipped: SkipUserDisabled}, nil
	}

	channels := settings.Channels.Data().EnabledChannels()
	if len(channels) == 0 {
		return &ProcessResult{Success: true, Skipped: SkipNoChannels}, nil
	}

	now := time.Now()
	dup, err := s.notifRepo.FindRecentDuplicate(ctx, req.RecipientID, req.Type,
		req.ActorID, req.RelatedContentID, now.Add(-s.cfg.DedupeWindow))
	if err != nil && !errors.Is(err, apperror.ErrNotFound) {
		return nil, err
	}
	if dup != nil {
		return &ProcessResult{Success: true, Skipped: SkipDuplicate}, nil
	}

	priority := nt.Priority
	if req.Priority != "" {
		priority = req.Priority
	}

	shouldBatch := !req.ForceImmediate &&
		nt.Batchable &&
		priority != model.PriorityHigh &&
		(settings.BatchingPreference == model.BatchingBatched || settings.BatchingPreference == model.BatchingDigest)

	n, err := s.createNotification(ctx, req, nt, priority, channels, now)
	if err != nil {
		return nil, err
	}

	if n.HasChannel(model.ChannelInApp) {
		s.dispatch.PublishInApp(ctx, n)
		// in_app is delivered the moment the row exists; other channels emit
		// their analytics at actual send time
		s.analytics.Record(ctx, AnalyticsEvent{
			Event: "delivered", NotificationID: n.ID, UserID: n.UserID,
			Type: n.Type, Channel: model.ChannelInApp, At: now,
		})
	}

	if shouldBatch {
		if err := s.batches.Add(ctx, n, settings.BatchingPreference); err != nil {
			return nil, err
		}
		return &ProcessResult{Success: true, NotificationID: &n.ID, Batched: true}, nil
	}

	if err := s.scheduleOrDispatch(ctx, n, priority, settings.BatchingPreference); err != nil {
		return nil, err
	}
	return &ProcessResult{Success: true, NotificationID: &n.ID}, nil
}

func (s *eventService) ProcessBulk(ctx context.Context, reqs []EventRequest) (*BulkResult, error) {
	out := &BulkResult{Results: make([]ProcessResult, 0, len(reqs))}
	for _, req := range reqs {
		res, err := s.Process(ctx, req)
		if err != nil {
			out.Results = append(out.Results, ProcessResult{Error: err.Error()})
			out.Failed++
			continue
		}
		out.Results = append(out.Results, *res)
		out.Succeeded++
	}
	return out, nil
}

func (s *eventService) createNotification(ctx context.Context, req EventRequest, nt model.NotificationType, priority model.Priority, channels []model.Channel, now time.Time) (*model.Notification, error) {
	actorName := ""
	if req.ActorID != nil {
		if actor, err := s.userRepo.FindByID(ctx, *req.ActorID); err == nil {
			actorName = actor.DisplayName()
		}
	}

	contentTitle := ""
	if req.RelatedContentID != nil {
		if t, err := s.resolver.ResolveTitle(ctx, req.RelatedContentType, *req.RelatedContentID); err == nil {
			contentTitle = t
		}
	}

	title, message := s.content.Compose(req.Type, actorName, contentTitle)

	var metadata datatypes.JSON
	if len(req.Metadata) > 0 {
		raw, err := json.Marshal(req.Metadata)
		if err != nil {
			return nil, errors.Join(apperror.ErrInvalidInput, err)
		}
		metadata = raw
	}

	n := &model.Notification{
		UserID:             req.RecipientID,
		Type:               req.Type,
		Title:              title,
		Message:            message,
		Category:           nt.Category,
		Priority:           priority,
		ActorID:            req.ActorID,
		RelatedContentType: req.RelatedContentType,
		RelatedContentID:   req.RelatedContentID,
		Metadata:           metadata,
		DeliveryChannels:   datatypes.NewJSONSlice(channels),
		DeliveryStatus:     datatypes.NewJSONType(model.NewDeliveryStatus(channels, now)),
		BatchCount:         1,
	}
	if err := s.notifRepo.Create(ctx, n); err != nil {
		return nil, err
	}
	return n, nil
}

func (s *eventService) scheduleOrDispatch(ctx context.Context, n *model.Notification, priority model.Priority, pref model.BatchingMode) error {
	deliveryTime, err := s.oracle.OptimalDeliveryTime(ctx, n.UserID, priority, pref)
	if err != nil {
		log.Printf("timing oracle error for %s, delivering now: %v", n.ID, err)
		deliveryTime = time.Now()
	}

	if deliveryTime.After(time.Now()) {
		return s.notifRepo.Patch(ctx, n.ID, map[string]any{"scheduled_for": deliveryTime})
	}

	if err := s.dispatch.Dispatch(ctx, n); err != nil {
		// recorded per-channel; the retry supervisor owns it from here
		log.Printf("dispatch failure for %s: %v", n.ID, err)
	}
	return nil
}
