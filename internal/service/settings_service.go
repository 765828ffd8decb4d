package service

import (
	"context"
	"fmt"
	"time"

	"anoa.com/notifhub/internal/model"
	"anoa.com/notifhub/internal/repository"
	"anoa.com/notifhub/pkg/apperror"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// SettingsUpdate carries the fields a user may change for one type. Nil
// means "leave as is"; the resulting row is validated as a whole before
// anything is written, so a bad update is never partially applied.
type SettingsUpdate struct {
	Enabled            *bool
	Channels           *model.ChannelPrefs
	BatchingPreference *model.BatchingMode
	QuietHours         *model.QuietHours
}

type SettingsService interface {
	// List ensures a row exists for every registered type, then returns them.
	List(ctx context.Context, userID uuid.UUID) ([]model.NotificationSettings, error)
	Update(ctx context.Context, userID uuid.UUID, notificationType string, update SettingsUpdate) (*model.NotificationSettings, error)
	// Reset removes every row; defaults are re-created lazily.
	Reset(ctx context.Context, userID uuid.UUID) error
}

type settingsService struct {
	repo     repository.SettingsRepository
	registry *model.TypeRegistry
}

func NewSettingsService(repo repository.SettingsRepository, registry *model.TypeRegistry) SettingsService {
	return &settingsService{repo: repo, registry: registry}
}

func (s *settingsService) List(ctx context.Context, userID uuid.UUID) ([]model.NotificationSettings, error) {
	for _, nt := range s.registry.All() {
		if _, err := s.repo.GetOrCreate(ctx, model.DefaultSettings(userID, nt)); err != nil {
			return nil, err
		}
	}
	return s.repo.ListByUser(ctx, userID)
}

func (s *settingsService) Update(ctx context.Context, userID uuid.UUID, notificationType string, update SettingsUpdate) (*model.NotificationSettings, error) {
	nt, ok := s.registry.Get(notificationType)
	if !ok {
		return nil, apperror.ErrInvalidType
	}

	settings, err := s.repo.GetOrCreate(ctx, model.DefaultSettings(userID, nt))
	if err != nil {
		return nil, err
	}

	if update.Enabled != nil {
		settings.Enabled = *update.Enabled
	}
	if update.Channels != nil {
		settings.Channels = datatypes.NewJSONType(*update.Channels)
	}
	if update.BatchingPreference != nil {
		settings.BatchingPreference = *update.BatchingPreference
	}
	if update.QuietHours != nil {
		settings.QuietHours = datatypes.NewJSONType(*update.QuietHours)
	}

	if err := validateSettings(settings); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, settings); err != nil {
		return nil, err
	}
	return settings, nil
}

func (s *settingsService) Reset(ctx context.Context, userID uuid.UUID) error {
	return s.repo.DeleteByUser(ctx, userID)
}

func validateSettings(settings *model.NotificationSettings) error {
	switch settings.BatchingPreference {
	case model.BatchingImmediate, model.BatchingBatched, model.BatchingDigest:
	default:
		return fmt.Errorf("%w: batching preference must be immediate, batched or digest", apperror.ErrInvalidInput)
	}

	if settings.Enabled && len(settings.Channels.Data().EnabledChannels()) == 0 {
		return fmt.Errorf("%w: at least one channel must be enabled while notifications are enabled", apperror.ErrInvalidInput)
	}

	qh := settings.QuietHours.Data()
	if qh.Enabled {
		if err := validateClock(qh.StartTime); err != nil {
			return fmt.Errorf("%w: quiet hours start time: %v", apperror.ErrInvalidInput, err)
		}
		if err := validateClock(qh.EndTime); err != nil {
			return fmt.Errorf("%w: quiet hours end time: %v", apperror.ErrInvalidInput, err)
		}
		if qh.Timezone != "" {
			if _, err := time.LoadLocation(qh.Timezone); err != nil {
				return fmt.Errorf("%w: unknown timezone %q", apperror.ErrInvalidInput, qh.Timezone)
			}
		}
	}
	return nil
}

func validateClock(v string) error {
	if _, err := time.Parse("15:04", v); err != nil {
		return fmt.Errorf("%q is not HH:MM", v)
	}
	return nil
}
