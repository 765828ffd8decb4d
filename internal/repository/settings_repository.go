package repository

import (
	"context"
	"errors"

	"anoa.com/notifhub/internal/model"
	"anoa.com/notifhub/pkg/apperror"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type SettingsRepository interface {
	Get(ctx context.Context, userID uuid.UUID, notificationType string) (*model.NotificationSettings, error)
	// GetOrCreate inserts defaults when no row exists. An existing row is
	// returned untouched.
	GetOrCreate(ctx context.Context, defaults model.NotificationSettings) (*model.NotificationSettings, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]model.NotificationSettings, error)
	Save(ctx context.Context, settings *model.NotificationSettings) error
	DeleteByUser(ctx context.Context, userID uuid.UUID) error
}

type settingsRepository struct {
	db *gorm.DB
}

func NewSettingsRepository(db *gorm.DB) SettingsRepository {
	return &settingsRepository{db: db}
}

func (r *settingsRepository) Get(ctx context.Context, userID uuid.UUID, notificationType string) (*model.NotificationSettings, error) {
	var s model.NotificationSettings
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND notification_type = ?", userID, notificationType).
		First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *settingsRepository) GetOrCreate(ctx context.Context, defaults model.NotificationSettings) (*model.NotificationSettings, error) {
	s := defaults
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND notification_type = ?", defaults.UserID, defaults.NotificationType).
		FirstOrCreate(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *settingsRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]model.NotificationSettings, error) {
	var out []model.NotificationSettings
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("notification_type asc").
		Find(&out).Error
	return out, err
}

func (r *settingsRepository) Save(ctx context.Context, settings *model.NotificationSettings) error {
	return r.db.WithContext(ctx).Save(settings).Error
}

func (r *settingsRepository) DeleteByUser(ctx context.Context, userID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&model.NotificationSettings{}).Error
}
