package repository

import (
	"context"
	"errors"
	"time"

	"anoa.com/notifhub/internal/model"
	"anoa.com/notifhub/pkg/apperror"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ListOptions filters the user-facing notification feed.
type ListOptions struct {
	UnreadOnly bool
	Category   model.Category
	Limit      int
	Offset     int
}

// Stats are the aggregates served by the stats endpoint.
type Stats struct {
	Total          int64 `json:"total"`
	Unread         int64 `json:"unread"`
	Batched        int64 `json:"batched"`
	EmailSent      int64 `json:"email_sent"`
	EmailDelivered int64 `json:"email_delivered"`
	EmailOpened    int64 `json:"email_opened"`
	EmailFailed    int64 `json:"email_failed"`
}

type NotificationRepository interface {
	Create(ctx context.Context, n *model.Notification) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Notification, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Notification, error)
	// Patch applies a partial update. Callers re-read current state first and
	// compute the patch from it.
	Patch(ctx context.Context, id uuid.UUID, updates map[string]any) error
	FindRecentDuplicate(ctx context.Context, userID uuid.UUID, notificationType string, actorID, contentID *uuid.UUID, since time.Time) (*model.Notification, error)
	ListByUser(ctx context.Context, userID uuid.UUID, opts ListOptions) ([]model.Notification, error)
	CountUnread(ctx context.Context, userID uuid.UUID) (int64, error)
	MarkAsRead(ctx context.Context, id, userID uuid.UUID) error
	MarkAllAsRead(ctx context.Context, userID uuid.UUID) error
	Delete(ctx context.Context, id, userID uuid.UUID) error
	FindDueScheduled(ctx context.Context, now time.Time, limit int) ([]model.Notification, error)
	// ClearScheduledFor clears the deferral conditionally so two overlapping
	// sweeps cannot both claim the same notification.
	ClearScheduledFor(ctx context.Context, id uuid.UUID) (bool, error)
	FindByEmailMessageID(ctx context.Context, messageID string) ([]model.Notification, error)
	FindFailedEmail(ctx context.Context, errorAfter time.Time, maxRetries, limit int) ([]model.Notification, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	Stats(ctx context.Context, from, to time.Time) (*Stats, error)
}

type notificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) Create(ctx context.Context, n *model.Notification) error {
	return r.db.WithContext(ctx).Create(n).Error
}

func (r *notificationRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Notification, error) {
	var n model.Notification
	err := r.db.WithContext(ctx).First(&n, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (r *notificationRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Notification, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var out []model.Notification
	err := r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Order("created_at asc").
		Find(&out).Error
	return out, err
}

func (r *notificationRepository) Patch(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&model.Notification{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *notificationRepository) FindRecentDuplicate(ctx context.Context, userID uuid.UUID, notificationType string, actorID, contentID *uuid.UUID, since time.Time) (*model.Notification, error) {
	q := r.db.WithContext(ctx).
		Where("user_id = ? AND type = ? AND created_at >= ?", userID, notificationType, since)
	if actorID != nil {
		q = q.Where("actor_id = ?", *actorID)
	} else {
		q = q.Where("actor_id IS NULL")
	}
	if contentID != nil {
		q = q.Where("related_content_id = ?", *contentID)
	} else {
		q = q.Where("related_content_id IS NULL")
	}

	var n model.Notification
	err := q.Order("created_at desc").First(&n).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (r *notificationRepository) ListByUser(ctx context.Context, userID uuid.UUID, opts ListOptions) ([]model.Notification, error) {
	limit := opts.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	q := r.db.WithContext(ctx).
		Where("user_id = ? AND hidden_from_feed = ?", userID, false)
	if opts.UnreadOnly {
		q = q.Where("is_read = ?", false)
	}
	if opts.Category != "" {
		q = q.Where("category = ?", opts.Category)
	}

	var out []model.Notification
	err := q.Order("created_at desc").
		Limit(limit).
		Offset(opts.Offset).
		Preload("Actor", func(db *gorm.DB) *gorm.DB {
			return db.Select("id", "username", "full_name")
		}).
		Find(&out).Error
	return out, err
}

func (r *notificationRepository) CountUnread(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Notification{}).
		Where("user_id = ? AND is_read = ? AND hidden_from_feed = ?", userID, false, false).
		Count(&count).Error
	return count, err
}

func (r *notificationRepository) MarkAsRead(ctx context.Context, id, userID uuid.UUID) error {
	res := r.db.WithContext(ctx).
		Model(&model.Notification{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("is_read", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperror.ErrNotFound
	}
	return nil
}

func (r *notificationRepository) MarkAllAsRead(ctx context.Context, userID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&model.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Update("is_read", true).Error
}

func (r *notificationRepository) Delete(ctx context.Context, id, userID uuid.UUID) error {
	res := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Delete(&model.Notification{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperror.ErrNotFound
	}
	return nil
}

func (r *notificationRepository) FindDueScheduled(ctx context.Context, now time.Time, limit int) ([]model.Notification, error) {
	var out []model.Notification
	err := r.db.WithContext(ctx).
		Where("scheduled_for IS NOT NULL AND scheduled_for <= ?", now).
		Order("scheduled_for asc").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (r *notificationRepository) ClearScheduledFor(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.Notification{}).
		Where("id = ? AND scheduled_for IS NOT NULL", id).
		Update("scheduled_for", nil)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *notificationRepository) FindByEmailMessageID(ctx context.Context, messageID string) ([]model.Notification, error) {
	var out []model.Notification
	err := r.db.WithContext(ctx).
		Where("delivery_status -> 'email' ->> 'message_id' = ?", messageID).
		Find(&out).Error
	return out, err
}

func (r *notificationRepository) FindFailedEmail(ctx context.Context, errorAfter time.Time, maxRetries, limit int) ([]model.Notification, error) {
	var out []model.Notification
	err := r.db.WithContext(ctx).
		Where("delivery_status -> 'email' ->> 'error' IS NOT NULL").
		Where("COALESCE((delivery_status -> 'email' ->> 'delivered')::boolean, false) = false").
		Where("COALESCE((delivery_status -> 'email' ->> 'retry_count')::int, 0) < ?", maxRetries).
		Where("(delivery_status -> 'email' ->> 'error_at')::timestamptz >= ?", errorAfter).
		Order("created_at asc").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (r *notificationRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&model.Notification{})
	return res.RowsAffected, res.Error
}

func (r *notificationRepository) Stats(ctx context.Context, from, to time.Time) (*Stats, error) {
	stats := &Stats{}
	base := func() *gorm.DB {
		return r.db.WithContext(ctx).
			Model(&model.Notification{}).
			Where("created_at >= ? AND created_at < ?", from, to)
	}

	if err := base().Count(&stats.Total).Error; err != nil {
		return nil, err
	}
	if err := base().Where("is_read = ?", false).Count(&stats.Unread).Error; err != nil {
		return nil, err
	}
	if err := base().Where("batch_id IS NOT NULL").Count(&stats.Batched).Error; err != nil {
		return nil, err
	}
	if err := base().Where("delivery_status -> 'email' ->> 'sent_at' IS NOT NULL").Count(&stats.EmailSent).Error; err != nil {
		return nil, err
	}
	if err := base().Where("COALESCE((delivery_status -> 'email' ->> 'delivered')::boolean, false) = true").Count(&stats.EmailDelivered).Error; err != nil {
		return nil, err
	}
	if err := base().Where("COALESCE((delivery_status -> 'email' ->> 'opened')::boolean, false) = true").Count(&stats.EmailOpened).Error; err != nil {
		return nil, err
	}
	if err := base().Where("delivery_status -> 'email' ->> 'error' IS NOT NULL").Count(&stats.EmailFailed).Error; err != nil {
		return nil, err
	}
	return stats, nil
}
