package repository

import (
	"context"
	"errors"
	"time"

	"anoa.com/notifhub/internal/model"
	"anoa.com/notifhub/pkg/apperror"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type BatchRepository interface {
	Create(ctx context.Context, b *model.NotificationBatch) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.NotificationBatch, error)
	// FindOpen returns the newest unprocessed batch for (user, type) whose
	// window anchor is at or after windowStart.
	FindOpen(ctx context.Context, userID uuid.UUID, notificationType string, windowStart time.Time) (*model.NotificationBatch, error)
	// AppendMember writes the merged member list guarded by the count read
	// beforehand. A false return means another writer got there first and the
	// caller must re-read.
	AppendMember(ctx context.Context, batchID uuid.UUID, expectedCount int, members []uuid.UUID) (bool, error)
	// MarkProcessed flips the processed flag exactly once; false means the
	// batch was already processed.
	MarkProcessed(ctx context.Context, batchID uuid.UUID, summaryID *uuid.UUID, at time.Time) (bool, error)
	FindDue(ctx context.Context, batchedCutoff, digestCutoff time.Time, minCount, limit int) ([]model.NotificationBatch, error)
	FindStale(ctx context.Context, cutoff time.Time, limit int) ([]model.NotificationBatch, error)
	DeleteProcessedOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type batchRepository struct {
	db *gorm.DB
}

func NewBatchRepository(db *gorm.DB) BatchRepository {
	return &batchRepository{db: db}
}

func (r *batchRepository) Create(ctx context.Context, b *model.NotificationBatch) error {
	return r.db.WithContext(ctx).Create(b).Error
}

func (r *batchRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.NotificationBatch, error) {
	var b model.NotificationBatch
	err := r.db.WithContext(ctx).First(&b, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *batchRepository) FindOpen(ctx context.Context, userID uuid.UUID, notificationType string, windowStart time.Time) (*model.NotificationBatch, error) {
	var b model.NotificationBatch
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND type = ? AND processed = ? AND created_at >= ?",
			userID, notificationType, false, windowStart).
		Order("created_at desc").
		First(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *batchRepository) AppendMember(ctx context.Context, batchID uuid.UUID, expectedCount int, members []uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.NotificationBatch{}).
		Where("id = ? AND processed = ? AND batch_count = ?", batchID, false, expectedCount).
		Updates(map[string]any{
			"notifications": datatypes.NewJSONSlice(members),
			"batch_count":   len(members),
			"updated_at":    time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *batchRepository) MarkProcessed(ctx context.Context, batchID uuid.UUID, summaryID *uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.NotificationBatch{}).
		Where("id = ? AND processed = ?", batchID, false).
		Updates(map[string]any{
			"processed":               true,
			"processed_at":            at,
			"summary_notification_id": summaryID,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *batchRepository) FindDue(ctx context.Context, batchedCutoff, digestCutoff time.Time, minCount, limit int) ([]model.NotificationBatch, error) {
	var out []model.NotificationBatch
	err := r.db.WithContext(ctx).
		Where("processed = ? AND batch_count >= ?", false, minCount).
		Where("(batching_mode = ? AND created_at <= ?) OR (batching_mode = ? AND created_at <= ?)",
			model.BatchingBatched, batchedCutoff, model.BatchingDigest, digestCutoff).
		Order("created_at asc").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (r *batchRepository) FindStale(ctx context.Context, cutoff time.Time, limit int) ([]model.NotificationBatch, error) {
	var out []model.NotificationBatch
	err := r.db.WithContext(ctx).
		Where("processed = ? AND created_at <= ?", false, cutoff).
		Order("created_at asc").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (r *batchRepository) DeleteProcessedOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("processed = ? AND processed_at < ?", true, cutoff).
		Delete(&model.NotificationBatch{})
	return res.RowsAffected, res.Error
}
