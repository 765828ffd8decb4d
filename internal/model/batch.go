package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// NotificationBatch aggregates same-(user,type) notifications inside a time
// window. created_at is the window anchor: it is set when the first member
// arrives and never touched on merge. A processed batch is immutable.
type NotificationBatch struct {
	ID                    uuid.UUID                      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID                uuid.UUID                      `gorm:"type:uuid;not null;index:idx_batches_user_type" json:"user_id"`
	Type                  string                         `gorm:"type:varchar(64);not null;index:idx_batches_user_type" json:"type"`
	Notifications         datatypes.JSONSlice[uuid.UUID] `json:"notifications"`
	BatchCount            int                            `gorm:"not null;default:1" json:"batch_count"`
	Category              Category                       `gorm:"type:varchar(32)" json:"category"`
	Priority              Priority                       `gorm:"type:varchar(16)" json:"priority"`
	BatchingMode          BatchingMode                   `gorm:"type:varchar(16);not null" json:"batching_mode"`
	Processed             bool                           `gorm:"default:false;index" json:"processed"`
	ProcessedAt           *time.Time                     `json:"processed_at,omitempty"`
	SummaryNotificationID *uuid.UUID                     `gorm:"type:uuid" json:"summary_notification_id,omitempty"`
	CreatedAt             time.Time                      `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt             time.Time                      `gorm:"autoUpdateTime" json:"updated_at"`
}
