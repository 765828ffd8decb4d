package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ChannelStatus is the per-channel delivery bookkeeping embedded in a
// Notification. delivered is monotonic: once true a later webhook event never
// reverts it. error is cleared on a successful send.
type ChannelStatus struct {
	Delivered   bool       `json:"delivered"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	MessageID   string     `json:"message_id,omitempty"`
	Opened      bool       `json:"opened,omitempty"`
	Error       string     `json:"error,omitempty"`
	ErrorAt     *time.Time `json:"error_at,omitempty"`
	RetryCount  int        `json:"retry_count,omitempty"`
	SentAt      *time.Time `json:"sent_at,omitempty"`
}

type DeliveryStatusMap map[Channel]*ChannelStatus

type Notification struct {
	ID                 uuid.UUID                             `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID             uuid.UUID                             `gorm:"type:uuid;not null;index" json:"user_id"`
	Type               string                                `gorm:"type:varchar(64);not null;index" json:"type"`
	Title              string                                `gorm:"type:varchar(255)" json:"title"`
	Message            string                                `gorm:"type:text" json:"message"`
	IsRead             bool                                  `gorm:"default:false;index" json:"is_read"`
	Category           Category                              `gorm:"type:varchar(32);index" json:"category"`
	Priority           Priority                              `gorm:"type:varchar(16)" json:"priority"`
	ActorID            *uuid.UUID                            `gorm:"type:uuid" json:"actor_id,omitempty"`
	RelatedContentType string                                `gorm:"type:varchar(50)" json:"related_content_type,omitempty"`
	RelatedContentID   *uuid.UUID                            `gorm:"type:uuid" json:"related_content_id,omitempty"`
	Metadata           datatypes.JSON                        `json:"metadata,omitempty"`
	DeliveryChannels   datatypes.JSONSlice[Channel]          `json:"delivery_channels"`
	DeliveryStatus     datatypes.JSONType[DeliveryStatusMap] `json:"delivery_status"`
	BatchID            *uuid.UUID                            `gorm:"type:uuid;index" json:"batch_id,omitempty"`
	BatchCount         int                                   `gorm:"default:1" json:"batch_count"`
	ScheduledFor       *time.Time                            `gorm:"index" json:"scheduled_for,omitempty"`
	HiddenFromFeed     bool                                  `gorm:"default:false;index" json:"hidden_from_feed"`
	BatchedInto        *uuid.UUID                            `gorm:"type:uuid" json:"batched_into,omitempty"`
	CreatedAt          time.Time                             `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt          time.Time                             `gorm:"autoUpdateTime" json:"updated_at"`

	// Pointers to avoid recursion if User ever gains a Notifications slice
	User  *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Actor *User `gorm:"foreignKey:ActorID" json:"actor,omitempty"`
}

// ChannelStatusFor returns the recorded status for one channel, or nil.
func (n *Notification) ChannelStatusFor(ch Channel) *ChannelStatus {
	return n.DeliveryStatus.Data()[ch]
}

// HasChannel reports whether ch was selected for delivery.
func (n *Notification) HasChannel(ch Channel) bool {
	for _, c := range n.DeliveryChannels {
		if c == ch {
			return true
		}
	}
	return false
}

// NewDeliveryStatus builds the initial status snapshot for the chosen
// channels: in_app is delivered the moment the row exists, everything else
// starts undelivered and gets filled in at send time.
func NewDeliveryStatus(channels []Channel, now time.Time) DeliveryStatusMap {
	m := make(DeliveryStatusMap, len(channels))
	for _, ch := range channels {
		if ch == ChannelInApp {
			at := now
			m[ch] = &ChannelStatus{Delivered: true, DeliveredAt: &at}
			continue
		}
		m[ch] = &ChannelStatus{}
	}
	return m
}
