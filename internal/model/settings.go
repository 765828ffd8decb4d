package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ChannelPrefs is the per-channel enable map stored on a settings row.
type ChannelPrefs struct {
	InApp    bool `json:"in_app"`
	Email    bool `json:"email"`
	WhatsApp bool `json:"whatsapp"`
	SMS      bool `json:"sms"`
	Push     bool `json:"push"`
}

func (p ChannelPrefs) IsEnabled(ch Channel) bool {
	switch ch {
	case ChannelInApp:
		return p.InApp
	case ChannelEmail:
		return p.Email
	case ChannelWhatsApp:
		return p.WhatsApp
	case ChannelSMS:
		return p.SMS
	case ChannelPush:
		return p.Push
	}
	return false
}

// EnabledChannels returns the enabled subset in fixed channel order.
func (p ChannelPrefs) EnabledChannels() []Channel {
	all := []Channel{ChannelInApp, ChannelEmail, ChannelWhatsApp, ChannelSMS, ChannelPush}
	var out []Channel
	for _, ch := range all {
		if p.IsEnabled(ch) {
			out = append(out, ch)
		}
	}
	return out
}

// QuietHours is consumed by the timing oracle; the pipeline only stores and
// validates it.
type QuietHours struct {
	Enabled   bool   `json:"enabled"`
	StartTime string `json:"start_time"` // "HH:MM"
	EndTime   string `json:"end_time"`   // "HH:MM"
	Timezone  string `json:"timezone"`
}

// NotificationSettings is one user's preferences for one notification type.
// Rows are created lazily with type defaults on the first event and only
// removed by an explicit reset.
type NotificationSettings struct {
	ID                 uuid.UUID                        `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID             uuid.UUID                        `gorm:"type:uuid;not null;uniqueIndex:idx_settings_user_type" json:"user_id"`
	NotificationType   string                           `gorm:"type:varchar(64);not null;uniqueIndex:idx_settings_user_type" json:"notification_type"`
	Enabled            bool                             `gorm:"default:true" json:"enabled"`
	Channels           datatypes.JSONType[ChannelPrefs] `json:"channels"`
	BatchingPreference BatchingMode                     `gorm:"type:varchar(16);default:'immediate'" json:"batching_preference"`
	QuietHours         datatypes.JSONType[QuietHours]   `json:"quiet_hours"`
	CreatedAt          time.Time                        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time                        `gorm:"autoUpdateTime" json:"updated_at"`
}

// DefaultSettings builds the lazily-inserted row for a (user, type) pair from
// the type's static defaults.
func DefaultSettings(userID uuid.UUID, nt NotificationType) NotificationSettings {
	prefs := ChannelPrefs{}
	for _, ch := range nt.DefaultChannels {
		switch ch {
		case ChannelInApp:
			prefs.InApp = true
		case ChannelEmail:
			prefs.Email = true
		case ChannelWhatsApp:
			prefs.WhatsApp = true
		case ChannelSMS:
			prefs.SMS = true
		case ChannelPush:
			prefs.Push = true
		}
	}

	mode := BatchingImmediate
	if nt.Batchable {
		mode = BatchingBatched
	}

	return NotificationSettings{
		UserID:             userID,
		NotificationType:   nt.ID,
		Enabled:            true,
		Channels:           datatypes.NewJSONType(prefs),
		BatchingPreference: mode,
	}
}
