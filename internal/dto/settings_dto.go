package dto

// QuietHoursRequest times are "HH:MM" 24h clock; the timezone must be an IANA
// name.
type QuietHoursRequest struct {
	Enabled   bool   `json:"enabled"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Timezone  string `json:"timezone"`
}

type ChannelPrefsRequest struct {
	InApp    bool `json:"in_app"`
	Email    bool `json:"email"`
	WhatsApp bool `json:"whatsapp"`
	SMS      bool `json:"sms"`
	Push     bool `json:"push"`
}

type UpdateSettingsRequest struct {
	Enabled            *bool                `json:"enabled,omitempty"`
	Channels           *ChannelPrefsRequest `json:"channels,omitempty"`
	BatchingPreference *string              `json:"batching_preference,omitempty" binding:"omitempty,oneof=immediate batched digest"`
	QuietHours         *QuietHoursRequest   `json:"quiet_hours,omitempty"`
}
