package dto

// EmailWebhookRequest is the provider callback reporting what happened to a
// sent message.
type EmailWebhookRequest struct {
	MessageID string `json:"message_id" binding:"required"`
	Event     string `json:"event" binding:"required,oneof=delivered opened bounced complained failed"`
}
