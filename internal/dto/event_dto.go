package dto

import (
	"github.com/google/uuid"
)

type EventRequest struct {
	Type               string         `json:"type" binding:"required"`
	RecipientUserID    uuid.UUID      `json:"recipient_user_id" binding:"required"`
	ActorUserID        *uuid.UUID     `json:"actor_user_id,omitempty"`
	RelatedContentType string         `json:"related_content_type,omitempty"`
	RelatedContentID   *uuid.UUID     `json:"related_content_id,omitempty"`
	Metadata           map[string]any `json:"metadata,omitempty"`
	Priority           string         `json:"priority,omitempty" binding:"omitempty,oneof=low medium high"`
	ForceImmediate     bool           `json:"force_immediate,omitempty"`
}

type BulkEventRequest struct {
	Events []EventRequest `json:"events" binding:"required,min=1,max=100,dive"`
}
