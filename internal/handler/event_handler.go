package handler

import (
	"net/http"

	"anoa.com/notifhub/internal/dto"
	"anoa.com/notifhub/internal/model"
	"anoa.com/notifhub/internal/service"
	"anoa.com/notifhub/pkg/response"
	"anoa.com/notifhub/pkg/validator"
	"github.com/gin-gonic/gin"
)

type EventHandler struct {
	events service.EventService
}

func NewEventHandler(events service.EventService) *EventHandler {
	return &EventHandler{events: events}
}

func (h *EventHandler) ProcessEvent(c *gin.Context) {
	var req dto.EventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": validator.FormatValidationError(err)})
		return
	}

	result, err := h.events.Process(c.Request.Context(), toEventRequest(req))
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *EventHandler) ProcessBulk(c *gin.Context) {
	var req dto.BulkEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": validator.FormatValidationError(err)})
		return
	}

	reqs := make([]service.EventRequest, 0, len(req.Events))
	for _, e := range req.Events {
		reqs = append(reqs, toEventRequest(e))
	}

	result, err := h.events.ProcessBulk(c.Request.Context(), reqs)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func toEventRequest(req dto.EventRequest) service.EventRequest {
	return service.EventRequest{
		Type:               req.Type,
		RecipientID:        req.RecipientUserID,
		ActorID:            req.ActorUserID,
		RelatedContentType: req.RelatedContentType,
		RelatedContentID:   req.RelatedContentID,
		Metadata:           req.Metadata,
		Priority:           model.Priority(req.Priority),
		ForceImmediate:     req.ForceImmediate,
	}
}
