package handler

import (
	"net/http"

	"anoa.com/notifhub/internal/dto"
	"anoa.com/notifhub/internal/service"
	"anoa.com/notifhub/pkg/response"
	"anoa.com/notifhub/pkg/validator"
	"github.com/gin-gonic/gin"
)

type WebhookHandler struct {
	dispatch service.DispatchService
	secret   string
}

func NewWebhookHandler(dispatch service.DispatchService, secret string) *WebhookHandler {
	return &WebhookHandler{dispatch: dispatch, secret: secret}
}

// HandleEmailEvent receives provider delivery callbacks. Unknown message ids
// are acknowledged with zero merges so the provider does not keep retrying.
func (h *WebhookHandler) HandleEmailEvent(c *gin.Context) {
	if h.secret != "" && c.GetHeader("X-Webhook-Secret") != h.secret {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid webhook secret"})
		return
	}

	var req dto.EmailWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": validator.FormatValidationError(err)})
		return
	}

	merged, err := h.dispatch.HandleEmailWebhook(c.Request.Context(), req.MessageID, req.Event)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"merged": merged})
}
