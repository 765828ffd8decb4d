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

type SettingsHandler struct {
	settings service.SettingsService
}

func NewSettingsHandler(settings service.SettingsService) *SettingsHandler {
	return &SettingsHandler{settings: settings}
}

func (h *SettingsHandler) List(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	settings, err := h.settings.List(c.Request.Context(), userID)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": settings})
}

func (h *SettingsHandler) Update(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	var req dto.UpdateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": validator.FormatValidationError(err)})
		return
	}

	update := service.SettingsUpdate{Enabled: req.Enabled}
	if req.Channels != nil {
		update.Channels = &model.ChannelPrefs{
			InApp:    req.Channels.InApp,
			Email:    req.Channels.Email,
			WhatsApp: req.Channels.WhatsApp,
			SMS:      req.Channels.SMS,
			Push:     req.Channels.Push,
		}
	}
	if req.BatchingPreference != nil {
		mode := model.BatchingMode(*req.BatchingPreference)
		update.BatchingPreference = &mode
	}
	if req.QuietHours != nil {
		update.QuietHours = &model.QuietHours{
			Enabled:   req.QuietHours.Enabled,
			StartTime: req.QuietHours.StartTime,
			EndTime:   req.QuietHours.EndTime,
			Timezone:  req.QuietHours.Timezone,
		}
	}

	settings, err := h.settings.Update(c.Request.Context(), userID, c.Param("type"), update)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": settings})
}

func (h *SettingsHandler) Reset(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	if err := h.settings.Reset(c.Request.Context(), userID); err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Settings reset to defaults"})
}
