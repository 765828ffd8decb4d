package handler

import (
	"net/http"

	"anoa.com/notifhub/internal/service"
	"anoa.com/notifhub/pkg/response"
	"github.com/gin-gonic/gin"
)

// OpsHandler exposes the maintenance passes for manual runs; the same code
// paths the cron jobs use.
type OpsHandler struct {
	sweeps service.SweepService
}

func NewOpsHandler(sweeps service.SweepService) *OpsHandler {
	return &OpsHandler{sweeps: sweeps}
}

func (h *OpsHandler) SweepScheduled(c *gin.Context) {
	n, err := h.sweeps.SweepScheduled(c.Request.Context())
	if err != nil {
		response.ResponseError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"dispatched": n})
}

func (h *OpsHandler) SweepBatches(c *gin.Context) {
	n, err := h.sweeps.SweepBatches(c.Request.Context())
	if err != nil {
		response.ResponseError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"flushed": n})
}

func (h *OpsHandler) RetryFailedEmails(c *gin.Context) {
	n, err := h.sweeps.RetryFailedEmails(c.Request.Context())
	if err != nil {
		response.ResponseError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"retried": n})
}

func (h *OpsHandler) Cleanup(c *gin.Context) {
	notifs, err := h.sweeps.CleanupNotifications(c.Request.Context())
	if err != nil {
		response.ResponseError(c, err)
		return
	}
	batches, err := h.sweeps.CleanupBatches(c.Request.Context())
	if err != nil {
		response.ResponseError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications_removed": notifs, "batches_removed": batches})
}
