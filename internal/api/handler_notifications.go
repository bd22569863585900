package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetNotifications returns the notifications panel.
func (h *Handler) GetNotifications(c *gin.Context) {
	c.JSON(http.StatusOK, h.panel.View())
}

// MarkNotificationRead marks one notification as read.
func (h *Handler) MarkNotificationRead(c *gin.Context) {
	if err := h.panel.MarkRead(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, h.panel.View())
}

// MarkAllNotificationsRead marks every notification as read.
func (h *Handler) MarkAllNotificationsRead(c *gin.Context) {
	if err := h.panel.MarkAllRead(c.Request.Context()); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, h.panel.View())
}

// RefreshNotifications reloads the panel from the service.
func (h *Handler) RefreshNotifications(c *gin.Context) {
	if err := h.panel.Refresh(c.Request.Context()); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, h.panel.View())
}
