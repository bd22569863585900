package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const keepAlive = 25 * time.Second

// GetToasts returns the live toasts.
func (h *Handler) GetToasts(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"toasts": h.toasts.List()})
}

// DismissToast removes a toast.
func (h *Handler) DismissToast(c *gin.Context) {
	h.toasts.Dismiss(c.Param("id"))
	c.Status(http.StatusNoContent)
}

// Stream sends the name of every view that changes as a server-sent event
// so the UI knows what to reload.
func (h *Handler) Stream(c *gin.Context) {
	changes, cancel := h.feed.Subscribe()
	defer cancel()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)
	c.SSEvent("hello", "ready")
	c.Writer.Flush()

	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case name, ok := <-changes:
			if !ok {
				return
			}
			c.SSEvent("change", name)
		case <-ticker.C:
			c.SSEvent("ping", time.Now().Unix())
		case <-ctx.Done():
			return
		}
		c.Writer.Flush()
	}
}
