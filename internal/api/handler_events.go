package api

import (
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"
)

// GetEvents returns the events calendar.
func (h *Handler) GetEvents(c *gin.Context) {
	c.JSON(http.StatusOK, h.events.View())
}

// RegisterForEvent registers the member for an event.
func (h *Handler) RegisterForEvent(c *gin.Context) {
	reg, err := h.events.Register(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, reg)
}

// GetReminders lists the stored reminders, soonest first.
func (h *Handler) GetReminders(c *gin.Context) {
	entries, err := h.reminders.List(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].ScheduledTime.Before(entries[j].ScheduledTime)
	})
	c.JSON(http.StatusOK, gin.H{"reminders": entries})
}
