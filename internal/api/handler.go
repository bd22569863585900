// Package api serves the member's local browser UI.
package api

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"

	"community-portal/internal/chat"
	"community-portal/internal/events"
	"community-portal/internal/localstore"
	"community-portal/internal/model"
	"community-portal/internal/mw"
	"community-portal/internal/panel"
	"community-portal/internal/remote"
	"community-portal/internal/store"
	"community-portal/internal/view"
)

// NotificationsView is the notifications panel as used by the API.
type NotificationsView interface {
	View() panel.View
	MarkRead(ctx context.Context, id string) error
	MarkAllRead(ctx context.Context) error
	Refresh(ctx context.Context) error
}

// ChatView is the chat controller as used by the API.
type ChatView interface {
	View() chat.View
	Switch(ctx context.Context, channelID string) error
	Send(ctx context.Context, body string) (model.ChatMessage, error)
}

// EventsView is the events calendar as used by the API.
type EventsView interface {
	View() events.View
	Register(ctx context.Context, eventID string) (model.EventRegistration, error)
}

// ReminderLister lists the stored reminders.
type ReminderLister interface {
	List(ctx context.Context) ([]model.ReminderEntry, error)
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	panel     NotificationsView
	chat      ChatView
	events    EventsView
	reminders ReminderLister
	toasts    *view.Toasts
	feed      *view.Feed
	drafts    *localstore.Drafts
	store     store.Store
	webpush   *webpush.Options
	cache     *mw.ResponseCache
	log       *log.Logger
}

// errorStatus maps controller errors to HTTP statuses.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, view.ErrNotWired):
		return http.StatusServiceUnavailable
	case errors.Is(err, panel.ErrUnknownNotification),
		errors.Is(err, chat.ErrUnknownChannel),
		errors.Is(err, events.ErrUnknownEvent),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, chat.ErrEmptyMessage), errors.Is(err, chat.ErrNoChannel):
		return http.StatusBadRequest
	case errors.Is(err, remote.ErrMutation), errors.Is(err, remote.ErrFetch):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (h *Handler) fail(c *gin.Context, err error) {
	status := errorStatus(err)
	if status >= http.StatusInternalServerError {
		h.log.Printf("[ERROR] %s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

// bind decodes the JSON body into req and answers 400 when it is invalid.
func bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}
