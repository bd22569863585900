package api

import (
	"context"
	"log"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"community-portal/internal/events"
	"community-portal/internal/localstore"
	"community-portal/internal/mw"
	"community-portal/internal/store"
	"community-portal/internal/view"
)

// Options wires the router to the running controllers.
type Options struct {
	Notifications NotificationsView
	Chat          ChatView
	Events        EventsView
	Reminders     ReminderLister
	Toasts        *view.Toasts
	Feed          *view.Feed
	Drafts        *localstore.Drafts
	Store         store.Store
	WebPush       *webpush.Options

	RateLimit float64
	Burst     int
	CacheTTL  time.Duration
	Logger    *log.Logger
}

// NewRouter creates and configures a new Gin router. Cached responses are
// dropped whenever the events view changes until ctx is done.
func NewRouter(ctx context.Context, opts Options) *gin.Engine {
	r := gin.Default()

	if opts.CacheTTL <= 0 {
		opts.CacheTTL = time.Minute
	}
	caching := mw.NewResponseCache(opts.CacheTTL)
	limiter := mw.NewClientRateLimiter(rate.Limit(opts.RateLimit), opts.Burst, 10*time.Minute)

	h := &Handler{
		panel:     opts.Notifications,
		chat:      opts.Chat,
		events:    opts.Events,
		reminders: opts.Reminders,
		toasts:    opts.Toasts,
		feed:      opts.Feed,
		drafts:    opts.Drafts,
		store:     opts.Store,
		webpush:   opts.WebPush,
		cache:     caching,
		log:       opts.Logger,
	}
	go h.invalidateOnChange(ctx)

	api := r.Group("/api")
	api.Use(limiter.Handler(), caching.Invalidate())
	{
		api.GET("/notifications", h.GetNotifications)
		api.POST("/notifications/read_all", h.MarkAllNotificationsRead)
		api.POST("/notifications/refresh", h.RefreshNotifications)
		api.POST("/notifications/:id/read", h.MarkNotificationRead)

		api.GET("/chat", h.GetChat)
		api.PUT("/chat/active", h.PutActiveChannel)
		api.POST("/chat/messages", h.PostMessage)

		api.GET("/events", caching.Handler(), h.GetEvents)
		api.POST("/events/:id/register", h.RegisterForEvent)
		api.GET("/reminders", h.GetReminders)

		api.GET("/toasts", h.GetToasts)
		api.DELETE("/toasts/:id", h.DismissToast)
		api.GET("/stream", h.Stream)

		api.GET("/drafts/:form/:field", h.GetDraft)
		api.PUT("/drafts/:form/:field", h.PutDraft)
		api.DELETE("/drafts/:form/:field", h.DeleteDraft)

		api.GET("/subscriptions", h.GetSubscription)
		api.PUT("/subscriptions", h.PutSubscription)
		api.DELETE("/subscriptions", h.DeleteSubscription)
		api.PUT("/devices", h.PutDevice)
		api.DELETE("/devices", h.DeleteDevice)
		api.GET("/vapid_public_key", h.GetVAPIDPublicKey)
	}

	return r
}

func (h *Handler) invalidateOnChange(ctx context.Context) {
	changes, cancel := h.feed.Subscribe()
	defer cancel()
	for {
		select {
		case name, ok := <-changes:
			if !ok {
				return
			}
			if name == events.Name {
				h.cache.Flush()
			}
		case <-ctx.Done():
			return
		}
	}
}
