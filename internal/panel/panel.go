// Package panel is the notifications panel controller.
package panel

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"
	"time"

	"community-portal/internal/model"
	"community-portal/internal/notification"
	"community-portal/internal/realtime"
	"community-portal/internal/remote"
	"community-portal/internal/session"
	"community-portal/internal/view"
)

// Name identifies the panel in change notifications.
const Name = "notifications"

// ErrUnknownNotification is returned for ids not in the panel.
var ErrUnknownNotification = errors.New("unknown notification")

// Dispatcher queues alerts for delivery.
type Dispatcher interface {
	Dispatch(job notification.Job)
}

// View is the rendered panel.
type View struct {
	Status   view.Status                `json:"status"`
	Live     bool                       `json:"live"`
	Degraded string                     `json:"degraded,omitempty"`
	Unread   int                        `json:"unread"`
	Items    []model.NotificationRecord `json:"items"`
}

// Deps are the panel's collaborators.
type Deps struct {
	Probe       func(ctx context.Context) (*session.Handle, error)
	Interval    time.Duration
	MaxAttempts int
	Transport   realtime.Transport
	Toasts      *view.Toasts
	Feed        *view.Feed
	Push        Dispatcher
	Logger      *log.Logger
	Now         func() time.Time
}

// Panel mirrors the member's notifications.
type Panel struct {
	lc     *view.Lifecycle
	bridge *realtime.Bridge
	toasts *view.Toasts
	push   Dispatcher
	now    func() time.Time
	log    *log.Logger

	mu       sync.RWMutex
	records  []model.NotificationRecord // newest first
	rendered View
}

// New creates an uninitialized panel.
func New(d Deps) *Panel {
	p := &Panel{
		toasts: d.Toasts,
		push:   d.Push,
		now:    d.Now,
		log:    d.Logger,
	}
	if p.now == nil {
		p.now = time.Now
	}
	p.lc = view.NewLifecycle(Name, d.Probe, d.Interval, d.MaxAttempts, d.Feed, d.Logger)
	p.bridge = realtime.NewBridge(d.Transport, p.onEvent, d.Logger)
	return p
}

// Init runs the panel lifecycle.
func (p *Panel) Init(ctx context.Context) error { return p.lc.Run(ctx, p) }

// Name returns the controller name.
func (p *Panel) Name() string { return Name }

// Bridge returns the panel's realtime bridge.
func (p *Panel) Bridge() *realtime.Bridge { return p.bridge }

func (p *Panel) Fetch(ctx context.Context, h *session.Handle) error {
	records, err := h.Service.ListNotifications(ctx, h.Identity.UserID)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.records = p.mergeAll(records)
	p.mu.Unlock()
	return nil
}

func (p *Panel) Render() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.renderLocked()
}

func (p *Panel) renderLocked() {
	items := make([]model.NotificationRecord, len(p.records))
	copy(items, p.records)
	p.rendered = View{Unread: model.UnreadCount(items), Items: items}
}

func (p *Panel) Subscribe(ctx context.Context, h *session.Handle) error {
	_, err := p.bridge.Open(ctx, remote.NotificationsKey(h.Identity.UserID))
	return err
}

// View returns the current rendered panel.
func (p *Panel) View() View {
	p.mu.RLock()
	v := p.rendered
	p.mu.RUnlock()

	v.Status = p.lc.Status()
	v.Live = p.bridge.Live().Live()
	if err := p.bridge.Degraded(); err != nil {
		v.Degraded = err.Error()
	}
	return v
}

// Unread returns the number of unread notifications.
func (p *Panel) Unread() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return model.UnreadCount(p.records)
}

// MarkRead marks id as read. The change shows immediately and is reverted
// if the service rejects it.
func (p *Panel) MarkRead(ctx context.Context, id string) error {
	h, err := p.lc.Handle()
	if err != nil {
		return err
	}

	at := p.now().UTC()
	p.mu.Lock()
	i := p.indexLocked(id)
	if i < 0 {
		p.mu.Unlock()
		return ErrUnknownNotification
	}
	if p.records[i].IsRead() {
		p.mu.Unlock()
		return nil
	}
	p.records[i].ReadAt = &at
	p.renderLocked()
	p.mu.Unlock()
	p.lc.Changed()

	if err := h.Service.MarkNotificationRead(ctx, id, at); err != nil {
		p.revert(id, at)
		p.toasts.Error("Could not mark the notification as read. Please try again.")
		return err
	}
	return nil
}

// MarkAllRead marks every unread notification as read.
func (p *Panel) MarkAllRead(ctx context.Context) error {
	p.mu.RLock()
	var ids []string
	for _, r := range p.records {
		if !r.IsRead() {
			ids = append(ids, r.ID)
		}
	}
	p.mu.RUnlock()

	var errs []error
	for _, id := range ids {
		if err := p.MarkRead(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Refresh reloads the notifications from the service.
func (p *Panel) Refresh(ctx context.Context) error {
	h, err := p.lc.Handle()
	if err != nil {
		return err
	}
	err = p.Fetch(ctx, h)
	p.lc.SetError(err)
	if err == nil {
		p.Render()
	}
	p.lc.Changed()
	return err
}

// Close releases the live subscription.
func (p *Panel) Close() error { return p.bridge.CloseAll() }

// revert undoes an optimistic read unless the service has since confirmed
// a read of its own.
func (p *Panel) revert(id string, at time.Time) {
	p.mu.Lock()
	if i := p.indexLocked(id); i >= 0 {
		if r := p.records[i].ReadAt; r != nil && r.Equal(at) {
			p.records[i].ReadAt = nil
			p.renderLocked()
		}
	}
	p.mu.Unlock()
	p.lc.Changed()
}

func (p *Panel) onEvent(ev realtime.Event) {
	var rec model.NotificationRecord
	if err := ev.Decode(&rec); err != nil {
		p.log.Printf("[WARN] Ignoring malformed %s event: %v", ev.Type, err)
		return
	}

	p.mu.Lock()
	i := p.indexLocked(rec.ID)
	isNew := i < 0
	if isNew {
		p.records = append(p.records, rec)
		sortNewestFirst(p.records)
	} else {
		p.records[i] = merge(p.records[i], rec)
	}
	p.renderLocked()
	p.mu.Unlock()
	p.lc.Changed()

	if isNew && !rec.IsRead() && p.push != nil {
		job := notification.Job{Title: rec.Title, Body: rec.Message, Tag: "notification:" + rec.ID}
		if rec.ActionRef != nil {
			job.URL = *rec.ActionRef
		}
		p.push.Dispatch(job)
	}
}

// mergeAll replaces the mirror with fetched records, keeping read marks the
// service has not caught up with yet.
func (p *Panel) mergeAll(fetched []model.NotificationRecord) []model.NotificationRecord {
	prev := make(map[string]model.NotificationRecord, len(p.records))
	for _, r := range p.records {
		prev[r.ID] = r
	}
	out := make([]model.NotificationRecord, len(fetched))
	for i, r := range fetched {
		if old, ok := prev[r.ID]; ok {
			r = merge(old, r)
		}
		out[i] = r
	}
	sortNewestFirst(out)
	return out
}

func (p *Panel) indexLocked(id string) int {
	for i, r := range p.records {
		if r.ID == id {
			return i
		}
	}
	return -1
}

// merge applies incoming over current. ReadAt never goes back to unread,
// and once set keeps its earliest value.
func merge(current, incoming model.NotificationRecord) model.NotificationRecord {
	readAt := current.ReadAt
	if incoming.ReadAt != nil && (readAt == nil || incoming.ReadAt.Before(*readAt)) {
		readAt = incoming.ReadAt
	}
	incoming.ReadAt = readAt
	return incoming
}

func sortNewestFirst(records []model.NotificationRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
}
