// Package events is the events calendar controller. Registering for an
// event schedules local reminders ahead of its start.
package events

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"community-portal/internal/model"
	"community-portal/internal/parse"
	"community-portal/internal/reminder"
	"community-portal/internal/session"
	"community-portal/internal/view"
)

// Name identifies the calendar in change notifications.
const Name = "events"

// ErrUnknownEvent is returned for events not in the calendar.
var ErrUnknownEvent = errors.New("unknown event")

// Scheduler persists reminders for a registration.
type Scheduler interface {
	Schedule(ctx context.Context, ownerID, subjectID string, offsets []parse.Offset, deadline time.Time, msg reminder.MessageFunc) ([]model.ReminderEntry, error)
}

// Item is an event as displayed.
type Item struct {
	model.Event
	Registered bool `json:"registered"`
}

// Day groups the events starting on one calendar day.
type Day struct {
	Date   string `json:"date"`
	Label  string `json:"label"`
	Events []Item `json:"events"`
}

// View is the rendered calendar.
type View struct {
	Status view.Status `json:"status"`
	Days   []Day       `json:"days"`
}

// Deps are the calendar's collaborators.
type Deps struct {
	Probe       func(ctx context.Context) (*session.Handle, error)
	Interval    time.Duration
	MaxAttempts int
	Reminders   Scheduler
	Offsets     []parse.Offset
	// Location is the organization timezone used for grouping and messages.
	Location *time.Location
	Toasts   *view.Toasts
	Feed     *view.Feed
	Logger   *log.Logger
	Now      func() time.Time
}

// Calendar is the events controller.
type Calendar struct {
	lc        *view.Lifecycle
	reminders Scheduler
	offsets   []parse.Offset
	loc       *time.Location
	toasts    *view.Toasts
	now       func() time.Time
	log       *log.Logger

	mu         sync.RWMutex
	events     []model.Event
	registered map[string]bool // by event id
	rendered   View
}

// New creates an uninitialized calendar.
func New(d Deps) *Calendar {
	c := &Calendar{
		reminders:  d.Reminders,
		offsets:    d.Offsets,
		loc:        d.Location,
		toasts:     d.Toasts,
		now:        d.Now,
		log:        d.Logger,
		registered: make(map[string]bool),
	}
	if c.loc == nil {
		c.loc = time.UTC
	}
	if c.now == nil {
		c.now = time.Now
	}
	c.lc = view.NewLifecycle(Name, d.Probe, d.Interval, d.MaxAttempts, d.Feed, d.Logger)
	return c
}

// Init runs the calendar lifecycle.
func (c *Calendar) Init(ctx context.Context) error { return c.lc.Run(ctx, c) }

// Name returns the controller name.
func (c *Calendar) Name() string { return Name }

// Close implements shell.Controller; the calendar holds no realtime bridge.
func (c *Calendar) Close() error { return nil }

// Fetch loads upcoming events and the member's registrations.
func (c *Calendar) Fetch(ctx context.Context, h *session.Handle) error {
	events, err := h.Service.ListEvents(ctx, c.now())
	if err != nil {
		return err
	}
	regs, err := h.Service.ListRegistrations(ctx, h.Identity.UserID)
	if err != nil {
		return err
	}

	registered := make(map[string]bool, len(regs))
	for _, r := range regs {
		registered[r.EventID] = true
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = events
	sort.SliceStable(c.events, func(i, j int) bool {
		return c.events[i].StartsAt.Before(c.events[j].StartsAt)
	})
	c.registered = registered
	return nil
}

func (c *Calendar) Render() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.renderLocked()
}

func (c *Calendar) renderLocked() {
	var days []Day
	for _, ev := range c.events {
		local := ev.StartsAt.In(c.loc)
		date := local.Format("2006-01-02")
		if len(days) == 0 || days[len(days)-1].Date != date {
			days = append(days, Day{Date: date, Label: local.Format("Monday, January 2")})
		}
		last := &days[len(days)-1]
		last.Events = append(last.Events, Item{Event: ev, Registered: c.registered[ev.ID]})
	}
	c.rendered = View{Days: days}
}

// Subscribe is a no-op: the calendar has no live updates.
func (c *Calendar) Subscribe(context.Context, *session.Handle) error { return nil }

// View returns the current rendered calendar.
func (c *Calendar) View() View {
	c.mu.RLock()
	v := c.rendered
	c.mu.RUnlock()
	v.Status = c.lc.Status()
	return v
}

// Register registers the member for eventID once the service confirms it,
// then schedules reminders. A reminder storage failure is reported to the
// member but does not undo the registration.
func (c *Calendar) Register(ctx context.Context, eventID string) (model.EventRegistration, error) {
	h, err := c.lc.Handle()
	if err != nil {
		return model.EventRegistration{}, err
	}

	c.mu.RLock()
	ev, ok := c.findLocked(eventID)
	c.mu.RUnlock()
	if !ok {
		return model.EventRegistration{}, ErrUnknownEvent
	}

	reg, err := h.Service.RegisterForEvent(ctx, eventID, h.Identity.UserID)
	if err != nil {
		c.toasts.Error(fmt.Sprintf("Could not register for %s. Please try again.", ev.Title))
		return model.EventRegistration{}, err
	}

	c.mu.Lock()
	c.registered[eventID] = true
	c.renderLocked()
	c.mu.Unlock()
	c.lc.Changed()

	entries, err := c.reminders.Schedule(ctx, reg.ID, ev.ID, c.offsets, ev.StartsAt, c.message(ev))
	if err != nil {
		c.log.Printf("[WARN] Reminders for %s not saved: %v", ev.ID, err)
		c.toasts.Warn(fmt.Sprintf("You are registered for %s, but reminders could not be saved.", ev.Title))
		return reg, nil
	}
	c.toasts.Info(fmt.Sprintf("Registered for %s. %d reminder(s) scheduled.", ev.Title, len(entries)))
	return reg, nil
}

// Refresh reloads the calendar.
func (c *Calendar) Refresh(ctx context.Context) error {
	h, err := c.lc.Handle()
	if err != nil {
		return err
	}
	err = c.Fetch(ctx, h)
	c.lc.SetError(err)
	c.Render()
	c.lc.Changed()
	return err
}

func (c *Calendar) findLocked(id string) (model.Event, bool) {
	for _, ev := range c.events {
		if ev.ID == id {
			return ev, true
		}
	}
	return model.Event{}, false
}

func (c *Calendar) message(ev model.Event) reminder.MessageFunc {
	return func(o parse.Offset, deadline time.Time) string {
		return fmt.Sprintf("%s starts in %s (%s)", ev.Title, describe(o.Before), deadline.In(c.loc).Format("Mon Jan 2, 15:04 MST"))
	}
}

func describe(d time.Duration) string {
	switch {
	case d >= 24*time.Hour && d%(24*time.Hour) == 0:
		return plural(int(d/(24*time.Hour)), "day")
	case d >= time.Hour && d%time.Hour == 0:
		return plural(int(d/time.Hour), "hour")
	case d%time.Minute == 0:
		return plural(int(d/time.Minute), "minute")
	}
	return d.String()
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
