package rest

import (
	"fmt"
	"time"

	"github.com/araddon/dateparse"

	"community-portal/internal/model"
)

// Row types mirror the service's JSON. Timestamps arrive as strings whose
// format depends on the column type, so they are parsed leniently.

type notificationRow struct {
	ID        string  `json:"id"`
	UserID    string  `json:"user_id"`
	Title     string  `json:"title"`
	Message   string  `json:"message"`
	Category  string  `json:"category"`
	CreatedAt string  `json:"created_at"`
	ReadAt    *string `json:"read_at"`
	ActionRef *string `json:"action_ref"`
}

type eventRow struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Location    string  `json:"location"`
	StartsAt    string  `json:"starts_at"`
	EndsAt      *string `json:"ends_at"`
}

type registrationRow struct {
	ID        string `json:"id,omitempty"`
	EventID   string `json:"event_id"`
	UserID    string `json:"user_id"`
	CreatedAt string `json:"created_at,omitempty"`
}

type messageRow struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
	SenderID  string `json:"sender_id"`
	Body      string `json:"body"`
	CreatedAt string `json:"created_at,omitempty"`
}

func (c *Client) parseTime(field, raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := dateparse.ParseIn(raw, c.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse %s %q: %w", field, raw, err)
	}
	return t.UTC(), nil
}

func (c *Client) parseOptionalTime(field string, raw *string) (*time.Time, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	t, err := c.parseTime(field, *raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *Client) toNotification(r notificationRow) (model.NotificationRecord, error) {
	created, err := c.parseTime("created_at", r.CreatedAt)
	if err != nil {
		return model.NotificationRecord{}, err
	}
	readAt, err := c.parseOptionalTime("read_at", r.ReadAt)
	if err != nil {
		return model.NotificationRecord{}, err
	}
	return model.NotificationRecord{
		ID:        r.ID,
		UserID:    r.UserID,
		Title:     r.Title,
		Message:   r.Message,
		Category:  r.Category,
		CreatedAt: created,
		ReadAt:    readAt,
		ActionRef: r.ActionRef,
	}, nil
}

func (c *Client) toEvent(r eventRow) (model.Event, error) {
	starts, err := c.parseTime("starts_at", r.StartsAt)
	if err != nil {
		return model.Event{}, err
	}
	ends, err := c.parseOptionalTime("ends_at", r.EndsAt)
	if err != nil {
		return model.Event{}, err
	}
	ev := model.Event{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description,
		Location:    r.Location,
		StartsAt:    starts,
	}
	if ends != nil {
		ev.EndsAt = *ends
	}
	return ev, nil
}

func (c *Client) toMessage(r messageRow) (model.ChatMessage, error) {
	created, err := c.parseTime("created_at", r.CreatedAt)
	if err != nil {
		return model.ChatMessage{}, err
	}
	return model.ChatMessage{
		ID:        r.ID,
		ChannelID: r.ChannelID,
		SenderID:  r.SenderID,
		Body:      r.Body,
		CreatedAt: created,
	}, nil
}
