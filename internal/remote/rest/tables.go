package rest

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"community-portal/internal/model"
	"community-portal/internal/remote"
)

// ListNotifications returns the member's notifications, newest first.
func (c *Client) ListNotifications(ctx context.Context, userID string) ([]model.NotificationRecord, error) {
	var rows []notificationRow
	err := c.do(ctx, request{
		method: http.MethodGet,
		table:  "notifications",
		query: url.Values{
			"user_id": {"eq." + userID},
			"order":   {"created_at.desc"},
		},
	}, &rows)
	if err != nil {
		return nil, &remote.FetchError{Op: "list notifications", Err: err}
	}

	records := make([]model.NotificationRecord, 0, len(rows))
	for _, r := range rows {
		rec, err := c.toNotification(r)
		if err != nil {
			return nil, &remote.FetchError{Op: "list notifications", Err: err}
		}
		records = append(records, rec)
	}
	return records, nil
}

// MarkNotificationRead sets read_at on a notification that is still unread.
func (c *Client) MarkNotificationRead(ctx context.Context, id string, at time.Time) error {
	err := c.do(ctx, request{
		method: http.MethodPatch,
		table:  "notifications",
		query: url.Values{
			"id":      {"eq." + id},
			"read_at": {"is.null"},
		},
		body:   map[string]string{"read_at": at.UTC().Format(time.RFC3339Nano)},
		prefer: "return=minimal",
	}, nil)
	if err != nil {
		return &remote.MutationError{Op: "mark notification read", Err: err}
	}
	return nil
}

// ListEvents returns events starting at or after from, soonest first.
func (c *Client) ListEvents(ctx context.Context, from time.Time) ([]model.Event, error) {
	var rows []eventRow
	err := c.do(ctx, request{
		method: http.MethodGet,
		table:  "events",
		query: url.Values{
			"starts_at": {"gte." + from.UTC().Format(time.RFC3339)},
			"order":     {"starts_at.asc"},
		},
	}, &rows)
	if err != nil {
		return nil, &remote.FetchError{Op: "list events", Err: err}
	}

	events := make([]model.Event, 0, len(rows))
	for _, r := range rows {
		ev, err := c.toEvent(r)
		if err != nil {
			return nil, &remote.FetchError{Op: "list events", Err: err}
		}
		events = append(events, ev)
	}
	return events, nil
}

// RegisterForEvent records the member's registration. Registering twice
// returns the existing row.
func (c *Client) RegisterForEvent(ctx context.Context, eventID, userID string) (model.EventRegistration, error) {
	var rows []registrationRow
	err := c.do(ctx, request{
		method: http.MethodPost,
		table:  "event_registrations",
		query:  url.Values{"on_conflict": {"event_id,user_id"}},
		body:   registrationRow{EventID: eventID, UserID: userID},
		prefer: "resolution=merge-duplicates,return=representation",
	}, &rows)
	if err == nil && len(rows) == 0 {
		err = errors.New("service returned no registration")
	}
	if err != nil {
		return model.EventRegistration{}, &remote.MutationError{Op: "register for event", Err: err}
	}

	created, err := c.parseTime("created_at", rows[0].CreatedAt)
	if err != nil {
		// The write landed; only the echo is unreadable.
		c.log.Printf("[WARN] Registration %s: %v", rows[0].ID, err)
		created = time.Now().UTC()
	}
	return model.EventRegistration{
		ID:        rows[0].ID,
		EventID:   rows[0].EventID,
		UserID:    rows[0].UserID,
		CreatedAt: created,
	}, nil
}

// ListRegistrations returns the events the member is registered for.
func (c *Client) ListRegistrations(ctx context.Context, userID string) ([]model.EventRegistration, error) {
	var rows []registrationRow
	err := c.do(ctx, request{
		method: http.MethodGet,
		table:  "event_registrations",
		query: url.Values{
			"user_id": {"eq." + userID},
			"order":   {"created_at.asc"},
		},
	}, &rows)
	if err != nil {
		return nil, &remote.FetchError{Op: "list registrations", Err: err}
	}

	regs := make([]model.EventRegistration, 0, len(rows))
	for _, r := range rows {
		created, err := c.parseTime("created_at", r.CreatedAt)
		if err != nil {
			return nil, &remote.FetchError{Op: "list registrations", Err: err}
		}
		regs = append(regs, model.EventRegistration{
			ID:        r.ID,
			EventID:   r.EventID,
			UserID:    r.UserID,
			CreatedAt: created,
		})
	}
	return regs, nil
}

// ListChannels returns the chat channels visible to the member.
func (c *Client) ListChannels(ctx context.Context) ([]model.ChatChannel, error) {
	var channels []model.ChatChannel
	err := c.do(ctx, request{
		method: http.MethodGet,
		table:  "chat_channels",
		query:  url.Values{"order": {"name.asc"}},
	}, &channels)
	if err != nil {
		return nil, &remote.FetchError{Op: "list channels", Err: err}
	}
	return channels, nil
}

// ListMessages returns the latest limit messages of a channel, oldest first.
func (c *Client) ListMessages(ctx context.Context, channelID string, limit int) ([]model.ChatMessage, error) {
	var rows []messageRow
	err := c.do(ctx, request{
		method: http.MethodGet,
		table:  "chat_messages",
		query: url.Values{
			"channel_id": {"eq." + channelID},
			"order":      {"created_at.desc"},
			"limit":      {strconv.Itoa(limit)},
		},
	}, &rows)
	if err != nil {
		return nil, &remote.FetchError{Op: "list messages", Err: err}
	}

	messages := make([]model.ChatMessage, len(rows))
	for i, r := range rows {
		m, err := c.toMessage(r)
		if err != nil {
			return nil, &remote.FetchError{Op: "list messages", Err: err}
		}
		messages[len(rows)-1-i] = m
	}
	return messages, nil
}

// SendMessage posts msg and returns the stored copy.
func (c *Client) SendMessage(ctx context.Context, msg model.ChatMessage) (model.ChatMessage, error) {
	var rows []messageRow
	err := c.do(ctx, request{
		method: http.MethodPost,
		table:  "chat_messages",
		body: messageRow{
			ID:        msg.ID,
			ChannelID: msg.ChannelID,
			SenderID:  msg.SenderID,
			Body:      msg.Body,
		},
		prefer: "return=representation",
	}, &rows)
	if err == nil && len(rows) == 0 {
		err = errors.New("service returned no message")
	}
	if err != nil {
		return model.ChatMessage{}, &remote.MutationError{Op: "send message", Err: err}
	}

	stored, err := c.toMessage(rows[0])
	if err != nil {
		c.log.Printf("[WARN] Message %s: %v", rows[0].ID, err)
		stored = msg
	}
	return stored, nil
}
