// Package chat is the chat controller: channel list, the active channel's
// history and live messages, and sending.
package chat

import (
	"context"
	"errors"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"

	"community-portal/internal/model"
	"community-portal/internal/realtime"
	"community-portal/internal/remote"
	"community-portal/internal/session"
	"community-portal/internal/view"
)

// Name identifies the chat view in change notifications.
const Name = "chat"

// HistoryLimit is how many messages are loaded when a channel opens.
const HistoryLimit = 100

var (
	ErrEmptyMessage   = errors.New("message is empty")
	ErrUnknownChannel = errors.New("unknown channel")
	ErrNoChannel      = errors.New("no active channel")
)

// Message is a chat message as displayed. Pending messages are sent but
// not yet confirmed.
type Message struct {
	model.ChatMessage
	Pending bool `json:"pending"`
}

// View is the rendered chat.
type View struct {
	Status   view.Status         `json:"status"`
	Live     bool                `json:"live"`
	Degraded string              `json:"degraded,omitempty"`
	Channels []model.ChatChannel `json:"channels"`
	Active   string              `json:"active"`
	Messages []Message           `json:"messages"`
}

// Deps are the chat controller's collaborators.
type Deps struct {
	Probe       func(ctx context.Context) (*session.Handle, error)
	Interval    time.Duration
	MaxAttempts int
	Transport   realtime.Transport
	Toasts      *view.Toasts
	Feed        *view.Feed
	Logger      *log.Logger
	Now         func() time.Time
}

// Chat is the chat controller.
type Chat struct {
	lc       *view.Lifecycle
	bridge   *realtime.Bridge
	toasts   *view.Toasts
	sanitize *bluemonday.Policy
	now      func() time.Time
	log      *log.Logger

	switchMu sync.Mutex // serializes Switch

	mu       sync.RWMutex
	channels []model.ChatChannel
	active   string
	messages []Message // oldest first
	rendered View
}

// New creates an uninitialized chat controller.
func New(d Deps) *Chat {
	c := &Chat{
		toasts:   d.Toasts,
		sanitize: bluemonday.StrictPolicy(),
		now:      d.Now,
		log:      d.Logger,
	}
	if c.now == nil {
		c.now = time.Now
	}
	c.lc = view.NewLifecycle(Name, d.Probe, d.Interval, d.MaxAttempts, d.Feed, d.Logger)
	c.bridge = realtime.NewBridge(d.Transport, c.onEvent, d.Logger)
	return c
}

// Init runs the chat lifecycle.
func (c *Chat) Init(ctx context.Context) error { return c.lc.Run(ctx, c) }

// Name returns the controller name.
func (c *Chat) Name() string { return Name }

// Bridge returns the chat's realtime bridge.
func (c *Chat) Bridge() *realtime.Bridge { return c.bridge }

// Fetch loads the channels and the first channel's history.
func (c *Chat) Fetch(ctx context.Context, h *session.Handle) error {
	channels, err := h.Service.ListChannels(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.channels = channels
	if c.active == "" && len(channels) > 0 {
		c.active = channels[0].ID
	}
	active := c.active
	c.mu.Unlock()

	if active == "" {
		return nil
	}
	history, err := h.Service.ListMessages(ctx, active, HistoryLimit)
	if err != nil {
		return err
	}
	c.mu.Lock()
	if c.active == active {
		c.mergeLocked(history)
	}
	c.mu.Unlock()
	return nil
}

func (c *Chat) Render() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.renderLocked()
}

func (c *Chat) renderLocked() {
	c.rendered = View{
		Channels: append([]model.ChatChannel(nil), c.channels...),
		Active:   c.active,
		Messages: append([]Message(nil), c.messages...),
	}
}

// Subscribe opens live updates for the active channel.
func (c *Chat) Subscribe(ctx context.Context, _ *session.Handle) error {
	c.mu.RLock()
	active := c.active
	c.mu.RUnlock()
	if active == "" {
		return nil
	}
	_, err := c.bridge.Open(ctx, remote.ChatKey(active))
	return err
}

// View returns the current rendered chat.
func (c *Chat) View() View {
	c.mu.RLock()
	v := c.rendered
	c.mu.RUnlock()

	v.Status = c.lc.Status()
	v.Live = c.bridge.Live().Live()
	if err := c.bridge.Degraded(); err != nil {
		v.Degraded = err.Error()
	}
	return v
}

// Switch makes channelID active: the previous subscription is closed, the
// new one opened and the channel's history loaded.
func (c *Chat) Switch(ctx context.Context, channelID string) error {
	h, err := c.lc.Handle()
	if err != nil {
		return err
	}
	c.switchMu.Lock()
	defer c.switchMu.Unlock()

	c.mu.Lock()
	if !c.knownLocked(channelID) {
		c.mu.Unlock()
		return ErrUnknownChannel
	}
	if c.active == channelID {
		c.mu.Unlock()
		return nil
	}
	c.active = channelID
	c.messages = nil
	c.renderLocked()
	c.mu.Unlock()
	c.lc.Changed()

	if _, err := c.bridge.Swap(ctx, c.bridge.Live(), remote.ChatKey(channelID)); err != nil {
		c.log.Printf("[WARN] Channel %s has no live updates: %v", channelID, err)
	}

	history, err := h.Service.ListMessages(ctx, channelID, HistoryLimit)
	c.lc.SetError(err)
	if err != nil {
		c.toasts.Error("Could not load the channel history.")
		c.lc.Changed()
		return err
	}
	c.mu.Lock()
	if c.active == channelID {
		c.mergeLocked(history)
		c.renderLocked()
	}
	c.mu.Unlock()
	c.lc.Changed()
	return nil
}

// Send posts body to the active channel. The message shows as pending until
// the service confirms it and is removed if the service rejects it.
func (c *Chat) Send(ctx context.Context, body string) (model.ChatMessage, error) {
	h, err := c.lc.Handle()
	if err != nil {
		return model.ChatMessage{}, err
	}
	clean := strings.TrimSpace(c.sanitize.Sanitize(body))
	if clean == "" {
		return model.ChatMessage{}, ErrEmptyMessage
	}

	c.mu.Lock()
	if c.active == "" {
		c.mu.Unlock()
		return model.ChatMessage{}, ErrNoChannel
	}
	msg := model.ChatMessage{
		ID:        uuid.NewString(),
		ChannelID: c.active,
		SenderID:  h.Identity.UserID,
		Body:      clean,
		CreatedAt: c.now().UTC(),
	}
	c.messages = append(c.messages, Message{ChatMessage: msg, Pending: true})
	c.renderLocked()
	c.mu.Unlock()
	c.lc.Changed()

	stored, err := h.Service.SendMessage(ctx, msg)
	c.mu.Lock()
	switch {
	case err != nil:
		c.removeLocked(msg.ID)
	case c.active == msg.ChannelID:
		c.mergeLocked([]model.ChatMessage{stored})
	}
	c.renderLocked()
	c.mu.Unlock()
	c.lc.Changed()

	if err != nil {
		c.toasts.Error("Your message could not be sent.")
		return model.ChatMessage{}, err
	}
	return stored, nil
}

// Refresh reloads channels and the active channel's history.
func (c *Chat) Refresh(ctx context.Context) error {
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

// Close releases the live subscription.
func (c *Chat) Close() error { return c.bridge.CloseAll() }

func (c *Chat) onEvent(ev realtime.Event) {
	if ev.Type != remote.EventInsert {
		return
	}
	var msg model.ChatMessage
	if err := ev.Decode(&msg); err != nil {
		c.log.Printf("[WARN] Ignoring malformed chat event: %v", err)
		return
	}

	c.mu.Lock()
	if msg.ChannelID != c.active {
		c.mu.Unlock()
		return
	}
	c.mergeLocked([]model.ChatMessage{msg})
	c.renderLocked()
	c.mu.Unlock()
	c.lc.Changed()
}

// mergeLocked adds confirmed messages, replacing pending or known copies
// with the same id.
func (c *Chat) mergeLocked(msgs []model.ChatMessage) {
	index := make(map[string]int, len(c.messages))
	for i, m := range c.messages {
		index[m.ID] = i
	}
	for _, m := range msgs {
		if i, ok := index[m.ID]; ok {
			c.messages[i] = Message{ChatMessage: m}
			continue
		}
		index[m.ID] = len(c.messages)
		c.messages = append(c.messages, Message{ChatMessage: m})
	}
	sort.SliceStable(c.messages, func(i, j int) bool {
		return c.messages[i].CreatedAt.Before(c.messages[j].CreatedAt)
	})
}

func (c *Chat) removeLocked(id string) {
	for i, m := range c.messages {
		if m.ID == id {
			c.messages = append(c.messages[:i], c.messages[i+1:]...)
			return
		}
	}
}

func (c *Chat) knownLocked(channelID string) bool {
	for _, ch := range c.channels {
		if ch.ID == channelID {
			return true
		}
	}
	return false
}
