// Package remote defines the operations the portal performs against the
// backend service. Implementations live in subpackages.
package remote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"community-portal/internal/model"
)

var (
	// ErrFetch is matched by every FetchError.
	ErrFetch = errors.New("remote fetch failed")
	// ErrMutation is matched by every MutationError.
	ErrMutation = errors.New("remote mutation failed")
)

// FetchError reports a failed read.
type FetchError struct {
	Op  string
	Err error
}

func (e *FetchError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *FetchError) Is(target error) bool { return target == ErrFetch }
func (e *FetchError) Unwrap() error { return e.Err }

// MutationError reports a failed write. Nothing is assumed to have landed.
type MutationError struct {
	Op  string
	Err error
}

func (e *MutationError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *MutationError) Is(target error) bool { return target == ErrMutation }
func (e *MutationError) Unwrap() error { return e.Err }

// Notifications reads and updates a member's notifications.
type Notifications interface {
	ListNotifications(ctx context.Context, userID string) ([]model.NotificationRecord, error)
	MarkNotificationRead(ctx context.Context, id string, at time.Time) error
}

// Events reads the calendar and records registrations.
type Events interface {
	ListEvents(ctx context.Context, from time.Time) ([]model.Event, error)
	RegisterForEvent(ctx context.Context, eventID, userID string) (model.EventRegistration, error)
	ListRegistrations(ctx context.Context, userID string) ([]model.EventRegistration, error)
}

// Chat reads and posts chat messages.
type Chat interface {
	ListChannels(ctx context.Context) ([]model.ChatChannel, error)
	ListMessages(ctx context.Context, channelID string, limit int) ([]model.ChatMessage, error)
	SendMessage(ctx context.Context, msg model.ChatMessage) (model.ChatMessage, error)
}

// Service is the full remote surface.
type Service interface {
	Notifications
	Events
	Chat
	// Ping succeeds once the service answers.
	Ping(ctx context.Context) error
}

// NotificationsKey is the realtime resource key for a member's notifications.
func NotificationsKey(userID string) string { return "notifications:" + userID }

// ChatKey is the realtime resource key for a chat channel.
func ChatKey(channelID string) string { return "chat:" + channelID }

// Realtime event types.
const (
	EventInsert = "insert"
	EventUpdate = "update"
)
