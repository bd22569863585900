package view

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// Toast levels.
const (
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// Toast is a transient message for the member.
type Toast struct {
	ID        string    `json:"id"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Toasts keeps toasts until they expire.
type Toasts struct {
	items *cache.Cache
	feed  *Feed
}

// NewToasts creates a toast list whose entries live for ttl.
func NewToasts(ttl time.Duration, feed *Feed) *Toasts {
	return &Toasts{items: cache.New(ttl, 2*ttl), feed: feed}
}

// Push adds a toast and returns it.
func (t *Toasts) Push(level, message string) Toast {
	toast := Toast{
		ID:        uuid.NewString(),
		Level:     level,
		Message:   message,
		CreatedAt: time.Now(),
	}
	t.items.SetDefault(toast.ID, toast)
	if t.feed != nil {
		t.feed.Publish("toasts")
	}
	return toast
}

func (t *Toasts) Info(message string) Toast  { return t.Push(LevelInfo, message) }
func (t *Toasts) Warn(message string) Toast  { return t.Push(LevelWarn, message) }
func (t *Toasts) Error(message string) Toast { return t.Push(LevelError, message) }

// Dismiss removes a toast early.
func (t *Toasts) Dismiss(id string) {
	t.items.Delete(id)
}

// List returns the live toasts, oldest first.
func (t *Toasts) List() []Toast {
	items := t.items.Items()
	out := make([]Toast, 0, len(items))
	for _, it := range items {
		out = append(out, it.Object.(Toast))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}
