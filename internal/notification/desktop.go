package notification

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/godbus/dbus/v5"
)

const (
	notifyObj    = "org.freedesktop.Notifications"
	notifyPath   = "/org/freedesktop/Notifications"
	notifyMethod = "org.freedesktop.Notifications.Notify"
)

// BusObject is the D-Bus object the desktop sender calls.
type BusObject interface {
	CallWithContext(ctx context.Context, method string, flags dbus.Flags, args ...interface{}) *dbus.Call
}

// DesktopSender posts freedesktop notifications on the session bus.
type DesktopSender struct {
	obj     BusObject
	appName string
	log     *log.Logger

	mu sync.Mutex
	// replaces maps a job tag to the id of the notification it last produced.
	replaces map[string]uint32
}

// NewDesktopSender connects to the session bus.
func NewDesktopSender(appName string, logger *log.Logger) (*DesktopSender, error) {
	bus, err := dbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to DBus session bus: %w", err)
	}
	obj := bus.Object(notifyObj, dbus.ObjectPath(notifyPath))
	return newDesktopSender(obj, appName, logger), nil
}

func newDesktopSender(obj BusObject, appName string, logger *log.Logger) *DesktopSender {
	return &DesktopSender{obj: obj, appName: appName, log: logger, replaces: make(map[string]uint32)}
}

func (s *DesktopSender) Name() string { return "desktop" }

// Deliver shows job, replacing the previous notification with the same tag.
func (s *DesktopSender) Deliver(ctx context.Context, job Job) error {
	s.mu.Lock()
	replaces := s.replaces[job.Tag]
	s.mu.Unlock()

	call := s.obj.CallWithContext(
		ctx,
		notifyMethod,
		0,
		s.appName,
		replaces,
		"",
		job.Title,
		job.Body,
		[]string{},
		map[string]dbus.Variant{},
		int32(-1),
	)
	if call.Err != nil {
		return fmt.Errorf("cannot send notification %q: %w", job.Title, call.Err)
	}

	var id uint32
	if err := call.Store(&id); err != nil {
		s.log.Printf("[DEBUG] Notify returned no id for %q: %v", job.Title, err)
		return nil
	}
	if job.Tag != "" {
		s.mu.Lock()
		s.replaces[job.Tag] = id
		s.mu.Unlock()
	}
	return nil
}
