// Package shell runs the portal's controllers side by side.
package shell

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"community-portal/internal/notification"
	"community-portal/internal/realtime"
	"community-portal/internal/reminder"
	"community-portal/internal/view"
)

// Controller is a view controller managed by the shell.
type Controller interface {
	Name() string
	Init(ctx context.Context) error
	Refresh(ctx context.Context) error
	Close() error
}

type bridged interface {
	Bridge() *realtime.Bridge
}

// ReminderRunner fires due reminders until ctx is done.
type ReminderRunner interface {
	Run(ctx context.Context, period time.Duration, deliver func(reminder.Fired))
}

// Dispatcher queues an alert for delivery.
type Dispatcher interface {
	Dispatch(job notification.Job)
}

// Options configures a Shell.
type Options struct {
	Controllers []Controller
	Reminders   ReminderRunner
	// TickInterval is the reminder scan period.
	TickInterval time.Duration
	// FallbackInterval is how often controllers without live updates are
	// refreshed. Zero disables the fallback loop.
	FallbackInterval time.Duration
	Push             Dispatcher
	Toasts           *view.Toasts
	Logger           *log.Logger
}

// Shell owns the contexts of everything it starts.
type Shell struct {
	opts Options
	log  *log.Logger

	cancel      context.CancelFunc
	wg          sync.WaitGroup
	initialized chan struct{}

	mu       sync.Mutex
	initErrs map[string]error
	stopped  bool
}

// New creates a shell. Nothing runs until Start.
func New(opts Options) *Shell {
	return &Shell{
		opts:        opts,
		log:         opts.Logger,
		initialized: make(chan struct{}),
		initErrs:    make(map[string]error),
	}
}

// Start initializes every controller concurrently and starts the reminder
// and fallback refresh loops.
func (s *Shell) Start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel

	var inits sync.WaitGroup
	for _, c := range s.opts.Controllers {
		inits.Add(1)
		s.wg.Add(1)
		go func(c Controller) {
			defer s.wg.Done()
			defer inits.Done()
			s.initOne(ctx, c)
		}(c)
	}
	go func() {
		inits.Wait()
		close(s.initialized)
	}()

	if s.opts.Reminders != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.opts.Reminders.Run(ctx, s.opts.TickInterval, s.deliver)
		}()
	}

	if s.opts.FallbackInterval > 0 {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.fallbackLoop(ctx)
		}()
	}
}

// Initialized is closed once every controller's Init has returned.
func (s *Shell) Initialized() <-chan struct{} {
	return s.initialized
}

// InitErrors returns the controllers whose Init failed.
func (s *Shell) InitErrors() map[string]error {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]error, len(s.initErrs))
	for k, v := range s.initErrs {
		out[k] = v
	}
	return out
}

func (s *Shell) initOne(ctx context.Context, c Controller) {
	err := safeInit(ctx, c)
	switch {
	case err == nil:
		s.log.Printf("[INFO] %s ready", c.Name())
		return
	case errors.Is(err, context.Canceled):
		s.log.Printf("[DEBUG] %s init cancelled", c.Name())
	default:
		s.log.Printf("[ERROR] %s failed to initialize: %v", c.Name(), err)
	}
	s.mu.Lock()
	s.initErrs[c.Name()] = err
	s.mu.Unlock()
}

func safeInit(ctx context.Context, c Controller) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("init panicked: %v", r)
		}
	}()
	return c.Init(ctx)
}

func (s *Shell) deliver(f reminder.Fired) {
	s.log.Printf("[INFO] Reminder %s fired", f.ID)
	if s.opts.Toasts != nil {
		s.opts.Toasts.Info(f.Message)
	}
	if s.opts.Push != nil {
		s.opts.Push.Dispatch(notification.Job{
			Title: "Event reminder",
			Body:  f.Message,
			URL:   "/events",
			Tag:   "reminder:" + f.ID,
		})
	}
}

func (s *Shell) fallbackLoop(ctx context.Context) {
	ticker := time.NewTicker(s.opts.FallbackInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.refreshStale(ctx)
		}
	}
}

// refreshStale reloads controllers that get no live updates: those without
// a bridge and those whose bridge is degraded.
func (s *Shell) refreshStale(ctx context.Context) {
	for _, c := range s.opts.Controllers {
		if b, ok := c.(bridged); ok && b.Bridge().Degraded() == nil {
			continue
		}
		err := c.Refresh(ctx)
		switch {
		case err == nil:
		case errors.Is(err, view.ErrNotWired):
			s.log.Printf("[DEBUG] %s not wired, skipping refresh", c.Name())
		default:
			s.log.Printf("[WARN] Fallback refresh of %s failed: %v", c.Name(), err)
		}
	}
}

// Shutdown cancels every outstanding context, gate polls included, waits
// for the loops to exit and closes the controllers' subscriptions.
func (s *Shell) Shutdown() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()

	var errs []error
	for _, c := range s.opts.Controllers {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", c.Name(), err))
		}
	}
	return errors.Join(errs...)
}
