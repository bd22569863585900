// Package reminder schedules and fires local, best-effort reminders.
//
// Entries are persisted in local storage, one list per owning
// registration. A caller-owned ticker calls Tick; there is no delivery
// latency guarantee beyond the tick period, and entries that became due
// while the process was not running fire on the next tick.
package reminder

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"community-portal/internal/localstore"
	"community-portal/internal/model"
	"community-portal/internal/parse"
)

const keyPrefix = "reminders:"

// MessageFunc builds the message for one offset of a subject's deadline.
type MessageFunc func(offset parse.Offset, deadline time.Time) string

// Fired is a reminder returned by Tick for delivery.
type Fired struct {
	model.ReminderEntry
}

// Scheduler owns the persisted reminder entries.
type Scheduler struct {
	store     localstore.Store
	log       *log.Logger
	now       func() time.Time
	retention time.Duration

	mu sync.Mutex // serializes read-modify-write of owner lists
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock overrides the wall clock used by Schedule and Run.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithRetention sets how long fired entries are kept. Zero keeps them
// forever.
func WithRetention(d time.Duration) Option {
	return func(s *Scheduler) { s.retention = d }
}

// NewScheduler creates a scheduler persisting into store.
func NewScheduler(store localstore.Store, logger *log.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		store: store,
		log:   logger,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func ownerKey(ownerID string) string { return keyPrefix + ownerID }

// Schedule creates one entry per offset at deadline minus the offset.
// Offsets whose time has already passed are skipped. Scheduling the same
// owner again refreshes its pending entries and never touches fired ones.
func (s *Scheduler) Schedule(ctx context.Context, ownerID, subjectID string, offsets []parse.Offset, deadline time.Time, msg MessageFunc) ([]model.ReminderEntry, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("schedule reminders for %q: empty owner id", subjectID)
	}
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.load(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]int, len(existing))
	for i, e := range existing {
		byID[e.ID] = i
	}

	var created []model.ReminderEntry
	for _, off := range offsets {
		at := deadline.Add(-off.Before)
		if at.Before(now) {
			s.log.Printf("[DEBUG] Skipping %s reminder for %s: %s is already past", off.Kind, subjectID, at.Format(time.RFC3339))
			continue
		}

		entry := model.ReminderEntry{
			ID:            ownerID + ":" + off.Kind,
			OwnerID:       ownerID,
			SubjectID:     subjectID,
			Kind:          off.Kind,
			ScheduledTime: at.UTC(),
			Message:       msg(off, deadline),
		}

		if i, ok := byID[entry.ID]; ok {
			if existing[i].Fired {
				continue
			}
			existing[i] = entry
		} else {
			byID[entry.ID] = len(existing)
			existing = append(existing, entry)
		}
		created = append(created, entry)
	}

	if len(created) == 0 {
		return nil, nil
	}
	if err := localstore.SetJSON(ctx, s.store, ownerKey(ownerID), existing); err != nil {
		return nil, fmt.Errorf("persist reminders for %s: %w", ownerID, err)
	}
	s.log.Printf("[INFO] Scheduled %d reminders for subject %s", len(created), subjectID)
	return created, nil
}

// Tick fires every pending entry due at now. Each returned entry has been
// marked fired and persisted; an entry whose write failed stays pending
// and is retried on the next tick.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) ([]Fired, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys, err := s.store.Keys(ctx, keyPrefix)
	if err != nil {
		return nil, fmt.Errorf("list reminder owners: %w", err)
	}

	var fired []Fired
	for _, key := range keys {
		ownerID := strings.TrimPrefix(key, keyPrefix)
		entries, err := s.load(ctx, ownerID)
		if err != nil {
			s.log.Printf("[ERROR] Loading reminders for %s: %v", ownerID, err)
			continue
		}

		var due []int
		for i := range entries {
			if entries[i].Due(now) {
				firedAt := now.UTC()
				entries[i].Fired = true
				entries[i].FiredAt = &firedAt
				due = append(due, i)
			}
		}
		kept := s.prune(entries, now)
		pruned := len(kept) != len(entries)

		if len(due) == 0 && !pruned {
			continue
		}

		if err := s.save(ctx, ownerID, kept); err != nil {
			s.log.Printf("[ERROR] Persisting fired reminders for %s, will retry next tick: %v", ownerID, err)
			continue
		}
		for _, i := range due {
			fired = append(fired, Fired{ReminderEntry: entries[i]})
		}
	}

	if len(fired) > 0 {
		s.log.Printf("[INFO] Fired %d reminders", len(fired))
	}
	return fired, nil
}

// prune drops fired entries older than the retention horizon.
func (s *Scheduler) prune(entries []model.ReminderEntry, now time.Time) []model.ReminderEntry {
	if s.retention <= 0 {
		return entries
	}
	horizon := now.Add(-s.retention)
	kept := make([]model.ReminderEntry, 0, len(entries))
	for _, e := range entries {
		if e.Fired && e.FiredAt != nil && e.FiredAt.Before(horizon) {
			continue
		}
		kept = append(kept, e)
	}
	return kept
}

// List returns every stored entry, fired or not.
func (s *Scheduler) List(ctx context.Context) ([]model.ReminderEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys, err := s.store.Keys(ctx, keyPrefix)
	if err != nil {
		return nil, fmt.Errorf("list reminder owners: %w", err)
	}
	var all []model.ReminderEntry
	for _, key := range keys {
		entries, err := s.load(ctx, strings.TrimPrefix(key, keyPrefix))
		if err != nil {
			return nil, err
		}
		all = append(all, entries...)
	}
	return all, nil
}

// Run ticks immediately and then every period until ctx is done, passing
// fired reminders to deliver.
func (s *Scheduler) Run(ctx context.Context, period time.Duration, deliver func(Fired)) {
	s.log.Printf("[INFO] Starting reminder scheduler (interval: %s)", period)
	s.runOnce(ctx, deliver)

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Println("[INFO] Reminder scheduler stopped")
			return
		case <-ticker.C:
			s.runOnce(ctx, deliver)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, deliver func(Fired)) {
	fired, err := s.Tick(ctx, s.now())
	if err != nil {
		s.log.Printf("[ERROR] Reminder tick failed: %v", err)
		return
	}
	for _, f := range fired {
		deliver(f)
	}
}

func (s *Scheduler) load(ctx context.Context, ownerID string) ([]model.ReminderEntry, error) {
	var entries []model.ReminderEntry
	if _, err := localstore.GetJSON(ctx, s.store, ownerKey(ownerID), &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Scheduler) save(ctx context.Context, ownerID string, entries []model.ReminderEntry) error {
	if len(entries) == 0 {
		return s.store.Delete(ctx, ownerKey(ownerID))
	}
	return localstore.SetJSON(ctx, s.store, ownerKey(ownerID), entries)
}
