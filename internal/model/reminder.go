package model

import "time"

// ReminderEntry is a locally scheduled reminder about a subject, owned by
// the registration that created it.
type ReminderEntry struct {
	ID            string     `json:"id"` // OwnerID + ":" + Kind
	OwnerID       string     `json:"owner_id"`
	SubjectID     string     `json:"subject_id"`
	Kind          string     `json:"kind"`
	ScheduledTime time.Time  `json:"scheduled_time"`
	Fired         bool       `json:"fired"`
	FiredAt       *time.Time `json:"fired_at,omitempty"`
	Message       string     `json:"message"`
}

// Due reports whether the entry should fire at now.
func (e ReminderEntry) Due(now time.Time) bool {
	return !e.Fired && !e.ScheduledTime.After(now)
}
