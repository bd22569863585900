package model

import "time"

// Event is a calendar event published by the organization.
type Event struct {
	ID          string    `json:"id" gorm:"primaryKey;size:64"`
	Title       string    `json:"title" gorm:"not null"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	StartsAt    time.Time `json:"starts_at" gorm:"index;not null"`
	EndsAt      time.Time `json:"ends_at"`
}

// EventRegistration records a member's registration for an event.
type EventRegistration struct {
	ID        string    `json:"id" gorm:"primaryKey;size:64"`
	EventID   string    `json:"event_id" gorm:"uniqueIndex:idx_event_user;size:64;not null"`
	UserID    string    `json:"user_id" gorm:"uniqueIndex:idx_event_user;size:64;not null"`
	CreatedAt time.Time `json:"created_at" gorm:"not null"`
}
