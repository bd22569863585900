package model

import "time"

// NotificationRecord is a notification owned by the remote service and
// mirrored locally for display.
type NotificationRecord struct {
	ID        string     `json:"id" gorm:"primaryKey;size:64"`
	UserID    string     `json:"user_id" gorm:"index;size:64;not null"`
	Title     string     `json:"title" gorm:"not null"`
	Message   string     `json:"message"`
	Category  string     `json:"category" gorm:"size:64"`
	CreatedAt time.Time  `json:"created_at" gorm:"not null"`
	ReadAt    *time.Time `json:"read_at"`
	ActionRef *string    `json:"action_ref"`
}

// IsRead reports whether the record has been read.
func (n NotificationRecord) IsRead() bool {
	return n.ReadAt != nil
}

// UnreadCount counts the records that have not been read.
func UnreadCount(records []NotificationRecord) int {
	count := 0
	for _, r := range records {
		if r.ReadAt == nil {
			count++
		}
	}
	return count
}

// TableName matches the service's table.
func (NotificationRecord) TableName() string { return "notifications" }
