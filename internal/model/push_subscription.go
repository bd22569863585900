package model

import "time"

// PushSubscription holds the information for a browser push subscription.
type PushSubscription struct {
	Endpoint  string    `gorm:"primaryKey"`
	P256DH    string    `gorm:"column:p256dh;not null"`
	Auth      string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
}

// DeviceToken is an FCM registration token for one of the member's devices.
type DeviceToken struct {
	Token     string    `gorm:"primaryKey"`
	Platform  string    `gorm:"size:32"`
	CreatedAt time.Time `gorm:"not null"`
}
