package model

import "time"

// ChatChannel is a chat room.
type ChatChannel struct {
	ID   string `json:"id" gorm:"primaryKey;size:64"`
	Name string `json:"name" gorm:"not null"`
}

// ChatMessage is a message posted to a channel.
type ChatMessage struct {
	ID        string    `json:"id" gorm:"primaryKey;size:64"`
	ChannelID string    `json:"channel_id" gorm:"index;size:64;not null"`
	SenderID  string    `json:"sender_id" gorm:"size:64;not null"`
	Body      string    `json:"body" gorm:"not null"`
	CreatedAt time.Time `json:"created_at" gorm:"index;not null"`
}
