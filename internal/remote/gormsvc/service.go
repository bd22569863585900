// Package gormsvc implements remote.Service directly against the service's
// PostgreSQL database.
package gormsvc

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"community-portal/internal/model"
	"community-portal/internal/realtime"
	"community-portal/internal/remote"
)

// Publisher receives change events after a mutation commits.
type Publisher interface {
	Publish(ev realtime.Event)
}

// Service is a gorm-backed remote.Service.
type Service struct {
	db  *gorm.DB
	pub Publisher
	log *log.Logger
}

// New creates a service over db. pub may be nil.
func New(db *gorm.DB, pub Publisher, logger *log.Logger) *Service {
	return &Service{db: db, pub: pub, log: logger}
}

// Migrate creates the service tables. Used for local databases and tests.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.NotificationRecord{},
		&model.Event{},
		&model.EventRegistration{},
		&model.ChatChannel{},
		&model.ChatMessage{},
	)
}

func (s *Service) publish(key, typ string, payload any) {
	if s.pub == nil {
		return
	}
	ev, err := realtime.NewEvent(key, typ, payload)
	if err != nil {
		s.log.Printf("[WARN] Dropping %s event for %s: %v", typ, key, err)
		return
	}
	s.pub.Publish(ev)
}

// Ping checks the database connection.
func (s *Service) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// ListNotifications returns the member's notifications, newest first.
func (s *Service) ListNotifications(ctx context.Context, userID string) ([]model.NotificationRecord, error) {
	var records []model.NotificationRecord
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&records).Error
	if err != nil {
		return nil, &remote.FetchError{Op: "list notifications", Err: err}
	}
	return records, nil
}

// MarkNotificationRead sets read_at if the notification is unread. Marking an
// already read notification keeps the original timestamp.
func (s *Service) MarkNotificationRead(ctx context.Context, id string, at time.Time) error {
	var rec model.NotificationRecord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.NotificationRecord{}).
			Where("id = ? AND read_at IS NULL", id).
			Update("read_at", at.UTC())
		if res.Error != nil {
			return res.Error
		}
		return tx.First(&rec, "id = ?", id).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &remote.MutationError{Op: "mark notification read", Err: fmt.Errorf("notification %s not found", id)}
	}
	if err != nil {
		return &remote.MutationError{Op: "mark notification read", Err: err}
	}

	s.publish(remote.NotificationsKey(rec.UserID), remote.EventUpdate, rec)
	return nil
}

// CreateNotification stores a notification for a member and announces it.
func (s *Service) CreateNotification(ctx context.Context, rec model.NotificationRecord) (model.NotificationRecord, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return model.NotificationRecord{}, &remote.MutationError{Op: "create notification", Err: err}
	}
	s.publish(remote.NotificationsKey(rec.UserID), remote.EventInsert, rec)
	return rec, nil
}

// ListEvents returns events starting at or after from, soonest first.
func (s *Service) ListEvents(ctx context.Context, from time.Time) ([]model.Event, error) {
	var events []model.Event
	err := s.db.WithContext(ctx).
		Where("starts_at >= ?", from.UTC()).
		Order("starts_at ASC").
		Find(&events).Error
	if err != nil {
		return nil, &remote.FetchError{Op: "list events", Err: err}
	}
	return events, nil
}

// RegisterForEvent records a registration. Registering twice returns the
// existing registration.
func (s *Service) RegisterForEvent(ctx context.Context, eventID, userID string) (model.EventRegistration, error) {
	var reg model.EventRegistration
	candidate := model.EventRegistration{
		ID:        uuid.NewString(),
		EventID:   eventID,
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ev model.Event
		if err := tx.Select("id").First(&ev, "id = ?", eventID).Error; err != nil {
			return err
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "event_id"}, {Name: "user_id"}},
			DoNothing: true,
		}).Create(&candidate).Error; err != nil {
			return err
		}
		return tx.First(&reg, "event_id = ? AND user_id = ?", eventID, userID).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.EventRegistration{}, &remote.MutationError{Op: "register for event", Err: fmt.Errorf("event %s not found", eventID)}
	}
	if err != nil {
		return model.EventRegistration{}, &remote.MutationError{Op: "register for event", Err: err}
	}
	return reg, nil
}

func (s *Service) ListRegistrations(ctx context.Context, userID string) ([]model.EventRegistration, error) {
	var regs []model.EventRegistration
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at").Find(&regs).Error; err != nil {
		return nil, &remote.FetchError{Op: "list registrations", Err: err}
	}
	return regs, nil
}

// ListChannels returns all chat channels by name.
func (s *Service) ListChannels(ctx context.Context) ([]model.ChatChannel, error) {
	var channels []model.ChatChannel
	if err := s.db.WithContext(ctx).Order("name ASC").Find(&channels).Error; err != nil {
		return nil, &remote.FetchError{Op: "list channels", Err: err}
	}
	return channels, nil
}

// ListMessages returns the latest limit messages of a channel, oldest first.
func (s *Service) ListMessages(ctx context.Context, channelID string, limit int) ([]model.ChatMessage, error) {
	var latest []model.ChatMessage
	err := s.db.WithContext(ctx).
		Where("channel_id = ?", channelID).
		Order("created_at DESC").
		Limit(limit).
		Find(&latest).Error
	if err != nil {
		return nil, &remote.FetchError{Op: "list messages", Err: err}
	}

	messages := make([]model.ChatMessage, len(latest))
	for i, m := range latest {
		messages[len(latest)-1-i] = m
	}
	return messages, nil
}

// SendMessage stores msg and echoes it to the channel's subscribers.
func (s *Service) SendMessage(ctx context.Context, msg model.ChatMessage) (model.ChatMessage, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.CreatedAt = time.Now().UTC()
	if err := s.db.WithContext(ctx).Create(&msg).Error; err != nil {
		return model.ChatMessage{}, &remote.MutationError{Op: "send message", Err: err}
	}
	s.publish(remote.ChatKey(msg.ChannelID), remote.EventInsert, msg)
	return msg, nil
}
