// Package store persists the member's push delivery targets.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"community-portal/internal/model"
)

// ErrNotFound is returned when a subscription or device is unknown.
var ErrNotFound = errors.New("not found")

// Store defines the delivery-target operations.
type Store interface {
	UpsertSubscription(ctx context.Context, sub model.PushSubscription) error
	GetSubscription(ctx context.Context, endpoint string) (model.PushSubscription, error)
	ListSubscriptions(ctx context.Context) ([]model.PushSubscription, error)
	DeleteSubscription(ctx context.Context, endpoint string) error

	UpsertDeviceToken(ctx context.Context, tok model.DeviceToken) error
	ListDeviceTokens(ctx context.Context) ([]model.DeviceToken, error)
	DeleteDeviceTokens(ctx context.Context, tokens ...string) error
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

// UpsertSubscription creates a subscription or replaces its keys.
func (s *gormStore) UpsertSubscription(ctx context.Context, sub model.PushSubscription) error {
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now().UTC()
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "endpoint"}},
		DoUpdates: clause.AssignmentColumns([]string{"p256dh", "auth"}),
	}).Create(&sub).Error
	if err != nil {
		return fmt.Errorf("failed to upsert subscription: %w", err)
	}
	return nil
}

func (s *gormStore) GetSubscription(ctx context.Context, endpoint string) (model.PushSubscription, error) {
	var sub model.PushSubscription
	err := s.db.WithContext(ctx).First(&sub, "endpoint = ?", endpoint).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sub, ErrNotFound
	}
	return sub, err
}

func (s *gormStore) ListSubscriptions(ctx context.Context) ([]model.PushSubscription, error) {
	var subs []model.PushSubscription
	if err := s.db.WithContext(ctx).Order("created_at").Find(&subs).Error; err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	return subs, nil
}

func (s *gormStore) DeleteSubscription(ctx context.Context, endpoint string) error {
	return s.db.WithContext(ctx).Delete(&model.PushSubscription{Endpoint: endpoint}).Error
}

// UpsertDeviceToken registers an FCM token, refreshing its platform.
func (s *gormStore) UpsertDeviceToken(ctx context.Context, tok model.DeviceToken) error {
	if tok.CreatedAt.IsZero() {
		tok.CreatedAt = time.Now().UTC()
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "token"}},
		DoUpdates: clause.AssignmentColumns([]string{"platform"}),
	}).Create(&tok).Error
	if err != nil {
		return fmt.Errorf("failed to upsert device token: %w", err)
	}
	return nil
}

func (s *gormStore) ListDeviceTokens(ctx context.Context) ([]model.DeviceToken, error) {
	var tokens []model.DeviceToken
	if err := s.db.WithContext(ctx).Order("created_at").Find(&tokens).Error; err != nil {
		return nil, fmt.Errorf("failed to list device tokens: %w", err)
	}
	return tokens, nil
}

func (s *gormStore) DeleteDeviceTokens(ctx context.Context, tokens ...string) error {
	if len(tokens) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Where("token IN ?", tokens).Delete(&model.DeviceToken{}).Error
}
