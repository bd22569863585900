package notification

import (
	"context"
	"fmt"
	"log"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"

	"community-portal/internal/model"
)

// MulticastClient is the part of the FCM client the sender uses.
type MulticastClient interface {
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

// NewFCMClient initializes Firebase messaging from a service account file.
// An empty path falls back to application default credentials.
func NewFCMClient(ctx context.Context, credentialsFile string) (*messaging.Client, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	app, err := firebase.NewApp(ctx, nil, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get messaging client: %w", err)
	}
	return client, nil
}

// DeviceStore lists and prunes FCM registration tokens.
type DeviceStore interface {
	ListDeviceTokens(ctx context.Context) ([]model.DeviceToken, error)
	DeleteDeviceTokens(ctx context.Context, tokens ...string) error
}

// FCMSender delivers jobs to the member's registered devices.
type FCMSender struct {
	client MulticastClient
	store  DeviceStore
	log    *log.Logger
}

// NewFCMSender creates an FCM sender.
func NewFCMSender(client MulticastClient, store DeviceStore, logger *log.Logger) *FCMSender {
	return &FCMSender{client: client, store: store, log: logger}
}

func (s *FCMSender) Name() string { return "fcm" }

func (s *FCMSender) Deliver(ctx context.Context, job Job) error {
	devices, err := s.store.ListDeviceTokens(ctx)
	if err != nil {
		return fmt.Errorf("fetching device tokens: %w", err)
	}
	if len(devices) == 0 {
		return nil
	}

	tokens := make([]string, len(devices))
	for i, d := range devices {
		tokens[i] = d.Token
	}

	data := map[string]string{"tag": job.Tag}
	if job.URL != "" {
		data["url"] = job.URL
	}
	msg := &messaging.MulticastMessage{
		Tokens: tokens,
		Notification: &messaging.Notification{
			Title: job.Title,
			Body:  job.Body,
		},
		Data: data,
		Webpush: &messaging.WebpushConfig{
			Notification: &messaging.WebpushNotification{
				Title: job.Title,
				Body:  job.Body,
				Tag:   job.Tag,
			},
		},
	}
	if job.URL != "" {
		msg.Webpush.FCMOptions = &messaging.WebpushFCMOptions{Link: job.URL}
	}

	resp, err := s.client.SendEachForMulticast(ctx, msg)
	if err != nil {
		return fmt.Errorf("failed to send FCM multicast message: %w", err)
	}
	s.log.Printf("[DEBUG] FCM multicast: %d success, %d failures", resp.SuccessCount, resp.FailureCount)

	var stale []string
	for i, r := range resp.Responses {
		if r.Success || i >= len(tokens) {
			continue
		}
		if messaging.IsUnregistered(r.Error) {
			stale = append(stale, tokens[i])
			continue
		}
		s.log.Printf("[WARN] FCM delivery to device %d failed: %v", i, r.Error)
	}
	if len(stale) > 0 {
		s.log.Printf("[INFO] Removing %d unregistered device token(s)", len(stale))
		if err := s.store.DeleteDeviceTokens(ctx, stale...); err != nil {
			return fmt.Errorf("removing stale device tokens: %w", err)
		}
	}
	return nil
}
