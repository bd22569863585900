package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"

	"community-portal/internal/model"
)

// PushClient sends a single web push message.
type PushClient interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

type vapidClient struct{}

func (vapidClient) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// SubscriptionStore lists and removes browser push subscriptions.
type SubscriptionStore interface {
	ListSubscriptions(ctx context.Context) ([]model.PushSubscription, error)
	DeleteSubscription(ctx context.Context, endpoint string) error
}

// WebPushSender delivers jobs to every stored browser subscription.
type WebPushSender struct {
	store  SubscriptionStore
	opts   *webpush.Options
	client PushClient
	log    *log.Logger
}

// NewWebPushSender creates a sender using the VAPID options.
func NewWebPushSender(store SubscriptionStore, opts *webpush.Options, logger *log.Logger) *WebPushSender {
	return &WebPushSender{store: store, opts: opts, client: vapidClient{}, log: logger}
}

func (s *WebPushSender) Name() string { return "webpush" }

func (s *WebPushSender) Deliver(ctx context.Context, job Job) error {
	subs, err := s.store.ListSubscriptions(ctx)
	if err != nil {
		return fmt.Errorf("fetching subscriptions: %w", err)
	}
	if len(subs) == 0 {
		return nil
	}

	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}

	s.log.Printf("[DEBUG] Sending %q to %d browser(s)", job.Title, len(subs))
	for _, sub := range subs {
		s.send(ctx, sub, payload)
	}
	return nil
}

func (s *WebPushSender) send(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := s.client.Send(payload, wpSub, s.opts)
	if err != nil {
		s.log.Printf("[WARN] Error sending push to %s: %v", sub.Endpoint, err)
		return
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound:
		s.log.Printf("[INFO] Subscription for endpoint %s is expired. Deleting.", sub.Endpoint)
		if err := s.store.DeleteSubscription(ctx, sub.Endpoint); err != nil {
			s.log.Printf("[ERROR] Failed to delete expired subscription %s: %v", sub.Endpoint, err)
		}
	case resp.StatusCode >= 400:
		s.log.Printf("[WARN] Push service answered %d for %s", resp.StatusCode, sub.Endpoint)
	}
}
