// Package gcppubsub carries realtime events over Google Cloud Pub/Sub.
//
// Each resource key maps to one pull subscription whose id is the
// configured prefix followed by the sanitized key. The backend publishes
// change events as JSON-encoded realtime.Event messages.
package gcppubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"strings"
	"sync"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"

	"community-portal/internal/realtime"
)

var invalidIDChars = regexp.MustCompile(`[^A-Za-z0-9\-_.~+%]`)

// Transport opens one Pub/Sub receiver per subscribed resource.
type Transport struct {
	client *pubsub.Client
	prefix string
	log    *log.Logger
}

// New creates a Pub/Sub client for projectID.
func New(ctx context.Context, projectID, prefix, credentialsFile string, logger *log.Logger) (*Transport, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %w", err)
	}
	return &Transport{client: client, prefix: prefix, log: logger}, nil
}

// SubscriptionID maps a resource key to a Pub/Sub subscription id.
func SubscriptionID(prefix, resourceKey string) string {
	return prefix + invalidIDChars.ReplaceAllString(strings.ReplaceAll(resourceKey, ":", "-"), "_")
}

type receiver struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (r *receiver) Close() error {
	r.once.Do(func() {
		r.cancel()
		<-r.done
	})
	return nil
}

// Subscribe starts receiving on the resource's subscription. It fails when
// the subscription does not exist.
func (t *Transport) Subscribe(ctx context.Context, resourceKey string, h realtime.Handler) (realtime.Channel, error) {
	id := SubscriptionID(t.prefix, resourceKey)
	sub := t.client.Subscription(id)

	exists, err := sub.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("checking subscription %s: %w", id, err)
	}
	if !exists {
		return nil, fmt.Errorf("subscription %s does not exist", id)
	}

	rctx, cancel := context.WithCancel(context.Background())
	r := &receiver{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(r.done)
		err := sub.Receive(rctx, func(_ context.Context, msg *pubsub.Message) {
			msg.Ack()
			var ev realtime.Event
			if err := json.Unmarshal(msg.Data, &ev); err != nil {
				t.log.Printf("[WARN] Dropping malformed event on %s: %v", id, err)
				return
			}
			if ev.ResourceKey == "" {
				ev.ResourceKey = resourceKey
			}
			if ev.At.IsZero() {
				ev.At = msg.PublishTime
			}
			h(ev)
		})
		if err != nil && rctx.Err() == nil {
			t.log.Printf("[ERROR] Receiving on %s stopped: %v", id, err)
		}
	}()

	return r, nil
}

// Close releases the Pub/Sub client.
func (t *Transport) Close() error {
	return t.client.Close()
}
