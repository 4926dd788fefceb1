// Package pubsub implements an alert.Notifier that publishes notifications
// to a Google Cloud Pub/Sub topic consumed by the chat front end.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"

	"github.com/JakeFAU/pricewatch/internal/alert"
	"github.com/JakeFAU/pricewatch/internal/notifier"
)

// Notifier wraps a Pub/Sub topic.
type Notifier struct {
	client *pubsub.Client
	topic  *pubsub.Topic
	clock  alert.Clock
}

// New creates a Notifier publishing to topic. The caller owns the topic.
func New(topic *pubsub.Topic, clock alert.Clock) *Notifier {
	return &Notifier{topic: topic, clock: clock}
}

// Dial connects to projectID and checks that topicID exists. Close releases
// the client.
func Dial(ctx context.Context, projectID, topicID string, clock alert.Clock, opts ...option.ClientOption) (*Notifier, error) {
	if projectID == "" || topicID == "" {
		return nil, fmt.Errorf("pubsub project id and topic name are required")
	}
	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	topic := client.Topic(topicID)
	ok, err := topic.Exists(ctx)
	if err != nil || !ok {
		_ = client.Close()
		if err == nil {
			err = fmt.Errorf("topic %q does not exist", topicID)
		}
		return nil, fmt.Errorf("check pubsub topic: %w", err)
	}
	return &Notifier{client: client, topic: topic, clock: clock}, nil
}

// Notify marshals the notification to JSON and publishes it, waiting for the
// server to acknowledge.
func (n *Notifier) Notify(ctx context.Context, note alert.Notification) error {
	if n.topic == nil {
		return fmt.Errorf("%w: pubsub topic is not configured", alert.ErrDelivery)
	}
	data, err := json.Marshal(notifier.NewPayload(note, n.clock.Now()))
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	msg := &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"owner":   note.Owner,
			"rule_id": note.Rule.ID,
		},
	}
	if _, err := n.topic.Publish(ctx, msg).Get(ctx); err != nil {
		return fmt.Errorf("%w: publish message: %w", alert.ErrDelivery, err)
	}
	return nil
}

// Close flushes pending messages and closes the client when Dial created it.
func (n *Notifier) Close() error {
	if n.topic != nil {
		n.topic.Stop()
	}
	if n.client == nil {
		return nil
	}
	if err := n.client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}
