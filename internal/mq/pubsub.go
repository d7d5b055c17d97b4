package mq

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/yamdb/apiserver/config"
	"github.com/yamdb/apiserver/internal/logging"
	"google.golang.org/api/option"
)

const (
	retryMinBackoff = 10 * time.Second
	retryMaxBackoff = 10 * time.Minute
)

// PubSubClient maps channels onto Pub/Sub topics with one subscription each.
// Subscriptions it creates redeliver nacked messages with exponential backoff.
type PubSubClient struct {
	client             *pubsub.Client
	subscriptionSuffix string
	maxAttempts        int
}

// NewPubSubClient constructs a Pub/Sub client from config.
func NewPubSubClient(ctx context.Context, cfg config.PubSubConfig, maxAttempts int) (*PubSubClient, error) {
	if strings.TrimSpace(cfg.ProjectID) == "" {
		return nil, errors.New("pubsub project id is required")
	}

	var opts []option.ClientOption
	if strings.TrimSpace(cfg.CredentialsFile) != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := pubsub.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, err
	}

	return &PubSubClient{
		client:             client,
		subscriptionSuffix: cfg.SubscriptionSuffix,
		maxAttempts:        maxAttempts,
	}, nil
}

// Publish sends a message to the named topic, creating the topic on first use.
func (p *PubSubClient) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if strings.TrimSpace(channel) == "" {
		return "", errors.New("pubsub channel is required")
	}

	topic, err := p.ensureTopic(ctx, channel)
	if err != nil {
		return "", err
	}
	defer topic.Stop()

	result := topic.Publish(ctx, &pubsub.Message{Data: data, Attributes: attrs})
	return result.Get(ctx)
}

// Subscribe receives messages until ctx is cancelled. A handler error nacks the
// message unless it has used up its attempts, in which case it is acked and logged.
func (p *PubSubClient) Subscribe(ctx context.Context, channel string, handler Handler) error {
	if strings.TrimSpace(channel) == "" {
		return errors.New("pubsub channel is required")
	}

	topic, err := p.ensureTopic(ctx, channel)
	if err != nil {
		return err
	}

	sub, err := p.ensureSubscription(ctx, p.subscriptionName(channel), topic)
	if err != nil {
		return err
	}

	log := logging.WithComponent("pubsub")
	return sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		message := Message{
			ID:         msg.ID,
			Data:       msg.Data,
			Attributes: msg.Attributes,
			Attempt:    deliveryAttempt(msg),
		}
		err := handler(ctx, message)
		if err == nil {
			msg.Ack()
			return
		}

		event := log.Warn().Err(err).Str("topic", channel).Str("message_id", msg.ID).Int("attempt", message.Attempt)
		if exhausted(message.Attempt, p.maxAttempts) {
			event.Msg("handler failed, giving up")
			msg.Ack()
			return
		}
		event.Msg("handler failed, nacking")
		msg.Nack()
	})
}

// deliveryAttempt is only populated by Pub/Sub on subscriptions with a
// dead-letter policy; otherwise every delivery counts as the first.
func deliveryAttempt(msg *pubsub.Message) int {
	if msg.DeliveryAttempt != nil && *msg.DeliveryAttempt > 0 {
		return *msg.DeliveryAttempt
	}
	return attemptFromAttributes(msg.Attributes)
}

// Close closes the underlying Pub/Sub client.
func (p *PubSubClient) Close() error {
	return p.client.Close()
}

func (p *PubSubClient) ensureTopic(ctx context.Context, name string) (*pubsub.Topic, error) {
	topic := p.client.Topic(name)
	exists, err := topic.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if !exists {
		return p.client.CreateTopic(ctx, name)
	}
	return topic, nil
}

func (p *PubSubClient) ensureSubscription(ctx context.Context, name string, topic *pubsub.Topic) (*pubsub.Subscription, error) {
	sub := p.client.Subscription(name)
	exists, err := sub.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if !exists {
		return p.client.CreateSubscription(ctx, name, pubsub.SubscriptionConfig{
			Topic: topic,
			RetryPolicy: &pubsub.RetryPolicy{
				MinimumBackoff: retryMinBackoff,
				MaximumBackoff: retryMaxBackoff,
			},
		})
	}
	return sub, nil
}

func (p *PubSubClient) subscriptionName(channel string) string {
	if p.subscriptionSuffix == "" {
		return channel
	}
	return channel + p.subscriptionSuffix
}
