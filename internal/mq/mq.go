package mq

import (
	"context"
	"fmt"
	"strconv"

	"github.com/yamdb/apiserver/config"
)

// AttemptAttribute carries the delivery count on brokers that do not track it.
const AttemptAttribute = "x-attempt"

// Message represents a broker-agnostic payload delivered to subscribers.
type Message struct {
	ID         string
	Data       []byte
	Attributes map[string]string

	// Attempt is 1 on first delivery.
	Attempt int
}

// Handler processes a message. Return an error to signal a retry/nack.
type Handler func(ctx context.Context, msg Message) error

// Backend defines the broker-agnostic operations used by the app.
type Backend interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
	Subscribe(ctx context.Context, channel string, handler Handler) error
	Close() error
}

// MQ wraps a backend with a stable API.
type MQ struct {
	backend Backend
}

// New constructs an MQ wrapper for the provided backend.
func New(backend Backend) *MQ {
	return &MQ{backend: backend}
}

// Open connects to the broker selected by cfg.Backend ("rabbitmq" or "pubsub").
func Open(ctx context.Context, cfg config.MQConfig) (*MQ, error) {
	switch cfg.Backend {
	case "", "rabbitmq":
		backend, err := NewRabbitMQClient(cfg.RabbitMQ, cfg.MaxAttempts)
		if err != nil {
			return nil, fmt.Errorf("connect rabbitmq: %w", err)
		}
		return New(backend), nil
	case "pubsub":
		backend, err := NewPubSubClient(ctx, cfg.PubSub, cfg.MaxAttempts)
		if err != nil {
			return nil, fmt.Errorf("connect pubsub: %w", err)
		}
		return New(backend), nil
	default:
		return nil, fmt.Errorf("unknown mq backend %q", cfg.Backend)
	}
}

// Publish sends a message to the named channel.
func (m *MQ) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	return m.backend.Publish(ctx, channel, data, attrs)
}

// Subscribe consumes messages from the named channel until ctx is done.
func (m *MQ) Subscribe(ctx context.Context, channel string, handler Handler) error {
	return m.backend.Subscribe(ctx, channel, handler)
}

// Close closes the underlying backend.
func (m *MQ) Close() error {
	return m.backend.Close()
}

// attemptFromAttributes reads AttemptAttribute, defaulting to the first attempt.
func attemptFromAttributes(attrs map[string]string) int {
	attempt, err := strconv.Atoi(attrs[AttemptAttribute])
	if err != nil || attempt < 1 {
		return 1
	}
	return attempt
}

// exhausted reports whether a failed delivery should be given up on.
func exhausted(attempt, maxAttempts int) bool {
	return maxAttempts > 0 && attempt >= maxAttempts
}
