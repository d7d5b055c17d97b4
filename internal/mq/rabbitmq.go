package mq

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/yamdb/apiserver/config"
	"github.com/yamdb/apiserver/internal/logging"
)

// RabbitMQClient publishes to and consumes from named queues on the default exchange.
// RabbitMQ does not count redeliveries, so a failed message is republished with
// AttemptAttribute incremented until maxAttempts is reached.
type RabbitMQClient struct {
	conn            *amqp.Connection
	channel         *amqp.Channel
	queueDurable    bool
	queueAutoDelete bool
	maxAttempts     int
}

// NewRabbitMQClient dials the broker and opens a single channel.
func NewRabbitMQClient(cfg config.RabbitMQConfig, maxAttempts int) (*RabbitMQClient, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("rabbitmq url is required")
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	if cfg.PrefetchCount > 0 {
		if err := ch.Qos(cfg.PrefetchCount, 0, false); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return nil, err
		}
	}

	return &RabbitMQClient{
		conn:            conn,
		channel:         ch,
		queueDurable:    cfg.QueueDurable,
		queueAutoDelete: cfg.QueueAutoDelete,
		maxAttempts:     maxAttempts,
	}, nil
}

// Publish sends a message to the named queue. Messages on durable queues are persisted.
func (r *RabbitMQClient) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if strings.TrimSpace(channel) == "" {
		return "", errors.New("rabbitmq channel is required")
	}

	if _, err := r.declareQueue(channel); err != nil {
		return "", err
	}

	messageID := newMessageID()
	if err := r.publish(ctx, channel, messageID, data, attributesToHeaders(attrs)); err != nil {
		return "", err
	}
	return messageID, nil
}

// Subscribe consumes messages from the named queue until ctx is cancelled.
func (r *RabbitMQClient) Subscribe(ctx context.Context, channel string, handler Handler) error {
	if strings.TrimSpace(channel) == "" {
		return errors.New("rabbitmq channel is required")
	}

	if _, err := r.declareQueue(channel); err != nil {
		return err
	}

	consumerTag := fmt.Sprintf("yamdb-%s", newMessageID())
	deliveries, err := r.channel.Consume(channel, consumerTag, false, false, false, false, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = r.channel.Cancel(consumerTag, false)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-deliveries:
			if !ok {
				return errors.New("rabbitmq delivery channel closed")
			}
			r.handle(ctx, channel, delivery, handler)
		}
	}
}

func (r *RabbitMQClient) handle(ctx context.Context, channel string, delivery amqp.Delivery, handler Handler) {
	attrs := headersToAttributes(delivery.Headers)
	message := Message{
		ID:         delivery.MessageId,
		Data:       delivery.Body,
		Attributes: attrs,
		Attempt:    attemptFromAttributes(attrs),
	}

	err := handler(ctx, message)
	if err == nil {
		_ = delivery.Ack(false)
		return
	}

	log := logging.WithComponent("rabbitmq")
	event := log.Warn().Err(err).Str("queue", channel).Str("message_id", message.ID).Int("attempt", message.Attempt)
	if exhausted(message.Attempt, r.maxAttempts) {
		// Rejected without requeue: dead-lettered if the queue has a DLX, dropped otherwise.
		event.Msg("handler failed, giving up")
		_ = delivery.Nack(false, false)
		return
	}

	headers := delivery.Headers
	if headers == nil {
		headers = amqp.Table{}
	}
	headers[AttemptAttribute] = strconv.Itoa(message.Attempt + 1)
	if err := r.publish(ctx, channel, message.ID, delivery.Body, headers); err != nil {
		event.Msg("handler failed, requeueing")
		_ = delivery.Nack(false, true)
		return
	}
	event.Msg("handler failed, retrying")
	_ = delivery.Ack(false)
}

func (r *RabbitMQClient) publish(ctx context.Context, queue, messageID string, body []byte, headers amqp.Table) error {
	deliveryMode := amqp.Transient
	if r.queueDurable {
		deliveryMode = amqp.Persistent
	}
	return r.channel.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: deliveryMode,
		MessageId:    messageID,
		Headers:      headers,
		Body:         body,
	})
}

// Close closes the underlying channel and connection.
func (r *RabbitMQClient) Close() error {
	if r.channel != nil {
		_ = r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}

func (r *RabbitMQClient) declareQueue(name string) (amqp.Queue, error) {
	return r.channel.QueueDeclare(name, r.queueDurable, r.queueAutoDelete, false, false, nil)
}

func attributesToHeaders(attrs map[string]string) amqp.Table {
	headers := amqp.Table{}
	for key, value := range attrs {
		headers[key] = value
	}
	return headers
}

func headersToAttributes(headers amqp.Table) map[string]string {
	if len(headers) == 0 {
		return nil
	}
	attrs := make(map[string]string, len(headers))
	for key, value := range headers {
		switch typed := value.(type) {
		case string:
			attrs[key] = typed
		case []byte:
			attrs[key] = string(typed)
		default:
			attrs[key] = fmt.Sprint(value)
		}
	}
	return attrs
}

func newMessageID() string {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return ""
	}
	return hex.EncodeToString(buf[:])
}
