package mailer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/yamdb/apiserver/internal/logging"
	"github.com/yamdb/apiserver/internal/mq"
)

// Publisher is the subset of the message queue used to hand off emails.
type Publisher interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
}

// QueueSender publishes messages for the mailer worker instead of sending them inline.
type QueueSender struct {
	publisher Publisher
	channel   string
}

func NewQueueSender(publisher Publisher, channel string) *QueueSender {
	return &QueueSender{publisher: publisher, channel: channel}
}

func (q *QueueSender) Send(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if _, err := q.publisher.Publish(ctx, q.channel, data, map[string]string{"kind": "email"}); err != nil {
		return fmt.Errorf("publish email: %w", err)
	}
	return nil
}

// Worker drains the email queue into a Sender.
type Worker struct {
	sender Sender
}

func NewWorker(sender Sender) *Worker {
	return &Worker{sender: sender}
}

// Handle is an mq.Handler. Undecodable payloads are dropped; send failures are retried.
func (w *Worker) Handle(ctx context.Context, msg mq.Message) error {
	l := logging.WithComponent("mailer")
	var email Message
	if err := json.Unmarshal(msg.Data, &email); err != nil {
		l.Warn().Err(err).Str("message_id", msg.ID).Msg("dropping malformed email message")
		return nil
	}
	if msg.Attempt > 1 {
		l.Info().Str("message_id", msg.ID).Int("attempt", msg.Attempt).Msg("retrying email delivery")
	}
	return w.sender.Send(ctx, email)
}
