// Package mailer delivers confirmation codes to users out of band.
package mailer

import (
	"context"
	"fmt"

	"github.com/yamdb/apiserver/config"
	"github.com/yamdb/apiserver/internal/logging"
)

const confirmationSubject = "Your confirmation code"

// Message is a plain-text email.
type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Sender delivers a single message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Mailer renders and sends confirmation-code emails.
type Mailer struct {
	sender Sender
}

func New(sender Sender) *Mailer {
	return &Mailer{sender: sender}
}

// SendConfirmationCode delivers code to email.
func (m *Mailer) SendConfirmationCode(ctx context.Context, email, code string) error {
	return m.sender.Send(ctx, ConfirmationMessage(email, code))
}

// ConfirmationMessage builds the email carrying a confirmation code.
func ConfirmationMessage(email, code string) Message {
	return Message{
		To:      email,
		Subject: confirmationSubject,
		Body:    fmt.Sprintf("Your confirmation code: %s", code),
	}
}

// ConsoleSender writes messages to the log instead of sending them.
type ConsoleSender struct{}

func (ConsoleSender) Send(_ context.Context, msg Message) error {
	l := logging.WithComponent("mailer")
	l.Info().
		Str("to", msg.To).
		Str("subject", msg.Subject).
		Str("body", msg.Body).
		Msg("email")
	return nil
}

// NewSender builds the sender selected by cfg.Backend. The queue backend
// needs a publisher; the other backends ignore it.
func NewSender(cfg config.MailConfig, publisher Publisher) (Sender, error) {
	switch cfg.Backend {
	case "", "console":
		return ConsoleSender{}, nil
	case "smtp":
		return NewSMTPSender(cfg), nil
	case "queue":
		if publisher == nil {
			return nil, fmt.Errorf("mail backend %q requires a message queue", cfg.Backend)
		}
		return NewQueueSender(publisher, cfg.Queue), nil
	default:
		return nil, fmt.Errorf("unknown mail backend %q", cfg.Backend)
	}
}
