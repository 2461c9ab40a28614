// Package notifier delivers outbound email notifications off the request path.
//
// Callers hand a Message to a Dispatcher and move on; delivery, retries and failure
// logging happen in background workers. Two backends exist: an in-process worker Pool
// and a RabbitMQ Publisher/Consumer pair.
package notifier

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/vasapolrittideah/storefront/shared/mailer"
)

var (
	ErrQueueFull        = errors.New("notification queue is full")
	ErrDispatcherClosed = errors.New("notification dispatcher is closed")
)

// Message is a single outbound notification.
// HTMLBody may contain bearer credentials (reset links) and must never be logged.
type Message struct {
	ID        uuid.UUID `json:"id"`
	To        string    `json:"to"`
	Subject   string    `json:"subject"`
	HTMLBody  string    `json:"html_body"`
	CreatedAt time.Time `json:"created_at"`
}

// Email converts the message into a mailer email.
func (m Message) Email() mailer.Email {
	return mailer.Email{
		To:       []string{m.To},
		Subject:  m.Subject,
		HTMLBody: m.HTMLBody,
	}
}

func (m *Message) prepare() {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
}

// Dispatcher enqueues notifications. Dispatch never waits for delivery.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg Message) error
}

// Sender performs the actual delivery. *mailer.Mailer satisfies it.
type Sender interface {
	Send(email mailer.Email) error
}
