// Package mailer delivers rendered digests over a mail transport session.
package mailer

import (
	"context"
	"fmt"

	"github.com/ricirt/newsdigest/internal/domain"
)

// Envelope is one validated delivery attempt: a single sender, a single
// recipient, the message identifier and the message body.
type Envelope struct {
	From      string
	To        string
	MessageID string
	Body      []byte
}

// NewEnvelope validates both addresses and builds the envelope.
func NewEnvelope(from, to, messageID string, body []byte) (Envelope, error) {
	if err := domain.ValidateAddress(from); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", domain.ErrInvalidSender, err)
	}
	if err := domain.ValidateAddress(to); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", domain.ErrInvalidRecipient, err)
	}
	return Envelope{From: from, To: to, MessageID: messageID, Body: body}, nil
}

// Session is an open, authenticated connection that accepts one envelope
// per call. It is reused for every recipient of a run and must not be used
// from more than one goroutine at a time.
type Session interface {
	Send(ctx context.Context, env Envelope) error
	Close() error
}

// Transport opens sessions. Mocking this interface in tests gives full
// control over delivery without a mail server.
type Transport interface {
	Open(ctx context.Context) (Session, error)
}
