package mailer

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Dispatcher turns a rendered body into an envelope and submits it over
// a session. A failed send affects only that recipient: the session stays
// open and the error is returned to the caller to record.
type Dispatcher struct {
	sender    string
	messageID string
	logger    *zap.Logger
}

// NewDispatcher builds a dispatcher sending from sender. messageID is
// reused for every envelope; uniqueness, where needed, is left to the
// receiving queue.
func NewDispatcher(sender, messageID string, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{sender: sender, messageID: messageID, logger: logger}
}

// Sender returns the configured sender address.
func (d *Dispatcher) Sender() string { return d.sender }

// Send delivers body to recipient over sess.
func (d *Dispatcher) Send(ctx context.Context, sess Session, recipient, body string) error {
	log := d.logger.With(zap.String("recipient", recipient))

	env, err := NewEnvelope(d.sender, recipient, d.messageID, []byte(body))
	if err != nil {
		log.Warn("not sending digest", zap.Error(err))
		return err
	}

	if err := sess.Send(ctx, env); err != nil {
		log.Warn("failed to send digest", zap.Error(err))
		return fmt.Errorf("send to %s: %w", recipient, err)
	}

	log.Info("digest sent", zap.Int("bytes", len(env.Body)))
	return nil
}
