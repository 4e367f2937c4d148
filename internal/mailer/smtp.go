package mailer

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/ricirt/newsdigest/internal/domain"
)

// SMTPConfig describes the submission server.
type SMTPConfig struct {
	Host          string
	Port          int
	Username      string
	Password      string
	Timeout       time.Duration
	TLSMinVersion uint16
	RootCAs       *x509.CertPool // nil means the system pool
	Subject       string
}

// SMTPTransport opens STARTTLS-secured, LOGIN-authenticated SMTP sessions.
type SMTPTransport struct {
	cfg SMTPConfig
}

func NewSMTPTransport(cfg SMTPConfig) *SMTPTransport {
	return &SMTPTransport{cfg: cfg}
}

// Open dials the server and authenticates. The returned session keeps the
// connection open until Close so every recipient reuses it.
func (t *SMTPTransport) Open(ctx context.Context) (Session, error) {
	opts := []mail.Option{
		mail.WithPort(t.cfg.Port),
		mail.WithTimeout(t.cfg.Timeout),
		mail.WithTLSPolicy(mail.TLSMandatory),
		mail.WithTLSConfig(&tls.Config{
			ServerName: t.cfg.Host,
			MinVersion: t.cfg.TLSMinVersion,
			RootCAs:    t.cfg.RootCAs,
		}),
		mail.WithSMTPAuth(mail.SMTPAuthLogin),
		mail.WithUsername(t.cfg.Username),
		mail.WithPassword(t.cfg.Password),
	}

	client, err := mail.NewClient(t.cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: create client: %v", domain.ErrSessionUnavailable, err)
	}
	if err := client.DialWithContext(ctx); err != nil {
		return nil, fmt.Errorf("%w: dial %s:%d: %v", domain.ErrSessionUnavailable, t.cfg.Host, t.cfg.Port, err)
	}

	return &smtpSession{client: client, subject: t.cfg.Subject}, nil
}

type smtpSession struct {
	client  *mail.Client
	subject string
}

func (s *smtpSession) Send(ctx context.Context, env Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg, err := newMessage(env, s.subject)
	if err != nil {
		return err
	}
	return s.client.Send(msg)
}

func (s *smtpSession) Close() error {
	return s.client.Close()
}

// newMessage converts an envelope into a go-mail message with exactly one
// recipient and an HTML body.
func newMessage(env Envelope, subject string) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(env.From); err != nil {
		return nil, fmt.Errorf("set sender: %w", err)
	}
	if err := msg.To(env.To); err != nil {
		return nil, fmt.Errorf("set recipient: %w", err)
	}
	msg.Subject(subject)
	msg.SetMessageIDWithValue(env.MessageID)
	msg.SetDate()
	msg.SetBodyString(mail.TypeTextHTML, string(env.Body))
	return msg, nil
}

var _ Transport = (*SMTPTransport)(nil)
