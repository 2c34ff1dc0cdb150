package mailer

import (
	"context"
	"fmt"

	"github.com/wneessen/go-mail"
)

// Envelope is one outgoing message.
type Envelope struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// Transport delivers envelopes. Open is called once per batch.
type Transport interface {
	Open(ctx context.Context) (Session, error)
}

// Session sends messages over an open connection.
type Session interface {
	Send(env Envelope) error
	Close() error
}

// SMTPTransport sends through an implicit-TLS SMTP server.
type SMTPTransport struct {
	Host       string
	Port       int
	Username   string
	Password   string
	SenderName string
}

type smtpSession struct {
	client *mail.Client
	t      SMTPTransport
}

func (t SMTPTransport) Open(ctx context.Context) (Session, error) {
	client, err := mail.NewClient(t.Host,
		mail.WithPort(t.Port),
		mail.WithSSL(),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(t.Username),
		mail.WithPassword(t.Password),
	)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	if err := client.DialWithContext(ctx); err != nil {
		return nil, fmt.Errorf("smtp dial %s:%d: %w", t.Host, t.Port, err)
	}
	return &smtpSession{client: client, t: t}, nil
}

func (s *smtpSession) Send(env Envelope) error {
	msg := mail.NewMsg()
	if err := msg.FromFormat(s.t.SenderName, s.t.Username); err != nil {
		return fmt.Errorf("from: %w", err)
	}
	if err := msg.To(env.To); err != nil {
		return fmt.Errorf("to %q: %w", env.To, err)
	}
	msg.Subject(env.Subject)
	msg.SetBodyString(mail.TypeTextPlain, env.Text)
	if env.HTML != "" {
		msg.AddAlternativeString(mail.TypeTextHTML, env.HTML)
	}
	return s.client.Send(msg)
}

func (s *smtpSession) Close() error {
	return s.client.Close()
}
