// Package mailer delivers transactional email: invoices, payment reminders,
// and the deletion OTP.
package mailer

import (
	"context"
	"errors"
	"fmt"

	gomail "github.com/wneessen/go-mail"
)

// Sender is the delivery abstraction the engine and the reminder worker
// depend on. The SMTP implementation lives here; tests swap in a recorder.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SMTP sends mail through an SMTP relay using go-mail.
type SMTP struct {
	client *gomail.Client
	from   string
}

var _ Sender = (*SMTP)(nil)

// NewSMTP creates an SMTP sender. host and from are required; username may
// be empty for unauthenticated relays.
func NewSMTP(host string, port int, username, password, from string) (*SMTP, error) {
	if host == "" {
		return nil, errors.New("mailer: smtp host is required")
	}
	if from == "" {
		return nil, errors.New("mailer: from address is required")
	}

	opts := []gomail.Option{
		gomail.WithPort(port),
		gomail.WithTLSPolicy(gomail.TLSOpportunistic),
	}
	if username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(username),
			gomail.WithPassword(password),
		)
	}

	client, err := gomail.NewClient(host, opts...)
	if err != nil {
		return nil, fmt.Errorf("mailer: create client: %w", err)
	}
	return &SMTP{client: client, from: from}, nil
}

// Send implements Sender.
func (s *SMTP) Send(ctx context.Context, to, subject, body string) error {
	msg := gomail.NewMsg()
	if err := msg.From(s.from); err != nil {
		return fmt.Errorf("mailer: from %q: %w", s.from, err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("mailer: to %q: %w", to, err)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextPlain, body)

	if err := s.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("mailer: send to %q: %w", to, err)
	}
	return nil
}
