package mail

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"

	"github.com/prolearn/accounts/internal/config"
)

// SMTPMailer delivers mail through a configured SMTP relay.
type SMTPMailer struct {
	dialer *gomail.Dialer
	from   string
}

// NewSMTPMailer constructs a mailer over gomail.
func NewSMTPMailer(cfg config.APIConfig) *SMTPMailer {
	return &SMTPMailer{
		dialer: gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword),
		from:   cfg.MailFrom,
	}
}

// Send delivers a single plain-text message. gomail has no context support,
// so dispatch runs in a goroutine and the call returns early on cancellation.
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	gm := gomail.NewMessage()
	gm.SetHeader("From", m.from)
	gm.SetHeader("To", msg.To)
	gm.SetHeader("Subject", msg.Subject)
	gm.SetBody("text/plain", msg.Body)

	done := make(chan error, 1)
	go func() { done <- m.dialer.DialAndSend(gm) }()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp dispatch: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
