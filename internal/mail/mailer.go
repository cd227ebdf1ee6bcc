package mail

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prolearn/accounts/internal/config"
)

// Message is a plain-text transactional email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Mailer dispatches transactional email. Implementations must report dispatch
// failures; callers treat email as a hard dependency, not best-effort.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// New selects a Mailer implementation from configuration.
func New(cfg config.APIConfig, log *slog.Logger) (Mailer, error) {
	switch cfg.MailProvider {
	case "smtp":
		return NewSMTPMailer(cfg), nil
	case "brevo":
		return NewBrevoMailer(cfg.BrevoAPIKey, cfg.MailFrom, cfg.MailFromName)
	case "log":
		return &logMailer{log: log}, nil
	default:
		return nil, fmt.Errorf("unknown mail provider %q", cfg.MailProvider)
	}
}

// logMailer writes messages to the logger instead of delivering them. Used in
// development so OTP codes show up in process output.
type logMailer struct {
	log *slog.Logger
}

func (m *logMailer) Send(_ context.Context, msg Message) error {
	m.log.Info("email dispatched to log sink", "to", msg.To, "subject", msg.Subject, "body", msg.Body)
	return nil
}
