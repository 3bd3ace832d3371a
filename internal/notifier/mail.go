package notifier

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	mail "gopkg.in/mail.v2"
)

// MailNotifier delivers notifications over SMTP. Recipients are email
// addresses.
type MailNotifier struct {
	dialer *mail.Dialer
	from   string
	logger zerolog.Logger
}

// NewMailNotifier creates an SMTP notifier. Credentials may be empty for an
// open relay.
func NewMailNotifier(host string, port int, username, password, from string, logger zerolog.Logger) (*MailNotifier, error) {
	if host == "" || port <= 0 {
		return nil, fmt.Errorf("SMTP host and port are required")
	}
	if from == "" {
		return nil, fmt.Errorf("SMTP from address is required")
	}
	return &MailNotifier{
		dialer: mail.NewDialer(host, port, username, password),
		from:   from,
		logger: logger,
	}, nil
}

func (m *MailNotifier) Name() string { return "email" }

// Send delivers one message to one address. The subject is fixed; the alert
// body carries the detail.
func (m *MailNotifier) Send(ctx context.Context, recipient, message string) error {
	msg := mail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", recipient)
	msg.SetHeader("Subject", "fleetwatch device alert")
	msg.SetBody("text/plain", message)

	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("failed to send alert email: %w", err)
	}

	m.logger.Debug().Str("recipient", recipient).Msg("Alert email delivered")
	return nil
}
