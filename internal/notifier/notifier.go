package notifier

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/netfleet/fleetwatch/internal/models"
)

// Notifier delivers one message to one recipient over an outbound channel.
type Notifier interface {
	Name() string
	Send(ctx context.Context, recipient, message string) error
}

// Alerter formats alert decisions and fans them out to every configured
// channel and recipient. Delivery is at most once per alert decision: a
// failed send is logged, never retried here.
type Alerter struct {
	notifiers  []Notifier
	recipients []string
	logger     zerolog.Logger
}

// NewAlerter creates an Alerter over the given channels and recipients.
func NewAlerter(notifiers []Notifier, recipients []string, logger zerolog.Logger) (*Alerter, error) {
	if len(notifiers) == 0 {
		return nil, fmt.Errorf("at least one notification channel is required")
	}
	if len(recipients) == 0 {
		return nil, fmt.Errorf("at least one alert recipient is required")
	}
	return &Alerter{
		notifiers:  notifiers,
		recipients: recipients,
		logger:     logger,
	}, nil
}

// SendAlert delivers a critical-timeout alert. It succeeds if the message
// reached at least one recipient on at least one channel; only a complete
// delivery failure is reported as an error.
func (a *Alerter) SendAlert(ctx context.Context, alert models.Alert) error {
	return a.broadcast(ctx, formatAlertMessage(alert))
}

// SendRecovery delivers a best-effort notice that a device came back.
func (a *Alerter) SendRecovery(ctx context.Context, alert models.Alert) error {
	return a.broadcast(ctx, formatRecoveryMessage(alert))
}

func (a *Alerter) broadcast(ctx context.Context, message string) error {
	delivered := 0
	var lastErr error

	for _, n := range a.notifiers {
		for _, recipient := range a.recipients {
			if err := n.Send(ctx, recipient, message); err != nil {
				lastErr = err
				a.logger.Error().Err(err).Str("channel", n.Name()).Str("recipient", recipient).
					Msg("Notification delivery failed")
				continue
			}
			delivered++
		}
	}

	if delivered == 0 {
		return fmt.Errorf("all notification deliveries failed: %w", lastErr)
	}
	return nil
}
