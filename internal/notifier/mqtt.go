package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/netfleet/fleetwatch/pkg/mqtt"
)

// MQTTNotifier publishes notifications to an MQTT topic. Recipients become
// part of the published payload so downstream consumers can route them.
type MQTTNotifier struct {
	client mqtt.MQTTClient
	topic  string
	qos    int
	logger zerolog.Logger
}

type mqttNotification struct {
	Recipient string    `json:"recipient"`
	Message   string    `json:"message"`
	SentAt    time.Time `json:"sent_at"`
}

// NewMQTTNotifier creates a notifier publishing to topic on an already
// connected client.
func NewMQTTNotifier(client mqtt.MQTTClient, topic string, qos int, logger zerolog.Logger) (*MQTTNotifier, error) {
	if topic == "" {
		return nil, fmt.Errorf("MQTT notification topic must not be empty")
	}
	return &MQTTNotifier{
		client: client,
		topic:  topic,
		qos:    qos,
		logger: logger,
	}, nil
}

func (m *MQTTNotifier) Name() string { return "mqtt" }

// Send publishes one notification and waits for the broker acknowledgement.
func (m *MQTTNotifier) Send(ctx context.Context, recipient, message string) error {
	payload, err := json.Marshal(mqttNotification{
		Recipient: recipient,
		Message:   message,
		SentAt:    time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode MQTT notification: %w", err)
	}

	token := m.client.Publish(m.topic, byte(m.qos), false, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}

	m.logger.Debug().Str("topic", m.topic).Str("recipient", recipient).Msg("MQTT notification published")
	return nil
}
