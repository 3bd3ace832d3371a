package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

const webhookTimeout = 15 * time.Second

// WebhookNotifier posts messages to a messaging-gateway HTTP API. Recipients
// are the gateway's room or group identifiers.
type WebhookNotifier struct {
	url    string
	apiKey string
	client *http.Client
	logger zerolog.Logger
}

type webhookPayload struct {
	APIKey    string `json:"api_key"`
	Recipient string `json:"recipient"`
	Message   string `json:"message"`
}

// NewWebhookNotifier creates a notifier posting to url with the given API key.
func NewWebhookNotifier(url, apiKey string, logger zerolog.Logger) (*WebhookNotifier, error) {
	if url == "" {
		return nil, fmt.Errorf("webhook URL must not be empty")
	}
	return &WebhookNotifier{
		url:    url,
		apiKey: apiKey,
		client: &http.Client{Timeout: webhookTimeout},
		logger: logger,
	}, nil
}

func (w *WebhookNotifier) Name() string { return "webhook" }

// Send posts one message to one recipient. Any non-2xx response is a
// delivery failure.
func (w *WebhookNotifier) Send(ctx context.Context, recipient, message string) error {
	body, err := json.Marshal(webhookPayload{
		APIKey:    w.apiKey,
		Recipient: recipient,
		Message:   message,
	})
	if err != nil {
		return fmt.Errorf("failed to encode webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	w.logger.Debug().Str("recipient", recipient).Msg("Webhook notification delivered")
	return nil
}
